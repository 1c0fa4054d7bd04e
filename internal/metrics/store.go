package metrics

import (
	"sync"
	"time"

	"logwarden/internal/model"
)

// Snapshot is a point-in-time copy of the pipeline counters.
type Snapshot struct {
	StartedAt        time.Time         `json:"started_at"`
	Processed        uint64            `json:"processed"`
	BySource         map[string]uint64 `json:"by_source"`
	Degraded         uint64            `json:"degraded"`
	Classifications  map[int]uint64    `json:"classifications"`
	ClassifierErrors map[string]uint64 `json:"classifier_errors"`
	AlertsCreated    uint64            `json:"alerts_created"`
	DeliveredOK      uint64            `json:"delivered_ok"`
	DeliveryFailed   uint64            `json:"delivery_failed"`
}

// Store accumulates pipeline counters. All methods are safe for
// concurrent use; the pipeline worker writes, the API reads.
type Store struct {
	mu               sync.RWMutex
	startedAt        time.Time
	processed        uint64
	bySource         map[string]uint64
	degraded         uint64
	classifications  [model.NumClasses]uint64
	classifierErrors map[string]uint64
	alertsCreated    uint64
	deliveredOK      uint64
	deliveryFailed   uint64
	services         map[string]model.ServiceStatus
}

func NewStore() *Store {
	return &Store{
		startedAt:        time.Now().UTC(),
		bySource:         make(map[string]uint64),
		classifierErrors: make(map[string]uint64),
		services:         make(map[string]model.ServiceStatus),
	}
}

func (s *Store) RecordProcessed(source string) {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.bySource[source]++
}

func (s *Store) RecordDegraded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded++
}

func (s *Store) RecordClassified(classID int) {
	if !model.ValidClassID(classID) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifications[classID]++
}

func (s *Store) RecordClassifierError(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifierErrors[kind]++
}

func (s *Store) RecordAlert() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertsCreated++
}

func (s *Store) RecordDelivery(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.deliveredOK++
	} else {
		s.deliveryFailed++
	}
}

// SetServiceStatus upserts the reported status of an external feeder
// service, keyed by service name.
func (s *Store) SetServiceStatus(st model.ServiceStatus) {
	if st.Service == "" {
		return
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[st.Service] = st
}

func (s *Store) Services() []model.ServiceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ServiceStatus, 0, len(s.services))
	for _, st := range s.services {
		out = append(out, st)
	}
	return out
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		StartedAt:        s.startedAt,
		Processed:        s.processed,
		BySource:         make(map[string]uint64, len(s.bySource)),
		Degraded:         s.degraded,
		Classifications:  make(map[int]uint64, model.NumClasses),
		ClassifierErrors: make(map[string]uint64, len(s.classifierErrors)),
		AlertsCreated:    s.alertsCreated,
		DeliveredOK:      s.deliveredOK,
		DeliveryFailed:   s.deliveryFailed,
	}
	for src, n := range s.bySource {
		snap.BySource[src] = n
	}
	for id, n := range s.classifications {
		if n > 0 {
			snap.Classifications[id] = n
		}
	}
	for kind, n := range s.classifierErrors {
		snap.ClassifierErrors[kind] = n
	}
	return snap
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = 0
	s.bySource = make(map[string]uint64)
	s.degraded = 0
	s.classifications = [model.NumClasses]uint64{}
	s.classifierErrors = make(map[string]uint64)
	s.alertsCreated = 0
	s.deliveredOK = 0
	s.deliveryFailed = 0
}
