package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"logwarden/internal/config"
)

var ErrInvalidThreshold = errors.New("threshold must be within [0,1]")

// Grid-search neighborhood around the current threshold, ascending.
var candidateOffsets = []float64{-0.2, -0.1, 0, 0.1, 0.2}

type CalibrationMetrics struct {
	Threshold    float64 `json:"current_threshold"`
	NormalMean   float64 `json:"normal_mean"`
	AbnormalMean float64 `json:"abnormal_mean"`
	Precision    float64 `json:"precision"`
	Recall       float64 `json:"recall"`
	F1           float64 `json:"f1_score"`
	TP           int     `json:"TP"`
	FP           int     `json:"FP"`
	TN           int     `json:"TN"`
	FN           int     `json:"FN"`
}

// Calibrator owns the operating threshold and the bounded score pools
// behind it. The pipeline worker and the control plane both mutate the
// state, serialized by a single mutex.
type Calibrator struct {
	mu               sync.Mutex
	threshold        float64
	lastRecalibrated time.Time
	interval         time.Duration
	normal           *scoreRing
	abnormal         *scoreRing
	statePath        string
	logger           *slog.Logger
}

func NewCalibrator(cfg config.CalibrationConfig, logger *slog.Logger) *Calibrator {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 300 * time.Second
	}
	c := &Calibrator{
		threshold:        cfg.InitialThreshold,
		lastRecalibrated: time.Now().UTC(),
		interval:         interval,
		normal:           newScoreRing(cfg.WindowSize),
		abnormal:         newScoreRing(cfg.WindowSize),
		statePath:        cfg.StatePath,
		logger:           logger,
	}
	c.loadState()
	return c
}

func (c *Calibrator) Threshold() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

func (c *Calibrator) LastRecalibrated() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRecalibrated
}

// Record files a score into the normal or abnormal pool, partitioned by
// the threshold in effect at call time, and returns that threshold.
// Pools are not re-partitioned when the threshold later moves.
func (c *Calibrator) Record(score float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if score >= c.threshold {
		c.abnormal.Push(score)
	} else {
		c.normal.Push(score)
	}
	return c.threshold
}

// MaybeRecalibrate runs the grid search once the interval has elapsed.
// lastRecalibrated advances whether or not a new threshold was found.
func (c *Calibrator) MaybeRecalibrate(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.lastRecalibrated) < c.interval {
		return false
	}
	changed := c.recalibrate()
	c.lastRecalibrated = now
	return changed
}

// recalibrate evaluates the candidate thresholds against the current
// pools and keeps the first candidate with the strictly best F1.
// Caller holds c.mu.
func (c *Calibrator) recalibrate() bool {
	if c.normal.Len() == 0 || c.abnormal.Len() == 0 {
		return false
	}
	bestF1 := 0.0
	bestThreshold := c.threshold
	found := false
	for _, off := range candidateOffsets {
		t := c.threshold + off
		if t < 0 || t > 1 {
			continue
		}
		fp := c.normal.CountAbove(t)
		tp := c.abnormal.CountAbove(t)
		if tp == 0 {
			continue
		}
		fn := c.abnormal.Len() - tp
		precision := float64(tp) / float64(tp+fp)
		recall := float64(tp) / float64(tp+fn)
		f1 := 2 * precision * recall / (precision + recall)
		if f1 > bestF1 {
			bestF1 = f1
			bestThreshold = t
			found = true
		}
	}
	if !found || bestThreshold == c.threshold {
		return false
	}
	old := c.threshold
	c.threshold = bestThreshold
	c.saveState()
	if c.logger != nil {
		c.logger.Info("threshold recalibrated",
			"old", old,
			"new", bestThreshold,
			"f1", bestF1,
			"normal_pool", c.normal.Len(),
			"abnormal_pool", c.abnormal.Len(),
		)
	}
	return true
}

// Override sets the threshold directly, bypassing the grid search, and
// resets the recalibration clock.
func (c *Calibrator) Override(value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, value)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = value
	c.lastRecalibrated = time.Now().UTC()
	c.saveState()
	if c.logger != nil {
		c.logger.Info("threshold override", "threshold", value)
	}
	return nil
}

func (c *Calibrator) Metrics() CalibrationMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.threshold
	fp := c.normal.CountAbove(t)
	tp := c.abnormal.CountAbove(t)
	tn := c.normal.Len() - fp
	fn := c.abnormal.Len() - tp
	var precision, recall, f1 float64
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return CalibrationMetrics{
		Threshold:    round4(t),
		NormalMean:   round4(c.normal.Mean()),
		AbnormalMean: round4(c.abnormal.Mean()),
		Precision:    round4(precision),
		Recall:       round4(recall),
		F1:           round4(f1),
		TP:           tp,
		FP:           fp,
		TN:           tn,
		FN:           fn,
	}
}

func (c *Calibrator) PoolSizes() (normal, abnormal int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.normal.Len(), c.abnormal.Len()
}

type thresholdState struct {
	Threshold float64   `json:"threshold"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Calibrator) loadState() {
	if c.statePath == "" {
		return
	}
	data, err := os.ReadFile(c.statePath)
	if err != nil {
		return
	}
	var st thresholdState
	if err := json.Unmarshal(data, &st); err != nil {
		return
	}
	if st.Threshold >= 0 && st.Threshold <= 1 {
		c.threshold = st.Threshold
	}
}

// saveState is called with c.mu held.
func (c *Calibrator) saveState() {
	if c.statePath == "" {
		return
	}
	data, err := json.Marshal(thresholdState{Threshold: c.threshold, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return
	}
	if err := os.WriteFile(c.statePath, data, 0o644); err != nil && c.logger != nil {
		c.logger.Warn("persist threshold state", "path", c.statePath, "error", err)
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
