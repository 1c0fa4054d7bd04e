package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"logwarden/internal/model"
)

// ThresholdSource exposes the calibrator state the exporter scrapes.
type ThresholdSource interface {
	Threshold() float64
	PoolSizes() (normal, abnormal int)
}

// Collector exports the pipeline counters in Prometheus format. It
// reads from the Store snapshot on every scrape, so registration has
// no effect on the hot path.
type Collector struct {
	store     *Store
	threshold ThresholdSource

	processedDesc       *prometheus.Desc
	degradedDesc        *prometheus.Desc
	classificationsDesc *prometheus.Desc
	classifierErrsDesc  *prometheus.Desc
	alertsDesc          *prometheus.Desc
	deliveriesDesc      *prometheus.Desc
	thresholdDesc       *prometheus.Desc
	poolSizeDesc        *prometheus.Desc
}

func NewCollector(store *Store, threshold ThresholdSource) *Collector {
	return &Collector{
		store:     store,
		threshold: threshold,
		processedDesc: prometheus.NewDesc("logwarden_logs_processed_total",
			"Raw log lines accepted from each ingest source", []string{"source"}, nil),
		degradedDesc: prometheus.NewDesc("logwarden_logs_degraded_total",
			"Lines parsed with fallback values", nil, nil),
		classificationsDesc: prometheus.NewDesc("logwarden_classifications_total",
			"Classified records per class", []string{"class", "class_name"}, nil),
		classifierErrsDesc: prometheus.NewDesc("logwarden_classifier_errors_total",
			"Classification failures per kind", []string{"kind"}, nil),
		alertsDesc: prometheus.NewDesc("logwarden_alerts_created_total",
			"Alerts recorded by the alert policy", nil, nil),
		deliveriesDesc: prometheus.NewDesc("logwarden_deliveries_total",
			"Collector delivery attempts per outcome", []string{"outcome"}, nil),
		thresholdDesc: prometheus.NewDesc("logwarden_anomaly_threshold",
			"Current operating anomaly threshold", nil, nil),
		poolSizeDesc: prometheus.NewDesc("logwarden_score_pool_size",
			"Scores currently held in each calibration pool", []string{"pool"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.processedDesc
	ch <- c.degradedDesc
	ch <- c.classificationsDesc
	ch <- c.classifierErrsDesc
	ch <- c.alertsDesc
	ch <- c.deliveriesDesc
	ch <- c.thresholdDesc
	ch <- c.poolSizeDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.store.Snapshot()
	for source, n := range snap.BySource {
		ch <- prometheus.MustNewConstMetric(c.processedDesc, prometheus.CounterValue, float64(n), source)
	}
	ch <- prometheus.MustNewConstMetric(c.degradedDesc, prometheus.CounterValue, float64(snap.Degraded))
	for id, n := range snap.Classifications {
		ch <- prometheus.MustNewConstMetric(c.classificationsDesc, prometheus.CounterValue, float64(n),
			strconv.Itoa(id), model.ClassName(id))
	}
	for kind, n := range snap.ClassifierErrors {
		ch <- prometheus.MustNewConstMetric(c.classifierErrsDesc, prometheus.CounterValue, float64(n), kind)
	}
	ch <- prometheus.MustNewConstMetric(c.alertsDesc, prometheus.CounterValue, float64(snap.AlertsCreated))
	ch <- prometheus.MustNewConstMetric(c.deliveriesDesc, prometheus.CounterValue, float64(snap.DeliveredOK), "ok")
	ch <- prometheus.MustNewConstMetric(c.deliveriesDesc, prometheus.CounterValue, float64(snap.DeliveryFailed), "failed")
	if c.threshold != nil {
		ch <- prometheus.MustNewConstMetric(c.thresholdDesc, prometheus.GaugeValue, c.threshold.Threshold())
		normal, abnormal := c.threshold.PoolSizes()
		ch <- prometheus.MustNewConstMetric(c.poolSizeDesc, prometheus.GaugeValue, float64(normal), "normal")
		ch <- prometheus.MustNewConstMetric(c.poolSizeDesc, prometheus.GaugeValue, float64(abnormal), "abnormal")
	}
}

// NewRegistry builds a registry with the pipeline collector plus the
// standard process and runtime collectors.
func NewRegistry(store *Store, threshold ThresholdSource) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		NewCollector(store, threshold),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return registry
}
