package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chartport/chartport/internal/domain"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	tasksUpserted   *prometheus.CounterVec
	tasksReset      prometheus.Counter
	transitions     *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	scansTotal      prometheus.Counter
	scanPages       prometheus.Counter
	scanInstances   prometheus.Counter
	scanDuration    prometheus.Histogram
	editsTotal      *prometheus.CounterVec
	workerPoolIdle  prometheus.Gauge
	workerPoolBusy  prometheus.Gauge
	workerPoolStop  prometheus.Gauge
	leasesActive    prometheus.Gauge
	pendingDepth    prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *Collector {
	return &Collector{
		tasksUpserted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartport_tasks_upserted_total",
				Help: "Total number of task upserts",
			},
			[]string{"created"},
		),
		tasksReset: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chartport_tasks_reset_total",
				Help: "Total number of finished tasks reset after a content change",
			},
		),
		transitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartport_task_transitions_total",
				Help: "Total number of task status transitions",
			},
			[]string{"status", "class"},
		),
		stageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chartport_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		scansTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chartport_scans_total",
				Help: "Total number of completed category scans",
			},
		),
		scanPages: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chartport_scan_pages_total",
				Help: "Total number of pages visited by scans",
			},
		),
		scanInstances: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chartport_scan_instances_total",
				Help: "Total number of graph instances discovered by scans",
			},
		),
		scanDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chartport_scan_duration_seconds",
				Help:    "Category scan duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		editsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartport_edits_total",
				Help: "Total number of edit attempts by outcome",
			},
			[]string{"outcome"},
		),
		workerPoolIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chartport_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chartport_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStop: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chartport_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
		leasesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chartport_leases_active",
				Help: "Number of tasks currently leased to workers",
			},
		),
		pendingDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chartport_pending_depth",
				Help: "Number of eligible tasks observed at the last pull",
			},
		),
	}
}

// RecordTaskUpserted records a task upsert
func (c *Collector) RecordTaskUpserted(created bool) {
	if created {
		c.tasksUpserted.WithLabelValues("true").Inc()
	} else {
		c.tasksUpserted.WithLabelValues("false").Inc()
	}
}

// RecordTaskReset records a finished task being reset after a content change
func (c *Collector) RecordTaskReset() {
	c.tasksReset.Inc()
}

// RecordTransition records a task status transition
func (c *Collector) RecordTransition(status domain.Status, class domain.ErrorClass) {
	c.transitions.WithLabelValues(string(status), string(class)).Inc()
}

// RecordStageDuration records the duration of a pipeline stage
func (c *Collector) RecordStageDuration(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordScan records a completed category scan
func (c *Collector) RecordScan(pages, instances int, d time.Duration) {
	c.scansTotal.Inc()
	c.scanPages.Add(float64(pages))
	c.scanInstances.Add(float64(instances))
	c.scanDuration.Observe(d.Seconds())
}

// RecordEdit records an edit attempt outcome
func (c *Collector) RecordEdit(outcome string) {
	c.editsTotal.WithLabelValues(outcome).Inc()
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStop.Set(float64(stopped))
}

// SetLeasesActive sets the number of currently leased tasks
func (c *Collector) SetLeasesActive(n int) {
	c.leasesActive.Set(float64(n))
}

// SetPendingDepth sets the eligible task depth seen at the last pull
func (c *Collector) SetPendingDepth(n int) {
	c.pendingDepth.Set(float64(n))
}
