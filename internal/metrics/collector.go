package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the migration metrics on a private registry, so multiple
// collectors can coexist in one process.
type Collector struct {
	registry          *prometheus.Registry
	objectsTotal      *prometheus.CounterVec
	bytesTotal        prometheus.Counter
	inflightTransfers prometheus.Gauge
	duration          prometheus.Histogram
}

// New creates a metrics collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		objectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagehost_migrate_objects_total",
				Help: "Total number of migrated objects by terminal status",
			},
			[]string{"status"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "imagehost_migrate_bytes_total",
				Help: "Total bytes copied to the destination",
			},
		),
		inflightTransfers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "imagehost_migrate_inflight_transfers",
				Help: "Number of transfers currently admitted",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "imagehost_migrate_object_duration_seconds",
				Help:    "Time taken to migrate one object",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	c.registry.MustRegister(c.objectsTotal, c.bytesTotal, c.inflightTransfers, c.duration)

	return c
}

// IncSucceeded counts one object that reached the destination.
func (c *Collector) IncSucceeded() {
	c.objectsTotal.WithLabelValues("succeeded").Inc()
}

// IncFailed counts one object that exhausted its attempts.
func (c *Collector) IncFailed() {
	c.objectsTotal.WithLabelValues("failed").Inc()
}

// AddBytes adds to the total bytes copied.
func (c *Collector) AddBytes(bytes int64) {
	c.bytesTotal.Add(float64(bytes))
}

// TransferStarted marks one transfer admitted past the concurrency gate.
func (c *Collector) TransferStarted() {
	c.inflightTransfers.Inc()
}

// TransferDone marks one admitted transfer as settled.
func (c *Collector) TransferDone() {
	c.inflightTransfers.Dec()
}

// ObserveDuration records how long one object took from admission to its
// terminal status.
func (c *Collector) ObserveDuration(duration time.Duration) {
	c.duration.Observe(duration.Seconds())
}

// Serve exposes /metrics on addr. It blocks, so callers run it on its own
// goroutine.
func (c *Collector) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
