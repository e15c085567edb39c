// Package metrics provides process-level pipeline metrics.
//
// The Collector exports Prometheus series on its own registry and keeps a
// mirror of the counters for Snapshot, which the CLI prints after a run.
// It is a leaf package with no internal dependencies.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every exported series.
const Namespace = "glean"

// Job outcome labels.
const (
	OutcomeDone         = "done"
	OutcomeParseError   = "parse_error"
	OutcomeFetchError   = "fetch_error"
	OutcomeStoreError   = "store_error"
	OutcomePersistError = "persist_error"
)

// Snapshot is an immutable point-in-time view of the counters.
type Snapshot struct {
	// Jobs counts finished jobs by outcome.
	Jobs map[string]int64
	// InFlight is the number of jobs currently running.
	InFlight int64

	// Compression
	CompressionApplied int64
	CompressionSkipped int64
	BytesSaved         int64

	// Extraction
	ExtractionSucceeded int64
	ExtractionFailed    int64
	ExtractionByBackend map[string]int64

	// Outbound publish
	Published     int64
	PublishFailed int64
}

// Collector accumulates pipeline metrics for the process.
// Thread-safe. All methods are nil-receiver safe.
type Collector struct {
	registry *prometheus.Registry

	jobs          *prometheus.CounterVec
	inFlight      prometheus.Gauge
	stageDuration *prometheus.HistogramVec
	bytesSaved    prometheus.Counter
	compression   *prometheus.CounterVec
	extraction    *prometheus.CounterVec
	published     *prometheus.CounterVec

	mu   sync.Mutex
	snap Snapshot
}

// NewCollector creates a Collector with its own registry. Go runtime and
// process collectors are registered alongside the pipeline series.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "jobs_total",
			Help:      "Finished jobs by outcome",
		}, []string{"outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently being processed",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		bytesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "compression_bytes_saved_total",
			Help:      "Bytes removed by compression",
		}),
		compression: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "compression_total",
			Help:      "Compression passes by result",
		}, []string{"result"}),
		extraction: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "extraction_total",
			Help:      "Text extractions by backend and result",
		}, []string{"backend", "result"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "published_total",
			Help:      "Outbound location publishes by result",
		}, []string{"result"}),
		snap: Snapshot{
			Jobs:                make(map[string]int64),
			ExtractionByBackend: make(map[string]int64),
		},
	}
	c.registry.MustRegister(
		c.jobs, c.inFlight, c.stageDuration, c.bytesSaved,
		c.compression, c.extraction, c.published,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// --- Jobs ---

// JobStarted marks a job as in flight.
func (c *Collector) JobStarted() {
	if c == nil {
		return
	}
	c.inFlight.Inc()
	c.mu.Lock()
	c.snap.InFlight++
	c.mu.Unlock()
}

// JobFinished records a job outcome and clears its in-flight mark.
func (c *Collector) JobFinished(outcome string) {
	if c == nil {
		return
	}
	c.inFlight.Dec()
	c.jobs.WithLabelValues(outcome).Inc()
	c.mu.Lock()
	c.snap.InFlight--
	c.snap.Jobs[outcome]++
	c.mu.Unlock()
}

// ObserveStage records the duration of one pipeline stage.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// --- Compression ---

// ObserveCompression records a compression pass. saved is ignored unless
// the output was applied.
func (c *Collector) ObserveCompression(applied bool, saved int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !applied {
		c.compression.WithLabelValues("skipped").Inc()
		c.snap.CompressionSkipped++
		return
	}
	c.compression.WithLabelValues("applied").Inc()
	c.snap.CompressionApplied++
	if saved > 0 {
		c.bytesSaved.Add(float64(saved))
		c.snap.BytesSaved += saved
	}
}

// --- Extraction ---

// ObserveExtraction records an extraction attempt.
func (c *Collector) ObserveExtraction(backend string, succeeded bool) {
	if c == nil {
		return
	}
	result := "failed"
	if succeeded {
		result = "succeeded"
	}
	c.extraction.WithLabelValues(backend, result).Inc()
	c.mu.Lock()
	if succeeded {
		c.snap.ExtractionSucceeded++
	} else {
		c.snap.ExtractionFailed++
	}
	c.snap.ExtractionByBackend[backend]++
	c.mu.Unlock()
}

// --- Publish ---

// ObservePublish records an outbound publish attempt.
func (c *Collector) ObservePublish(ok bool) {
	if c == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	c.published.WithLabelValues(result).Inc()
	c.mu.Lock()
	if ok {
		c.snap.Published++
	} else {
		c.snap.PublishFailed++
	}
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of the counters.
// The returned maps are copies; the Collector can keep being mutated.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.snap
	s.Jobs = make(map[string]int64, len(c.snap.Jobs))
	for k, v := range c.snap.Jobs {
		s.Jobs[k] = v
	}
	s.ExtractionByBackend = make(map[string]int64, len(c.snap.ExtractionByBackend))
	for k, v := range c.snap.ExtractionByBackend {
		s.ExtractionByBackend[k] = v
	}
	return s
}
