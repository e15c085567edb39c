package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_JobLifecycle(t *testing.T) {
	c := NewCollector()

	c.JobStarted()
	c.JobStarted()
	c.JobFinished(OutcomeDone)

	s := c.Snapshot()
	if s.InFlight != 1 {
		t.Errorf("InFlight = %d, want 1", s.InFlight)
	}
	if s.Jobs[OutcomeDone] != 1 {
		t.Errorf("Jobs[done] = %d, want 1", s.Jobs[OutcomeDone])
	}
	if got := testutil.ToFloat64(c.jobs.WithLabelValues(OutcomeDone)); got != 1 {
		t.Errorf("jobs_total{done} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.inFlight); got != 1 {
		t.Errorf("jobs_in_flight = %v, want 1", got)
	}

	c.JobFinished(OutcomeFetchError)
	if got := testutil.ToFloat64(c.jobs.WithLabelValues(OutcomeFetchError)); got != 1 {
		t.Errorf("jobs_total{fetch_error} = %v, want 1", got)
	}
}

func TestCollector_Compression(t *testing.T) {
	c := NewCollector()

	c.ObserveCompression(true, 200)
	c.ObserveCompression(true, 50)
	c.ObserveCompression(false, 0)

	s := c.Snapshot()
	if s.CompressionApplied != 2 || s.CompressionSkipped != 1 {
		t.Errorf("applied/skipped = %d/%d, want 2/1", s.CompressionApplied, s.CompressionSkipped)
	}
	if s.BytesSaved != 250 {
		t.Errorf("BytesSaved = %d, want 250", s.BytesSaved)
	}
	if got := testutil.ToFloat64(c.bytesSaved); got != 250 {
		t.Errorf("compression_bytes_saved_total = %v, want 250", got)
	}
	if got := testutil.ToFloat64(c.compression.WithLabelValues("skipped")); got != 1 {
		t.Errorf("compression_total{skipped} = %v, want 1", got)
	}
}

func TestCollector_ExtractionAndPublish(t *testing.T) {
	c := NewCollector()

	c.ObserveExtraction("vision", true)
	c.ObserveExtraction("vision", false)
	c.ObserveExtraction("local", true)
	c.ObservePublish(true)
	c.ObservePublish(false)

	s := c.Snapshot()
	if s.ExtractionSucceeded != 2 || s.ExtractionFailed != 1 {
		t.Errorf("succeeded/failed = %d/%d", s.ExtractionSucceeded, s.ExtractionFailed)
	}
	if s.ExtractionByBackend["vision"] != 2 || s.ExtractionByBackend["local"] != 1 {
		t.Errorf("by backend = %v", s.ExtractionByBackend)
	}
	if s.Published != 1 || s.PublishFailed != 1 {
		t.Errorf("published/failed = %d/%d", s.Published, s.PublishFailed)
	}
	if got := testutil.ToFloat64(c.extraction.WithLabelValues("vision", "failed")); got != 1 {
		t.Errorf("extraction_total{vision,failed} = %v", got)
	}
}

func TestCollector_StageHistogram(t *testing.T) {
	c := NewCollector()

	c.ObserveStage("fetch", 120*time.Millisecond)
	c.ObserveStage("extract", 900*time.Millisecond)

	if n := testutil.CollectAndCount(c.stageDuration); n != 2 {
		t.Errorf("stage_duration_seconds series = %d, want 2", n)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.JobFinished(OutcomeDone)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(string(body), `glean_jobs_total{outcome="done"} 1`) {
		t.Errorf("exposition missing jobs_total:\n%s", body)
	}
}

func TestCollector_SnapshotIsolation(t *testing.T) {
	c := NewCollector()
	c.JobFinished(OutcomeDone)

	s := c.Snapshot()
	s.Jobs[OutcomeDone] = 999
	s.Jobs["injected"] = 1

	s2 := c.Snapshot()
	if s2.Jobs[OutcomeDone] != 1 {
		t.Errorf("Jobs[done] = %d, want 1 (collector should be isolated from snapshot mutation)", s2.Jobs[OutcomeDone])
	}
	if _, exists := s2.Jobs["injected"]; exists {
		t.Error("Jobs should not contain injected key from snapshot mutation")
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	// None of these should panic
	c.JobStarted()
	c.JobFinished(OutcomeDone)
	c.ObserveStage("fetch", time.Second)
	c.ObserveCompression(true, 10)
	c.ObserveExtraction("local", true)
	c.ObservePublish(true)

	s := c.Snapshot()
	if s.Jobs != nil {
		t.Errorf("nil collector snapshot Jobs should be nil, got %v", s.Jobs)
	}
	if c.Registry() != nil {
		t.Error("nil collector should have no registry")
	}
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil collector handler status = %d, want 404", rec.Code)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector()
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.JobStarted()
				c.ObserveCompression(true, 1)
				c.JobFinished(OutcomeDone)
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.Jobs[OutcomeDone] != want {
		t.Errorf("Jobs[done] = %d, want %d", s.Jobs[OutcomeDone], want)
	}
	if s.BytesSaved != want {
		t.Errorf("BytesSaved = %d, want %d", s.BytesSaved, want)
	}
	if s.InFlight != 0 {
		t.Errorf("InFlight = %d, want 0", s.InFlight)
	}
}
