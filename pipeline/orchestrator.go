// Package pipeline sequences the stages of one artifact-processing job.
//
// A job moves through parse, fetch, compress, store, extract and record.
// Compression and extraction degrade instead of failing; parse, fetch,
// store and persist failures abort the job with an *AbortError. Jobs are
// independent: the Orchestrator holds only stateless handles and may be
// shared by any number of goroutines.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/glean/adapter"
	"github.com/justapithecus/glean/extract"
	"github.com/justapithecus/glean/log"
	"github.com/justapithecus/glean/metrics"
	"github.com/justapithecus/glean/store"
	"github.com/justapithecus/glean/types"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultStageTimeout      = 30 * time.Second
	DefaultExtractionTimeout = extract.DefaultTimeout
	DefaultMinStageBudget    = 2 * time.Second
)

// ReasonInsufficientBudget is recorded when a degradable stage is skipped
// because the job's deadline is too close.
const ReasonInsufficientBudget = "insufficient budget"

// Parser turns a raw job message into an artifact reference.
type Parser interface {
	Parse(raw string) (types.ArtifactReference, error)
}

// Compressor shrinks the working copy in place.
type Compressor interface {
	Compress(ctx context.Context, blob *types.ArtifactBlob) types.CompressResult
}

// Recorder persists the processing record.
type Recorder interface {
	Upsert(ctx context.Context, rec *types.ProcessingRecord) error
}

// Config holds per-deployment settings.
type Config struct {
	// Bucket receives the compressed artifact. Empty re-uses the source bucket.
	Bucket string
	// KeyPrefix is prepended to the source key for the stored copy.
	// Empty overwrites the source object.
	KeyPrefix string
	// StorageClass and ACL are applied to the stored copy.
	StorageClass string
	ACL          string
	// StageTimeout bounds each fetch, upload, persist and publish call.
	StageTimeout time.Duration
	// ExtractionTimeout bounds text extraction.
	ExtractionTimeout time.Duration
	// MinStageBudget is the least remaining context time a stage needs to start.
	MinStageBudget time.Duration
	// JobTimeout bounds a whole Process call. Zero leaves the caller's
	// deadline, if any, as the only bound.
	JobTimeout time.Duration
	// WorkDir is the parent of per-job workspaces (default os.TempDir()).
	WorkDir string
}

// Deps are the handles a job runs against. Parser, Store, Compressor,
// Extractor and Recorder are required.
type Deps struct {
	Parser     Parser
	Store      store.Store
	Compressor Compressor
	Extractor  extract.Extractor
	Recorder   Recorder
	// Publisher announces the stored artifact after Done. Optional.
	Publisher adapter.Adapter
	// Logger is optional; nil discards.
	Logger *log.Logger
	// Metrics is optional; all Collector methods are nil-safe.
	Metrics *metrics.Collector
	// Now overrides the clock (for testing).
	Now func() time.Time
}

// Result is the observable outcome of one job.
type Result struct {
	// State is StateDone or StateAborted.
	State State
	// Reference is the parsed job reference (zero when parsing failed).
	Reference types.ArtifactReference
	// Record is the persisted record. Nil unless State is StateDone.
	Record *types.ProcessingRecord
	// Compression and Extraction are set once their stage has run.
	Compression types.CompressResult
	Extraction  types.ExtractionResult
	// Published reports whether the stored location was announced.
	Published bool
	// Duration is the wall time of the job.
	Duration time.Duration
}

// Orchestrator runs jobs.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *log.Logger
	now    func() time.Time
}

// New validates deps and applies config defaults.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Parser == nil:
		return nil, errors.New("pipeline: parser is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Compressor == nil:
		return nil, errors.New("pipeline: compressor is required")
	case deps.Extractor == nil:
		return nil, errors.New("pipeline: extractor is required")
	case deps.Recorder == nil:
		return nil, errors.New("pipeline: recorder is required")
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = DefaultStageTimeout
	}
	if cfg.ExtractionTimeout <= 0 {
		cfg.ExtractionTimeout = DefaultExtractionTimeout
	}
	if cfg.MinStageBudget < 0 {
		cfg.MinStageBudget = 0
	}
	if cfg.JobTimeout < 0 {
		cfg.JobTimeout = 0
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger, now: now}, nil
}

// job is the mutable state of one Process call.
type job struct {
	state  State
	ref    types.ArtifactReference
	blob   *types.ArtifactBlob
	rec    types.ProcessingRecord
	result *Result
	logger *log.Logger
}

// Process runs raw through every stage.
//
// Execution flow:
//  1. Parse the message into a reference
//  2. Fetch the original into a fresh workspace
//  3. Compress the working copy (pass-through on failure)
//  4. Upload the working copy
//  5. Extract text (empty on failure)
//  6. Upsert the record
//  7. Publish the stored location (best effort)
//
// The job runs under JobTimeout when set, or the shorter deadline of ctx.
// The returned Result is never nil. The error is nil on Done and an
// *AbortError otherwise.
func (o *Orchestrator) Process(ctx context.Context, raw string) (*Result, error) {
	if o.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.JobTimeout)
		defer cancel()
	}
	start := o.now()
	o.deps.Metrics.JobStarted()

	j := &job{state: StateStart, result: &Result{}, logger: o.logger}
	err := o.run(ctx, j, raw)

	j.result.Duration = o.now().Sub(start)
	if err != nil {
		j.state = StateAborted
	}
	j.result.State = j.state
	o.deps.Metrics.JobFinished(Outcome(err))

	fields := map[string]any{
		"state":       string(j.result.State),
		"duration_ms": j.result.Duration.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["retryable"] = Retryable(err)
		var se *store.Error
		if errors.As(err, &se) {
			fields["store_error"] = se.Kind.Error()
			fields["store_transient"] = se.Transient()
		}
		j.logger.Warn("job aborted", fields)
	} else {
		j.logger.Info("job done", fields)
	}
	return j.result, err
}

func (o *Orchestrator) run(ctx context.Context, j *job, raw string) error {
	// Start → Parsed
	parseStart := o.now()
	ref, err := o.deps.Parser.Parse(raw)
	o.deps.Metrics.ObserveStage(stageParse, o.now().Sub(parseStart))
	if err != nil {
		return o.abort(j, ErrParse, err)
	}
	j.ref = ref
	j.result.Reference = ref
	j.logger = o.logger.With(map[string]any{"job_key": ref.JobKey()})
	j.rec = types.ProcessingRecord{
		JobKey:    ref.JobKey(),
		Domain:    ref.Domain,
		SourceURL: ref.SourceURL(),
		Timestamp: ref.CapturedAt,
	}
	j.state = StateParsed

	ws, err := o.acquireWorkspace()
	if err != nil {
		// No working copy can be written; redelivery may land on a healthier host.
		return o.abort(j, ErrFetch, err)
	}
	defer o.releaseWorkspace(ws, j.logger)

	// Parsed → Fetched
	if err := o.fetch(ctx, j, ws); err != nil {
		return err
	}

	// Fetched → Compressed
	o.compress(ctx, j)

	// Compressed → Stored
	bucket, key, err := o.upload(ctx, j)
	if err != nil {
		return err
	}

	// Stored → Extracted
	o.extract(ctx, j, bucket, key)

	// Extracted → Recorded → Done
	if err := o.persist(ctx, j); err != nil {
		return err
	}
	j.state = StateDone

	o.publish(ctx, j, bucket, key)
	return nil
}

func (o *Orchestrator) fetch(ctx context.Context, j *job, ws string) error {
	if err := o.checkBudget(ctx); err != nil {
		return o.abort(j, ErrFetch, err)
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	start := o.now()
	data, err := o.deps.Store.Fetch(sctx, j.ref.Bucket, j.ref.Key)
	o.deps.Metrics.ObserveStage(stageFetch, o.now().Sub(start))
	if err != nil {
		return o.abort(j, ErrFetch, err)
	}

	path := filepath.Join(ws, "artifact"+filepath.Ext(j.ref.Key))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return o.abort(j, ErrFetch, fmt.Errorf("write working copy: %w", err))
	}
	j.blob = &types.ArtifactBlob{Path: path, Size: int64(len(data))}
	j.state = StateFetched

	j.logger.Debug("artifact fetched", map[string]any{"size": j.blob.Size})
	return nil
}

func (o *Orchestrator) compress(ctx context.Context, j *job) {
	var res types.CompressResult
	if err := o.checkBudget(ctx); err != nil {
		res = types.CompressResult{
			BeforeSize: j.blob.Size,
			AfterSize:  j.blob.Size,
			Reason:     ReasonInsufficientBudget,
		}
	} else {
		start := o.now()
		res = o.deps.Compressor.Compress(ctx, j.blob)
		o.deps.Metrics.ObserveStage(stageCompress, o.now().Sub(start))
	}

	// The working copy never grows past the fetched original.
	if res.AfterSize > res.BeforeSize {
		res.AfterSize = res.BeforeSize
	}
	o.deps.Metrics.ObserveCompression(res.Applied, res.BeforeSize-res.AfterSize)

	j.result.Compression = res
	j.rec.BeforeSizeBytes = res.BeforeSize
	j.rec.AfterSizeBytes = res.AfterSize
	j.rec.CompressDurationMs = res.DurationMs
	j.state = StateCompressed

	if !res.Applied {
		j.logger.Debug("compression passed through", map[string]any{"reason": res.Reason})
	}
}

func (o *Orchestrator) upload(ctx context.Context, j *job) (bucket, key string, err error) {
	if err := o.checkBudget(ctx); err != nil {
		return "", "", o.abort(j, ErrStore, err)
	}

	body, err := j.blob.Bytes()
	if err != nil {
		return "", "", o.abort(j, ErrStore, fmt.Errorf("read working copy: %w", err))
	}

	bucket = o.cfg.Bucket
	if bucket == "" {
		bucket = j.ref.Bucket
	}
	key = o.cfg.KeyPrefix + j.ref.Key

	sctx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	start := o.now()
	err = o.deps.Store.Put(sctx, bucket, key, body, store.PutOptions{
		ContentType:  contentType(key),
		StorageClass: o.cfg.StorageClass,
		ACL:          o.cfg.ACL,
	})
	o.deps.Metrics.ObserveStage(stageStore, o.now().Sub(start))
	if err != nil {
		return "", "", o.abort(j, ErrStore, err)
	}

	j.rec.StoredBucket = bucket
	j.rec.StoredKey = key
	j.state = StateStored
	return bucket, key, nil
}

func (o *Orchestrator) extract(ctx context.Context, j *job, bucket, key string) {
	backend := o.deps.Extractor.Backend()

	var res types.ExtractionResult
	if err := o.checkBudget(ctx); err != nil {
		res = types.ExtractionResult{Backend: backend, Reason: ReasonInsufficientBudget}
	} else {
		start := o.now()
		res = o.deps.Extractor.Extract(ctx, extract.Input{
			Path:   j.blob.Path,
			Bucket: bucket,
			Key:    key,
		}, o.cfg.ExtractionTimeout)
		o.deps.Metrics.ObserveStage(stageExtract, o.now().Sub(start))
	}
	if !res.Succeeded {
		res.Text = ""
	}
	if res.Backend == "" {
		res.Backend = backend
	}
	o.deps.Metrics.ObserveExtraction(string(res.Backend), res.Succeeded)

	j.result.Extraction = res
	j.rec.Text = res.Text
	j.rec.OCRDurationMs = res.DurationMs
	j.rec.Backend = res.Backend
	j.rec.ExtractionSucceeded = res.Succeeded
	j.state = StateExtracted

	if !res.Succeeded {
		j.logger.Warn("extraction failed", map[string]any{
			"backend": string(res.Backend),
			"reason":  res.Reason,
		})
	}
}

func (o *Orchestrator) persist(ctx context.Context, j *job) error {
	if err := o.checkBudget(ctx); err != nil {
		return o.abort(j, ErrPersist, err)
	}

	rec := j.rec
	rec.ProcessedAt = o.now().UTC()

	sctx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	start := o.now()
	err := o.deps.Recorder.Upsert(sctx, &rec)
	o.deps.Metrics.ObserveStage(stageRecord, o.now().Sub(start))
	if err != nil {
		return o.abort(j, ErrPersist, err)
	}

	j.rec = rec
	j.result.Record = &rec
	j.state = StateRecorded
	return nil
}

// publish announces the stored artifact. Failure never changes the outcome.
func (o *Orchestrator) publish(ctx context.Context, j *job, bucket, key string) {
	if o.deps.Publisher == nil {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	start := o.now()
	err := o.deps.Publisher.Send(sctx, adapter.Location(bucket, key))
	o.deps.Metrics.ObserveStage(stagePublish, o.now().Sub(start))
	o.deps.Metrics.ObservePublish(err == nil)
	if err != nil {
		j.logger.Warn("publish failed", map[string]any{"error": err.Error()})
		return
	}
	j.result.Published = true
}

// abort records the kind and the last reached state.
func (o *Orchestrator) abort(j *job, kind, err error) error {
	return &AbortError{State: j.state, Kind: kind, Err: err}
}

// checkBudget fails when ctx is done or its deadline leaves less than
// MinStageBudget.
func (o *Orchestrator) checkBudget(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	if remaining := deadline.Sub(o.now()); remaining < o.cfg.MinStageBudget {
		return fmt.Errorf("%w: %s left, need %s", ErrInsufficientBudget,
			remaining.Round(time.Millisecond), o.cfg.MinStageBudget)
	}
	return nil
}

func (o *Orchestrator) acquireWorkspace() (string, error) {
	dir := filepath.Join(o.cfg.WorkDir, "glean-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

func (o *Orchestrator) releaseWorkspace(dir string, logger *log.Logger) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("workspace cleanup failed", map[string]any{
			"workspace": dir,
			"error":     err.Error(),
		})
	}
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
