package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/glean/config"
	"github.com/justapithecus/glean/intake"
	"github.com/justapithecus/glean/pipeline"
	"github.com/justapithecus/glean/store"
	"github.com/justapithecus/glean/types"
)

const (
	testBucket = "b"
	testKey    = "screenshots/example.com/1690000000-example_com.png"
	testMsg    = "https://s3.amazonaws.com/" + testBucket + "/" + testKey
)

// clearEnv neutralizes every environment override for the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		EnvConfig,
		config.EnvBucket,
		config.EnvMetadataTable,
		config.EnvQueue,
		config.EnvIPAllowlist,
		config.EnvExtractionBackend,
		config.EnvExtractionTimeout,
		config.EnvStageTimeout,
		config.EnvJobTimeout,
		config.EnvIntakeQueue,
		config.EnvLogLevel,
	} {
		t.Setenv(name, "")
	}
}

// runApp runs the command tree and returns what it rendered.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp("test")
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"glean"}, args...))
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	if !errors.As(err, &ec) {
		t.Fatalf("expected cli.ExitCoder, got %T: %v", err, err)
	}
	return ec.ExitCode()
}

type fixture struct {
	dir     string
	objects string
	config  string
}

// newFixture writes a configuration over a filesystem store and a SQLite
// recorder, with compression disabled and an OCR binary that does not exist.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()
	f := &fixture{dir: dir, objects: filepath.Join(dir, "objects")}
	if err := os.MkdirAll(f.objects, 0o755); err != nil {
		t.Fatal(err)
	}

	yaml := `storage:
  backend: fs
  path: ` + f.objects + `
  output_prefix: compressed/
metadata:
  backend: sqlite
  path: ` + filepath.Join(dir, "glean.db") + `
compression:
  disabled: true
extraction:
  backend: local
  binary: ` + filepath.Join(dir, "no-such-tesseract") + `
work_dir: ` + dir + `
log:
  level: error
`
	f.config = filepath.Join(dir, "glean.yaml")
	if err := os.WriteFile(f.config, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) seed(t *testing.T, body []byte) {
	t.Helper()
	st, err := store.NewFSStore(f.objects)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if err := st.Put(t.Context(), testBucket, testKey, body, store.PutOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestProcess_DoneThenRecordsGet(t *testing.T) {
	f := newFixture(t)
	body := bytes.Repeat([]byte{0x89}, 512)
	f.seed(t, body)

	out, err := runApp(t, "process", "--config", f.config, "--format", "json", "--message", testMsg)
	if code := exitCode(t, err); code != pipeline.ExitCodeDone {
		t.Fatalf("exit code = %d (%v), output %s", code, err, out)
	}

	var resp ProcessResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.State != string(pipeline.StateDone) {
		t.Errorf("state = %q", resp.State)
	}
	if resp.JobKey != testBucket+"/"+testKey {
		t.Errorf("job_key = %q", resp.JobKey)
	}
	if resp.StoredKey != "compressed/"+testKey {
		t.Errorf("stored_key = %q", resp.StoredKey)
	}
	if resp.BeforeSize != 512 || resp.AfterSize != 512 {
		t.Errorf("sizes = %d -> %d, want 512 -> 512", resp.BeforeSize, resp.AfterSize)
	}
	if resp.Extracted {
		t.Error("extraction should fail without a tesseract binary")
	}

	out, err = runApp(t, "records", "get", "--config", f.config, "--format", "json", "--job-key", resp.JobKey)
	if err != nil {
		t.Fatalf("records get: %v", err)
	}
	var rec types.ProcessingRecord
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("decode record %q: %v", out, err)
	}
	if rec.Domain != "example.com" || rec.Timestamp != 1690000000 {
		t.Errorf("enrichment = %q/%d", rec.Domain, rec.Timestamp)
	}
	if rec.Text != "" || rec.ExtractionSucceeded {
		t.Errorf("failed extraction should store empty text, got %q", rec.Text)
	}
	if rec.StoredBucket != testBucket {
		t.Errorf("stored_bucket = %q", rec.StoredBucket)
	}

	st, err := store.NewFSStore(f.objects)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := st.Fetch(t.Context(), testBucket, "compressed/"+testKey)
	if err != nil {
		t.Fatalf("stored copy: %v", err)
	}
	if !bytes.Equal(stored, body) {
		t.Error("stored copy differs from the pass-through artifact")
	}
}

func TestProcess_RunTwiceKeepsOneRecord(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []byte("png"))

	for i := 0; i < 2; i++ {
		if _, err := runApp(t, "process", "--config", f.config, "--quiet", "--message", testMsg); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	out, err := runApp(t, "records", "list", "--config", f.config, "--format", "json")
	if err != nil {
		t.Fatalf("records list: %v", err)
	}
	var recs []types.ProcessingRecord
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(recs) != 1 {
		t.Errorf("records = %d, want 1", len(recs))
	}
}

func TestProcess_ExitCodes(t *testing.T) {
	f := newFixture(t)

	_, err := runApp(t, "process", "--config", f.config, "--quiet", "--message", "not a location")
	if code := exitCode(t, err); code != pipeline.ExitCodeParse {
		t.Errorf("parse failure exit = %d, want %d", code, pipeline.ExitCodeParse)
	}

	_, err = runApp(t, "process", "--config", f.config, "--quiet", "--message", testMsg)
	if code := exitCode(t, err); code != pipeline.ExitCodeRetryable {
		t.Errorf("missing object exit = %d, want %d", code, pipeline.ExitCodeRetryable)
	}
}

func TestProcess_InvalidConfiguration(t *testing.T) {
	clearEnv(t)

	// Defaults select DynamoDB without a table.
	_, err := runApp(t, "process", "--quiet", "--message", testMsg)
	if code := exitCode(t, err); code != pipeline.ExitCodeInvalidConfig {
		t.Errorf("exit = %d, want %d", code, pipeline.ExitCodeInvalidConfig)
	}

	_, err = runApp(t, "process", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--message", testMsg)
	if code := exitCode(t, err); code != pipeline.ExitCodeInvalidConfig {
		t.Errorf("missing file exit = %d, want %d", code, pipeline.ExitCodeInvalidConfig)
	}
}

func TestParse_RendersReference(t *testing.T) {
	clearEnv(t)

	out, err := runApp(t, "parse", "--format", "json", "--message", testMsg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var resp ParseResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	want := ParseResponse{
		Bucket:     testBucket,
		Key:        testKey,
		Domain:     "example.com",
		CapturedAt: 1690000000,
		JobKey:     testBucket + "/" + testKey,
		SourceURL:  testMsg,
	}
	if resp != want {
		t.Errorf("got %+v, want %+v", resp, want)
	}
}

func TestParse_Failure(t *testing.T) {
	clearEnv(t)

	_, err := runApp(t, "parse", "--message", "https://storage.example.com/b/k.png")
	if code := exitCode(t, err); code != pipeline.ExitCodeParse {
		t.Errorf("exit = %d, want %d", code, pipeline.ExitCodeParse)
	}
}

func TestRecordsGet_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := runApp(t, "records", "get", "--config", f.config, "--job-key", "b/none.png")
	if code := exitCode(t, err); code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	if !strings.Contains(err.Error(), "b/none.png") {
		t.Errorf("error %q should name the job key", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := runApp(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var resp VersionResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.Version != types.Version || resp.Commit != "test" {
		t.Errorf("got %+v", resp)
	}
}

func TestLoadConfig_EnvFileAndLogLevel(t *testing.T) {
	clearEnv(t)
	// Unset so the env file can provide it; clearEnv restores it afterwards.
	_ = os.Unsetenv(config.EnvBucket)

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte(config.EnvBucket+"=from-env-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var got *config.Config
	app := &cli.App{
		Flags: ConfigFlags(),
		Action: func(c *cli.Context) error {
			var err error
			got, err = loadConfig(c, false)
			return err
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
	if err := app.Run([]string{"glean", "--env-file", envFile, "--log-level", "warn"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.Bucket != "from-env-file" {
		t.Errorf("bucket = %q", got.Bucket)
	}
	if got.Log.Level != "warn" {
		t.Errorf("log level = %q", got.Log.Level)
	}
}

func TestBuildPublisher(t *testing.T) {
	ctx := t.Context()

	a, err := buildPublisher(ctx, config.QueueConfig{})
	if err != nil || a != nil {
		t.Errorf("empty type = (%v, %v), want (nil, nil)", a, err)
	}

	a, err = buildPublisher(ctx, config.QueueConfig{Type: "redis", URL: "redis://127.0.0.1:6379/0", Mode: "list"})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	_ = a.Close()

	zero := 0
	a, err = buildPublisher(ctx, config.QueueConfig{Type: "webhook", URL: "http://127.0.0.1:1/hook", Retries: &zero})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	_ = a.Close()

	if _, err := buildPublisher(ctx, config.QueueConfig{Type: "kafka", URL: "x"}); err == nil {
		t.Error("expected error for unknown queue type")
	}
	if _, err := buildPublisher(ctx, config.QueueConfig{Type: "redis"}); err == nil {
		t.Error("expected error for redis without URL")
	}
	if _, err := buildPublisher(ctx, config.QueueConfig{Type: "redis", URL: "redis://127.0.0.1:6379/0", Mode: "stream"}); err == nil {
		t.Error("expected error for unknown redis mode")
	}
}

func TestBuildSource(t *testing.T) {
	cfg := config.Defaults()
	cfg.Intake.Type = "nats"
	cfg.Intake.Subject = "jobs"

	src, err := buildSource(t.Context(), &cfg, nil)
	if err != nil {
		t.Fatalf("nats: %v", err)
	}
	if _, ok := src.(*intake.NATSSource); !ok {
		t.Errorf("source = %T, want *intake.NATSSource", src)
	}

	cfg.Intake.Type = "kafka"
	if _, err := buildSource(t.Context(), &cfg, nil); err == nil {
		t.Error("expected error for unknown intake type")
	}
}

func TestParseAllowlist(t *testing.T) {
	got, err := parseAllowlist([]string{"10.0.0.0/8", "192.168.1.7"})
	if err != nil {
		t.Fatalf("parseAllowlist: %v", err)
	}
	if len(got) != 2 || got[0].String() != "10.0.0.0/8" || got[1].String() != "192.168.1.7/32" {
		t.Errorf("got %v", got)
	}
	if _, err := parseAllowlist([]string{"nope"}); err == nil {
		t.Error("expected error for invalid CIDR")
	}
}
