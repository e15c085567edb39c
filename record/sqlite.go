package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/justapithecus/glean/log"
	"github.com/justapithecus/glean/types"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// sqliteMigrations are applied in order; user_version tracks progress.
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS processing_records (
		job_key TEXT PRIMARY KEY,
		domain TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		before_size_bytes INTEGER NOT NULL DEFAULT 0,
		after_size_bytes INTEGER NOT NULL DEFAULT 0,
		compress_duration_ms INTEGER NOT NULL DEFAULT 0,
		ocr_duration_ms INTEGER NOT NULL DEFAULT 0,
		captured_at INTEGER NOT NULL DEFAULT 0,
		backend TEXT NOT NULL,
		extraction_succeeded INTEGER NOT NULL DEFAULT 0,
		stored_bucket TEXT NOT NULL DEFAULT '',
		stored_key TEXT NOT NULL DEFAULT '',
		processed_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_processing_records_domain ON processing_records (domain, captured_at)`,
}

// SQLite records into a local database file.
type SQLite struct {
	db     *sqlx.DB
	path   string
	logger *log.Logger
}

// sqliteTimeFormat is fixed width so text order matches time order.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// sqliteRow is the stored form of a record. Timestamps are kept as UTC text.
type sqliteRow struct {
	JobKey              string `db:"job_key"`
	Domain              string `db:"domain"`
	SourceURL           string `db:"source_url"`
	Text                string `db:"text"`
	BeforeSizeBytes     int64  `db:"before_size_bytes"`
	AfterSizeBytes      int64  `db:"after_size_bytes"`
	CompressDurationMs  int64  `db:"compress_duration_ms"`
	OCRDurationMs       int64  `db:"ocr_duration_ms"`
	CapturedAt          int64  `db:"captured_at"`
	Backend             string `db:"backend"`
	ExtractionSucceeded bool   `db:"extraction_succeeded"`
	StoredBucket        string `db:"stored_bucket"`
	StoredKey           string `db:"stored_key"`
	ProcessedAt         string `db:"processed_at"`
}

func toRow(rec *types.ProcessingRecord) sqliteRow {
	return sqliteRow{
		JobKey:              rec.JobKey,
		Domain:              rec.Domain,
		SourceURL:           rec.SourceURL,
		Text:                rec.Text,
		BeforeSizeBytes:     rec.BeforeSizeBytes,
		AfterSizeBytes:      rec.AfterSizeBytes,
		CompressDurationMs:  rec.CompressDurationMs,
		OCRDurationMs:       rec.OCRDurationMs,
		CapturedAt:          rec.Timestamp,
		Backend:             string(rec.Backend),
		ExtractionSucceeded: rec.ExtractionSucceeded,
		StoredBucket:        rec.StoredBucket,
		StoredKey:           rec.StoredKey,
		ProcessedAt:         rec.ProcessedAt.UTC().Format(sqliteTimeFormat),
	}
}

func (r sqliteRow) record() (*types.ProcessingRecord, error) {
	processedAt, err := time.Parse(sqliteTimeFormat, r.ProcessedAt)
	if err != nil {
		return nil, fmt.Errorf("parse processed_at %q: %w", r.ProcessedAt, err)
	}
	return &types.ProcessingRecord{
		JobKey:              r.JobKey,
		Domain:              r.Domain,
		SourceURL:           r.SourceURL,
		Text:                r.Text,
		BeforeSizeBytes:     r.BeforeSizeBytes,
		AfterSizeBytes:      r.AfterSizeBytes,
		CompressDurationMs:  r.CompressDurationMs,
		OCRDurationMs:       r.OCRDurationMs,
		Timestamp:           r.CapturedAt,
		Backend:             types.Backend(r.Backend),
		ExtractionSucceeded: r.ExtractionSucceeded,
		StoredBucket:        r.StoredBucket,
		StoredKey:           r.StoredKey,
		ProcessedAt:         processedAt,
	}, nil
}

// OpenSQLite opens (or creates) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string, logger *log.Logger) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite recorder requires a path")
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection: a :memory: database is per-connection, and writes
	// serialize anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	s := &SQLite{db: db, path: path, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	var version int
	if err := s.db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for i := version; i < len(sqliteMigrations); i++ {
		if _, err := s.db.ExecContext(ctx, sqliteMigrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return fmt.Errorf("record schema version %d: %w", i+1, err)
		}
	}
	return nil
}

// Upsert inserts rec or overwrites the row with the same job key.
func (s *SQLite) Upsert(ctx context.Context, rec *types.ProcessingRecord) error {
	if err := validate(rec); err != nil {
		return &PersistError{Backend: BackendSQLite, Err: err}
	}
	if _, err := s.db.NamedExecContext(ctx, upsertSQL, toRow(rec)); err != nil {
		return &PersistError{Backend: BackendSQLite, JobKey: rec.JobKey, Err: err}
	}
	s.logger.Debug("record upserted", map[string]any{"job_key": rec.JobKey, "backend": BackendSQLite})
	return nil
}

// Get returns the record for jobKey.
func (s *SQLite) Get(ctx context.Context, jobKey string) (*types.ProcessingRecord, error) {
	var row sqliteRow
	query := `SELECT ` + selectColumns + ` FROM processing_records WHERE job_key = ?`
	if err := s.db.GetContext(ctx, &row, query, jobKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", jobKey, ErrNotFound)
		}
		return nil, fmt.Errorf("get record %s: %w", jobKey, err)
	}
	return row.record()
}

// List returns up to limit records, most recently processed first.
func (s *SQLite) List(ctx context.Context, limit int) ([]*types.ProcessingRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []sqliteRow
	query := `SELECT ` + selectColumns + ` FROM processing_records ORDER BY processed_at DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	out := make([]*types.ProcessingRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM processing_records`); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

var (
	_ Recorder = (*SQLite)(nil)
	_ Reader   = (*SQLite)(nil)
)
