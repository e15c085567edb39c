package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/justapithecus/glean/log"
	"github.com/justapithecus/glean/types"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS processing_records (
	job_key TEXT PRIMARY KEY,
	domain TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL,
	text TEXT NOT NULL DEFAULT '',
	before_size_bytes BIGINT NOT NULL DEFAULT 0,
	after_size_bytes BIGINT NOT NULL DEFAULT 0,
	compress_duration_ms BIGINT NOT NULL DEFAULT 0,
	ocr_duration_ms BIGINT NOT NULL DEFAULT 0,
	captured_at BIGINT NOT NULL DEFAULT 0,
	backend TEXT NOT NULL,
	extraction_succeeded BOOLEAN NOT NULL DEFAULT FALSE,
	stored_bucket TEXT NOT NULL DEFAULT '',
	stored_key TEXT NOT NULL DEFAULT '',
	processed_at TIMESTAMPTZ NOT NULL
)`

// Postgres records into a processing_records table.
type Postgres struct {
	db     *sqlx.DB
	logger *log.Logger
}

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, logger *log.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres recorder requires a dsn")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	p := NewPostgres(db, logger)
	if err := p.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an open connection.
func NewPostgres(db *sqlx.DB, logger *log.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

// Migrate creates the records table when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate processing_records: %w", err)
	}
	return nil
}

// Upsert inserts rec or overwrites the row with the same job key.
func (p *Postgres) Upsert(ctx context.Context, rec *types.ProcessingRecord) error {
	if err := validate(rec); err != nil {
		return &PersistError{Backend: BackendPostgres, Err: err}
	}
	if _, err := p.db.NamedExecContext(ctx, upsertSQL, rec); err != nil {
		return &PersistError{Backend: BackendPostgres, JobKey: rec.JobKey, Err: err}
	}
	p.logger.Debug("record upserted", map[string]any{"job_key": rec.JobKey, "backend": BackendPostgres})
	return nil
}

// Get returns the record for jobKey.
func (p *Postgres) Get(ctx context.Context, jobKey string) (*types.ProcessingRecord, error) {
	var rec types.ProcessingRecord
	query := `SELECT ` + selectColumns + ` FROM processing_records WHERE job_key = $1`
	if err := p.db.GetContext(ctx, &rec, query, jobKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", jobKey, ErrNotFound)
		}
		return nil, fmt.Errorf("get record %s: %w", jobKey, err)
	}
	return &rec, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

var (
	_ Recorder = (*Postgres)(nil)
	_ Reader   = (*Postgres)(nil)
)
