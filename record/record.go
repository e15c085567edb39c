// Package record persists ProcessingRecords, one per job key.
//
// Every backend upserts: a redelivered job overwrites the earlier record
// with recomputed values, so exactly one record exists per job key no
// matter how often the job runs.
package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/glean/awsconf"
	"github.com/justapithecus/glean/log"
	"github.com/justapithecus/glean/types"
)

// Backend names.
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

var (
	// ErrPersist matches every *PersistError.
	ErrPersist = errors.New("persist failed")
	// ErrNotFound indicates no record exists for the job key.
	ErrNotFound = errors.New("record not found")
)

// PersistError reports a failed write. Persist failures are retryable by
// redelivery of the job.
type PersistError struct {
	Backend string
	JobKey  string
	Err     error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s via %s: %v", e.JobKey, e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrPersist.
func (e *PersistError) Is(target error) bool {
	return target == ErrPersist
}

// Recorder upserts processing records keyed by JobKey.
type Recorder interface {
	Upsert(ctx context.Context, rec *types.ProcessingRecord) error
	Close() error
}

// Reader looks records up by job key. Not every backend implements it.
type Reader interface {
	Get(ctx context.Context, jobKey string) (*types.ProcessingRecord, error)
}

// Config selects and configures a Recorder backend.
type Config struct {
	// Backend is dynamodb, postgres or sqlite.
	Backend string
	// Table is the DynamoDB table name.
	Table string
	// Region is the AWS region for DynamoDB (optional).
	Region string
	// DSN is the Postgres connection string.
	DSN string
	// Path is the SQLite database file (":memory:" for an in-process database).
	Path string
}

// New opens the configured backend.
func New(ctx context.Context, cfg Config, logger *log.Logger) (Recorder, error) {
	switch cfg.Backend {
	case BackendDynamoDB, "":
		if cfg.Table == "" {
			return nil, errors.New("dynamodb recorder requires a table")
		}
		awsCfg, err := awsconf.Load(ctx, awsconf.Options{Region: cfg.Region})
		if err != nil {
			return nil, err
		}
		return NewDynamoDBFromConfig(awsCfg, cfg.Table, logger), nil
	case BackendPostgres:
		return OpenPostgres(ctx, cfg.DSN, logger)
	case BackendSQLite:
		return OpenSQLite(ctx, cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown metadata backend %q (must be dynamodb, postgres, or sqlite)", cfg.Backend)
	}
}

func validate(rec *types.ProcessingRecord) error {
	if rec == nil {
		return errors.New("nil record")
	}
	if rec.JobKey == "" {
		return errors.New("record has no job key")
	}
	return nil
}
