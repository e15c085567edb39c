// Package store is the object store boundary of the pipeline.
//
// The pipeline fetches original artifacts and re-publishes compressed ones
// through the Store interface. Backends are S3 (production) and a lode
// store over the local filesystem or memory (development and tests).
// Calls are blocking, bounded by the caller's context, and never retried
// here: redelivery of the job is the retry mechanism.
package store

import (
	"context"
	"fmt"
)

// Storage classes and canned ACLs used by the deployments.
const (
	StorageClassStandard  = "STANDARD"
	StorageClassOneZoneIA = "ONEZONE_IA"

	ACLPrivate    = "private"
	ACLPublicRead = "public-read"

	ContentTypePNG = "image/png"
)

// Backend names.
const (
	BackendS3     = "s3"
	BackendFS     = "fs"
	BackendMemory = "memory"
)

// PutOptions carries object metadata for Put.
type PutOptions struct {
	ContentType  string
	StorageClass string
	ACL          string
}

// Store fetches and stores binary blobs by bucket and key.
// Failures are returned as *Error.
type Store interface {
	// Fetch reads the whole object.
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
	// Put writes body to bucket/key, replacing any existing object.
	Put(ctx context.Context, bucket, key string, body []byte, opts PutOptions) error
}

// Presigner produces time-limited GET URLs for stored objects.
// Only backends reachable over HTTP implement it.
type Presigner interface {
	Presign(ctx context.Context, bucket, key string) (string, error)
}

// Config selects and configures a Store backend.
type Config struct {
	// Backend is s3, fs, or memory.
	Backend string
	// Path is the root directory for the fs backend.
	Path string
	// S3 configures the s3 backend.
	S3 S3Config
}

// New constructs the configured backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendS3, "":
		return NewS3Store(ctx, cfg.S3)
	case BackendFS:
		if cfg.Path == "" {
			return nil, fmt.Errorf("fs store requires a path")
		}
		return NewFSStore(cfg.Path)
	case BackendMemory:
		return NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store backend %q (must be s3, fs, or memory)", cfg.Backend)
	}
}
