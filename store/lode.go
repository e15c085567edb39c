package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/glean/iox"
)

// stagedSuffix marks the copy written before an object is replaced.
const stagedSuffix = ".glean-staged"

// LodeStore is a Store over a lode.Store. Objects live at <bucket>/<key>
// under the store root.
//
// Lode paths are write-once, so Put replaces an object in three steps:
// write <path>.glean-staged, delete <path>, write <path>. If the last step
// fails, Fetch serves the staged copy until a later Put completes.
type LodeStore struct {
	store    lode.Store
	maxBytes int64
}

// NewFSStore creates a filesystem-backed store rooted at root.
func NewFSStore(root string) (*LodeStore, error) {
	return NewLodeStore(lode.NewFSFactory(root))
}

// NewMemoryStore creates an in-memory store. Contents are lost on exit.
func NewMemoryStore() (*LodeStore, error) {
	return NewLodeStore(lode.NewMemoryFactory())
}

// NewLodeStore creates a store from a lode store factory.
// The factory is invoked once; the resulting store is shared by all calls.
func NewLodeStore(factory lode.StoreFactory) (*LodeStore, error) {
	st, err := factory()
	if err != nil {
		return nil, fmt.Errorf("lode store init failed: %w", err)
	}
	return &LodeStore{store: st, maxBytes: DefaultMaxObjectBytes}, nil
}

// Fetch reads bucket/key.
func (s *LodeStore) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	p, err := objectPath(bucket, key)
	if err != nil {
		return nil, &Error{Kind: ErrNotFound, Op: "fetch", Bucket: bucket, Key: key, Err: err}
	}
	rc, err := s.store.Get(ctx, p)
	if errors.Is(err, lode.ErrNotFound) {
		if staged, serr := s.store.Get(ctx, p+stagedSuffix); serr == nil {
			rc, err = staged, nil
		}
	}
	if err != nil {
		return nil, wrap("fetch", bucket, key, err)
	}
	defer iox.DiscardClose(rc)

	data, err := iox.ReadAllLimit(rc, s.maxBytes)
	if err != nil {
		return nil, wrap("fetch", bucket, key, err)
	}
	return data, nil
}

// Put writes body to bucket/key, replacing an existing object.
// Object metadata is not representable in a lode store and is ignored.
func (s *LodeStore) Put(ctx context.Context, bucket, key string, body []byte, _ PutOptions) error {
	p, err := objectPath(bucket, key)
	if err != nil {
		return &Error{Kind: ErrPermissionDenied, Op: "put", Bucket: bucket, Key: key, Err: err}
	}

	exists, err := s.store.Exists(ctx, p)
	if err != nil {
		return wrap("put", bucket, key, err)
	}
	if !exists {
		return wrap("put", bucket, key, s.store.Put(ctx, p, bytes.NewReader(body)))
	}

	staged := p + stagedSuffix
	if err := s.store.Delete(ctx, staged); err != nil {
		return wrap("put", bucket, key, fmt.Errorf("clear staged copy: %w", err))
	}
	if err := s.store.Put(ctx, staged, bytes.NewReader(body)); err != nil {
		return wrap("put", bucket, key, fmt.Errorf("stage replacement: %w", err))
	}
	if err := s.store.Delete(ctx, p); err != nil {
		return wrap("put", bucket, key, fmt.Errorf("replace existing: %w", err))
	}
	if err := s.store.Put(ctx, p, bytes.NewReader(body)); err != nil {
		return wrap("put", bucket, key, err)
	}
	// A staged copy that survives this delete is shadowed by the object.
	_ = s.store.Delete(ctx, staged)
	return nil
}

// objectPath joins bucket and key, rejecting paths that escape the root.
func objectPath(bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", fmt.Errorf("bucket and key are required")
	}
	if strings.Contains(bucket, "/") {
		return "", fmt.Errorf("bucket %q must not contain '/'", bucket)
	}
	cleaned := path.Clean("/" + key)
	if cleaned == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return bucket + cleaned, nil
}

var _ Store = (*LodeStore)(nil)
