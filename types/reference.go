// Package types defines the domain types shared by the glean pipeline:
// artifact references, working blobs, stage results and the persisted record.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"net/url"
	"strings"
)

// LocationPrefix is the canonical URL prefix of a stored artifact location.
// Job messages produced by the capture surface carry locations of this form.
const LocationPrefix = "https://s3.amazonaws.com/"

// ArtifactReference identifies the artifact a job operates on.
// Bucket and Key form the job identity. Domain and CapturedAt are
// enrichment fields derived from the key layout and may be empty.
type ArtifactReference struct {
	// Bucket is the object store bucket holding the original artifact.
	Bucket string `json:"bucket" yaml:"bucket"`
	// Key is the object key within Bucket.
	Key string `json:"key" yaml:"key"`
	// Domain is the captured site's domain, "" when the layout has none.
	Domain string `json:"domain" yaml:"domain"`
	// CapturedAt is the capture time in epoch seconds, 0 when unknown.
	CapturedAt int64 `json:"captured_at" yaml:"captured_at"`
}

// Validate checks the identity fields.
func (r ArtifactReference) Validate() error {
	if strings.TrimSpace(r.Bucket) == "" {
		return errors.New("bucket must be non-empty")
	}
	if strings.TrimSpace(r.Key) == "" {
		return errors.New("key must be non-empty")
	}
	return nil
}

// JobKey returns the unique job identity used as the persistence key.
// Redelivery of the same reference always yields the same JobKey.
func (r ArtifactReference) JobKey() string {
	return r.Bucket + "/" + r.Key
}

// SourceURL returns the canonical location of the referenced artifact.
func (r ArtifactReference) SourceURL() string {
	return Location(r.Bucket, r.Key)
}

// Location builds the canonical location string for bucket/key. Every
// path segment is percent-escaped so keys holding "?", "#" or "%" come
// back intact from ParseLocation and the job reference parser.
func Location(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return LocationPrefix + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

// ParseLocation splits a canonical location back into bucket and key.
// ok is false when loc does not start with LocationPrefix or has no key.
func ParseLocation(loc string) (bucket, key string, ok bool) {
	rest, ok := strings.CutPrefix(loc, LocationPrefix)
	if !ok {
		return "", "", false
	}
	segments := strings.Split(rest, "/")
	if len(segments) < 2 {
		return "", "", false
	}
	for i, s := range segments {
		segments[i] = UnescapeSegment(s)
	}
	bucket, key = segments[0], strings.Join(segments[1:], "/")
	return bucket, key, bucket != "" && key != ""
}

// UnescapeSegment decodes percent-escapes in one path segment. Segments
// with malformed escapes are returned unchanged.
func UnescapeSegment(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}
