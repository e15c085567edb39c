package types

import (
	"fmt"
	"os"
	"time"
)

// Backend names a text extraction provider.
type Backend string

const (
	// BackendLocal runs an on-host OCR engine against the working copy.
	BackendLocal Backend = "local"
	// BackendDocument calls a cloud document-text-detection service.
	BackendDocument Backend = "document"
	// BackendVision calls a cloud general-purpose text-detection service.
	BackendVision Backend = "vision"
)

// ParseBackend parses a backend name. The empty string selects BackendLocal.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case "", BackendLocal:
		return BackendLocal, nil
	case BackendDocument, "textract":
		return BackendDocument, nil
	case BackendVision, "rekognition":
		return BackendVision, nil
	default:
		return "", fmt.Errorf("unknown extraction backend %q (must be local, document, or vision)", s)
	}
}

// ArtifactBlob is the on-disk working copy of an artifact.
// It lives inside a job workspace and is owned by one stage at a time.
type ArtifactBlob struct {
	// Path is the absolute path of the working copy.
	Path string
	// Size is the current size in bytes.
	Size int64
}

// Refresh re-reads Size from disk.
func (b *ArtifactBlob) Refresh() error {
	info, err := os.Stat(b.Path)
	if err != nil {
		return err
	}
	b.Size = info.Size()
	return nil
}

// Bytes reads the working copy.
func (b *ArtifactBlob) Bytes() ([]byte, error) {
	return os.ReadFile(b.Path)
}

// CompressResult describes one compression pass.
// AfterSize never exceeds BeforeSize.
type CompressResult struct {
	BeforeSize int64 `json:"before_size" yaml:"before_size"`
	AfterSize  int64 `json:"after_size" yaml:"after_size"`
	DurationMs int64 `json:"duration_ms" yaml:"duration_ms"`
	// Applied is true when the compressed output replaced the working copy.
	Applied bool `json:"applied" yaml:"applied"`
	// Reason explains a pass-through ("skipped", "tool unavailable", ...).
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// ExtractionResult is the outcome of a text extraction attempt.
// On failure Text is empty, Succeeded is false, and DurationMs still
// reflects the time spent up to the failure or timeout.
type ExtractionResult struct {
	Text       string  `json:"text" yaml:"text"`
	DurationMs int64   `json:"duration_ms" yaml:"duration_ms"`
	Backend    Backend `json:"backend" yaml:"backend"`
	Succeeded  bool    `json:"succeeded" yaml:"succeeded"`
	Reason     string  `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// ProcessingRecord is the persisted outcome of a job, keyed by JobKey.
// Redelivery of a job overwrites the record with recomputed values.
type ProcessingRecord struct {
	JobKey              string    `json:"job_key" yaml:"job_key" db:"job_key" dynamodbav:"job_key"`
	Domain              string    `json:"domain" yaml:"domain" db:"domain" dynamodbav:"domain"`
	SourceURL           string    `json:"source_url" yaml:"source_url" db:"source_url" dynamodbav:"source_url"`
	Text                string    `json:"text" yaml:"text" db:"text" dynamodbav:"text"`
	BeforeSizeBytes     int64     `json:"before_size_bytes" yaml:"before_size_bytes" db:"before_size_bytes" dynamodbav:"before_size_bytes"`
	AfterSizeBytes      int64     `json:"after_size_bytes" yaml:"after_size_bytes" db:"after_size_bytes" dynamodbav:"after_size_bytes"`
	CompressDurationMs  int64     `json:"compress_duration_ms" yaml:"compress_duration_ms" db:"compress_duration_ms" dynamodbav:"compress_duration_ms"`
	OCRDurationMs       int64     `json:"ocr_duration_ms" yaml:"ocr_duration_ms" db:"ocr_duration_ms" dynamodbav:"ocr_duration_ms"`
	Timestamp           int64     `json:"timestamp" yaml:"timestamp" db:"captured_at" dynamodbav:"timest"`
	Backend             Backend   `json:"backend" yaml:"backend" db:"backend" dynamodbav:"backend"`
	ExtractionSucceeded bool      `json:"extraction_succeeded" yaml:"extraction_succeeded" db:"extraction_succeeded" dynamodbav:"extraction_succeeded"`
	StoredBucket        string    `json:"stored_bucket" yaml:"stored_bucket" db:"stored_bucket" dynamodbav:"stored_bucket"`
	StoredKey           string    `json:"stored_key" yaml:"stored_key" db:"stored_key" dynamodbav:"s3path"`
	ProcessedAt         time.Time `json:"processed_at" yaml:"processed_at" db:"processed_at" dynamodbav:"processed_at"`
}
