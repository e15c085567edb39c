package record

// Columns shared by the SQL backends. Both Postgres and SQLite accept the
// same upsert statement.
const upsertSQL = `INSERT INTO processing_records (
	job_key, domain, source_url, text,
	before_size_bytes, after_size_bytes, compress_duration_ms, ocr_duration_ms,
	captured_at, backend, extraction_succeeded, stored_bucket, stored_key, processed_at
) VALUES (
	:job_key, :domain, :source_url, :text,
	:before_size_bytes, :after_size_bytes, :compress_duration_ms, :ocr_duration_ms,
	:captured_at, :backend, :extraction_succeeded, :stored_bucket, :stored_key, :processed_at
)
ON CONFLICT (job_key) DO UPDATE SET
	domain = excluded.domain,
	source_url = excluded.source_url,
	text = excluded.text,
	before_size_bytes = excluded.before_size_bytes,
	after_size_bytes = excluded.after_size_bytes,
	compress_duration_ms = excluded.compress_duration_ms,
	ocr_duration_ms = excluded.ocr_duration_ms,
	captured_at = excluded.captured_at,
	backend = excluded.backend,
	extraction_succeeded = excluded.extraction_succeeded,
	stored_bucket = excluded.stored_bucket,
	stored_key = excluded.stored_key,
	processed_at = excluded.processed_at`

const selectColumns = `job_key, domain, source_url, text,
	before_size_bytes, after_size_bytes, compress_duration_ms, ocr_duration_ms,
	captured_at, backend, extraction_succeeded, stored_bucket, stored_key, processed_at`
