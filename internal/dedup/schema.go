package dedup

// schemaVersionV1 is the current flat schema.
const schemaVersionV1 = 1

var schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS records (
	fingerprint TEXT PRIMARY KEY,
	calendar_uid TEXT NOT NULL UNIQUE,
	last_due_at TEXT NOT NULL,
	last_seen_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_last_seen ON records(last_seen_at);
`
