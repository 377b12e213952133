package store

// schemaVersionV1 is the initial schema.
const schemaVersionV1 = 1

// schemaV1 stores each report twice over: structured columns for listings and
// aggregate queries, and the full JSON payload for faithful reloads. Run
// records get their own rows so session overlap and abandonment can be
// queried without unpacking payloads.
var schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS reports (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	verdict        TEXT NOT NULL,
	session_id     TEXT NOT NULL,
	branch         TEXT,
	head           TEXT,
	generated_at   TEXT NOT NULL,
	checks         INTEGER NOT NULL,
	runs_total     INTEGER NOT NULL,
	runs_completed INTEGER NOT NULL,
	runs_live      INTEGER NOT NULL,
	payload        BLOB NOT NULL,
	created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	report_id           INTEGER NOT NULL REFERENCES reports(id),
	check_id            TEXT NOT NULL,
	run_index           INTEGER NOT NULL,
	verdict             TEXT,
	attempts            INTEGER NOT NULL DEFAULT 0,
	duration_ns         INTEGER NOT NULL DEFAULT 0,
	abandoned           INTEGER NOT NULL DEFAULT 0,
	session_in_progress INTEGER NOT NULL DEFAULT 0,
	error               TEXT,
	UNIQUE(report_id, check_id, run_index)
);

CREATE INDEX IF NOT EXISTS idx_reports_session ON reports(session_id);
CREATE INDEX IF NOT EXISTS idx_runs_report ON runs(report_id);
CREATE INDEX IF NOT EXISTS idx_runs_check ON runs(check_id);
`
