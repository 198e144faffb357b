package sqlite

// schema is applied on open. Timestamps are RFC 3339 text in UTC so they
// sort lexically.
const schema = `
CREATE TABLE IF NOT EXISTS tick_records (
	run_id   TEXT    NOT NULL,
	seq      INTEGER NOT NULL,
	ts       TEXT    NOT NULL,
	mode     TEXT    NOT NULL,
	skipped  INTEGER NOT NULL DEFAULT 0,
	equity   REAL    NOT NULL,
	record   TEXT    NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS backtest_summaries (
	run_id   TEXT PRIMARY KEY,
	summary  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL DEFAULT '',
	event       TEXT NOT NULL,
	detail      TEXT,
	created_at  TEXT NOT NULL
);
`
