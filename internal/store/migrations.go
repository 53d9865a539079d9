package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	provider    TEXT NOT NULL,
	from_label  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	available   INTEGER NOT NULL DEFAULT 0,
	fetched     INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS imports (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	thread_id   TEXT NOT NULL,
	note_path   TEXT NOT NULL,
	subject     TEXT NOT NULL DEFAULT '',
	attachments TEXT NOT NULL DEFAULT '[]',
	trashed     INTEGER NOT NULL DEFAULT 0,
	imported_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_imports_run_id ON imports(run_id);
CREATE INDEX IF NOT EXISTS idx_imports_thread_id ON imports(thread_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
