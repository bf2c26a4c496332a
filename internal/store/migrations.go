package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations. Versions are
// sequential starting from 1 and are never edited once released.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	text           TEXT NOT NULL,
	completed      INTEGER NOT NULL DEFAULT 0,
	completed_date TEXT,
	section        TEXT NOT NULL DEFAULT 'other',
	order_index    INTEGER NOT NULL DEFAULT 0,
	created_date   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_section ON tasks(section);
CREATE INDEX IF NOT EXISTS idx_tasks_order_index ON tasks(order_index);
CREATE INDEX IF NOT EXISTS idx_tasks_created_date ON tasks(created_date);
`,
	},
	{
		// Ownership. Rows written before sign-in existed belong to the
		// local sentinel until claimed.
		version: 2,
		sql: `
ALTER TABLE tasks ADD COLUMN user_id TEXT NOT NULL DEFAULT 'local';

CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
CREATE INDEX IF NOT EXISTS idx_tasks_user_section ON tasks(user_id, section);
CREATE INDEX IF NOT EXISTS idx_tasks_user_created ON tasks(user_id, created_date);
`,
	},
	{
		version: 3,
		sql: `
ALTER TABLE tasks ADD COLUMN task_list TEXT NOT NULL DEFAULT 'personal';

DROP INDEX IF EXISTS idx_tasks_section;
CREATE INDEX IF NOT EXISTS idx_tasks_partition
	ON tasks(user_id, task_list, section, order_index);
`,
	},
	{
		version: 4,
		sql: `
CREATE TABLE IF NOT EXISTS app_state (
	owner   TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	data    TEXT NOT NULL
);
`,
	},
	{
		// Server-side audit trail of task mutations.
		version: 5,
		sql: `
CREATE TABLE IF NOT EXISTS audit_log (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	action      TEXT NOT NULL,
	inputs_hash TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	task_id     TEXT,
	details     TEXT,
	timestamp   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_id, timestamp);
`,
	},
}
