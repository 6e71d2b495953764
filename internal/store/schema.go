package store

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// The issues table holds one row per tracker issue key. All derived
// fields are overwritten on re-ingest; the created stamp is stored as
// text with a trailing " UTC" marker.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS issues (
	id                   TEXT PRIMARY KEY,
	title                TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	created              TEXT NOT NULL DEFAULT '',
	priority             TEXT NOT NULL DEFAULT '',
	labels               TEXT NOT NULL DEFAULT '[]',
	issue_type           TEXT NOT NULL DEFAULT '',
	components           TEXT NOT NULL DEFAULT '[]',
	project              TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT '',
	is_subtask           INTEGER NOT NULL DEFAULT 0,
	is_alert             INTEGER NOT NULL DEFAULT 0,
	alert_signature      TEXT NOT NULL DEFAULT '',
	cluster_id           TEXT NOT NULL DEFAULT '',
	tenant_id            TEXT NOT NULL DEFAULT '',
	biz_type             TEXT NOT NULL DEFAULT '',
	stability_governance TEXT NOT NULL DEFAULT '',
	visibility           TEXT NOT NULL DEFAULT '',
	component_name       TEXT NOT NULL DEFAULT '',
	source_component     TEXT NOT NULL DEFAULT '',
	alert_group          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_issues_created ON issues (created);
CREATE INDEX IF NOT EXISTS idx_issues_alert_created ON issues (is_alert, created);

CREATE TABLE IF NOT EXISTS muted_issues (
	issue_id TEXT PRIMARY KEY,
	muted_at TEXT NOT NULL,
	reason   TEXT NOT NULL DEFAULT ''
);
`

func ensureSchema(conn *sqlite.Conn) error {
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("store: creating schema: %w", err)
	}
	return nil
}
