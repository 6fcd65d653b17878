// Package index mirrors the investigation's audit trail into SQLite: custody
// entries, the evidence catalog with its findings, verification outcomes and
// payload checksums. Findings are searchable with FTS5 when built with the
// sqlite_fts5 tag.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS custody (
	id          TEXT PRIMARY KEY,
	sequence    INTEGER NOT NULL,
	timestamp   DATETIME NOT NULL,
	evidence_id TEXT NOT NULL,
	action      TEXT NOT NULL,
	user        TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	prev_hash   TEXT NOT NULL DEFAULT '',
	hash        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_custody_evidence ON custody(evidence_id, timestamp, sequence);

CREATE TABLE IF NOT EXISTS evidence (
	id                TEXT PRIMARY KEY,
	type              TEXT NOT NULL,
	name              TEXT NOT NULL DEFAULT '',
	source            TEXT NOT NULL DEFAULT '',
	hash_md5          TEXT NOT NULL DEFAULT '',
	hash_sha256       TEXT NOT NULL DEFAULT '',
	acquisition_time  DATETIME,
	size              INTEGER NOT NULL DEFAULT 0,
	relevance_score   REAL NOT NULL DEFAULT 0,
	analysis_complete INTEGER NOT NULL DEFAULT 0,
	payload_path      TEXT NOT NULL DEFAULT '',
	updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS findings (
	id          TEXT PRIMARY KEY,
	evidence_id TEXT NOT NULL REFERENCES evidence(id) ON DELETE CASCADE,
	tool        TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL DEFAULT '',
	severity    TEXT NOT NULL DEFAULT '',
	details     TEXT NOT NULL DEFAULT '',
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_findings_evidence ON findings(evidence_id);

CREATE TABLE IF NOT EXISTS verifications (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	evidence_id   TEXT NOT NULL,
	valid         INTEGER NOT NULL,
	original_hash TEXT NOT NULL DEFAULT '',
	current_hash  TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL,
	checked_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verifications_evidence ON verifications(evidence_id, id);

CREATE TABLE IF NOT EXISTS payloads (
	path     TEXT PRIMARY KEY,
	checksum TEXT NOT NULL,
	size     INTEGER NOT NULL DEFAULT 0,
	mod_time DATETIME
);
`

// DB wraps a sql.DB with audit-mirror operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
