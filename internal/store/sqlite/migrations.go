package sqlite

import "fmt"

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "inferences: detected facts awaiting confirmation",
		SQL: `
CREATE TABLE inferences (
    id               TEXT PRIMARY KEY,
    subject_id       TEXT,
    actor_id         TEXT,
    fact_type        TEXT NOT NULL,
    payload          TEXT NOT NULL DEFAULT '{}',
    confidence       REAL NOT NULL DEFAULT 0.5 CHECK (confidence >= 0 AND confidence <= 1),
    status           TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'confirmed', 'rejected')),
    source           TEXT NOT NULL DEFAULT '',
    dedupe_key       TEXT NOT NULL,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL,
    expires_at       INTEGER,
    last_prompted_at INTEGER
);

CREATE UNIQUE INDEX idx_inferences_dedupe_key     ON inferences(dedupe_key);
CREATE INDEX        idx_inferences_subject_status ON inferences(subject_id, status);
CREATE INDEX        idx_inferences_expires_at     ON inferences(expires_at);
`,
	},
	{
		Version:     2,
		Description: "knowledge_items: durable household facts",
		SQL: `
CREATE TABLE knowledge_items (
    id                    TEXT PRIMARY KEY,
    subject_id            TEXT NOT NULL,
    key                   TEXT NOT NULL,
    type                  TEXT NOT NULL CHECK (type IN ('explicit', 'inferred')),
    status                TEXT NOT NULL CHECK (status IN ('active', 'pending', 'rejected', 'archived')),
    payload               TEXT NOT NULL DEFAULT '{}',
    confidence            TEXT NOT NULL DEFAULT '',
    qualifier             TEXT,
    created_at            INTEGER NOT NULL,
    updated_at            INTEGER NOT NULL,
    activated_at          INTEGER,
    last_prompted_at      INTEGER,
    last_prompted_session TEXT
);

CREATE INDEX idx_knowledge_subject_key    ON knowledge_items(subject_id, key, updated_at DESC);
CREATE INDEX idx_knowledge_subject_status ON knowledge_items(subject_id, status, updated_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
