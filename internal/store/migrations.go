package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memory_files: indexed markdown memories",
		SQL: `
CREATE TABLE memory_files (
    id            INTEGER PRIMARY KEY,
    uri           TEXT NOT NULL UNIQUE,
    path          TEXT NOT NULL UNIQUE,
    title         TEXT NOT NULL,
    slug          TEXT NOT NULL,
    content       TEXT NOT NULL,

    -- Decay tier recorded at write time; NULL for legacy rows
    tier          TEXT CHECK (tier IN ('sequential', 'workflow', 'default')),

    checksum      TEXT NOT NULL,
    size          INTEGER NOT NULL DEFAULT 0,

    -- created_at is fixed at first sync
    created_at    INTEGER NOT NULL,
    modified_at   INTEGER NOT NULL,
    indexed_at    INTEGER NOT NULL,

    -- Only written by direct reads
    last_accessed INTEGER
);

CREATE INDEX idx_files_slug    ON memory_files(slug);
CREATE INDEX idx_files_created ON memory_files(created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "memory_fts: full-text index over memory_files",
		SQL: `
CREATE VIRTUAL TABLE memory_fts USING fts5(
    title,
    content,
    content='memory_files',
    content_rowid='id'
);

CREATE TRIGGER memory_fts_insert AFTER INSERT ON memory_files BEGIN
    INSERT INTO memory_fts(rowid, title, content) VALUES (new.id, new.title, new.content);
END;

CREATE TRIGGER memory_fts_delete AFTER DELETE ON memory_files BEGIN
    INSERT INTO memory_fts(memory_fts, rowid, title, content) VALUES ('delete', old.id, old.title, old.content);
END;

CREATE TRIGGER memory_fts_update AFTER UPDATE OF title, content ON memory_files BEGIN
    INSERT INTO memory_fts(memory_fts, rowid, title, content) VALUES ('delete', old.id, old.title, old.content);
    INSERT INTO memory_fts(rowid, title, content) VALUES (new.id, new.title, new.content);
END;
`,
	},
	{
		Version:     3,
		Description: "memory_vectors: embedding vectors for semantic search",
		SQL: `
CREATE TABLE memory_vectors (
    file_id    INTEGER PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (file_id) REFERENCES memory_files(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     4,
		Description: "concept graph: concepts, mentions, co-occurrence",
		SQL: `
CREATE TABLE concepts (
    name             TEXT PRIMARY KEY,
    first_seen       INTEGER NOT NULL,
    occurrence_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE concept_mentions (
    concept       TEXT NOT NULL,
    file_id       INTEGER NOT NULL,
    mention_count INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (concept, file_id),
    FOREIGN KEY (file_id) REFERENCES memory_files(id) ON DELETE CASCADE
);

CREATE INDEX idx_mentions_file ON concept_mentions(file_id);

CREATE TABLE concept_graph (
    concept_a           TEXT NOT NULL,
    concept_b           TEXT NOT NULL,
    co_occurrence_count INTEGER NOT NULL,
    source_files        TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (concept_a, concept_b),
    CHECK (concept_a < concept_b)
);

CREATE INDEX idx_graph_b ON concept_graph(concept_b);
`,
	},
	{
		Version:     5,
		Description: "assumptions: status-tracked assumption ledger",
		SQL: `
CREATE TABLE assumptions (
    id              INTEGER PRIMARY KEY,
    uri             TEXT NOT NULL UNIQUE,
    statement       TEXT NOT NULL,
    context         TEXT,
    validation_plan TEXT,
    confidence      TEXT NOT NULL DEFAULT 'unspecified',
    status          TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'validated', 'invalidated', 'refined')),
    concepts        TEXT NOT NULL DEFAULT '[]',
    notes           TEXT,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);

CREATE INDEX idx_assumptions_status ON assumptions(status);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
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
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
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
