package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Knowledge base: one row per entity, ordered by position
CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY,
    kb_id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    entity_type TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    wikipedia TEXT NOT NULL DEFAULT '',
    position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entity_aliases (
    entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    alias TEXT NOT NULL,
    PRIMARY KEY (entity_id, position)
);

-- Linked ids may point outside the table, so targets are kept as text.
CREATE TABLE IF NOT EXISTS entity_links (
    entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    target_kb_id TEXT NOT NULL,
    PRIMARY KEY (entity_id, position)
);

-- Processed texts, deduplicated by content hash
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL UNIQUE,
    content TEXT NOT NULL,
    tagger TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS mentions (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    text TEXT NOT NULL,
    label TEXT NOT NULL,
    start_pos INTEGER NOT NULL,
    end_pos INTEGER NOT NULL,
    kb_id TEXT,
    score REAL NOT NULL DEFAULT 0,
    method TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS relationships (
    id INTEGER PRIMARY KEY,
    document_id INTEGER REFERENCES documents(id) ON DELETE CASCADE,
    source_kb_id TEXT NOT NULL,
    target_kb_id TEXT NOT NULL,
    relation_type TEXT NOT NULL,
    weight REAL DEFAULT 1.0,
    sentence TEXT
);

-- Community detection results
CREATE TABLE IF NOT EXISTS communities (
    id INTEGER PRIMARY KEY,
    level INTEGER NOT NULL,
    entity_ids JSON NOT NULL
);

-- Raw SPARQL result documents
CREATE TABLE IF NOT EXISTS sparql_cache (
    key TEXT PRIMARY KEY,
    body BLOB NOT NULL,
    expires_at INTEGER NOT NULL DEFAULT 0
);

-- Entity vectors via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_entities USING vec0(
    entity_id INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_mentions_document ON mentions(document_id);
CREATE INDEX IF NOT EXISTS idx_mentions_kb ON mentions(kb_id);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_kb_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_kb_id);
CREATE INDEX IF NOT EXISTS idx_relationships_document ON relationships(document_id);
`, embeddingDim)
}
