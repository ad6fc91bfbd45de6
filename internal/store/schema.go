package store

import "database/sql"

const ddl = `
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
    path     TEXT PRIMARY KEY,
    size     INTEGER NOT NULL,
    mtime_ns INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
    id             TEXT PRIMARY KEY,
    file_path      TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
    ordinal        INTEGER NOT NULL,
    start_offset   INTEGER NOT NULL,
    end_offset     INTEGER NOT NULL,
    text           TEXT NOT NULL,
    metadata       TEXT NOT NULL DEFAULT '{}',
    embedding      BLOB NOT NULL,
    embedding_dim  INTEGER NOT NULL,
    embedding_norm REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path);
`

// metadata keys in the meta table.
const (
	metaRoot      = "indexed_root"
	metaModel     = "embedding_model"
	metaChunkSize = "chunk_size"
	metaOverlap   = "chunk_overlap"
	metaIndexedAt = "indexed_at"
)

// initSchema creates the schema tables if they don't exist.
func initSchema(db *sql.DB) error {
	_, err := db.Exec(ddl)
	return err
}
