package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store backed by a single SQLite database file.
// Embeddings live in the chunks table as packed float32 blobs with a
// precomputed norm; search is a linear scan over all stored chunks.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open creates or opens the SQLite database at dbPath and initializes
// the schema. If dbPath is occupied by a directory (the legacy on-disk
// layout), it is renamed aside first — never deleted.
func Open(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := migrateLegacyLayout(dbPath, logger); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db, path: dbPath, logger: logger}, nil
}

// migrateLegacyLayout moves aside a pre-SQLite store directory that
// earlier releases persisted at the same path.
func migrateLegacyLayout(dbPath string, logger *slog.Logger) error {
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat store path: %w", err)
	}
	if !info.IsDir() {
		return nil
	}
	aside := fmt.Sprintf("%s.legacy-%d", dbPath, time.Now().Unix())
	if err := os.Rename(dbPath, aside); err != nil {
		return fmt.Errorf("move legacy store aside: %w", err)
	}
	logger.Warn("moved incompatible legacy store aside", "from", dbPath, "to", aside)
	return nil
}

func (s *SQLiteStore) ReplaceIndex(root string, batches []FileChunks, cfg IndexConfig) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chunks"); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM files"); err != nil {
		return fmt.Errorf("clear files: %w", err)
	}

	for _, b := range batches {
		if err := insertFile(tx, b.File); err != nil {
			return err
		}
		if err := insertChunks(tx, b); err != nil {
			return err
		}
	}

	if err := writeMetadata(tx, root, cfg); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ApplyFileUpdates(root string, batches []FileChunks, newPaths, updatedPaths, removedPaths []string, cfg IndexConfig) error {
	byPath, err := batchIndex(batches, newPaths, updatedPaths)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin patch: %w", err)
	}
	defer tx.Rollback()

	for _, p := range append(append([]string{}, removedPaths...), updatedPaths...) {
		if _, err := tx.Exec("DELETE FROM chunks WHERE file_path = ?", p); err != nil {
			return fmt.Errorf("delete chunks for %s: %w", p, err)
		}
	}
	for _, p := range removedPaths {
		if _, err := tx.Exec("DELETE FROM files WHERE path = ?", p); err != nil {
			return fmt.Errorf("delete file %s: %w", p, err)
		}
	}

	for _, p := range append(append([]string{}, newPaths...), updatedPaths...) {
		b := byPath[p]
		if err := upsertFile(tx, b.File); err != nil {
			return err
		}
		if err := insertChunks(tx, b); err != nil {
			return err
		}
	}

	if err := writeMetadata(tx, root, cfg); err != nil {
		return err
	}
	return tx.Commit()
}

// batchIndex maps batches by path and verifies the patch precondition:
// every new or updated path carries exactly one batch.
func batchIndex(batches []FileChunks, newPaths, updatedPaths []string) (map[string]FileChunks, error) {
	byPath := make(map[string]FileChunks, len(batches))
	for _, b := range batches {
		if _, dup := byPath[b.File.Path]; dup {
			return nil, fmt.Errorf("%w: duplicate batch for %s", ErrMissingBatch, b.File.Path)
		}
		byPath[b.File.Path] = b
	}
	for _, p := range append(append([]string{}, newPaths...), updatedPaths...) {
		if _, ok := byPath[p]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingBatch, p)
		}
	}
	return byPath, nil
}

func insertFile(tx *sql.Tx, f FileRecord) error {
	_, err := tx.Exec("INSERT INTO files (path, size, mtime_ns) VALUES (?, ?, ?)", f.Path, f.Size, f.MTimeNS)
	if err != nil {
		return fmt.Errorf("insert file %s: %w", f.Path, err)
	}
	return nil
}

func upsertFile(tx *sql.Tx, f FileRecord) error {
	_, err := tx.Exec(`INSERT INTO files (path, size, mtime_ns) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET size = excluded.size, mtime_ns = excluded.mtime_ns`,
		f.Path, f.Size, f.MTimeNS)
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", f.Path, err)
	}
	return nil
}

func insertChunks(tx *sql.Tx, b FileChunks) error {
	if len(b.Chunks) != len(b.Vectors) {
		return fmt.Errorf("mismatched chunks (%d) and vectors (%d) for %s", len(b.Chunks), len(b.Vectors), b.File.Path)
	}
	stmt, err := tx.Prepare(`INSERT INTO chunks
		(id, file_path, ordinal, start_offset, end_offset, text, metadata, embedding, embedding_dim, embedding_norm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range b.Chunks {
		meta := "{}"
		if len(c.Metadata) > 0 {
			raw, err := json.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata for chunk %s: %w", c.ID, err)
			}
			meta = string(raw)
		}
		blob, vnorm := packVector(b.Vectors[i])
		_, err := stmt.Exec(c.ID, b.File.Path, c.Ordinal, c.StartOffset, c.EndOffset,
			c.Text, meta, blob, len(b.Vectors[i]), vnorm)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

func writeMetadata(tx *sql.Tx, root string, cfg IndexConfig) error {
	pairs := [][2]string{
		{metaRoot, root},
		{metaModel, cfg.ModelID},
		{metaChunkSize, strconv.Itoa(cfg.ChunkSize)},
		{metaOverlap, strconv.Itoa(cfg.ChunkOverlap)},
		{metaIndexedAt, time.Now().UTC().Format(time.RFC3339)},
	}
	for _, kv := range pairs {
		_, err := tx.Exec("INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			kv[0], kv[1])
		if err != nil {
			return fmt.Errorf("write meta %s: %w", kv[0], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Search(query []float32, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		return []SearchResult{}, nil
	}

	// rowid order is insertion order, which fixes tie-breaking.
	rows, err := s.db.Query(`SELECT id, text, metadata, embedding, embedding_dim, embedding_norm
		FROM chunks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	defer rows.Close()

	var cands []candidate
	for rows.Next() {
		var (
			c     candidate
			meta  string
			blob  []byte
			dim   int
			vnorm float64
		)
		if err := rows.Scan(&c.result.ID, &c.result.Text, &meta, &blob, &dim, &vnorm); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		if dim != len(query) {
			continue // leftover rows from another model's dimension
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &c.result.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for chunk %s: %w", c.result.ID, err)
			}
		}
		c.vec = unpackVector(blob)
		c.norm = vnorm
		cands = append(cands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk rows: %w", err)
	}

	return rankCandidates(query, limit, cands), nil
}

func (s *SQLiteStore) Files() ([]FileRecord, error) {
	rows, err := s.db.Query("SELECT path, size, mtime_ns FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.Path, &f.Size, &f.MTimeNS); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) Metadata() (*IndexMetadata, error) {
	root, err := s.getMeta(metaRoot)
	if err != nil {
		return nil, err
	}
	model, err := s.getMeta(metaModel)
	if err != nil {
		return nil, err
	}
	if root == "" && model == "" {
		return nil, nil // index has never been committed
	}

	md := &IndexMetadata{Root: root, Config: IndexConfig{ModelID: model}}
	if v, err := s.getMeta(metaChunkSize); err != nil {
		return nil, err
	} else if v != "" {
		if md.Config.ChunkSize, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("parse meta %s: %w", metaChunkSize, err)
		}
	}
	if v, err := s.getMeta(metaOverlap); err != nil {
		return nil, err
	} else if v != "" {
		if md.Config.ChunkOverlap, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("parse meta %s: %w", metaOverlap, err)
		}
	}
	if v, err := s.getMeta(metaIndexedAt); err != nil {
		return nil, err
	} else if v != "" {
		if md.IndexedAt, err = time.Parse(time.RFC3339, v); err != nil {
			return nil, fmt.Errorf("parse meta %s: %w", metaIndexedAt, err)
		}
	}
	return md, nil
}

func (s *SQLiteStore) getMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Stats() (*Stats, error) {
	st := &Stats{Backend: "sqlite", PersistPath: s.path}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&st.TotalChunks); err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&st.TotalFiles); err != nil {
		return nil, fmt.Errorf("count files: %w", err)
	}

	md, err := s.Metadata()
	if err != nil {
		return nil, err
	}
	if md != nil {
		st.ModelID = md.Config.ModelID
		st.Root = md.Root
		st.IndexedAt = md.IndexedAt
		st.ChunkSize = md.Config.ChunkSize
		st.Overlap = md.Config.ChunkOverlap
	}
	return st, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
