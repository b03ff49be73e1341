// Package vecstore persists document chunks as vectors with JSON payloads
// in a single SQLite database. The horosvec index handles nearest-neighbor
// search; a side table keeps each chunk's metadata so results can be
// filtered by tenant (sosok/site) and source file.
//
// Usage:
//
//	store, err := vecstore.New(vecstore.Config{DBPath: "vectors.db"})
//	if err != nil { ... }
//	defer store.Close()
//
//	err = store.Upsert(ctx, docs)
//	hits, err := store.Query(ctx, vec, 10, vecstore.Filter{Sosok: "kac", Site: "gimpo"})
package vecstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/hazyhaar/horosvec"

	"github.com/chamlab/docvec/dbopen"
)

const schema = `
CREATE TABLE IF NOT EXISTS doc_payloads (
    ext_id  BLOB PRIMARY KEY,
    sosok   TEXT NOT NULL DEFAULT '',
    site    TEXT NOT NULL DEFAULT '',
    file_id TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_doc_payloads_scope ON doc_payloads(sosok, site, file_id);
`

// Document is one chunk ready for indexing. ID must be unique across the
// store; overwriting an earlier upload happens at file granularity via
// DeleteByFileID, not by re-using chunk IDs.
type Document struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Filter restricts query results by exact match. Empty fields match anything.
type Filter struct {
	Sosok  string
	Site   string
	FileID string
}

// Hit is a single query result.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Config controls store creation.
type Config struct {
	// DBPath is the SQLite file holding both the index and the payloads.
	DBPath string

	// CacheSize is the SQLite cache_size pragma value. Negative means KiB.
	CacheSize int

	// Horosvec configures the underlying index.
	Horosvec horosvec.Config

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.CacheSize == 0 {
		c.CacheSize = -512000 // 512MB page cache for vector reads
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Store couples a horosvec index with the payload table.
type Store struct {
	idx    *horosvec.Index
	db     *sql.DB
	logger *slog.Logger
}

// New opens (or creates) the database at cfg.DBPath and initializes the
// index and payload table.
func New(cfg Config) (*Store, error) {
	cfg.defaults()
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("vecstore: DBPath is required")
	}

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithCacheSize(cfg.CacheSize),
		dbopen.WithSchema(schema),
	)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	idx, err := horosvec.New(db, cfg.Horosvec)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init index: %w", err)
	}

	cfg.Logger.Info("vecstore ready", "db", cfg.DBPath, "count", idx.Count())
	return &Store{idx: idx, db: db, logger: cfg.Logger}, nil
}

// NewFromDB wraps an existing database connection. The caller keeps
// ownership of db; Close only releases the index.
func NewFromDB(db *sql.DB, hcfg horosvec.Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init payload table: %w", err)
	}
	idx, err := horosvec.New(db, hcfg)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	return &Store{idx: idx, db: db, logger: logger}, nil
}

// Close releases the index. The database connection is closed only when the
// store opened it itself (via New).
func (s *Store) Close() error {
	return s.idx.Close()
}

// Count returns the number of indexed chunks, including chunks whose
// payload was deleted but whose vector has not been compacted away yet.
func (s *Store) Count() int {
	return s.idx.Count()
}

// Upsert indexes the documents' vectors and stores their payloads. Payload
// rows for already-present IDs are replaced; vectors are append-only until
// the next Rebuild.
func (s *Store) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	vecs := make([][]float32, len(docs))
	ids := make([][]byte, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document %d: empty ID", i)
		}
		if len(d.Vector) == 0 {
			return fmt.Errorf("document %q: empty vector", d.ID)
		}
		vecs[i] = d.Vector
		ids[i] = []byte(d.ID)
	}

	if err := s.idx.Insert(vecs, ids); err != nil {
		return fmt.Errorf("insert vectors: %w", err)
	}

	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO doc_payloads (ext_id, sosok, site, file_id, payload)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, d := range docs {
			raw, err := json.Marshal(d.Payload)
			if err != nil {
				return fmt.Errorf("marshal payload %q: %w", d.ID, err)
			}
			_, err = stmt.ExecContext(ctx, []byte(d.ID),
				stringField(d.Payload, "sosok"),
				stringField(d.Payload, "site"),
				stringField(d.Payload, "file_id"),
				string(raw))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store payloads: %w", err)
	}

	s.logger.Debug("upserted chunks", "n", len(docs), "total", s.idx.Count())
	return nil
}

// Query searches the index and returns up to topK hits matching the filter.
// Chunks whose payload was deleted are skipped.
func (s *Store) Query(ctx context.Context, vector []float32, topK int, f Filter) ([]Hit, error) {
	if topK <= 0 {
		topK = 10
	}

	// Over-fetch so filtered-out neighbors don't starve the result set.
	fetch := topK * 4
	if fetch < topK+16 {
		fetch = topK + 16
	}

	results, err := s.idx.Search(vector, fetch)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, topK)
	for _, res := range results {
		payload, ok, err := s.loadPayload(ctx, res.ID, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		hits = append(hits, Hit{ID: string(res.ID), Score: float32(res.Score), Payload: payload})
		if len(hits) == topK {
			break
		}
	}
	return hits, nil
}

func (s *Store) loadPayload(ctx context.Context, extID []byte, f Filter) (map[string]any, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM doc_payloads
		WHERE ext_id = ?
		  AND (? = '' OR sosok = ?)
		  AND (? = '' OR site = ?)
		  AND (? = '' OR file_id = ?)`,
		extID, f.Sosok, f.Sosok, f.Site, f.Site, f.FileID, f.FileID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load payload: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, false, fmt.Errorf("decode payload: %w", err)
	}
	return payload, true, nil
}

// DeleteByFileID removes every chunk of the given file within a tenant,
// returning how many were removed. The vectors stay in the index as
// tombstones until Rebuild compacts them; queries skip them immediately.
func (s *Store) DeleteByFileID(ctx context.Context, sosok, site, fileID string) (int64, error) {
	if fileID == "" {
		return 0, fmt.Errorf("empty file_id")
	}
	res, err := dbopen.Exec(ctx, s.db,
		`DELETE FROM doc_payloads WHERE sosok = ? AND site = ? AND file_id = ?`,
		sosok, site, fileID)
	if err != nil {
		return 0, fmt.Errorf("delete payloads: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("deleted file chunks", "sosok", sosok, "site", site, "file_id", fileID, "chunks", n)
	}
	return n, nil
}

// HasFile reports whether any chunk of the file exists within the tenant.
func (s *Store) HasFile(ctx context.Context, sosok, site, fileID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM doc_payloads WHERE sosok = ? AND site = ? AND file_id = ? LIMIT 1`,
		sosok, site, fileID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Rebuild rebuilds the index from the vectors that still have payloads,
// dropping tombstoned chunks. Cheap no-op when the index does not need it
// and force is false.
func (s *Store) Rebuild(ctx context.Context, force bool) error {
	if !force && !s.idx.NeedsRebuild() {
		return nil
	}
	iter := &rowIter{ctx: ctx, db: s.db}
	if err := s.idx.Build(ctx, iter); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	s.logger.Info("index rebuilt", "count", s.idx.Count())
	return nil
}

// rowIter implements horosvec.VectorIterator over the payload-joined
// vec_nodes rows, so deleted chunks are excluded from the rebuild.
type rowIter struct {
	ctx  context.Context
	db   *sql.DB
	rows *sql.Rows
}

func (it *rowIter) Next() ([]byte, []float32, bool) {
	if it.rows == nil {
		rows, err := it.db.QueryContext(it.ctx, `
			SELECT v.ext_id, v.vector
			FROM vec_nodes v
			JOIN doc_payloads p ON p.ext_id = v.ext_id`)
		if err != nil {
			return nil, nil, false
		}
		it.rows = rows
	}
	if !it.rows.Next() {
		it.rows.Close()
		return nil, nil, false
	}
	var id, blob []byte
	if err := it.rows.Scan(&id, &blob); err != nil {
		it.rows.Close()
		return nil, nil, false
	}
	return id, decodeVector(blob), true
}

func (it *rowIter) Reset() error {
	if it.rows != nil {
		it.rows.Close()
		it.rows = nil
	}
	return nil
}

func decodeVector(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
