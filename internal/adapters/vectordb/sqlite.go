package vectordb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// IndexFile is the database filename inside the index directory.
const IndexFile = "index.db"

// containsBatch keeps IN lists below SQLite's bound-parameter limit.
const containsBatch = 500

// SQLiteIndex persists entries in a SQLite database. Search is a brute-force
// cosine scan over every stored vector.
type SQLiteIndex struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// OpenSQLiteIndex opens the index in dir, creating it when absent.
func OpenSQLiteIndex(ctx context.Context, dir string) (*SQLiteIndex, bool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, false, fmt.Errorf("creating index directory: %w", err)
	}

	path := filepath.Join(dir, IndexFile)
	_, statErr := os.Stat(path)
	created := errors.Is(statErr, fs.ErrNotExist)

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, false, fmt.Errorf("opening database: %w", err)
	}

	idx := &SQLiteIndex{db: db, path: path}
	if err := idx.initSchema(ctx); err != nil {
		db.Close()
		return nil, false, fmt.Errorf("initializing schema: %w", err)
	}
	return idx, created, nil
}

func (s *SQLiteIndex) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		content TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		metadata TEXT,
		embedding BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_entries_document ON entries(document);
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Add stores chunks in a single transaction.
func (s *SQLiteIndex) Add(ctx context.Context, chunks []entities.Chunk) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	dim, err := dimension(ctx, tx)
	if err != nil {
		return nil, err
	}
	if dim == 0 && len(chunks) > 0 {
		dim = len(chunks[0].Embedding)
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO meta (key, value) VALUES ('dimension', ?)`, strconv.Itoa(dim)); err != nil {
			return nil, fmt.Errorf("recording dimension: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (id, document, content, chunk_index, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		if len(chunk.Embedding) != dim {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(chunk.Embedding), dim)
		}
		meta, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata: %w", err)
		}
		ids[i] = uuid.NewString()
		if _, err := stmt.ExecContext(ctx,
			ids[i],
			chunk.DocumentID,
			chunk.Content,
			chunk.Index,
			string(meta),
			encodeVector(chunk.Embedding),
		); err != nil {
			return nil, fmt.Errorf("inserting entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing entries: %w", err)
	}
	return ids, nil
}

// Search finds the most similar entries to a query embedding.
func (s *SQLiteIndex) Search(ctx context.Context, embedding []float32, topK int) ([]entities.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document, content, chunk_index, metadata, embedding
		FROM entries
	`)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var chunks []entities.Chunk
	for rows.Next() {
		var (
			c    entities.Chunk
			meta sql.NullString
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.Index, &meta, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &c.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata of %s: %w", c.ID, err)
			}
		}
		c.Embedding = decodeVector(blob)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading entries: %w", err)
	}

	return rank(embedding, chunks, topK), nil
}

// Delete removes every id or none of them.
func (s *SQLiteIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range dedupe(ids) {
		res, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting entry %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) Contains(ctx context.Context, ids []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids = dedupe(ids)
	present := make(map[string]struct{}, len(ids))
	for start := 0; start < len(ids); start += containsBatch {
		batch := ids[start:min(start+containsBatch, len(ids))]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		query := "SELECT id FROM entries WHERE id IN (?" + strings.Repeat(",?", len(batch)-1) + ")"
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("looking up entries: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning entry id: %w", err)
			}
			present[id] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("reading entry ids: %w", err)
		}
	}

	var found []string
	for _, id := range ids {
		if _, ok := present[id]; ok {
			found = append(found, id)
		}
	}
	return found, nil
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count)
	return count, err
}

// Dimension returns the recorded embedding size, or 0 before the first Add.
func (s *SQLiteIndex) Dimension(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dimension(ctx, s.db)
}

// Close closes the database connection.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func dimension(ctx context.Context, q queryRower) (int, error) {
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'dimension'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading dimension: %w", err)
	}
	return strconv.Atoi(v)
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// SQLiteOpener opens the persisted index under Dir.
type SQLiteOpener struct {
	Dir string
}

func (o SQLiteOpener) Open(ctx context.Context) (ports.VectorIndex, bool, error) {
	idx, created, err := OpenSQLiteIndex(ctx, o.Dir)
	if err != nil {
		return nil, false, err
	}
	return idx, created, nil
}
