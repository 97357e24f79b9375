// Package store provides persistent storage of scatter records using SQLite.
// Each measurement family lives in its own logical namespace; records are
// keyed by "{brain_id}/slice_{slice_index}/{name}" (single-channel) or
// "{brain_id}/slice_{slice_index}" (multi-channel).
package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/lipidatlas/server/internal/reconstruct"
)

// Store provides atomic single-key access to scatter records.
type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewStore opens (creating if needed) the record database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	s := &Store{db: db, enc: enc, dec: dec}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (namespace, key)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordKey builds the composite key for a single-channel record.
func RecordKey(brainID string, sliceIndex float64, name string) string {
	return fmt.Sprintf("%s/slice_%v/%s", brainID, sliceIndex, name)
}

// SliceKey builds the composite key for a multi-channel record.
func SliceKey(brainID string, sliceIndex float64) string {
	return fmt.Sprintf("%s/slice_%v", brainID, sliceIndex)
}

// Put stores a record in the namespace. When the key already exists and
// overwrite is false, the write is skipped with a warning so that re-running
// ingestion never corrupts existing data.
func (s *Store) Put(namespace string, rec *reconstruct.Record, overwrite bool) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}

	key := RecordKey(rec.BrainID, rec.SliceIndex, rec.Name)
	if len(rec.Channels) > 0 {
		key = SliceKey(rec.BrainID, rec.SliceIndex)
	}

	payload, err := encodeRecord(s.enc, rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", key, err)
	}

	if overwrite {
		_, err := s.db.Exec(`
			INSERT INTO records (namespace, key, payload) VALUES (?, ?, ?)
			ON CONFLICT (namespace, key) DO UPDATE SET payload = excluded.payload`,
			namespace, key, payload)
		if err != nil {
			return fmt.Errorf("failed to store record %s: %w", key, err)
		}
		return nil
	}

	res, err := s.db.Exec(`
		INSERT INTO records (namespace, key, payload) VALUES (?, ?, ?)
		ON CONFLICT (namespace, key) DO NOTHING`,
		namespace, key, payload)
	if err != nil {
		return fmt.Errorf("failed to store record %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		log.Printf("record %s/%s already exists, skipping (use overwrite to replace)", namespace, key)
	}
	return nil
}

// Get retrieves a single-channel record. A missing key returns (nil, nil);
// only backend failures surface as errors.
func (s *Store) Get(namespace, brainID string, sliceIndex float64, name string) (*reconstruct.Record, error) {
	return s.getKey(namespace, RecordKey(brainID, sliceIndex, name))
}

// GetSlice retrieves the multi-channel record for a (brain, slice) pair.
func (s *Store) GetSlice(namespace, brainID string, sliceIndex float64) (*reconstruct.Record, error) {
	return s.getKey(namespace, SliceKey(brainID, sliceIndex))
}

func (s *Store) getKey(namespace, key string) (*reconstruct.Record, error) {
	var payload []byte
	err := s.db.QueryRow(
		"SELECT payload FROM records WHERE namespace = ? AND key = ?",
		namespace, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s/%s: %w", namespace, key, err)
	}

	rec, err := decodeRecord(s.dec, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record %s/%s: %w", namespace, key, err)
	}
	return rec, nil
}
