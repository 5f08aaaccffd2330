package ooi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/Aman-CERP/annserve/internal/config"
)

// SQLiteStore reads vectors from a SQLite table of (id TEXT, repr BLOB).
type SQLiteStore struct {
	db        *sql.DB
	name      string
	getSQL    string
	upsertSQL string
}

// OpenSQLite opens the store described by cfg. A writable store creates
// the database and its table when missing; a read-only one must already
// have both.
func OpenSQLite(cfg config.OOIStoreConfig, writable bool) (*SQLiteStore, error) {
	if !writable {
		if _, err := os.Stat(cfg.Path); err != nil {
			return nil, fmt.Errorf("open ooi store %s: %w", cfg.Name, err)
		}
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open ooi store %s: %w", cfg.Name, err)
	}
	// Single connection so the pragmas below hold for every query.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if writable {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	} else {
		pragmas = append(pragmas, "PRAGMA query_only = 1")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ooi store %s: %s: %w", cfg.Name, p, err)
		}
	}

	if writable {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY, %s BLOB NOT NULL)`,
			cfg.Table, cfg.IDColumn, cfg.ReprColumn)
		if _, err := db.Exec(ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ooi store %s: create table: %w", cfg.Name, err)
		}
	}

	s := &SQLiteStore{
		db:   db,
		name: cfg.Name,
		getSQL: fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`,
			cfg.ReprColumn, cfg.Table, cfg.IDColumn),
		upsertSQL: fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT(%s) DO UPDATE SET %s = excluded.%s`,
			cfg.Table, cfg.IDColumn, cfg.ReprColumn, cfg.IDColumn, cfg.ReprColumn, cfg.ReprColumn),
	}

	// Fail fast on a missing table or column.
	if _, _, err := s.Vector(context.Background(), ""); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Name returns the configured store name.
func (s *SQLiteStore) Name() string {
	return s.name
}

// Vector implements Store.
func (s *SQLiteStore) Vector(ctx context.Context, id string) ([]float32, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, s.getSQL, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ooi store %s: lookup %q: %w", s.name, id, err)
	}
	vec, err := DecodeVector(blob)
	if err != nil {
		return nil, false, fmt.Errorf("ooi store %s: id %q: %w", s.name, id, err)
	}
	return vec, true, nil
}

// Put upserts vectors in one transaction.
func (s *SQLiteStore) Put(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, EncodeVector(vectors[i])); err != nil {
			return fmt.Errorf("upsert %q: %w", id, err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
