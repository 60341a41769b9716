package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_market_table/internal/domain"
)

// DefaultDSN keeps the journal in memory for the lifetime of the process.
const DefaultDSN = "file:refreshes?mode=memory&cache=shared"

type SQLiteStore struct {
	db   *sql.DB
	keep int // 0 keeps everything
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// A shared in-memory database lives as long as one connection is open.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS refreshes (
			cycle INTEGER NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			ok BOOLEAN NOT NULL,
			rows INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_refreshes_started_at ON refreshes(started_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// WithRetention makes SaveRefresh drop all but the newest keep rows.
func (s *SQLiteStore) WithRetention(keep int) *SQLiteStore {
	s.keep = keep
	return s
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RefreshJournal Implementation

func (s *SQLiteStore) SaveRefresh(ctx context.Context, rec *domain.RefreshRecord) error {
	query := `INSERT INTO refreshes (cycle, started_at, finished_at, ok, rows, skipped, error)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.Cycle, rec.StartedAt.UTC(), rec.FinishedAt.UTC(), rec.OK, rec.Rows, rec.Skipped, rec.Error)
	if err != nil {
		return err
	}
	if s.keep > 0 {
		if _, err := s.PruneRefreshes(ctx, s.keep); err != nil {
			return fmt.Errorf("prune refreshes: %w", err)
		}
	}
	return nil
}

// ListRefreshes returns the most recent cycles first.
func (s *SQLiteStore) ListRefreshes(ctx context.Context, limit int) ([]*domain.RefreshRecord, error) {
	query := `SELECT cycle, started_at, finished_at, ok, rows, skipped, error FROM refreshes ORDER BY rowid DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.RefreshRecord
	for rows.Next() {
		var r domain.RefreshRecord
		if err := rows.Scan(&r.Cycle, &r.StartedAt, &r.FinishedAt, &r.OK, &r.Rows, &r.Skipped, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// PruneRefreshes keeps only the newest keep rows.
func (s *SQLiteStore) PruneRefreshes(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM refreshes WHERE rowid NOT IN (SELECT rowid FROM refreshes ORDER BY rowid DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
