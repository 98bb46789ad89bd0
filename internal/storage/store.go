package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite archive of confirmed blocks, their swaps, and sink
// deliveries. It never holds unconfirmed window state.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS confirmed_blocks (
  height        INTEGER PRIMARY KEY,
  hash          TEXT NOT NULL,
  reorg_depth   INTEGER NOT NULL,
  swap_count    INTEGER NOT NULL,
  confirmed_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS swaps (
  tx_hash    TEXT NOT NULL,
  log_index  INTEGER NOT NULL,
  height     INTEGER NOT NULL REFERENCES confirmed_blocks(height),
  sender     TEXT NOT NULL,
  receiver   TEXT NOT NULL,
  direction  TEXT NOT NULL,
  amount_a   TEXT NOT NULL,
  amount_b   TEXT NOT NULL,
  PRIMARY KEY(tx_hash, log_index)
);

CREATE INDEX IF NOT EXISTS swaps_height ON swaps(height);

CREATE TABLE IF NOT EXISTS sends (
  tx_hash       TEXT NOT NULL,
  log_index     INTEGER NOT NULL,
  rule_id       TEXT NOT NULL,
  sink_id       TEXT NOT NULL,
  status        TEXT NOT NULL,
  created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(tx_hash, log_index, rule_id, sink_id)
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Block is a confirmed block row.
type Block struct {
	Height      uint64
	Hash        string
	ReorgDepth  uint
	SwapCount   int
	ConfirmedAt time.Time
}

// Swap is a confirmed swap row.
type Swap struct {
	TxHash    string
	LogIndex  uint
	Height    uint64
	Sender    string
	Receiver  string
	Direction string
	AmountA   string
	AmountB   string
}

// RecordConfirmed stores a confirmed block and its swaps atomically. Each
// height is recorded once; a second call for the same height fails.
func (s *Store) RecordConfirmed(ctx context.Context, b Block, swaps []Swap) error {
	if b.Hash == "" {
		return errors.New("block hash required")
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO confirmed_blocks (height, hash, reorg_depth, swap_count, confirmed_at)
VALUES (?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP));
`, b.Height, b.Hash, b.ReorgDepth, len(swaps), nullTime(b.ConfirmedAt))
		if err != nil {
			return fmt.Errorf("insert block %d: %w", b.Height, err)
		}
		for _, sw := range swaps {
			_, err := tx.ExecContext(ctx, `
INSERT INTO swaps (tx_hash, log_index, height, sender, receiver, direction, amount_a, amount_b)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`, sw.TxHash, sw.LogIndex, b.Height, sw.Sender, sw.Receiver, sw.Direction, sw.AmountA, sw.AmountB)
			if err != nil {
				return fmt.Errorf("insert swap %s/%d: %w", sw.TxHash, sw.LogIndex, err)
			}
		}
		return nil
	})
}

// LastConfirmed returns the highest confirmed block.
func (s *Store) LastConfirmed(ctx context.Context) (Block, bool, error) {
	var (
		b  Block
		at time.Time
	)
	err := s.db.QueryRowContext(ctx, `
SELECT height, hash, reorg_depth, swap_count, confirmed_at
FROM confirmed_blocks ORDER BY height DESC LIMIT 1;
`).Scan(&b.Height, &b.Hash, &b.ReorgDepth, &b.SwapCount, &at)
	switch {
	case err == nil:
		b.ConfirmedAt = at
		return b, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return Block{}, false, nil
	default:
		return Block{}, false, fmt.Errorf("last confirmed: %w", err)
	}
}

// ReorgStats summarizes the archive: confirmed blocks, total swaps, blocks
// released after a repair, and the deepest repair seen.
type ReorgStats struct {
	Blocks   int
	Swaps    int
	Reorged  int
	MaxDepth uint
}

// Stats aggregates the confirmed_blocks table.
func (s *Store) Stats(ctx context.Context) (ReorgStats, error) {
	var st ReorgStats
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(swap_count), 0),
       COALESCE(SUM(CASE WHEN reorg_depth > 0 THEN 1 ELSE 0 END), 0),
       COALESCE(MAX(reorg_depth), 0)
FROM confirmed_blocks;
`).Scan(&st.Blocks, &st.Swaps, &st.Reorged, &st.MaxDepth)
	if err != nil {
		return ReorgStats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// ListSwaps returns swaps in [from, to], ordered by height and log index. A
// zero to means no upper bound.
func (s *Store) ListSwaps(ctx context.Context, from, to uint64) ([]Swap, error) {
	query := `
SELECT tx_hash, log_index, height, sender, receiver, direction, amount_a, amount_b
FROM swaps WHERE height >= ?`
	args := []any{from}
	if to > 0 {
		query += ` AND height <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY height, log_index;`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list swaps: %w", err)
	}
	defer rows.Close()

	out := []Swap{}
	for rows.Next() {
		var sw Swap
		if err := rows.Scan(&sw.TxHash, &sw.LogIndex, &sw.Height, &sw.Sender, &sw.Receiver, &sw.Direction, &sw.AmountA, &sw.AmountB); err != nil {
			return nil, fmt.Errorf("scan swap: %w", err)
		}
		out = append(out, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swaps: %w", err)
	}
	return out, nil
}

// Send represents a sink delivery record.
type Send struct {
	TxHash    string
	LogIndex  uint
	RuleID    string
	SinkID    string
	Status    string
	CreatedAt time.Time
}

// InsertSend records a sink delivery attempt; primary key enforces exactly-once per swap/rule/sink.
func (s *Store) InsertSend(ctx context.Context, srec Send) error {
	if srec.TxHash == "" || srec.RuleID == "" || srec.SinkID == "" || srec.Status == "" {
		return errors.New("tx_hash, rule_id, sink_id, and status are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sends (tx_hash, log_index, rule_id, sink_id, status, created_at)
VALUES (?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP));
`, srec.TxHash, srec.LogIndex, srec.RuleID, srec.SinkID, srec.Status, nullTime(srec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert send: %w", err)
	}
	return nil
}

// WithTx executes a callback inside a transaction for callers needing atomicity.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
