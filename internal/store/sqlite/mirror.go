// Package sqlite is the local durability mirror of the breadth-index
// history: a single-table WAL database that survives a Redis outage across
// process restarts. Through store.DualStore it is read at startup when Redis
// returns no history (or fails to load), and written alongside every Redis
// Put.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	"trading-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the mirror's backing file.
type Config struct {
	DBPath string // e.g. "data/index_history.db"
}

// Mirror is a single-writer SQLite table of index candles, keyed by
// start_time, following the teacher's WAL-mode single-connection pattern.
type Mirror struct {
	db *sql.DB
}

// New opens (creating if absent) the mirror database in WAL mode.
func New(cfg Config) (*Mirror, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] index mirror opened at %s", cfg.DBPath)
	return &Mirror{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS index_candles (
			start_time   INTEGER PRIMARY KEY,
			open         REAL NOT NULL,
			high         REAL NOT NULL,
			low          REAL NOT NULL,
			close        REAL NOT NULL,
			net_percent  REAL NOT NULL,
			positive_sum REAL NOT NULL,
			negative_sum REAL NOT NULL,
			count        INTEGER NOT NULL
		);
	`)
	return err
}

// Load returns every mirrored candle ordered ascending by start_time.
func (m *Mirror) Load() ([]model.IndexCandle, error) {
	rows, err := m.db.Query(`
		SELECT start_time, open, high, low, close, net_percent, positive_sum, negative_sum, count
		FROM index_candles ORDER BY start_time ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite load: %w", err)
	}
	defer rows.Close()

	var out []model.IndexCandle
	for rows.Next() {
		var c model.IndexCandle
		if err := rows.Scan(&c.StartTime, &c.Open, &c.High, &c.Low, &c.Close, &c.NetPercent, &c.PositiveSum, &c.NegativeSum, &c.Count); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Put writes (or replaces) one candle.
func (m *Mirror) Put(c model.IndexCandle) error {
	_, err := m.db.Exec(`
		INSERT INTO index_candles (start_time, open, high, low, close, net_percent, positive_sum, negative_sum, count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(start_time) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
			net_percent=excluded.net_percent, positive_sum=excluded.positive_sum,
			negative_sum=excluded.negative_sum, count=excluded.count
	`, c.StartTime, c.Open, c.High, c.Low, c.Close, c.NetPercent, c.PositiveSum, c.NegativeSum, c.Count)
	if err != nil {
		return fmt.Errorf("sqlite put: %w", err)
	}
	return nil
}

// Trim deletes the oldest rows beyond maxEntries.
func (m *Mirror) Trim(maxEntries int) error {
	if maxEntries <= 0 {
		return nil
	}
	_, err := m.db.Exec(`
		DELETE FROM index_candles WHERE start_time NOT IN (
			SELECT start_time FROM index_candles ORDER BY start_time DESC LIMIT ?
		)
	`, maxEntries)
	if err != nil {
		return fmt.Errorf("sqlite trim: %w", err)
	}
	return nil
}

// DeleteByScore removes the row at the given start_time, if any.
func (m *Mirror) DeleteByScore(score int64) error {
	_, err := m.db.Exec(`DELETE FROM index_candles WHERE start_time = ?`, score)
	if err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// DB returns the underlying *sql.DB for health checks.
func (m *Mirror) DB() *sql.DB { return m.db }

// Close closes the database.
func (m *Mirror) Close() error {
	return m.db.Close()
}
