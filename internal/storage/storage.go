// Package storage provides SQLite-backed persistence for the
// subscriber set, snapshot history, and the notification audit log.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vnmetals/silverwatch/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db           *sql.DB
	maxSnapshots int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/silverwatch/data.db.
func New(maxSnapshots int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "silverwatch", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxSnapshots: maxSnapshots}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS subscribers (
			chat_id   INTEGER PRIMARY KEY,
			added_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id          TEXT PRIMARY KEY,
			captured_at INTEGER NOT NULL,
			prices      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_captured_at ON snapshots(captured_at)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id          TEXT PRIMARY KEY,
			product     TEXT NOT NULL,
			old_buy     INTEGER NOT NULL,
			new_buy     INTEGER NOT NULL,
			recipients  INTEGER NOT NULL,
			sent_at     INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// LoadSubscribers returns all persisted subscriber chat IDs.
func (s *Storage) LoadSubscribers() ([]int64, error) {
	rows, err := s.db.Query(`SELECT chat_id FROM subscribers ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveSubscribers replaces the persisted subscriber set with ids.
func (s *Storage) SaveSubscribers(ids []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM subscribers`); err != nil {
		return fmt.Errorf("failed to clear subscribers: %w", err)
	}
	now := time.Now().UnixNano()
	for _, id := range ids {
		if _, err := tx.Exec(`INSERT INTO subscribers (chat_id, added_at) VALUES (?,?)`, id, now); err != nil {
			return fmt.Errorf("failed to insert subscriber %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// AppendSnapshot persists an adopted snapshot and rotates the table to
// keep at most maxSnapshots newest rows by capture time.
func (s *Storage) AppendSnapshot(snapshot models.Snapshot) error {
	pricesJSON, err := json.Marshal(snapshot.Prices)
	if err != nil {
		return fmt.Errorf("failed to marshal prices: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`INSERT INTO snapshots (id, captured_at, prices) VALUES (?,?,?)`,
		uuid.New().String(), snapshot.CapturedAt.UnixNano(), string(pricesJSON))
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY captured_at DESC LIMIT ?
		)`, s.maxSnapshots); err != nil {
		return fmt.Errorf("failed to enforce snapshot cap: %w", err)
	}

	return tx.Commit()
}

// RecentSnapshots returns persisted snapshots captured within d of
// now, ordered oldest first. Used to warm the history display after a
// restart; the change detector never reads from here.
func (s *Storage) RecentSnapshots(d time.Duration) ([]models.Snapshot, error) {
	cutoff := time.Now().Add(-d).UnixNano()
	rows, err := s.db.Query(`
		SELECT captured_at, prices FROM snapshots
		WHERE captured_at >= ? ORDER BY captured_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []models.Snapshot
	for rows.Next() {
		var capturedAtNano int64
		var pricesJSON string
		if err := rows.Scan(&capturedAtNano, &pricesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		var prices map[string]models.PriceRecord
		if err := json.Unmarshal([]byte(pricesJSON), &prices); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prices: %w", err)
		}
		snapshots = append(snapshots, models.Snapshot{
			Prices:     prices,
			CapturedAt: time.Unix(0, capturedAtNano),
		})
	}
	return snapshots, rows.Err()
}

// RecordNotification appends one row per dispatched change to the
// audit log. Failures here are the caller's to log; they never stop a
// dispatch.
func (s *Storage) RecordNotification(change models.ChangeRecord, recipients int) error {
	_, err := s.db.Exec(`
		INSERT INTO notifications (id, product, old_buy, new_buy, recipients, sent_at)
		VALUES (?,?,?,?,?,?)`,
		uuid.New().String(), change.ProductName,
		change.Previous.BuyPrice, change.Current.BuyPrice,
		recipients, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

// NotificationCount returns the number of audit log rows.
func (s *Storage) NotificationCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM notifications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}
