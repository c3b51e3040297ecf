// Package storage persists the gateway's event trail in a local sqlite
// database. Every write is best effort; the caller decides what a failed
// write means.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/pumpgate-io/pumpgate/internal/gateway/state"
	"github.com/pumpgate-io/pumpgate/pkg/log"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("storage: not found")

// Store wraps the sqlite handle. It implements state.Recorder.
type Store struct {
	db     *sql.DB
	logger log.Logger
}

// Open creates the database file if needed, applies pragmas suitable for
// a single-writer embedded database, and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY
	// churn under concurrent ingest.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, logger: log.Std().WithName("storage")}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordCommand appends one commanded-state change.
func (s *Store) RecordCommand(ctx context.Context, pumpID int, on bool, timestamp int64, source string) error {
	cmd := 0
	if on {
		cmd = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pump_commands (pump_id, command, timestamp, source) VALUES (?, ?, ?, ?)`,
		pumpID, cmd, timestamp, source)
	if err != nil {
		return fmt.Errorf("insert command: %w", err)
	}
	return nil
}

// RecordFeedback appends one reported-status change.
func (s *Store) RecordFeedback(ctx context.Context, pumpID, status int, timestamp int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pump_feedback (pump_id, status, timestamp) VALUES (?, ?, ?)`,
		pumpID, status, timestamp)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// RecordHeartbeat appends one significant gateway heartbeat.
func (s *Store) RecordHeartbeat(ctx context.Context, deviceID, firmware string, status int, timestamp int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gateway_heartbeats (device_id, firmware, status, timestamp) VALUES (?, ?, ?, ?)`,
		deviceID, firmware, status, timestamp)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}

// RecordSnapshot appends one full-state snapshot.
func (s *Store) RecordSnapshot(ctx context.Context, snap state.Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pump_snapshots (pump1_cmd, pump1_status, pump2_cmd, pump2_status, busy, alarm, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.Pump1Cmd, snap.Pump1Status, snap.Pump2Cmd, snap.Pump2Status, snap.Busy, snap.Alarm, snap.Timestamp)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// SnapshotQuery filters the snapshot history. Zero From/To mean
// unbounded; Limit must be positive.
type SnapshotQuery struct {
	Limit int
	From  int64
	To    int64
}

// Snapshots returns snapshot rows newest first. Rows with equal
// timestamps are ordered by insertion, newest first.
func (s *Store) Snapshots(ctx context.Context, q SnapshotQuery) ([]state.Snapshot, error) {
	var (
		conds []string
		args  []any
	)
	if q.From > 0 {
		conds = append(conds, "timestamp >= ?")
		args = append(args, q.From)
	}
	if q.To > 0 {
		conds = append(conds, "timestamp <= ?")
		args = append(args, q.To)
	}
	query := `SELECT pump1_cmd, pump1_status, pump2_cmd, pump2_status, busy, alarm, timestamp FROM pump_snapshots`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []state.Snapshot
	for rows.Next() {
		var snap state.Snapshot
		if err := rows.Scan(&snap.Pump1Cmd, &snap.Pump1Status, &snap.Pump2Cmd, &snap.Pump2Status,
			&snap.Busy, &snap.Alarm, &snap.Timestamp); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// LatestSnapshot returns the most recent snapshot row, or ErrNotFound
// when the table is empty.
func (s *Store) LatestSnapshot(ctx context.Context) (state.Snapshot, error) {
	snaps, err := s.Snapshots(ctx, SnapshotQuery{Limit: 1})
	if err != nil {
		return state.Snapshot{}, err
	}
	if len(snaps) == 0 {
		return state.Snapshot{}, ErrNotFound
	}
	return snaps[0], nil
}

// PurgeOlderThan deletes event rows with a timestamp strictly below the
// cutoff from all tables and reports the total rows removed.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	var total int64
	for _, table := range []string{"pump_commands", "pump_feedback", "pump_snapshots", "gateway_heartbeats"} {
		res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE timestamp < ?", table), cutoff)
		if err != nil {
			return total, fmt.Errorf("purge %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}
