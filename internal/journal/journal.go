package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/conduit-core/internal/device"
	"github.com/nerrad567/conduit-core/internal/infrastructure/database"
	"github.com/nerrad567/conduit-core/internal/infrastructure/logging"
)

// writeTimeout bounds each journal insert so a wedged database cannot
// stall connect fan-outs.
const writeTimeout = 2 * time.Second

// timeLayout is RFC3339 with a fixed-width fraction so stored strings
// sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one journalled connect attempt.
type Entry struct {
	AttemptID  string    `json:"attempt_id"`
	Device     string    `json:"device"`
	Mock       bool      `json:"mock"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Elapsed    int64     `json:"elapsed_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// Journal records connect outcomes to SQLite. It implements the device
// monitor contract; attach it to a tree with device.SetTreeMonitor or
// through group options.
type Journal struct {
	db  *database.DB
	log *logging.Logger
}

// New creates a journal over db.
func New(db *database.DB, log *logging.Logger) *Journal {
	if log == nil {
		log = logging.Default()
	}
	return &Journal{db: db, log: log}
}

// ConnectStarted is a no-op; only outcomes are journalled.
func (j *Journal) ConnectStarted(device.Device, string, bool) {}

// ConnectFinished writes one row for the finished attempt. Failures to
// write are logged, not propagated: journalling must never fail a
// connect.
func (j *Journal) ConnectFinished(d device.Device, attemptID string, mock bool, elapsed time.Duration, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	errText := ""
	if err != nil {
		errText = err.Error()
	}

	_, dbErr := j.db.ExecContext(ctx, `
		INSERT INTO connect_attempts (attempt_id, device, mock, success, error, elapsed_ms, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attemptID,
		d.Name(),
		boolToInt(mock),
		boolToInt(err == nil),
		errText,
		elapsed.Milliseconds(),
		time.Now().UTC().Format(timeLayout),
	)
	if dbErr != nil {
		j.log.Error("journalling connect attempt failed",
			"device", d.Name(),
			"attempt", attemptID,
			"error", dbErr,
		)
	}
}

// Recent returns the most recent entries, newest first. device filters
// to one device name when non-empty; limit caps the row count.
func (j *Journal) Recent(ctx context.Context, deviceName string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT attempt_id, device, mock, success, error, elapsed_ms, finished_at
		FROM connect_attempts`
	args := []any{}
	if deviceName != "" {
		query += " WHERE device = ?"
		args = append(args, deviceName)
	}
	query += " ORDER BY finished_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying connect journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var mock, success int
		var finishedAt string
		if err := rows.Scan(&e.AttemptID, &e.Device, &mock, &success, &e.Error, &e.Elapsed, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		e.Mock = mock != 0
		e.Success = success != 0
		e.FinishedAt, _ = time.Parse(timeLayout, finishedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal rows: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the retention window and returns the
// number removed.
func (j *Journal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	res, err := j.db.ExecContext(ctx,
		"DELETE FROM connect_attempts WHERE finished_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning connect journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned rows: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
