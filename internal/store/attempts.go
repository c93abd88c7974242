// ABOUTME: Report attempt records: one row per dispatch try with its outcome
// ABOUTME: Query helpers power the ops endpoints and post-incident review

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome of a single dispatch attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// ReportAttempt is one row of the dispatch audit trail.
type ReportAttempt struct {
	ID         string
	SessionID  string
	Outcome    Outcome
	StatusCode int    // HTTP status from the sink, 0 when the call never completed
	Detail     string // failure detail, empty on success
	Payload    []byte // report JSON as sent
	CreatedAt  time.Time
}

// RecordAttempt inserts an attempt row. A missing ID gets a fresh UUID.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, attempt *ReportAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO report_attempts (attempt_id, session_id, outcome, status_code, detail, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		attempt.ID, attempt.SessionID, string(attempt.Outcome),
		attempt.StatusCode, attempt.Detail, string(attempt.Payload), attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording report attempt: %w", err)
	}
	return nil
}

// AttemptsForSession returns every attempt for a session, oldest first.
func (s *SQLiteStore) AttemptsForSession(ctx context.Context, sessionID string) ([]*ReportAttempt, error) {
	query := `
		SELECT attempt_id, session_id, outcome, status_code, detail, payload, created_at
		FROM report_attempts
		WHERE session_id = ?
		ORDER BY created_at ASC, attempt_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying report attempts: %w", err)
	}
	defer rows.Close()

	var out []*ReportAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report attempt: %w", err)
		}
		out = append(out, attempt)
	}
	return out, rows.Err()
}

// LatestOutcome returns the most recent attempt for a session, or
// ErrNotFound when the session was never dispatched.
func (s *SQLiteStore) LatestOutcome(ctx context.Context, sessionID string) (*ReportAttempt, error) {
	query := `
		SELECT attempt_id, session_id, outcome, status_code, detail, payload, created_at
		FROM report_attempts
		WHERE session_id = ?
		ORDER BY created_at DESC, attempt_id DESC
		LIMIT 1
	`
	attempt, err := scanAttempt(s.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest outcome: %w", err)
	}
	return attempt, nil
}

// CountAttempts returns the total number of recorded attempts.
func (s *SQLiteStore) CountAttempts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM report_attempts").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting report attempts: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*ReportAttempt, error) {
	var (
		attempt ReportAttempt
		outcome string
		payload string
	)
	err := row.Scan(&attempt.ID, &attempt.SessionID, &outcome,
		&attempt.StatusCode, &attempt.Detail, &payload, &attempt.CreatedAt)
	if err != nil {
		return nil, err
	}
	attempt.Outcome = Outcome(outcome)
	attempt.Payload = []byte(payload)
	return &attempt, nil
}
