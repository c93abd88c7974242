// ABOUTME: Tests for the SQLite dispatch ledger
// ABOUTME: Covers schema creation, attempt recording, and query ordering

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "ledger.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.CountAttempts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecordAttempt_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.RecordAttempt(ctx, &ReportAttempt{
		SessionID:  "sess-1",
		Outcome:    OutcomeSuccess,
		StatusCode: 200,
		Payload:    []byte(`{"sessionId":"sess-1"}`),
	})
	require.NoError(t, err)

	attempts, err := s.AttemptsForSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)

	got := attempts[0]
	assert.NotEmpty(t, got.ID, "missing id must be filled in")
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, OutcomeSuccess, got.Outcome)
	assert.Equal(t, 200, got.StatusCode)
	assert.Empty(t, got.Detail)
	assert.JSONEq(t, `{"sessionId":"sess-1"}`, string(got.Payload))
	assert.False(t, got.CreatedAt.IsZero())
}

func TestAttemptsForSession_OrderedOldestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, outcome := range []Outcome{OutcomeFailure, OutcomeFailure, OutcomeSuccess} {
		err := s.RecordAttempt(ctx, &ReportAttempt{
			SessionID: "sess-1",
			Outcome:   outcome,
			Payload:   []byte(`{}`),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	attempts, err := s.AttemptsForSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, OutcomeFailure, attempts[0].Outcome)
	assert.Equal(t, OutcomeFailure, attempts[1].Outcome)
	assert.Equal(t, OutcomeSuccess, attempts[2].Outcome)
}

func TestLatestOutcome(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordAttempt(ctx, &ReportAttempt{
		SessionID: "sess-1", Outcome: OutcomeFailure,
		StatusCode: 502, Detail: "bad gateway",
		Payload: []byte(`{}`), CreatedAt: base,
	}))
	require.NoError(t, s.RecordAttempt(ctx, &ReportAttempt{
		SessionID: "sess-1", Outcome: OutcomeSuccess,
		StatusCode: 200,
		Payload:    []byte(`{}`), CreatedAt: base.Add(time.Minute),
	}))

	latest, err := s.LatestOutcome(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, latest.Outcome)
	assert.Equal(t, 200, latest.StatusCode)
}

func TestLatestOutcome_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.LatestOutcome(context.Background(), "never-dispatched")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttemptsForSession_IsolatedBySession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordAttempt(ctx, &ReportAttempt{
		SessionID: "a", Outcome: OutcomeSuccess, Payload: []byte(`{}`),
	}))
	require.NoError(t, s.RecordAttempt(ctx, &ReportAttempt{
		SessionID: "b", Outcome: OutcomeFailure, Payload: []byte(`{}`),
	}))

	a, err := s.AttemptsForSession(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, a, 1)

	n, err := s.CountAttempts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
