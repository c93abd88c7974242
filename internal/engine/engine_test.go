// ABOUTME: Tests for the conversation engine turn lifecycle and report dispatch
// ABOUTME: Covers degradation, status gating, hint merging and sweeper retries

package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apurva654/agentic-honeypot-buildathon/internal/cooldown"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/extract"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/gemini"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/prompt"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/report"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockGateway returns canned replies (or errors) in call order and falls
// back to a neutral reply once the script runs out.
type mockGateway struct {
	mu      sync.Mutex
	script  []*gemini.Reply
	errs    []error
	calls   int
	lastReq prompt.Request
}

func (m *mockGateway) Generate(_ context.Context, req prompt.Request) (*gemini.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	m.lastReq = req
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.script) {
		return m.script[i], nil
	}
	return &gemini.Reply{Text: "Acha, and then what happened?"}, nil
}

func (m *mockGateway) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockDispatcher records every summary it is handed and fails according to
// its script; entries beyond the script succeed.
type mockDispatcher struct {
	mu   sync.Mutex
	errs []error
	sums []*report.Summary
}

func (m *mockDispatcher) Dispatch(_ context.Context, sum *report.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.sums)
	m.sums = append(m.sums, sum)
	if i < len(m.errs) {
		return m.errs[i]
	}
	return nil
}

func (m *mockDispatcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sums)
}

func newTestEngine(t *testing.T, gw ModelGateway, rd ReportSender, retryCooldown time.Duration) (*Engine, *session.Store) {
	t.Helper()
	store := session.NewStore()
	gate := cooldown.New(retryCooldown, 128)
	t.Cleanup(gate.Close)
	return New(store, gw, rd, gate, testLogger()), store
}

func counterpartyMsg(text string) session.Message {
	return session.Message{Sender: session.SenderCounterparty, Text: text, Timestamp: time.Now()}
}

func TestHandleMessage_FirstContact(t *testing.T) {
	gw := &mockGateway{script: []*gemini.Reply{{Text: "Hello ji, who is this?"}}}
	rd := &mockDispatcher{}
	eng, store := newTestEngine(t, gw, rd, time.Hour)

	res, err := eng.HandleMessage(context.Background(), TurnRequest{
		SessionID: "sess-1",
		Message:   counterpartyMsg("Your account will be blocked today!"),
		Channel:   "sms",
		Language:  "en",
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "sess-1", res.SessionID)
	assert.Equal(t, "Hello ji, who is this?", res.Reply)
	assert.Equal(t, session.StatusActive, res.Status)

	snap, ok := store.Snapshot("sess-1")
	require.True(t, ok)
	assert.Equal(t, "sms", snap.Channel)
	assert.Equal(t, "en", snap.Language)
	assert.Equal(t, 1, snap.TurnCount)
	require.Len(t, snap.History, 2)
	assert.Equal(t, session.SenderCounterparty, snap.History[0].Sender)
	assert.Equal(t, session.SenderAgent, snap.History[1].Sender)
	assert.Zero(t, rd.count())
}

func TestHandleMessage_PromptCarriesFullHistory(t *testing.T) {
	gw := &mockGateway{}
	eng, _ := newTestEngine(t, gw, &mockDispatcher{}, time.Hour)

	_, err := eng.HandleMessage(context.Background(), TurnRequest{SessionID: "s", Message: counterpartyMsg("first")})
	require.NoError(t, err)
	_, err = eng.HandleMessage(context.Background(), TurnRequest{SessionID: "s", Message: counterpartyMsg("second")})
	require.NoError(t, err)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.NotEmpty(t, gw.lastReq.System)
	// first turn pair plus the new inbound message
	require.Len(t, gw.lastReq.Turns, 3)
	assert.Equal(t, prompt.RoleUser, gw.lastReq.Turns[0].Role)
	assert.Equal(t, prompt.RoleModel, gw.lastReq.Turns[1].Role)
	assert.Equal(t, "second", gw.lastReq.Turns[2].Text)
}

func TestHandleMessage_SeedHistoryAppliedOnce(t *testing.T) {
	gw := &mockGateway{}
	eng, store := newTestEngine(t, gw, &mockDispatcher{}, time.Hour)

	seed := []session.Message{
		{Sender: session.SenderCounterparty, Text: "visit http://kyc-verify.example.com now"},
		{Sender: session.SenderAgent, Text: "which site beta?"},
	}
	_, err := eng.HandleMessage(context.Background(), TurnRequest{
		SessionID: "seeded",
		Message:   counterpartyMsg("did you open it?"),
		Seed:      seed,
	})
	require.NoError(t, err)

	snap, ok := store.Snapshot("seeded")
	require.True(t, ok)
	require.Len(t, snap.History, 4) // two seeded, inbound, reply
	assert.Contains(t, snap.Entities(), extract.Entity{Kind: extract.KindURL, Value: "kyc-verify.example.com"})

	// A later request carrying a seed must not replay it.
	_, err = eng.HandleMessage(context.Background(), TurnRequest{
		SessionID: "seeded",
		Message:   counterpartyMsg("hello?"),
		Seed:      seed,
	})
	require.NoError(t, err)

	snap, ok = store.Snapshot("seeded")
	require.True(t, ok)
	assert.Len(t, snap.History, 6)
}

func TestHandleMessage_RequiresSessionID(t *testing.T) {
	eng, _ := newTestEngine(t, &mockGateway{}, &mockDispatcher{}, time.Hour)

	_, err := eng.HandleMessage(context.Background(), TurnRequest{Message: counterpartyMsg("hi")})
	require.Error(t, err)
}

func TestHandleMessage_EmptyTextStillCountsAsTurn(t *testing.T) {
	eng, store := newTestEngine(t, &mockGateway{}, &mockDispatcher{}, time.Hour)

	res, err := eng.HandleMessage(context.Background(), TurnRequest{SessionID: "quiet", Message: counterpartyMsg("")})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Reply)

	snap, ok := store.Snapshot("quiet")
	require.True(t, ok)
	assert.Equal(t, 1, snap.TurnCount)
	assert.Len(t, snap.History, 2)
}

func TestHandleMessage_GatewayFailureDegrades(t *testing.T) {
	gw := &mockGateway{errs: []error{gemini.ErrTransient}}
	rd := &mockDispatcher{}
	eng, store := newTestEngine(t, gw, rd, time.Hour)

	res, err := eng.HandleMessage(context.Background(), TurnRequest{
		SessionID: "flaky",
		Message:   counterpartyMsg("send money to 9876543210 immediately"),
	})
	require.NoError(t, err)
	assert.Contains(t, stallLines, res.Reply)
	assert.Equal(t, session.StatusActive, res.Status)

	snap, ok := store.Snapshot("flaky")
	require.True(t, ok)
	require.Len(t, snap.History, 2)
	assert.Equal(t, res.Reply, snap.History[1].Text)
	// The inbound message was still mined before the model call.
	assert.Contains(t, snap.Entities(), extract.Entity{Kind: extract.KindPhoneNumber, Value: "9876543210"})
	assert.Zero(t, rd.count())

	// The next turn recovers without the caller doing anything special.
	res, err = eng.HandleMessage(context.Background(), TurnRequest{
		SessionID: "flaky",
		Message:   counterpartyMsg("are you there?"),
	})
	require.NoError(t, err)
	assert.NotContains(t, stallLines, res.Reply)
}

func TestHandleMessage_ConsecutiveFailuresRotateStallLines(t *testing.T) {
	gw := &mockGateway{errs: []error{gemini.ErrTransient, gemini.ErrTransient}}
	eng, _ := newTestEngine(t, gw, &mockDispatcher{}, time.Hour)

	first, err := eng.HandleMessage(context.Background(), TurnRequest{SessionID: "down", Message: counterpartyMsg("hello")})
	require.NoError(t, err)
	second, err := eng.HandleMessage(context.Background(), TurnRequest{SessionID: "down", Message: counterpartyMsg("hello??")})
	require.NoError(t, err)

	assert.NotEqual(t, first.Reply, second.Reply)
}

func TestHandleMessage_CompletionDispatchesReport(t *testing.T) {
	gw := &mockGateway{script: []*gemini.Reply{{
		Text:             "Ok beta, I will go to the bank branch tomorrow. Bye.",
		ConversationOver: true,
		Notes:            "urgency pressure, asked for UPI PIN",
		Hints:            gemini.Hints{UPIIDs: []string{"fraud@ybl"}},
	}}}
	rd := &mockDispatcher{}
	eng, store := newTestEngine(t, gw, rd, time.Hour)

	res, err := eng.HandleMessage(context.Background(), TurnRequest{
		SessionID: "closing",
		Message:   counterpartyMsg("last chance, share the OTP now"),
	})
	require.NoError(t, err)
	assert.Equal(t, session.StatusReported, res.Status)

	require.Equal(t, 1, rd.count())
	sum := rd.sums[0]
	assert.Equal(t, "closing", sum.SessionID)
	assert.True(t, sum.ScamDetected)
	assert.Equal(t, 1, sum.TotalMessagesExchanged)
	assert.Equal(t, []string{"fraud@ybl"}, sum.ExtractedIntelligence.UPIIDs)
	assert.Equal(t, "urgency pressure, asked for UPI PIN", sum.AgentNotes)

	snap, ok := store.Snapshot("closing")
	require.True(t, ok)
	assert.Equal(t, session.StatusReported, snap.Status)
}

func TestHandleMessage_DispatchFailureLeavesComplete(t *testing.T) {
	gw := &mockGateway{script: []*gemini.Reply{{Text: "bye", ConversationOver: true}}}
	rd := &mockDispatcher{errs: []error{errors.New("sink unreachable")}}
	eng, store := newTestEngine(t, gw, rd, time.Hour)

	res, err := eng.HandleMessage(context.Background(), TurnRequest{
		SessionID: "stuck",
		Message:   counterpartyMsg("ok bye"),
	})
	require.NoError(t, err)
	assert.Equal(t, session.StatusComplete, res.Status)
	assert.Equal(t, 1, rd.count())

	snap, ok := store.Snapshot("stuck")
	require.True(t, ok)
	assert.Equal(t, session.StatusComplete, snap.Status)
}

func TestHandleMessage_ReportedSessionRejected(t *testing.T) {
	gw := &mockGateway{script: []*gemini.Reply{{Text: "bye", ConversationOver: true}}}
	eng, store := newTestEngine(t, gw, &mockDispatcher{}, time.Hour)

	_, err := eng.HandleMessage(context.Background(), TurnRequest{SessionID: "done", Message: counterpartyMsg("bye")})
	require.NoError(t, err)

	_, err = eng.HandleMessage(context.Background(), TurnRequest{SessionID: "done", Message: counterpartyMsg("hello again")})
	require.ErrorIs(t, err, session.ErrAlreadyReported)

	// The rejected message left no trace and never reached the model.
	assert.Equal(t, 1, gw.callCount())
	snap, ok := store.Snapshot("done")
	require.True(t, ok)
	assert.Len(t, snap.History, 2)
	assert.Equal(t, 1, snap.TurnCount)
}

func TestHandleMessage_HintsMergeCanonically(t *testing.T) {
	gw := &mockGateway{script: []*gemini.Reply{{
		Text: "He asked me to call 98765 43210, imagine!",
		Hints: gemini.Hints{
			PhoneNumbers: []string{"+91 98765-43210", "9876543210"},
			UPIIDs:       []string{"Fraud@YBL"},
			Keywords:     []string{"  KYC   Blocked "},
		},
	}}}
	eng, store := newTestEngine(t, gw, &mockDispatcher{}, time.Hour)

	_, err := eng.HandleMessage(context.Background(), TurnRequest{
		SessionID: "hints",
		Message:   counterpartyMsg("call 9876543210 for kyc"),
	})
	require.NoError(t, err)

	snap, ok := store.Snapshot("hints")
	require.True(t, ok)
	assert.ElementsMatch(t, []extract.Entity{
		{Kind: extract.KindKeyword, Value: "kyc blocked"},
		{Kind: extract.KindPaymentHandle, Value: "fraud@ybl"},
		{Kind: extract.KindPhoneNumber, Value: "9876543210"},
		{Kind: extract.KindPhoneNumber, Value: "919876543210"},
	}, snap.Entities())
}

func TestHandleMessage_NotesKeepLatestNonEmpty(t *testing.T) {
	gw := &mockGateway{script: []*gemini.Reply{
		{Text: "ok", Notes: "posing as bank officer"},
		{Text: "ok"},
	}}
	eng, store := newTestEngine(t, gw, &mockDispatcher{}, time.Hour)

	_, err := eng.HandleMessage(context.Background(), TurnRequest{SessionID: "n", Message: counterpartyMsg("one")})
	require.NoError(t, err)
	_, err = eng.HandleMessage(context.Background(), TurnRequest{SessionID: "n", Message: counterpartyMsg("two")})
	require.NoError(t, err)

	snap, ok := store.Snapshot("n")
	require.True(t, ok)
	assert.Equal(t, "posing as bank officer", snap.Notes)
}

func TestHandleMessage_ConcurrentSameSession(t *testing.T) {
	gw := &mockGateway{}
	eng, store := newTestEngine(t, gw, &mockDispatcher{}, time.Hour)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.HandleMessage(context.Background(), TurnRequest{
				SessionID: "busy",
				Message:   counterpartyMsg("are you there?"),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.Len())
	snap, ok := store.Snapshot("busy")
	require.True(t, ok)
	assert.Equal(t, workers, snap.TurnCount)
	assert.Len(t, snap.History, 2*workers)
}

func TestHandleMessage_ConcurrentCompletionDispatchesOnce(t *testing.T) {
	gw := &mockGateway{}
	// Every turn declares the conversation over.
	for i := 0; i < 8; i++ {
		gw.script = append(gw.script, &gemini.Reply{Text: "bye", ConversationOver: true})
	}
	rd := &mockDispatcher{}
	eng, _ := newTestEngine(t, gw, rd, time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	rejected := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.HandleMessage(context.Background(), TurnRequest{
				SessionID: "race",
				Message:   counterpartyMsg("bye"),
			})
			if errors.Is(err, session.ErrAlreadyReported) {
				mu.Lock()
				rejected++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, rd.count())
	assert.Equal(t, 7, rejected)
}

func TestSweepOnce_RetriesAfterCooldown(t *testing.T) {
	gw := &mockGateway{script: []*gemini.Reply{{Text: "bye", ConversationOver: true}}}
	rd := &mockDispatcher{errs: []error{errors.New("sink down")}}
	eng, store := newTestEngine(t, gw, rd, 20*time.Millisecond)

	_, err := eng.HandleMessage(context.Background(), TurnRequest{SessionID: "retry", Message: counterpartyMsg("bye")})
	require.NoError(t, err)
	require.Equal(t, 1, rd.count())

	// Still cooling down: nothing happens.
	assert.Zero(t, eng.SweepOnce())
	assert.Equal(t, 1, rd.count())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, eng.SweepOnce())
	assert.Equal(t, 2, rd.count())

	snap, ok := store.Snapshot("retry")
	require.True(t, ok)
	assert.Equal(t, session.StatusReported, snap.Status)

	// Nothing left to sweep.
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, eng.SweepOnce())
	assert.Equal(t, 2, rd.count())
}

func TestSweepOnce_SkipsActiveSessions(t *testing.T) {
	gw := &mockGateway{}
	rd := &mockDispatcher{}
	eng, _ := newTestEngine(t, gw, rd, time.Millisecond)

	_, err := eng.HandleMessage(context.Background(), TurnRequest{SessionID: "live", Message: counterpartyMsg("hello")})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	assert.Zero(t, eng.SweepOnce())
	assert.Zero(t, rd.count())
}

func TestRunSweeper_StopsOnContextCancel(t *testing.T) {
	eng, _ := newTestEngine(t, &mockGateway{}, &mockDispatcher{}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
