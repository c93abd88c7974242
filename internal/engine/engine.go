// ABOUTME: Conversation engine running the full message turn under the session lock
// ABOUTME: Degrades to stall lines on model failure and gates report dispatch by status

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Apurva654/agentic-honeypot-buildathon/internal/cooldown"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/extract"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/gemini"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/prompt"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/report"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/session"
)

// dispatchTimeout bounds one report delivery attempt. Dispatch runs on a
// fresh context so a dropped inbound request cannot abort a report
// mid-flight.
const dispatchTimeout = 30 * time.Second

// stallLines keep the persona alive when the model backend is down. The
// line is picked by history length so back-to-back failures do not repeat
// the same excuse.
var stallLines = []string{
	"Hello? I think my internet is acting up again, can you say that once more?",
	"Sorry beta, I was making tea. What were you saying?",
	"My phone is showing some error, these smartphones I tell you. Can you repeat that?",
	"One minute, my neighbour is at the door. Tell me again, slowly?",
	"I did not understand all that. Can you explain once more in simple words?",
}

// ModelGateway produces one decoy turn from an assembled prompt.
type ModelGateway interface {
	Generate(ctx context.Context, req prompt.Request) (*gemini.Reply, error)
}

// ReportSender delivers a final intelligence summary to the collection sink.
type ReportSender interface {
	Dispatch(ctx context.Context, sum *report.Summary) error
}

// TurnRequest is one inbound counterparty message plus the first-contact
// context that only matters when it creates the session.
type TurnRequest struct {
	SessionID string
	Message   session.Message
	Seed      []session.Message // platform-provided history, applied on first contact only
	Channel   string
	Language  string
}

// TurnResult is what goes back to the platform after a turn.
type TurnResult struct {
	SessionID string
	Reply     string
	Status    session.Status
}

// Engine coordinates the session store, the model gateway and the report
// dispatcher. One Engine serves all sessions.
type Engine struct {
	sessions *session.Store
	gateway  ModelGateway
	reports  ReportSender
	gate     *cooldown.Gate
	logger   *slog.Logger
}

// New creates an Engine over the given collaborators.
func New(sessions *session.Store, gateway ModelGateway, reports ReportSender, gate *cooldown.Gate, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sessions: sessions,
		gateway:  gateway,
		reports:  reports,
		gate:     gate,
		logger:   logger.With("component", "engine"),
	}
}

// HandleMessage runs one conversation turn. The whole turn, including the
// model round trip, holds the session lock: turns for the same session
// serialize while distinct sessions proceed in parallel.
//
// The only failure a well-formed request can see is
// session.ErrAlreadyReported. Model trouble degrades into a stall line so
// the decoy never breaks character.
func (e *Engine) HandleMessage(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if req.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	// Empty text is still a turn: silence is a move scammers make too.
	if req.Message.Sender == "" {
		req.Message.Sender = session.SenderCounterparty
	}
	if req.Message.Timestamp.IsZero() {
		req.Message.Timestamp = time.Now()
	}

	unlock := e.sessions.Lock(req.SessionID)
	defer unlock()

	st, created := e.sessions.GetOrCreate(req.SessionID)
	logger := e.logger.With("session_id", st.ID)
	if created {
		st.Channel = req.Channel
		st.Language = req.Language
		e.seedHistory(st, req.Seed)
		logger.Info("session created", "channel", req.Channel, "seed_messages", len(req.Seed))
	}

	if st.Status == session.StatusReported {
		return nil, fmt.Errorf("session %s: %w", st.ID, session.ErrAlreadyReported)
	}

	// Record first: the inbound message and whatever it contains are kept
	// even if everything after this point fails.
	st.Append(req.Message)
	if req.Message.Sender == session.SenderCounterparty {
		st.TurnCount++
	}
	if added := st.MergeEntities(extract.Scan(req.Message.Text)); added > 0 {
		logger.Info("entities extracted", "new", added, "total", st.EntityCount())
	}

	reply, err := e.gateway.Generate(ctx, prompt.Compose(st.History))
	if err != nil {
		line := stallLines[len(st.History)%len(stallLines)]
		st.Append(session.Message{Sender: session.SenderAgent, Text: line, Timestamp: time.Now()})
		logger.Warn("model turn failed, sending stall line", "error", err)
		return &TurnResult{SessionID: st.ID, Reply: line, Status: st.Status}, nil
	}

	st.Append(session.Message{Sender: session.SenderAgent, Text: reply.Text, Timestamp: time.Now()})
	st.MergeEntities(extract.Scan(reply.Text))
	if added := st.MergeEntities(hintEntities(reply.Hints)); added > 0 {
		logger.Info("model hints merged", "new", added, "total", st.EntityCount())
	}
	if reply.Notes != "" {
		st.Notes = reply.Notes
	}

	if reply.ConversationOver {
		e.finishAndDispatch(st, logger)
	}

	return &TurnResult{SessionID: st.ID, Reply: reply.Text, Status: st.Status}, nil
}

// seedHistory replays platform-provided history into a freshly created
// session. Seeded messages are scanned so intelligence already present at
// first contact is not lost.
func (e *Engine) seedHistory(st *session.State, seed []session.Message) {
	for _, msg := range seed {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		st.Append(msg)
		st.MergeEntities(extract.Scan(msg.Text))
	}
}

// finishAndDispatch moves the session to COMPLETE and attempts delivery.
// A session that completed earlier with a failed dispatch falls through to
// another attempt, subject to the cooldown gate. Callers must hold the
// session lock.
func (e *Engine) finishAndDispatch(st *session.State, logger *slog.Logger) {
	switch err := st.MarkComplete(); {
	case err == nil:
		logger.Info("conversation complete", "turns", st.TurnCount, "entities", st.EntityCount())
	case errors.Is(err, session.ErrAlreadyComplete):
		// Completed on an earlier turn but the report never landed.
	default:
		logger.Error("completion rejected", "status", st.Status, "error", err)
		return
	}

	if !e.gate.Allow(st.ID) {
		logger.Info("report dispatch held back by cooldown")
		return
	}
	e.dispatchLocked(st, logger)
}

// dispatchLocked sends the report for a COMPLETE session and marks it
// REPORTED on success. Callers must hold the session lock and have cleared
// the cooldown gate.
func (e *Engine) dispatchLocked(st *session.State, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if err := e.reports.Dispatch(ctx, report.BuildSummary(st)); err != nil {
		logger.Warn("report dispatch failed, sweeper will retry", "error", err)
		return
	}
	if err := st.MarkReported(); err != nil {
		logger.Error("delivered report but could not record it", "status", st.Status, "error", err)
		return
	}
	e.gate.Forget(st.ID)
	logger.Info("session reported")
}

// hintEntities canonicalizes model-supplied hints through the same rules as
// scanned text so both sources de-duplicate against each other.
func hintEntities(h gemini.Hints) []extract.Entity {
	groups := []struct {
		kind   extract.Kind
		values []string
	}{
		{extract.KindBankAccount, h.BankAccounts},
		{extract.KindPaymentHandle, h.UPIIDs},
		{extract.KindURL, h.PhishingLinks},
		{extract.KindPhoneNumber, h.PhoneNumbers},
		{extract.KindKeyword, h.Keywords},
	}

	var out []extract.Entity
	for _, g := range groups {
		for _, raw := range g.values {
			if ent, ok := extract.Normalize(g.kind, raw); ok {
				out = append(out, ent)
			}
		}
	}
	return out
}
