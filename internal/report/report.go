// ABOUTME: Final intelligence report assembly and delivery to the collection sink
// ABOUTME: Every dispatch attempt lands in the audit ledger regardless of outcome

// Package report turns a finished conversation into the summary payload the
// collection endpoint expects and posts it. At-most-once semantics live
// with the caller (the status machine gates dispatch); the dispatcher
// itself is stateless per call.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Apurva654/agentic-honeypot-buildathon/internal/extract"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/session"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/store"
)

// Ledger records dispatch attempts. *store.SQLiteStore satisfies it.
type Ledger interface {
	RecordAttempt(ctx context.Context, attempt *store.ReportAttempt) error
}

// Intelligence groups entity values by kind. Arrays are always present in
// the JSON, empty rather than null, and sorted within each group.
type Intelligence struct {
	BankAccounts       []string `json:"bankAccounts"`
	UPIIDs             []string `json:"upiIds"`
	PhishingLinks      []string `json:"phishingLinks"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// Summary is the final report payload for one session.
type Summary struct {
	SessionID              string       `json:"sessionId"`
	ScamDetected           bool         `json:"scamDetected"`
	TotalMessagesExchanged int          `json:"totalMessagesExchanged"`
	ExtractedIntelligence  Intelligence `json:"extractedIntelligence"`
	AgentNotes             string       `json:"agentNotes"`
	StartedAt              time.Time    `json:"startedAt"`
	EndedAt                time.Time    `json:"endedAt"`
}

// BuildSummary converts session state into the report payload. The state
// must not be mutated concurrently; callers pass a snapshot or hold the
// session lock.
func BuildSummary(st *session.State) *Summary {
	intel := Intelligence{
		BankAccounts:       []string{},
		UPIIDs:             []string{},
		PhishingLinks:      []string{},
		PhoneNumbers:       []string{},
		SuspiciousKeywords: []string{},
	}
	for _, ent := range st.Entities() {
		switch ent.Kind {
		case extract.KindBankAccount:
			intel.BankAccounts = append(intel.BankAccounts, ent.Value)
		case extract.KindPaymentHandle:
			intel.UPIIDs = append(intel.UPIIDs, ent.Value)
		case extract.KindURL:
			intel.PhishingLinks = append(intel.PhishingLinks, ent.Value)
		case extract.KindPhoneNumber:
			intel.PhoneNumbers = append(intel.PhoneNumbers, ent.Value)
		case extract.KindKeyword:
			intel.SuspiciousKeywords = append(intel.SuspiciousKeywords, ent.Value)
		}
	}

	return &Summary{
		SessionID: st.ID,
		// A completed decoy conversation is a scam engagement by
		// definition; the flag is constant by sink contract.
		ScamDetected:           true,
		TotalMessagesExchanged: st.TurnCount,
		ExtractedIntelligence:  intel,
		AgentNotes:             st.Notes,
		StartedAt:              st.CreatedAt.UTC(),
		EndedAt:                st.UpdatedAt.UTC(),
	}
}

// Config carries the dispatcher settings.
type Config struct {
	Endpoint string
	APIKey   string // optional sink credential, sent as x-api-key when set
	Timeout  time.Duration
}

// Dispatcher posts summaries to the collection sink.
type Dispatcher struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	ledger     Ledger
	logger     *slog.Logger
}

// NewDispatcher builds a Dispatcher writing outcomes to the given ledger.
func NewDispatcher(cfg Config, ledger Ledger, logger *slog.Logger) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		ledger:     ledger,
		logger:     logger.With("component", "report"),
	}
}

// Dispatch posts the summary. Any 2xx answer counts as delivered; anything
// else, including transport errors, is failure. The outcome is written to
// the ledger either way; ledger trouble is logged, never surfaced, because
// audit problems must not change reporting semantics.
func (d *Dispatcher) Dispatch(ctx context.Context, sum *Summary) error {
	payload, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	statusCode, dispatchErr := d.post(ctx, payload)

	attempt := &store.ReportAttempt{
		SessionID:  sum.SessionID,
		Outcome:    store.OutcomeSuccess,
		StatusCode: statusCode,
		Payload:    payload,
	}
	if dispatchErr != nil {
		attempt.Outcome = store.OutcomeFailure
		attempt.Detail = dispatchErr.Error()
	}
	if err := d.ledger.RecordAttempt(ctx, attempt); err != nil {
		d.logger.Error("failed to record dispatch attempt",
			"session_id", sum.SessionID, "error", err)
	}

	if dispatchErr != nil {
		return dispatchErr
	}
	d.logger.Info("report dispatched",
		"session_id", sum.SessionID,
		"status", statusCode,
		"turns", sum.TotalMessagesExchanged)
	return nil
}

func (d *Dispatcher) post(ctx context.Context, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("x-api-key", d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("report sink status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
