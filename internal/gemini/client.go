// ABOUTME: REST client for the Gemini generateContent API
// ABOUTME: Classifies failures as transient, malformed or blocked; retries transient once

// Package gemini talks to the Gemini generateContent endpoint over plain
// REST. The model is asked for a structured JSON reply (decoy text plus
// intelligence hints) and every failure is classified so the caller can
// decide between retrying and degrading.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Apurva654/agentic-honeypot-buildathon/internal/prompt"
)

// DefaultEndpoint is the public Gemini API base.
const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// retryBackoff spaces the single retry of a transient failure.
const retryBackoff = 250 * time.Millisecond

// maxResponseBytes bounds how much of a response body gets read.
const maxResponseBytes = 1 << 20

// Failure classes. Callers match with errors.Is.
var (
	// ErrTransient marks network errors, timeouts and 429/5xx responses.
	ErrTransient = errors.New("transient model backend failure")
	// ErrMalformedReply marks responses that carry no usable structured
	// reply. Never retried.
	ErrMalformedReply = errors.New("malformed model reply")
	// ErrBlocked marks prompts or candidates suppressed by content policy.
	ErrBlocked = errors.New("model refused by content policy")
)

// Config carries the client settings.
type Config struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
}

// Client issues generateContent calls. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
	apiKey     string
	timeout    time.Duration
	logger     *slog.Logger
}

// New builds a Client. The timeout bounds each attempt separately, not the
// attempt pair.
func New(cfg Config, logger *slog.Logger) *Client {
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		logger:     logger.With("component", "gemini"),
	}
}

// Hints carries intelligence the model believes it spotted in the
// conversation. Values are raw model output; callers canonicalize them
// before merging with scanned findings.
type Hints struct {
	BankAccounts  []string
	UPIIDs        []string
	PhishingLinks []string
	PhoneNumbers  []string
	Keywords      []string
}

// Reply is one parsed model turn.
type Reply struct {
	Text             string
	ConversationOver bool
	Notes            string
	Hints            Hints
}

// Generate runs one model turn. A transient failure is retried exactly once
// after a short backoff; malformed and blocked replies surface immediately.
func (c *Client) Generate(ctx context.Context, req prompt.Request) (*Reply, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}

	reply, err := c.attempt(ctx, body)
	if err == nil {
		return reply, nil
	}
	if !errors.Is(err, ErrTransient) {
		return nil, err
	}

	c.logger.Warn("model call failed, retrying once", "error", err)
	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
	}
	return c.attempt(ctx, body)
}

func (c *Client) attempt(ctx context.Context, body []byte) (*Reply, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Key travels in a header rather than a query parameter so transport
	// errors never echo it into logs.
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrMalformedReply, resp.StatusCode)
	}

	return parseReply(respBody)
}

func (c *Client) buildRequest(req prompt.Request) genRequest {
	contents := make([]genContent, 0, len(req.Turns))
	for _, turn := range req.Turns {
		contents = append(contents, genContent{
			Role:  turn.Role,
			Parts: []genPart{{Text: turn.Text}},
		})
	}

	out := genRequest{
		Contents: contents,
		GenerationConfig: genConfig{
			Temperature:      0.7,
			TopP:             1,
			TopK:             40,
			MaxOutputTokens:  2048,
			ResponseMimeType: "application/json",
			ResponseSchema:   replySchema,
		},
		SafetySettings: safetySettings,
	}
	if req.System != "" {
		out.SystemInstruction = &genContent{Parts: []genPart{{Text: req.System}}}
	}
	return out
}

func parseReply(body []byte) (*Reply, error) {
	var envelope genResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrMalformedReply, err)
	}
	if envelope.PromptFeedback != nil && envelope.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", ErrBlocked, envelope.PromptFeedback.BlockReason)
	}
	if len(envelope.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrMalformedReply)
	}

	cand := envelope.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		return nil, fmt.Errorf("%w: candidate suppressed", ErrBlocked)
	}
	if len(cand.Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: candidate has no parts", ErrMalformedReply)
	}

	var structured structuredReply
	inner := stripFences(cand.Content.Parts[0].Text)
	if err := json.Unmarshal([]byte(inner), &structured); err != nil {
		return nil, fmt.Errorf("%w: decode reply payload: %v", ErrMalformedReply, err)
	}
	if strings.TrimSpace(structured.AgentResponseText) == "" {
		return nil, fmt.Errorf("%w: empty reply text", ErrMalformedReply)
	}

	reply := &Reply{
		Text:             structured.AgentResponseText,
		ConversationOver: structured.IsConversationOver,
		Notes:            strings.TrimSpace(structured.AgentNotes),
	}
	if intel := structured.ExtractedIntelligence; intel != nil {
		reply.Hints = Hints{
			BankAccounts:  intel.BankAccounts,
			UPIIDs:        intel.UpiIDs,
			PhishingLinks: intel.PhishingLinks,
			PhoneNumbers:  intel.PhoneNumbers,
			Keywords:      intel.SuspiciousKeywords,
		}
	}
	return reply, nil
}

// stripFences tolerates models that wrap the JSON payload in markdown
// fences despite the JSON mime type.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
