// ABOUTME: HTTP API handlers and wire DTOs for the honeypot gateway
// ABOUTME: Maps platform JSON onto engine turns and session state onto responses

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Apurva654/agentic-honeypot-buildathon/internal/engine"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/session"
)

// inboundMessage is one platform message, inbound or seeded.
type inboundMessage struct {
	Sender    string   `json:"sender"`
	Text      string   `json:"text"`
	Timestamp flexTime `json:"timestamp,omitempty"`
}

// requestMetadata carries optional first-contact context.
type requestMetadata struct {
	Channel  string `json:"channel,omitempty"`
	Language string `json:"language,omitempty"`
}

// messageRequest is the JSON request body for POST /api/v1/messages.
type messageRequest struct {
	SessionID           string           `json:"sessionId"`
	Message             *inboundMessage  `json:"message"`
	ConversationHistory []inboundMessage `json:"conversationHistory,omitempty"`
	Metadata            *requestMetadata `json:"metadata,omitempty"`
}

// messageResponse is the JSON response body for POST /api/v1/messages.
type messageResponse struct {
	SessionID string `json:"sessionId"`
	Reply     string `json:"reply"`
	Status    string `json:"status"`
}

// sessionOverview is one row of GET /api/v1/sessions.
type sessionOverview struct {
	SessionID     string `json:"sessionId"`
	Status        string `json:"status"`
	Turns         int    `json:"turns"`
	Entities      int    `json:"entities"`
	Channel       string `json:"channel,omitempty"`
	Language      string `json:"language,omitempty"`
	CreatedAt     string `json:"createdAt"`
	LastUpdatedAt string `json:"lastUpdatedAt"`
}

// listSessionsResponse is the JSON response for GET /api/v1/sessions.
type listSessionsResponse struct {
	Sessions []sessionOverview `json:"sessions"`
	Count    int               `json:"count"`
}

// historyMessage is one conversation message in a session detail response.
type historyMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// entityResponse is one harvested entity in a session detail response.
type entityResponse struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// dispatchAttempt is one ledger row in a session detail response.
type dispatchAttempt struct {
	AttemptID  string `json:"attemptId"`
	Outcome    string `json:"outcome"`
	StatusCode int    `json:"statusCode,omitempty"`
	Detail     string `json:"detail,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// sessionDetail is the JSON response for GET /api/v1/sessions/{id}.
type sessionDetail struct {
	sessionOverview
	Notes      string            `json:"notes,omitempty"`
	History    []historyMessage  `json:"history"`
	Intel      []entityResponse  `json:"extractedEntities"`
	Dispatches []dispatchAttempt `json:"dispatches"`
}

// flexTime accepts the timestamp shapes platforms actually send: RFC 3339
// strings, epoch seconds or milliseconds, as a JSON string or number.
// Anything unparseable is left zero and stamped server-side.
type flexTime struct {
	time.Time
}

func (ft *flexTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			ft.Time = t
			return nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		if n >= 1e12 {
			ft.Time = time.UnixMilli(n)
		} else {
			ft.Time = time.Unix(n, 0)
		}
	}
	return nil
}

// handleMessage handles POST /api/v1/messages: one conversation turn.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.Message == nil {
		s.sendJSONError(w, http.StatusBadRequest, "sessionId and message are required")
		return
	}

	turn := engine.TurnRequest{
		SessionID: req.SessionID,
		Message: session.Message{
			Sender:    session.ParseSender(req.Message.Sender),
			Text:      req.Message.Text,
			Timestamp: req.Message.Timestamp.Time,
		},
		Seed: seedMessages(req.ConversationHistory),
	}
	if req.Metadata != nil {
		turn.Channel = req.Metadata.Channel
		turn.Language = req.Metadata.Language
	}

	res, err := s.turns.HandleMessage(r.Context(), turn)
	switch {
	case errors.Is(err, session.ErrAlreadyReported):
		s.sendJSONError(w, http.StatusConflict, "session already reported")
		return
	case err != nil:
		s.logger.Error("turn failed", "session_id", req.SessionID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.sendJSON(w, http.StatusOK, messageResponse{
		SessionID: res.SessionID,
		Reply:     res.Reply,
		Status:    string(res.Status),
	})
}

// seedMessages converts platform-provided history into session messages.
func seedMessages(history []inboundMessage) []session.Message {
	if len(history) == 0 {
		return nil
	}
	seed := make([]session.Message, 0, len(history))
	for _, m := range history {
		seed = append(seed, session.Message{
			Sender:    session.ParseSender(m.Sender),
			Text:      m.Text,
			Timestamp: m.Timestamp.Time,
		})
	}
	return seed
}

// handleListSessions handles GET /api/v1/sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	ids := s.sessions.IDs()
	overviews := make([]sessionOverview, 0, len(ids))
	for _, id := range ids {
		snap, ok := s.sessions.Snapshot(id)
		if !ok {
			continue
		}
		overviews = append(overviews, overviewOf(snap))
	}
	s.sendJSON(w, http.StatusOK, listSessionsResponse{Sessions: overviews, Count: len(overviews)})
}

// handleGetSession handles GET /api/v1/sessions/{sessionID}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	snap, ok := s.sessions.Snapshot(id)
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}

	detail := sessionDetail{
		sessionOverview: overviewOf(snap),
		Notes:           snap.Notes,
		History:         make([]historyMessage, 0, len(snap.History)),
		Intel:           make([]entityResponse, 0, snap.EntityCount()),
		Dispatches:      []dispatchAttempt{},
	}
	for _, msg := range snap.History {
		detail.History = append(detail.History, historyMessage{
			Sender:    string(msg.Sender),
			Text:      msg.Text,
			Timestamp: msg.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	for _, ent := range snap.Entities() {
		detail.Intel = append(detail.Intel, entityResponse{Kind: string(ent.Kind), Value: ent.Value})
	}

	attempts, err := s.ledger.AttemptsForSession(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load dispatch history", "session_id", id, "error", err)
	}
	for _, a := range attempts {
		detail.Dispatches = append(detail.Dispatches, dispatchAttempt{
			AttemptID:  a.ID,
			Outcome:    string(a.Outcome),
			StatusCode: a.StatusCode,
			Detail:     a.Detail,
			CreatedAt:  a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	s.sendJSON(w, http.StatusOK, detail)
}

func overviewOf(snap *session.State) sessionOverview {
	return sessionOverview{
		SessionID:     snap.ID,
		Status:        string(snap.Status),
		Turns:         snap.TurnCount,
		Entities:      snap.EntityCount(),
		Channel:       snap.Channel,
		Language:      snap.Language,
		CreatedAt:     snap.CreatedAt.UTC().Format(time.RFC3339),
		LastUpdatedAt: snap.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
