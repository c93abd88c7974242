// ABOUTME: Conversation session state with status machine, history and entity set
// ABOUTME: History is append-only and the entity set only ever grows

package session

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/Apurva654/agentic-honeypot-buildathon/internal/extract"
)

// Status tracks where a session is in its lifecycle.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusComplete Status = "COMPLETE"
	StatusReported Status = "REPORTED"
)

// Transition sentinels. Callers match with errors.Is.
var (
	// ErrAlreadyComplete indicates a second completion attempt.
	ErrAlreadyComplete = errors.New("session already complete")
	// ErrAlreadyReported indicates the session reached its terminal state.
	ErrAlreadyReported = errors.New("session already reported")
	// ErrNotComplete indicates a report attempt on a still-active session.
	ErrNotComplete = errors.New("session not complete")
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser         Sender = "user"
	SenderCounterparty Sender = "counterparty"
	SenderAgent        Sender = "agent"
)

// ParseSender maps wire sender labels onto the canonical set. Platforms
// label the adversary "scammer"; anything unrecognized is attributed to
// the counterparty as well, since unidentified inbound authors are by
// definition not ours.
func ParseSender(raw string) Sender {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "agent", "bot", "assistant", "honeypot":
		return SenderAgent
	case "user", "operator", "victim":
		return SenderUser
	default:
		return SenderCounterparty
	}
}

// Message is one turn of a conversation.
type Message struct {
	Sender    Sender
	Text      string
	Timestamp time.Time
}

// State is the full record of one honeypot conversation. Mutate only while
// holding the session lock handed out by Store.Lock; read outside a turn
// through Store.Snapshot.
type State struct {
	ID        string
	Status    Status
	History   []Message
	TurnCount int
	Notes     string
	Channel   string
	Language  string
	CreatedAt time.Time
	UpdatedAt time.Time

	entities map[extract.Entity]struct{}
}

func newState(id string, now time.Time) *State {
	return &State{
		ID:        id,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		entities:  make(map[extract.Entity]struct{}),
	}
}

// Append records one more turn. Nothing ever rewrites or removes a
// recorded message.
func (s *State) Append(msg Message) {
	s.History = append(s.History, msg)
	s.UpdatedAt = time.Now()
}

// MergeEntities adds findings not yet recorded and reports how many were
// new. Duplicates are identified by (Kind, Value) in canonical form.
func (s *State) MergeEntities(ents []extract.Entity) int {
	added := 0
	for _, ent := range ents {
		if _, ok := s.entities[ent]; ok {
			continue
		}
		s.entities[ent] = struct{}{}
		added++
	}
	if added > 0 {
		s.UpdatedAt = time.Now()
	}
	return added
}

// Entities returns the accumulated findings sorted by kind then value.
func (s *State) Entities() []extract.Entity {
	out := make([]extract.Entity, 0, len(s.entities))
	for ent := range s.entities {
		out = append(out, ent)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// EntityCount returns the number of distinct findings so far.
func (s *State) EntityCount() int {
	return len(s.entities)
}

// MarkComplete moves an active session to COMPLETE.
func (s *State) MarkComplete() error {
	switch s.Status {
	case StatusReported:
		return ErrAlreadyReported
	case StatusComplete:
		return ErrAlreadyComplete
	}
	s.Status = StatusComplete
	s.UpdatedAt = time.Now()
	return nil
}

// MarkReported moves a complete session to REPORTED, the terminal state.
func (s *State) MarkReported() error {
	switch s.Status {
	case StatusReported:
		return ErrAlreadyReported
	case StatusActive:
		return ErrNotComplete
	}
	s.Status = StatusReported
	s.UpdatedAt = time.Now()
	return nil
}

// clone deep-copies the state so callers can read it lock-free.
func (s *State) clone() *State {
	cp := *s
	cp.History = append([]Message(nil), s.History...)
	cp.entities = make(map[extract.Entity]struct{}, len(s.entities))
	for ent := range s.entities {
		cp.entities[ent] = struct{}{}
	}
	return &cp
}
