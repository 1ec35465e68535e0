// Package transcript records what happens in a session as an append-only
// stream of events.
package transcript

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/m4xw311/quill/errors"
)

// Kind names an event type.
type Kind string

const (
	TurnStarted       Kind = "turn_started"
	UserMessage       Kind = "user_message"
	AssistantMessage  Kind = "assistant_message"
	ToolCallRequested Kind = "tool_call_requested"
	PermissionDecided Kind = "permission_decided"
	ToolResult        Kind = "tool_result"
	TurnCompleted     Kind = "turn_completed"
	Cancelled         Kind = "cancelled"
)

// Event is one transcript entry. Fields that do not apply to a kind are
// left empty.
type Event struct {
	Time      time.Time       `json:"time"`
	Kind      Kind            `json:"kind"`
	SessionID string          `json:"session_id"`
	ParentID  string          `json:"parent_id,omitempty"`
	Depth     int             `json:"depth"`
	Text      string          `json:"text,omitempty"`
	Reasoning string          `json:"reasoning,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
	Decision  string          `json:"decision,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	State     string          `json:"state,omitempty"`
}

// Recorder receives events. Implementations must be safe for concurrent use
// since subagents share their parent's recorder.
type Recorder interface {
	Record(e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(Event) error { return nil }

// Multi fans events out to several recorders.
type Multi []Recorder

func (m Multi) Record(e Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps events in memory.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Record(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (m *Memory) Kinds() []Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]Kind, len(m.events))
	for i, e := range m.events {
		kinds[i] = e.Kind
	}
	return kinds
}
