package session

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a request by the model to invoke a named tool.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// NewToolCall builds a ToolCall, normalising an empty argument payload to {}.
func NewToolCall(id, name string, args []byte) ToolCall {
	if len(args) == 0 {
		args = []byte("{}")
	}
	return ToolCall{ID: id, Name: name, Args: append(json.RawMessage(nil), args...)}
}

// Arguments decodes the argument payload into a map.
func (c ToolCall) Arguments() (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if len(c.Args) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(c.Args, &args); err != nil {
		return nil, fmt.Errorf("tool call %s: arguments are not a JSON object: %w", c.ID, err)
	}
	return args, nil
}

// ToolResult answers exactly one ToolCall.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Message is one entry of a conversation.
type Message struct {
	Ordinal   int         `json:"ordinal"`
	Role      Role        `json:"role"`
	Content   string      `json:"content,omitempty"`
	Reasoning string      `json:"reasoning,omitempty"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	Result    *ToolResult `json:"result,omitempty"`
}

// UserMessage builds a user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage builds an assistant message carrying optional tool calls.
func AssistantMessage(text, reasoning string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, Reasoning: reasoning, ToolCalls: calls}
}

// ToolMessage builds the tool message that answers a call.
func ToolMessage(r ToolResult) Message {
	return Message{Role: RoleTool, Content: r.Content, Result: &r}
}

func (m Message) clone() Message {
	if m.ToolCalls != nil {
		calls := make([]ToolCall, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			calls[i] = ToolCall{ID: c.ID, Name: c.Name, Args: append(json.RawMessage(nil), c.Args...)}
		}
		m.ToolCalls = calls
	}
	if m.Result != nil {
		r := *m.Result
		m.Result = &r
	}
	return m
}

// History is the append-only message sequence of one conversation.
// Readers always receive copies.
type History struct {
	mu       sync.RWMutex
	messages []Message
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// Append stores a copy of m, assigns its ordinal and returns the stored copy.
func (h *History) Append(m Message) Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	m = m.clone()
	m.Ordinal = len(h.messages)
	h.messages = append(h.messages, m)
	return m.clone()
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Messages returns a copy of all messages.
func (h *History) Messages() []Message {
	return h.Since(0)
}

// Since returns copies of the messages with ordinal >= i.
func (h *History) Since(i int) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 {
		i = 0
	}
	if i >= len(h.messages) {
		return nil
	}
	out := make([]Message, 0, len(h.messages)-i)
	for _, m := range h.messages[i:] {
		out = append(out, m.clone())
	}
	return out
}

// Unpaired returns the tool calls of the most recent assistant message that
// have no tool result yet.
func (h *History) Unpaired() []ToolCall {
	h.mu.RLock()
	defer h.mu.RUnlock()
	last := -1
	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].Role == RoleAssistant {
			last = i
			break
		}
	}
	if last < 0 || len(h.messages[last].ToolCalls) == 0 {
		return nil
	}
	answered := map[string]bool{}
	for _, m := range h.messages[last+1:] {
		if m.Result != nil {
			answered[m.Result.CallID] = true
		}
	}
	var out []ToolCall
	for _, c := range h.messages[last].ToolCalls {
		if !answered[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks the pairing invariant: every tool call has exactly one
// result with the same id, and every result answers a call.
func Validate(messages []Message) error {
	pending := map[string]bool{}
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			if len(pending) > 0 {
				return fmt.Errorf("message %d: assistant turn with %d unanswered tool calls", m.Ordinal, len(pending))
			}
			for _, c := range m.ToolCalls {
				pending[c.ID] = true
			}
		case RoleTool:
			if m.Result == nil {
				return fmt.Errorf("message %d: tool message without result", m.Ordinal)
			}
			if !pending[m.Result.CallID] {
				return fmt.Errorf("message %d: result for unknown or already answered call %q", m.Ordinal, m.Result.CallID)
			}
			delete(pending, m.Result.CallID)
		case RoleUser:
			if len(pending) > 0 {
				return fmt.Errorf("message %d: user turn with %d unanswered tool calls", m.Ordinal, len(pending))
			}
		}
	}
	return nil
}
