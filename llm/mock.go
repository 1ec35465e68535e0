package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/m4xw311/quill/session"
)

// MockChat is an offline backend. It plays back Script in order and, once the
// script is exhausted, parrots the last user message.
type MockChat struct {
	Script []Reply

	mu       sync.Mutex
	next     int
	requests []Request
}

func (m *MockChat) Name() string { return "mock" }

func (m *MockChat) Complete(ctx context.Context, req Request) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	slog.Debug("mock model call", "messages", len(req.History), "tools", len(req.Tools))

	var reply Reply
	if m.next < len(m.Script) {
		reply = m.Script[m.next]
		m.next++
		reply.ToolCalls = append([]session.ToolCall(nil), reply.ToolCalls...)
	} else {
		var last string
		for i := len(req.History) - 1; i >= 0; i-- {
			if req.History[i].Role == session.RoleUser {
				last = req.History[i].Content
				break
			}
		}
		reply.Text = fmt.Sprintf("I am a mock LLM. You said: '%s'.", last)
	}
	if reply.Usage == (Usage{}) {
		reply.Usage = estimateUsage(req, reply)
	}
	return &reply, nil
}

// estimateUsage counts roughly four characters per token.
func estimateUsage(req Request, reply Reply) Usage {
	in := len(req.Instructions)
	for _, msg := range req.History {
		in += len(msg.Content)
		if msg.Result != nil {
			in += len(msg.Result.Content)
		}
		for _, c := range msg.ToolCalls {
			in += len(c.Name) + len(c.Args)
		}
	}
	out := len(reply.Text)
	for _, c := range reply.ToolCalls {
		out += len(c.Name) + len(c.Args)
	}
	return Usage{InputTokens: int64(in+3) / 4, OutputTokens: int64(out+3) / 4}
}

// Requests returns the requests received so far.
func (m *MockChat) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}
