package llm

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/m4xw311/quill/errors"
	"github.com/m4xw311/quill/session"
	"github.com/m4xw311/quill/tools"
)

// Request is one submission to a model.
type Request struct {
	Instructions string
	// History is the full conversation. Stateful providers send only the part
	// they have not submitted yet.
	History []session.Message
	Tools   []tools.Tool
}

// Reply is the model's answer to a Request.
type Reply struct {
	Text       string
	Reasoning  string
	ToolCalls  []session.ToolCall
	ResponseID string
	Usage      Usage
}

// Provider is the interface for interacting with a Large Language Model.
// A Provider is owned by exactly one session.
type Provider interface {
	Name() string
	Send(ctx context.Context, req Request) (*Reply, error)
}

// ChatBackend speaks one vendor's stateless chat API: every call carries the
// whole history.
type ChatBackend interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Reply, error)
}

// CompletionAdapter is the stateless provider convention.
type CompletionAdapter struct {
	backend ChatBackend
}

// NewCompletionAdapter creates a provider that sends the whole history to
// backend on every call.
func NewCompletionAdapter(backend ChatBackend) *CompletionAdapter {
	return &CompletionAdapter{backend: backend}
}

func (a *CompletionAdapter) Name() string { return a.backend.Name() }

func (a *CompletionAdapter) Send(ctx context.Context, req Request) (*Reply, error) {
	if err := session.Validate(req.History); err != nil {
		return nil, &errors.ProviderProtocolError{Provider: a.Name(), Reason: "history breaks tool pairing: " + err.Error()}
	}
	reply, err := a.backend.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(errors.ErrCancelled, "%s call", a.Name())
		}
		return nil, errors.Wrapf(err, "%s call failed", a.Name())
	}
	if err := ValidateReply(a.Name(), reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// ValidateReply enforces the tool-call contract on a reply: every call has a
// non-empty unique id, a name, and a JSON object as arguments. Empty
// arguments are normalised to {}.
func ValidateReply(provider string, reply *Reply) error {
	if reply == nil {
		return errors.NewProtocolError(provider, "empty reply")
	}
	seen := make(map[string]bool, len(reply.ToolCalls))
	for i := range reply.ToolCalls {
		c := &reply.ToolCalls[i]
		if c.ID == "" {
			return errors.NewProtocolError(provider, "tool call %d (%s) has no id", i, c.Name)
		}
		if seen[c.ID] {
			return errors.NewProtocolError(provider, "duplicate tool call id %q", c.ID)
		}
		seen[c.ID] = true
		if c.Name == "" {
			return errors.NewProtocolError(provider, "tool call %q has no name", c.ID)
		}
		trimmed := bytes.TrimSpace(c.Args)
		if len(trimmed) == 0 {
			c.Args = json.RawMessage("{}")
			continue
		}
		if trimmed[0] != '{' || !json.Valid(trimmed) {
			return errors.NewProtocolError(provider, "tool call %q has malformed arguments: %s", c.ID, truncate(string(c.Args), 200))
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// groupMessages folds runs of consecutive tool messages into one group.
// Every other message forms its own group.
func groupMessages(history []session.Message) [][]session.Message {
	var groups [][]session.Message
	for _, m := range history {
		n := len(groups)
		if m.Role == session.RoleTool && n > 0 && groups[n-1][0].Role == session.RoleTool {
			groups[n-1] = append(groups[n-1], m)
			continue
		}
		groups = append(groups, []session.Message{m})
	}
	return groups
}
