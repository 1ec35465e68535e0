package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/m4xw311/quill/errors"
	"github.com/m4xw311/quill/session"
)

func TestValidateReply(t *testing.T) {
	call := func(id, name, args string) session.ToolCall {
		return session.ToolCall{ID: id, Name: name, Args: []byte(args)}
	}
	tests := []struct {
		name    string
		calls   []session.ToolCall
		wantErr string
	}{
		{"text only", nil, ""},
		{"valid", []session.ToolCall{call("a", "read_file", `{"path":"x"}`), call("b", "grep", ` {"pattern":"y"}`)}, ""},
		{"empty args", []session.ToolCall{call("a", "list_files", "")}, ""},
		{"missing id", []session.ToolCall{call("", "read_file", `{}`)}, "has no id"},
		{"duplicate id", []session.ToolCall{call("a", "read_file", `{}`), call("a", "grep", `{}`)}, "duplicate tool call id"},
		{"missing name", []session.ToolCall{call("a", "", `{}`)}, "has no name"},
		{"truncated json", []session.ToolCall{call("a", "read_file", `{"path":`)}, "malformed arguments"},
		{"array args", []session.ToolCall{call("a", "read_file", `["x"]`)}, "malformed arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := &Reply{ToolCalls: tt.calls}
			err := ValidateReply("test", reply)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				for _, c := range reply.ToolCalls {
					if len(c.Args) == 0 {
						t.Errorf("empty arguments were not normalised for %s", c.ID)
					}
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("got %v, want error containing %q", err, tt.wantErr)
			}
			if !errors.IsProtocol(err) {
				t.Errorf("expected a ProviderProtocolError, got %T", err)
			}
		})
	}
}

func TestCompletionAdapter(t *testing.T) {
	mock := &MockChat{Script: []Reply{
		{Text: "calling", ToolCalls: []session.ToolCall{{ID: "c1", Name: "read_file"}}},
		{ToolCalls: []session.ToolCall{{ID: "x", Name: "a"}, {ID: "x", Name: "b"}}},
	}}
	p := NewCompletionAdapter(mock)
	ctx := context.Background()
	history := []session.Message{session.UserMessage("hello")}

	reply, err := p.Send(ctx, Request{History: history})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(reply.ToolCalls[0].Args) != "{}" {
		t.Errorf("arguments not normalised: %q", reply.ToolCalls[0].Args)
	}

	if _, err := p.Send(ctx, Request{History: history}); !errors.IsProtocol(err) {
		t.Errorf("duplicate ids should be a protocol error, got %v", err)
	}

	reply, err = p.Send(ctx, Request{History: history})
	if err != nil || reply.Text != "I am a mock LLM. You said: 'hello'." {
		t.Errorf("unexpected echo %+v, %v", reply, err)
	}
	if n := len(mock.Requests()); n != 3 {
		t.Errorf("backend saw %d requests, want 3", n)
	}

	broken := []session.Message{
		session.UserMessage("hi"),
		session.ToolMessage(session.ToolResult{CallID: "nope"}),
	}
	if _, err := p.Send(ctx, Request{History: broken}); !errors.IsProtocol(err) {
		t.Errorf("unpaired history should be refused, got %v", err)
	}
	if n := len(mock.Requests()); n != 3 {
		t.Errorf("refused history reached the backend")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := p.Send(cancelled, Request{History: history}); !errors.IsCancelled(err) {
		t.Errorf("expected cancellation, got %v", err)
	}
}

func TestGroupMessages(t *testing.T) {
	groups := groupMessages(toolTurn())
	if len(groups) != 3 || len(groups[2]) != 2 {
		t.Fatalf("unexpected grouping: %d groups", len(groups))
	}
}
