package session

import (
	"testing"
)

func TestHistoryAppendAssignsOrdinals(t *testing.T) {
	h := NewHistory()
	for i, text := range []string{"a", "b", "c"} {
		m := h.Append(UserMessage(text))
		if m.Ordinal != i {
			t.Errorf("message %q got ordinal %d, want %d", text, m.Ordinal, i)
		}
	}
	if h.Len() != 3 {
		t.Fatalf("expected 3 messages, got %d", h.Len())
	}
	since := h.Since(1)
	if len(since) != 2 || since[0].Content != "b" {
		t.Errorf("unexpected Since(1): %+v", since)
	}
	if h.Since(5) != nil {
		t.Errorf("Since past the end should be empty")
	}
}

func TestHistoryReturnsCopies(t *testing.T) {
	h := NewHistory()
	h.Append(AssistantMessage("", "", []ToolCall{NewToolCall("c1", "read_file", []byte(`{"path":"a"}`))}))

	msgs := h.Messages()
	msgs[0].ToolCalls[0].Name = "mutated"
	msgs[0].ToolCalls[0].Args[2] = 'X'

	again := h.Messages()
	if again[0].ToolCalls[0].Name != "read_file" {
		t.Errorf("history exposed its internal tool call slice")
	}
	if string(again[0].ToolCalls[0].Args) != `{"path":"a"}` {
		t.Errorf("history exposed its internal argument bytes: %s", again[0].ToolCalls[0].Args)
	}
}

func TestNewToolCallNormalisesEmptyArgs(t *testing.T) {
	c := NewToolCall("id", "list_files", nil)
	if string(c.Args) != "{}" {
		t.Errorf("expected {}, got %q", c.Args)
	}
	args, err := c.Arguments()
	if err != nil || len(args) != 0 {
		t.Errorf("expected empty args, got %v, %v", args, err)
	}

	bad := NewToolCall("id", "x", []byte(`[1,2]`))
	if _, err := bad.Arguments(); err == nil {
		t.Errorf("expected error for non-object arguments")
	}
}

func TestUnpaired(t *testing.T) {
	h := NewHistory()
	h.Append(UserMessage("go"))
	h.Append(AssistantMessage("", "", []ToolCall{
		NewToolCall("c1", "a", nil),
		NewToolCall("c2", "b", nil),
		NewToolCall("c3", "c", nil),
	}))
	h.Append(ToolMessage(ToolResult{CallID: "c1", Name: "a", Content: "ok"}))

	got := h.Unpaired()
	if len(got) != 2 || got[0].ID != "c2" || got[1].ID != "c3" {
		t.Fatalf("unexpected unpaired calls: %+v", got)
	}

	h.Append(ToolMessage(ToolResult{CallID: "c2", Name: "b", Content: "ok"}))
	h.Append(ToolMessage(ToolResult{CallID: "c3", Name: "c", Content: "ok"}))
	if len(h.Unpaired()) != 0 {
		t.Errorf("expected all calls paired")
	}
}

func TestValidate(t *testing.T) {
	call := func(id string) ToolCall { return NewToolCall(id, "t", nil) }
	result := func(id string) Message { return ToolMessage(ToolResult{CallID: id, Name: "t"}) }

	tests := []struct {
		name    string
		msgs    []Message
		wantErr bool
	}{
		{"paired", []Message{UserMessage("x"), AssistantMessage("", "", []ToolCall{call("1"), call("2")}), result("1"), result("2"), AssistantMessage("done", "", nil)}, false},
		{"missing result", []Message{AssistantMessage("", "", []ToolCall{call("1")}), UserMessage("x")}, true},
		{"duplicate result", []Message{AssistantMessage("", "", []ToolCall{call("1")}), result("1"), result("1")}, true},
		{"orphan result", []Message{UserMessage("x"), result("9")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.msgs)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
