package llm

import (
	"context"
	"testing"

	"github.com/m4xw311/quill/session"
)

func TestContextWindow(t *testing.T) {
	tests := []struct {
		model string
		want  int64
	}{
		{"gpt-5-mini", 400_000},
		{"gpt-4.1-nano", 1_047_576},
		{"gpt-4o", 128_000},
		{"claude-sonnet-4-20250514", 200_000},
		{"us.anthropic.claude-3-5-sonnet-20240620-v1:0", 200_000},
		{"gemini-2.5-flash", 1_048_576},
		{"some-local-model", DefaultContextWindow},
	}
	for _, tt := range tests {
		if got := ContextWindow(tt.model); got != tt.want {
			t.Errorf("ContextWindow(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestContextStatus(t *testing.T) {
	tests := []struct {
		usage  Usage
		window int64
		want   string
	}{
		{Usage{}, 128_000, "0 / 128.0K tokens (0%)"},
		{Usage{InputTokens: 12_000, OutputTokens: 300}, 128_000, "12.3K / 128.0K tokens (9%)"},
		{Usage{InputTokens: 500_000}, 1_048_576, "500.0K / 1.0M tokens (47%)"},
		{Usage{InputTokens: 950}, 0, "950 / 128.0K tokens (0%)"},
	}
	for _, tt := range tests {
		if got := ContextStatus(tt.usage, tt.window); got != tt.want {
			t.Errorf("ContextStatus(%+v, %d) = %q, want %q", tt.usage, tt.window, got, tt.want)
		}
	}
}

func TestMockEstimatesUsage(t *testing.T) {
	mock := &MockChat{Script: []Reply{{Text: "scripted", Usage: Usage{InputTokens: 7}}}}
	req := Request{Instructions: "1234", History: []session.Message{session.UserMessage("12345678")}}

	reply, err := mock.Complete(context.Background(), req)
	if err != nil || reply.Usage != (Usage{InputTokens: 7}) {
		t.Fatalf("scripted usage not kept: %+v, %v", reply, err)
	}
	reply, err = mock.Complete(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Usage.InputTokens != 3 || reply.Usage.OutputTokens == 0 {
		t.Errorf("unexpected estimate %+v", reply.Usage)
	}
}
