package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/m4xw311/quill/session"
	"github.com/m4xw311/quill/tools"
)

// MockTool is a simple mock tool for testing
type MockTool struct {
	name        string
	description string
	readOnly    bool
}

func (m *MockTool) Name() string {
	return m.name
}

func (m *MockTool) Description() string {
	return m.description
}

func (m *MockTool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"path": {Type: "string", Description: "File path"},
		},
		Required: []string{"path"},
	}
}

func (m *MockTool) SideEffect() tools.SideEffect {
	if m.readOnly {
		return tools.ReadOnly
	}
	return tools.Mutating
}

func (m *MockTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return "mock result", nil
}

type fakeInvoker struct {
	input *bedrockruntime.InvokeModelInput
	body  string
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

// toolTurn is a history with one answered tool round trip.
func toolTurn() []session.Message {
	return []session.Message{
		session.UserMessage("read both files"),
		session.AssistantMessage("Reading.", "", []session.ToolCall{
			session.NewToolCall("call_1", "read_file", []byte(`{"path":"a.go"}`)),
			session.NewToolCall("call_2", "read_file", []byte(`{"path":"b.go"}`)),
		}),
		session.ToolMessage(session.ToolResult{CallID: "call_1", Name: "read_file", Content: "package a"}),
		session.ToolMessage(session.ToolResult{CallID: "call_2", Name: "read_file", Content: "missing", IsError: true}),
	}
}

func TestConvertMessagesToBedrock(t *testing.T) {
	result := convertMessagesToBedrock(toolTurn())
	if len(result) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(result))
	}
	if result[0]["role"] != "user" || result[1]["role"] != "assistant" || result[2]["role"] != "user" {
		t.Errorf("unexpected roles: %v %v %v", result[0]["role"], result[1]["role"], result[2]["role"])
	}

	assistant := result[1]["content"].([]map[string]interface{})
	if len(assistant) != 3 || assistant[1]["id"] != "call_1" || assistant[2]["type"] != "tool_use" {
		t.Errorf("unexpected assistant content: %v", assistant)
	}

	results := result[2]["content"].([]map[string]interface{})
	if len(results) != 2 {
		t.Fatalf("Expected both results in one message, got %d", len(results))
	}
	if results[1]["tool_use_id"] != "call_2" || results[1]["is_error"] != true {
		t.Errorf("unexpected tool result: %v", results[1])
	}
}

func TestCreateBedrockRequest(t *testing.T) {
	ts := []tools.Tool{&MockTool{name: "test_tool", description: "A test tool"}}
	body, err := createBedrockRequest(convertMessagesToBedrock(toolTurn()), "be brief", ts)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var decoded struct {
		Version  string `json:"anthropic_version"`
		System   string `json:"system"`
		Messages []struct {
			Content []struct {
				Input json.RawMessage `json:"input"`
			} `json:"content"`
		} `json:"messages"`
		Tools []struct {
			Name        string `json:"name"`
			InputSchema struct {
				Type     string   `json:"type"`
				Required []string `json:"required"`
			} `json:"input_schema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("request is not JSON: %v", err)
	}
	if decoded.Version != bedrockAnthropicVersion || decoded.System != "be brief" {
		t.Errorf("unexpected header fields: %+v", decoded)
	}
	if got := string(decoded.Messages[1].Content[1].Input); got != `{"path":"a.go"}` {
		t.Errorf("arguments were re-encoded: %s", got)
	}
	if len(decoded.Tools) != 1 || decoded.Tools[0].InputSchema.Type != "object" || decoded.Tools[0].InputSchema.Required[0] != "path" {
		t.Errorf("unexpected tools: %+v", decoded.Tools)
	}
}

func TestBedrockComplete(t *testing.T) {
	inv := &fakeInvoker{body: `{
		"id": "msg_1",
		"content": [
			{"type": "thinking", "thinking": "need a file"},
			{"type": "text", "text": "Let me look."},
			{"type": "tool_use", "id": "toolu_9", "name": "read_file", "input": {"path": "main.go"}}
		],
		"usage": {"input_tokens": 321, "output_tokens": 12}
	}`}
	b := &BedrockChat{client: inv, modelID: "anthropic.test"}

	reply, err := b.Complete(context.Background(), Request{History: []session.Message{session.UserMessage("hi")}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if *inv.input.ModelId != "anthropic.test" {
		t.Errorf("model id not passed through: %s", *inv.input.ModelId)
	}
	if reply.Text != "Let me look." || reply.Reasoning != "need a file" || reply.ResponseID != "msg_1" {
		t.Errorf("unexpected reply %+v", reply)
	}
	if len(reply.ToolCalls) != 1 || reply.ToolCalls[0].ID != "toolu_9" || string(reply.ToolCalls[0].Args) != `{"path": "main.go"}` {
		t.Errorf("unexpected tool calls %+v", reply.ToolCalls)
	}
	if reply.Usage != (Usage{InputTokens: 321, OutputTokens: 12}) {
		t.Errorf("usage = %+v", reply.Usage)
	}

	inv.body = `{"error": {"type": "throttling", "message": "slow down"}}`
	if _, err := b.Complete(context.Background(), Request{}); err == nil {
		t.Errorf("expected an error for an error body")
	}
}
