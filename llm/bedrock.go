package llm

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/m4xw311/quill/errors"
	"github.com/m4xw311/quill/session"
	"github.com/m4xw311/quill/tools"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// invoker is the part of the Bedrock runtime client the backend uses.
type invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockChat is a backend for Anthropic models on AWS Bedrock.
type BedrockChat struct {
	client  invoker
	modelID string
}

// NewBedrockChat creates a new BedrockChat.
// It requires AWS credentials to be configured in the environment.
// BEDROCK_ENDPOINT_URL overrides the service endpoint.
func NewBedrockChat(ctx context.Context, modelID string) (*BedrockChat, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var optFns []func(*bedrockruntime.Options)
	if endpoint := os.Getenv("BEDROCK_ENDPOINT_URL"); endpoint != "" {
		optFns = append(optFns, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	return &BedrockChat{
		client:  bedrockruntime.NewFromConfig(cfg, optFns...),
		modelID: modelID,
	}, nil
}

func (b *BedrockChat) Name() string { return "bedrock" }

func (b *BedrockChat) Complete(ctx context.Context, req Request) (*Reply, error) {
	body, err := createBedrockRequest(convertMessagesToBedrock(req.History), req.Instructions, req.Tools)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Anthropic request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model")
	}
	return processBedrockResponse(resp.Body)
}

func convertMessagesToBedrock(messages []session.Message) []map[string]interface{} {
	var out []map[string]interface{}
	for _, group := range groupMessages(messages) {
		msg := group[0]
		switch msg.Role {
		case session.RoleUser:
			out = append(out, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": msg.Content},
				},
			})
		case session.RoleAssistant:
			var content []map[string]interface{}
			if msg.Content != "" {
				content = append(content, map[string]interface{}{"type": "text", "text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": tc.Args,
				})
			}
			if len(content) == 0 {
				continue
			}
			out = append(out, map[string]interface{}{
				"role":    "assistant",
				"content": content,
			})
		case session.RoleTool:
			var content []map[string]interface{}
			for _, m := range group {
				content = append(content, map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": m.Result.CallID,
					"content":     m.Content,
					"is_error":    m.Result.IsError,
				})
			}
			out = append(out, map[string]interface{}{
				"role":    "user",
				"content": content,
			})
		}
	}
	return out
}

func createBedrockRequest(messages []map[string]interface{}, systemPrompt string, availableTools []tools.Tool) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": bedrockAnthropicVersion,
		"max_tokens":        anthropicMaxTokens,
		"messages":          messages,
	}
	if systemPrompt != "" {
		request["system"] = systemPrompt
	}
	if len(availableTools) > 0 {
		var ts []map[string]interface{}
		for _, tool := range availableTools {
			ts = append(ts, map[string]interface{}{
				"name":         tool.Name(),
				"description":  tool.Description(),
				"input_schema": tool.Schema().Map(),
			})
		}
		request["tools"] = ts
	}
	return json.Marshal(request)
}

type bedrockResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type     string          `json:"type"`
		Text     string          `json:"text"`
		Thinking string          `json:"thinking"`
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Input    json.RawMessage `json:"input"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func processBedrockResponse(body []byte) (*Reply, error) {
	var response bedrockResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if response.Error != nil {
		return nil, errors.New("Bedrock API error: %s: %s", response.Error.Type, response.Error.Message)
	}

	reply := &Reply{
		ResponseID: response.ID,
		Usage:      Usage{InputTokens: response.Usage.InputTokens, OutputTokens: response.Usage.OutputTokens},
	}
	var text, thinking []string
	for _, item := range response.Content {
		switch item.Type {
		case "text":
			text = append(text, item.Text)
		case "thinking":
			thinking = append(thinking, item.Thinking)
		case "tool_use":
			reply.ToolCalls = append(reply.ToolCalls, session.NewToolCall(item.ID, item.Name, item.Input))
		}
	}
	reply.Text = strings.Join(text, "")
	reply.Reasoning = strings.Join(thinking, "\n")
	return reply, nil
}
