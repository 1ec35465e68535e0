package llm

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m4xw311/quill/errors"
	"github.com/m4xw311/quill/session"
	"github.com/m4xw311/quill/tools"
)

const anthropicMaxTokens = 4096

// AnthropicChat is a backend for the Anthropic Messages API.
type AnthropicChat struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicChat creates a new AnthropicChat.
// It requires the ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicChat(modelName string, extra ...option.RequestOption) (*AnthropicChat, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.NewConfigError("anthropic", "ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, extra...)...)
	return &AnthropicChat{
		client: &client,
		model:  modelName,
	}, nil
}

func (a *AnthropicChat) Name() string { return "anthropic" }

func (a *AnthropicChat) Complete(ctx context.Context, req Request) (*Reply, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  convertMessagesToAnthropic(req.History),
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.Instructions},
		}
	}
	for _, toolParam := range convertToolsToAnthropic(req.Tools) {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Anthropic")
	}
	return processAnthropicResponse(resp), nil
}

// convertMessagesToAnthropic converts history to Anthropic messages. The
// results of one assistant turn travel together in a single user message.
func convertMessagesToAnthropic(messages []session.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, group := range groupMessages(messages) {
		msg := group[0]
		switch msg.Role {
		case session.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case session.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.ContentBlockParamUnion{
					OfText: &anthropic.TextBlockParam{Text: msg.Content},
				})
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: json.RawMessage(tc.Args),
					},
				})
			}
			if len(content) == 0 {
				continue
			}
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: content,
			})
		case session.RoleTool:
			var content []anthropic.ContentBlockParamUnion
			for _, m := range group {
				content = append(content, anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: m.Result.CallID,
						Content: []anthropic.ToolResultBlockParamContentUnion{{
							OfText: &anthropic.TextBlockParam{Text: m.Content},
						}},
						IsError: anthropic.Bool(m.Result.IsError),
					},
				})
			}
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: content,
			})
		}
	}
	return out
}

func convertToolsToAnthropic(ts []tools.Tool) []anthropic.ToolParam {
	var out []anthropic.ToolParam
	for _, t := range ts {
		schema := t.Schema()
		properties := make(map[string]interface{}, len(schema.Properties))
		for name, p := range schema.Properties {
			properties[name] = p.Map()
		}
		out = append(out, anthropic.ToolParam{
			Name:        t.Name(),
			Description: anthropic.String(t.Description()),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   schema.Required,
			},
		})
	}
	return out
}

func processAnthropicResponse(resp *anthropic.Message) *Reply {
	reply := &Reply{
		ResponseID: resp.ID,
		Usage:      Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}
	var text, thinking []string
	for _, content := range resp.Content {
		switch c := content.AsAny().(type) {
		case anthropic.TextBlock:
			text = append(text, c.Text)
		case anthropic.ThinkingBlock:
			thinking = append(thinking, c.Thinking)
		case anthropic.ToolUseBlock:
			reply.ToolCalls = append(reply.ToolCalls, session.NewToolCall(c.ID, c.Name, c.Input))
		}
	}
	reply.Text = strings.Join(text, "")
	reply.Reasoning = strings.Join(thinking, "\n")
	return reply
}
