package llm

import (
	"context"
	"os"

	"github.com/m4xw311/quill/errors"
	"github.com/m4xw311/quill/session"
	"github.com/m4xw311/quill/tools"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIChat is a backend for the OpenAI Chat Completion API.
type OpenAIChat struct {
	client *openai.Client
	model  string
}

// openAIOptions reads OPENAI_API_KEY and the optional OPENAI_BASE_URL.
func openAIOptions() ([]option.RequestOption, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.NewConfigError("openai", "OPENAI_API_KEY environment variable not set")
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	return options, nil
}

// NewOpenAIChat creates a chat backend from the environment.
func NewOpenAIChat(modelName string, extra ...option.RequestOption) (*OpenAIChat, error) {
	options, err := openAIOptions()
	if err != nil {
		return nil, err
	}
	c := openai.NewClient(append(options, extra...)...)
	// The &c is required, do not replace and just use c
	return &OpenAIChat{client: &c, model: modelName}, nil
}

func (o *OpenAIChat) Name() string { return "openai" }

// Complete sends the whole history to OpenAI and converts the response.
func (o *OpenAIChat) Complete(ctx context.Context, req Request) (*Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: convertMessagesToOpenAI(req.Instructions, req.History),
		Tools:    convertToolsToOpenAI(req.Tools),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to OpenAI")
	}
	return processOpenAIResponse(resp), nil
}

func processOpenAIResponse(resp *openai.ChatCompletion) *Reply {
	reply := &Reply{
		ResponseID: resp.ID,
		Usage:      Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
	}
	if len(resp.Choices) == 0 {
		return reply
	}
	choice := resp.Choices[0].Message
	reply.Text = choice.Content
	for _, tc := range choice.ToolCalls {
		// Arguments are kept as the exact bytes the model produced.
		reply.ToolCalls = append(reply.ToolCalls, session.NewToolCall(tc.ID, tc.Function.Name, []byte(tc.Function.Arguments)))
	}
	return reply
}

func convertMessagesToOpenAI(instructions string, messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	if instructions != "" {
		chatMessages = append(chatMessages, openai.SystemMessage(instructions))
	}
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleAssistant:
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				assistantMessage.ToolCalls = append(assistantMessage.ToolCalls, openai.ChatCompletionMessageToolCallUnion{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				})
			}
			chatMessages = append(chatMessages, assistantMessage.ToParam())
		case session.RoleTool:
			chatMessages = append(chatMessages, openai.ToolMessage(msg.Content, msg.Result.CallID))
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages
}

func convertToolsToOpenAI(ts []tools.Tool) []openai.ChatCompletionToolUnionParam {
	if len(ts) == 0 {
		return nil
	}
	var openAITools []openai.ChatCompletionToolUnionParam
	for _, t := range ts {
		openAITools = append(openAITools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  openai.FunctionParameters(t.Schema().Map()),
		}))
	}
	return openAITools
}
