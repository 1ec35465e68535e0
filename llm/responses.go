package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/m4xw311/quill/errors"
	"github.com/m4xw311/quill/session"
	"github.com/m4xw311/quill/tools"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/responses"
	"github.com/openai/openai-go/v2/shared"
)

// ResponsesAdapter drives the OpenAI Responses API. The server keeps the
// conversation; each call chains onto the previous response and carries only
// the messages appended since.
type ResponsesAdapter struct {
	client *openai.Client
	model  string
	effort string

	mu         sync.Mutex
	previousID string
	cursor     int
}

// NewResponsesAdapter creates a stateful provider from the environment.
// effort is sent as the reasoning effort on every call.
func NewResponsesAdapter(modelName, effort string, extra ...option.RequestOption) (*ResponsesAdapter, error) {
	options, err := openAIOptions()
	if err != nil {
		return nil, err
	}
	c := openai.NewClient(append(options, extra...)...)
	return &ResponsesAdapter{client: &c, model: modelName, effort: effort}, nil
}

func (r *ResponsesAdapter) Name() string { return "openai-responses" }

// PreviousResponseID is the id the next call will chain onto.
func (r *ResponsesAdapter) PreviousResponseID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.previousID
}

func (r *ResponsesAdapter) Send(ctx context.Context, req Request) (*Reply, error) {
	r.mu.Lock()
	previousID, cursor := r.previousID, r.cursor
	r.mu.Unlock()

	if cursor > len(req.History) {
		return nil, errors.NewProtocolError(r.Name(), "history shrank from %d to %d messages", cursor, len(req.History))
	}
	if err := session.Validate(req.History); err != nil {
		return nil, errors.NewProtocolError(r.Name(), "history breaks tool pairing: %v", err)
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(r.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: buildResponsesInput(req.History[cursor:], previousID != ""),
		},
		Tools: convertToolsToResponses(req.Tools),
	}
	if req.Instructions != "" {
		params.Instructions = openai.String(req.Instructions)
	}
	if previousID != "" {
		params.PreviousResponseID = openai.String(previousID)
	}
	if r.effort != "" {
		params.Reasoning = shared.ReasoningParam{
			Effort:  shared.ReasoningEffort(r.effort),
			Summary: shared.ReasoningSummaryAuto,
		}
	}

	resp, err := r.client.Responses.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(errors.ErrCancelled, "%s call", r.Name())
		}
		return nil, errors.Wrapf(err, "failed to send message to OpenAI Responses API")
	}

	reply := processResponsesOutput(resp)
	if err := ValidateReply(r.Name(), reply); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.previousID = resp.ID
	r.cursor = len(req.History)
	r.mu.Unlock()
	return reply, nil
}

// buildResponsesInput converts history to input items. When chaining, the
// assistant turns already live on the server and are left out.
func buildResponsesInput(messages []session.Message, chained bool) responses.ResponseInputParam {
	items := make(responses.ResponseInputParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleAssistant:
			if chained {
				continue
			}
			if msg.Content != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleAssistant))
			}
			for _, tc := range msg.ToolCalls {
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(string(tc.Args), tc.ID, tc.Name))
			}
		case session.RoleTool:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(msg.Result.CallID, msg.Content))
		default:
			items = append(items, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleUser))
		}
	}
	return items
}

func convertToolsToResponses(ts []tools.Tool) []responses.ToolUnionParam {
	if len(ts) == 0 {
		return nil
	}
	out := make([]responses.ToolUnionParam, 0, len(ts))
	for _, t := range ts {
		param := responses.ToolParamOfFunction(t.Name(), t.Schema().Map(), false)
		param.OfFunction.Description = openai.String(t.Description())
		out = append(out, param)
	}
	return out
}

func processResponsesOutput(resp *responses.Response) *Reply {
	reply := &Reply{
		ResponseID: resp.ID,
		Usage:      Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}
	var text, reasoning []string
	for _, item := range resp.Output {
		switch item.Type {
		case "function_call":
			reply.ToolCalls = append(reply.ToolCalls, session.NewToolCall(item.CallID, item.Name, []byte(item.Arguments)))
		case "message":
			for _, part := range item.AsMessage().Content {
				if part.Type == "output_text" {
					text = append(text, part.Text)
				}
			}
		case "reasoning":
			for _, s := range item.AsReasoning().Summary {
				reasoning = append(reasoning, s.Text)
			}
		}
	}
	reply.Text = strings.Join(text, "\n")
	reply.Reasoning = strings.Join(reasoning, "\n")
	return reply
}
