package llm

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/m4xw311/quill/errors"
	"github.com/m4xw311/quill/session"
	"github.com/m4xw311/quill/tools"
	"google.golang.org/api/option"
)

// GeminiChat is a backend for the Google Gemini API. Gemini does not
// identify function calls, so ids are generated here and responses are
// matched back by function name.
type GeminiChat struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiChat creates a new GeminiChat.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiChat(ctx context.Context, modelName string, extra ...option.ClientOption) (*GeminiChat, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.NewConfigError("gemini", "GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, extra...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}
	return &GeminiChat{client: client, model: client.GenerativeModel(modelName)}, nil
}

func (g *GeminiChat) Name() string { return "gemini" }

// Close releases the underlying client.
func (g *GeminiChat) Close() error { return g.client.Close() }

func (g *GeminiChat) Complete(ctx context.Context, req Request) (*Reply, error) {
	history, err := convertMessagesToGemini(req.History)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, errors.New("nothing to send to Gemini")
	}

	g.model.Tools = convertToolsToGemini(req.Tools)
	if req.Instructions != "" {
		g.model.SystemInstruction = genai.NewUserContent(genai.Text(req.Instructions))
	}

	// The last content is the new prompt.
	last := history[len(history)-1]
	chatSession := g.model.StartChat()
	chatSession.History = history[:len(history)-1]
	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Gemini")
	}
	return processGeminiResponse(resp)
}

func convertMessagesToGemini(messages []session.Message) ([]*genai.Content, error) {
	var contents []*genai.Content
	for _, group := range groupMessages(messages) {
		msg := group[0]
		switch msg.Role {
		case session.RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args, err := tc.Arguments()
				if err != nil {
					return nil, errors.Wrapf(err, "tool call %s", tc.ID)
				}
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case session.RoleTool:
			var parts []genai.Part
			for _, m := range group {
				key := "output"
				if m.Result.IsError {
					key = "error"
				}
				parts = append(parts, genai.FunctionResponse{
					Name:     m.Result.Name,
					Response: map[string]any{key: m.Content},
				})
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: parts})
		default:
			contents = append(contents, genai.NewUserContent(genai.Text(msg.Content)))
		}
	}
	return contents, nil
}

func convertToolsToGemini(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, t := range ts {
		schema := t.Schema()
		params := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(schema.Properties)),
			Required:   schema.Required,
		}
		for name, p := range schema.Properties {
			params.Properties[name] = geminiSchema(p)
		}
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

func geminiSchema(p tools.Property) *genai.Schema {
	s := &genai.Schema{Description: p.Description, Enum: p.Enum}
	switch p.Type {
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
		if p.Items != nil {
			s.Items = geminiSchema(*p.Items)
		} else {
			s.Items = &genai.Schema{Type: genai.TypeString}
		}
	case "object":
		s.Type = genai.TypeObject
		s.Required = p.Required
		if len(p.Properties) > 0 {
			s.Properties = make(map[string]*genai.Schema, len(p.Properties))
			for name, child := range p.Properties {
				s.Properties[name] = geminiSchema(child)
			}
		}
	default:
		s.Type = genai.TypeString
	}
	return s
}

func processGeminiResponse(resp *genai.GenerateContentResponse) (*Reply, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("received an empty response from Gemini")
	}

	reply := &Reply{}
	if m := resp.UsageMetadata; m != nil {
		reply.Usage = Usage{InputTokens: int64(m.PromptTokenCount), OutputTokens: int64(m.CandidatesTokenCount)}
	}
	var text []string
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text = append(text, string(v))
		case genai.FunctionCall:
			args, err := json.Marshal(v.Args)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to encode arguments for %s", v.Name)
			}
			if v.Args == nil {
				args = nil
			}
			reply.ToolCalls = append(reply.ToolCalls, session.NewToolCall("call_"+uuid.NewString(), v.Name, args))
		default:
			return nil, errors.New("unsupported part type in Gemini response: %T", v)
		}
	}
	reply.Text = strings.Join(text, "")
	return reply, nil
}
