package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/m4xw311/quill/llm"
	"github.com/m4xw311/quill/session"
	"github.com/m4xw311/quill/tools"
)

// Declining results as the model sees them.
const (
	deniedByUser   = "Error: Tool execution was denied by user."
	deniedByPolicy = "Error: Tool execution was denied by the permission policy."
)

// step answers one provider call.
type step func(ctx context.Context, req llm.Request) (*llm.Reply, error)

func say(text string, calls ...session.ToolCall) step {
	return func(ctx context.Context, req llm.Request) (*llm.Reply, error) {
		return &llm.Reply{Text: text, ToolCalls: calls}, nil
	}
}

// hang blocks until the call is cancelled, signalling started first.
func hang(started chan<- struct{}) step {
	return func(ctx context.Context, req llm.Request) (*llm.Reply, error) {
		if started != nil {
			close(started)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func call(id, name string, args string) session.ToolCall {
	return session.NewToolCall(id, name, []byte(args))
}

// scripted plays steps in order and records every request.
type scripted struct {
	name string

	mu       sync.Mutex
	steps    []step
	requests []llm.Request
}

func script(steps ...step) *scripted { return &scripted{name: "scripted", steps: steps} }

func (p *scripted) Name() string { return p.name }

func (p *scripted) Send(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	if len(p.steps) == 0 {
		p.mu.Unlock()
		return &llm.Reply{Text: "out of script"}, nil
	}
	next := p.steps[0]
	p.steps = p.steps[1:]
	p.mu.Unlock()
	return next(ctx, req)
}

func (p *scripted) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.requests...)
}

func toolNames(req llm.Request) []string {
	var names []string
	for _, t := range req.Tools {
		names = append(names, t.Name())
	}
	return names
}

// fakeTool runs fn and counts executions.
type fakeTool struct {
	name   string
	effect tools.SideEffect
	fn     func(ctx context.Context, args map[string]interface{}) (string, error)

	mu    sync.Mutex
	calls []map[string]interface{}
}

func (f *fakeTool) Name() string                 { return f.name }
func (f *fakeTool) Description() string          { return "fake " + f.name }
func (f *fakeTool) Schema() tools.Schema         { return tools.Schema{} }
func (f *fakeTool) SideEffect() tools.SideEffect { return f.effect }

func (f *fakeTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, args)
	}
	b, _ := json.Marshal(args)
	return f.name + " ok " + string(b), nil
}

func (f *fakeTool) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// confirmer answers every prompt with answer and counts prompts.
type confirmer struct {
	answer bool

	mu      sync.Mutex
	prompts int
}

func (c *confirmer) Confirm(ctx context.Context, call session.ToolCall, tool tools.Tool) (bool, error) {
	c.mu.Lock()
	c.prompts++
	c.mu.Unlock()
	return c.answer, nil
}

func (c *confirmer) Prompts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompts
}

func registryOf(t *testing.T, list ...tools.Tool) *tools.Registry {
	t.Helper()
	r, err := tools.NewRegistryOf(list...)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func roles(msgs []session.Message) []session.Role {
	out := make([]session.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func equalRoles(got []session.Role, want ...session.Role) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
