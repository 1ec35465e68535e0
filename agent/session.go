package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m4xw311/quill/errors"
	"github.com/m4xw311/quill/llm"
	"github.com/m4xw311/quill/permission"
	"github.com/m4xw311/quill/session"
	"github.com/m4xw311/quill/tools"
	"github.com/m4xw311/quill/transcript"
)

// State is where a session is in its turn loop.
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingModel      State = "awaiting-model"
	StateAwaitingPermission State = "awaiting-permission"
	StateExecutingTool      State = "executing-tool"
	StateDone               State = "done"
	StateCancelled          State = "cancelled"
	StateFatal              State = "fatal-error"
)

const interruptedResult = "Error: interrupted by the user"

// Outcome is how a Run ended.
type Outcome struct {
	State  State
	Answer string
}

// Callbacks let a front-end follow a session. Every field is optional.
type Callbacks struct {
	OnStateChange      func(State)
	OnAssistantMessage func(text, reasoning string)
	OnToolCall         func(call session.ToolCall)
	OnToolResult       func(call session.ToolCall, result session.ToolResult)
	OnWarning          func(warning string)
}

// Options configures a Session.
type Options struct {
	// ID defaults to a random uuid.
	ID       string
	ParentID string
	Depth    int

	Instructions string
	Provider     llm.Provider
	Tools        *tools.Registry
	Gate         *permission.Gate
	Recorder     transcript.Recorder
	// MaxTurns caps provider calls per Run. Zero means unlimited.
	MaxTurns  int
	Callbacks Callbacks
}

// Session owns one conversation: its history, tool subset, provider and
// permission policy. Run is driven by one goroutine at a time.
type Session struct {
	opts    Options
	history *session.History

	mu      sync.Mutex
	running bool
	state   State
	usage   llm.Usage
}

// NewSession creates an idle session with an empty history. Missing options
// default to a fresh id, no tools, a gate that denies every prompt and no
// transcript.
func NewSession(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Tools == nil {
		opts.Tools, _ = tools.NewRegistryOf()
	}
	if opts.Gate == nil {
		opts.Gate = &permission.Gate{Policy: permission.Policy{Mode: permission.ModeDeny}}
	}
	if opts.Recorder == nil {
		opts.Recorder = transcript.Nop{}
	}
	return &Session{opts: opts, history: session.NewHistory(), state: StateIdle}
}

func (s *Session) ID() string { return s.opts.ID }
func (s *Session) Depth() int { return s.opts.Depth }
func (s *Session) Provider() llm.Provider { return s.opts.Provider }

// ToolNames lists the tools this session exposes to the model.
func (s *Session) ToolNames() []string { return s.opts.Tools.Names() }

// History returns a copy of the conversation so far.
func (s *Session) History() []session.Message { return s.history.Messages() }

// State returns the current state, or the final state of the last Run.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Usage returns the token usage reported by the latest model call.
func (s *Session) Usage() llm.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if cb := s.opts.Callbacks.OnStateChange; cb != nil {
		cb(st)
	}
}

// Run submits one user message and drives the turn loop until the model
// answers without tool calls, the context is cancelled, or a fatal error
// occurs. Tool failures never end a run; they are reported to the model.
func (s *Session) Run(ctx context.Context, input string) (Outcome, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Outcome{State: s.State()}, errors.Wrapf(errors.ErrSessionBusy, "session %s", s.opts.ID)
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.record(transcript.Event{Kind: transcript.TurnStarted})
	s.heal()

	s.history.Append(session.UserMessage(input))
	s.record(transcript.Event{Kind: transcript.UserMessage, Text: input})

	var answer string
	for turn := 1; ; turn++ {
		if s.opts.MaxTurns > 0 && turn > s.opts.MaxTurns {
			slog.Debug("turn limit reached", "session", s.opts.ID, "max_turns", s.opts.MaxTurns)
			return s.finish(StateDone, answer, nil)
		}
		if ctx.Err() != nil {
			return s.finish(StateCancelled, "", nil)
		}

		s.setState(StateAwaitingModel)
		reply, err := s.opts.Provider.Send(ctx, llm.Request{
			Instructions: s.opts.Instructions,
			History:      s.history.Messages(),
			Tools:        s.opts.Tools.Tools(),
		})
		if err != nil {
			if ctx.Err() != nil || errors.IsCancelled(err) {
				return s.finish(StateCancelled, "", nil)
			}
			return s.finish(StateFatal, "", err)
		}
		if err := llm.ValidateReply(s.opts.Provider.Name(), reply); err != nil {
			return s.finish(StateFatal, "", err)
		}
		s.mu.Lock()
		s.usage = reply.Usage
		s.mu.Unlock()

		msg := s.history.Append(session.AssistantMessage(reply.Text, reply.Reasoning, reply.ToolCalls))
		s.record(transcript.Event{Kind: transcript.AssistantMessage, Text: reply.Text, Reasoning: reply.Reasoning})
		if cb := s.opts.Callbacks.OnAssistantMessage; cb != nil && (reply.Text != "" || reply.Reasoning != "") {
			cb(reply.Text, reply.Reasoning)
		}
		if reply.Text != "" {
			answer = reply.Text
		}
		if len(msg.ToolCalls) == 0 {
			return s.finish(StateDone, reply.Text, nil)
		}

		for _, call := range msg.ToolCalls {
			result, err := s.dispatch(ctx, call)
			if err != nil {
				return s.finish(StateCancelled, "", nil)
			}
			s.history.Append(session.ToolMessage(result))
			s.record(transcript.Event{Kind: transcript.ToolResult, CallID: call.ID, Tool: call.Name, Text: result.Content, IsError: result.IsError})
			if cb := s.opts.Callbacks.OnToolResult; cb != nil {
				cb(call, result)
			}
		}
	}
}

func (s *Session) finish(st State, answer string, err error) (Outcome, error) {
	s.setState(st)
	if st == StateCancelled {
		s.record(transcript.Event{Kind: transcript.Cancelled})
	}
	ev := transcript.Event{Kind: transcript.TurnCompleted, State: string(st)}
	if err != nil {
		ev.Text = err.Error()
		ev.IsError = true
		slog.Error("turn failed", "session", s.opts.ID, "error", err)
	}
	s.record(ev)
	return Outcome{State: st, Answer: answer}, err
}

// heal answers the calls a cancelled turn left behind so the history can be
// submitted again.
func (s *Session) heal() {
	for _, call := range s.history.Unpaired() {
		result := session.ToolResult{CallID: call.ID, Name: call.Name, Content: interruptedResult, IsError: true}
		s.history.Append(session.ToolMessage(result))
		s.record(transcript.Event{Kind: transcript.ToolResult, CallID: call.ID, Tool: call.Name, Text: result.Content, IsError: true})
	}
}

// dispatch authorizes and runs one call. The error is non-nil only when the
// call was cancelled, in which case no result must be recorded.
func (s *Session) dispatch(ctx context.Context, call session.ToolCall) (session.ToolResult, error) {
	s.record(transcript.Event{Kind: transcript.ToolCallRequested, CallID: call.ID, Tool: call.Name, Args: call.Args})
	if cb := s.opts.Callbacks.OnToolCall; cb != nil {
		cb(call)
	}
	result := session.ToolResult{CallID: call.ID, Name: call.Name}

	tool, ok := s.opts.Tools.Get(call.Name)
	if !ok {
		result.Content = fmt.Sprintf("Error: unknown tool %q", call.Name)
		result.IsError = true
		return result, nil
	}

	s.setState(StateAwaitingPermission)
	decision, promptErr := s.opts.Gate.Authorize(ctx, call, tool)
	if promptErr != nil {
		if ctx.Err() != nil || errors.IsCancelled(promptErr) {
			return result, promptErr
		}
		s.warn(fmt.Sprintf("confirmation for %s failed: %v", call.Name, promptErr))
	}
	s.record(transcript.Event{Kind: transcript.PermissionDecided, CallID: call.ID, Tool: call.Name, Decision: string(decision)})
	if !decision.Allowed() {
		denial := permission.Denial(call, decision, promptErr)
		slog.Debug("tool call declined", "tool", call.Name, "decision", decision)
		result.Content = "Error: " + denial.Error()
		result.IsError = true
		return result, nil
	}

	args, err := call.Arguments()
	if err != nil {
		result.Content = fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err)
		result.IsError = true
		return result, nil
	}

	s.setState(StateExecutingTool)
	start := time.Now()
	out, err := execute(ctx, tool, args)
	slog.Debug("tool executed", "session", s.opts.ID, "tool", call.Name, "duration", time.Since(start), "error", err)
	if ctx.Err() != nil {
		return result, errors.Wrapf(errors.ErrCancelled, "running %s", call.Name)
	}
	if err != nil {
		result.Content = "Error: " + err.Error()
		result.IsError = true
		return result, nil
	}
	result.Content = out
	return result, nil
}

// execute runs a tool, turning a panic into a ToolExecutionFault.
func execute(ctx context.Context, tool tools.Tool, args map[string]interface{}) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool panicked", "tool", tool.Name(), "panic", r, "stack", string(debug.Stack()))
			err = &errors.ToolExecutionFault{Tool: tool.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err = tool.Execute(ctx, args)
	if err != nil {
		err = &errors.ToolExecutionFault{Tool: tool.Name(), Err: err}
	}
	return out, err
}

func (s *Session) warn(msg string) {
	slog.Warn(msg, "session", s.opts.ID)
	if cb := s.opts.Callbacks.OnWarning; cb != nil {
		cb(msg)
	}
}

func (s *Session) record(e transcript.Event) {
	e.Time = time.Now()
	e.SessionID = s.opts.ID
	e.ParentID = s.opts.ParentID
	e.Depth = s.opts.Depth
	if err := s.opts.Recorder.Record(e); err != nil {
		slog.Warn("transcript write failed", "session", s.opts.ID, "error", err)
	}
}
