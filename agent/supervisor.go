package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m4xw311/quill/config"
	"github.com/m4xw311/quill/errors"
	"github.com/m4xw311/quill/llm"
	"github.com/m4xw311/quill/permission"
	"github.com/m4xw311/quill/session"
	"github.com/m4xw311/quill/tools"
	"github.com/m4xw311/quill/transcript"
)

// SubagentToolName is the tool through which a model delegates a task.
const SubagentToolName = "subagent"

const noSubagentAnswer = "Subagent completed without response."

// Task is one delegated piece of work.
type Task struct {
	Type        string
	Description string
	Context     string
	// MaxTurns overrides the type's limit when positive.
	MaxTurns int

	ParentID string
	// Depth is the depth of the dispatching session.
	Depth int
}

// Supervisor runs subagents: isolated child sessions with their own history,
// provider and tool subset.
type Supervisor struct {
	Settings  *config.Settings
	Factory   llm.Factory
	Registry  *tools.Registry
	Recorder  transcript.Recorder
	Confirmer permission.Confirmer
	// Callbacks are attached to every child session.
	Callbacks Callbacks
}

// Dispatch runs task to completion in a fresh child session and folds the
// outcome into one tool result. Configuration problems become error results.
func (sv *Supervisor) Dispatch(ctx context.Context, task Task) session.ToolResult {
	result := session.ToolResult{Name: SubagentToolName}
	child, err := sv.child(ctx, task)
	if err != nil {
		slog.Warn("subagent not started", "type", task.Type, "error", err)
		result.Content = "Error: " + err.Error()
		result.IsError = true
		return result
	}

	slog.Debug("subagent started", "type", task.Type, "session", child.ID(), "parent", task.ParentID, "depth", child.Depth())
	outcome, err := child.Run(ctx, subagentKickoff)
	switch {
	case err != nil:
		result.Content = "Error running subagent: " + err.Error()
		result.IsError = true
	case outcome.State == StateCancelled:
		result.Content = "Error: subagent was interrupted by the user"
		result.IsError = true
	case outcome.Answer == "":
		result.Content = noSubagentAnswer
	default:
		result.Content = outcome.Answer
	}
	return result
}

func (sv *Supervisor) child(ctx context.Context, task Task) (*Session, error) {
	st, err := sv.Settings.SubagentType(task.Type)
	if err != nil {
		return nil, err
	}
	depth := task.Depth + 1
	if depth > sv.Settings.MaxDepth {
		return nil, errors.NewConfigError("subagent type "+task.Type, "maximum subagent depth %d reached", sv.Settings.MaxDepth)
	}

	var names []string
	wantsSubagent := false
	for _, name := range st.Tools {
		if name == SubagentToolName {
			wantsSubagent = true
			continue
		}
		names = append(names, name)
	}
	var reg *tools.Registry
	if len(names) > 0 {
		if reg, err = sv.Registry.Subset(names); err != nil {
			return nil, err
		}
	} else {
		reg, _ = tools.NewRegistryOf()
	}
	if wantsSubagent && depth < sv.Settings.MaxDepth {
		if reg, err = reg.With(sv.Tool(depth, "")); err != nil {
			return nil, err
		}
	}
	if reg.Len() == 0 {
		return nil, errors.NewConfigError("subagent type "+task.Type, "no valid tools configured")
	}

	provider, err := sv.Factory(ctx, st.Model)
	if err != nil {
		return nil, errors.Wrapf(err, "creating provider for subagent %s", task.Type)
	}

	maxTurns := st.MaxTurns
	if task.MaxTurns > 0 {
		maxTurns = task.MaxTurns
	}
	policy := permission.Policy{SkipPermissions: sv.Settings.SkipPermissionsFor(st), Mode: permission.ModeAsk}
	if sv.Settings.NonInteractive {
		policy.Mode = permission.ModeDeny
	}

	s := NewSession(Options{
		ParentID:     task.ParentID,
		Depth:        depth,
		Instructions: subagentInstructions(st.Name, st.Description, sv.Settings.WorkDir, task),
		Provider:     provider,
		Tools:        reg,
		Gate:         &permission.Gate{Policy: policy, Confirmer: sv.Confirmer},
		Recorder:     sv.Recorder,
		MaxTurns:     maxTurns,
		Callbacks:    sv.Callbacks,
	})
	// Tools of the child dispatch on its behalf.
	s.bindSubagentTool(sv)
	return s, nil
}

// Tool returns the subagent tool for a session at depth. parentID may be
// empty and is filled in when the tool is bound to its session.
func (sv *Supervisor) Tool(depth int, parentID string) tools.Tool {
	return &subagentTool{sv: sv, depth: depth, parentID: parentID}
}

// bindSubagentTool points the session's subagent tool at the session itself.
func (s *Session) bindSubagentTool(sv *Supervisor) {
	t, ok := s.opts.Tools.Get(SubagentToolName)
	if !ok {
		return
	}
	if st, ok := t.(*subagentTool); ok && st.sv == sv {
		st.parentID = s.opts.ID
		st.depth = s.opts.Depth
	}
}

type subagentTool struct {
	sv       *Supervisor
	depth    int
	parentID string
}

func (t *subagentTool) Name() string { return SubagentToolName }

func (t *subagentTool) Description() string {
	var types []string
	for _, name := range t.sv.Settings.SubagentNames() {
		st := t.sv.Settings.Subagents[name]
		types = append(types, fmt.Sprintf("- %s: %s", name, st.Description))
	}
	list := "No subagent types configured."
	if len(types) > 0 {
		list = strings.Join(types, "\n")
	}
	return "Run a task in an isolated subagent with its own context.\n" +
		"Useful for complex tasks that would consume too much context.\n" +
		"The subagent runs independently and returns only the final result.\n\n" +
		"Available subagent types:\n" + list
}

func (t *subagentTool) Schema() tools.Schema {
	names := t.sv.Settings.SubagentNames()
	if len(names) == 0 {
		names = []string{"none"}
	}
	return tools.Schema{
		Properties: map[string]tools.Property{
			"type":      {Type: "string", Description: "The subagent type to use.", Enum: names},
			"task":      {Type: "string", Description: "Description of the task for the subagent to complete."},
			"context":   {Type: "string", Description: "Additional context to provide to the subagent (optional)."},
			"max_turns": {Type: "integer", Description: fmt.Sprintf("Maximum number of turns before stopping (default: %d).", config.DefaultSubagentTurns)},
		},
		Required: []string{"type", "task"},
	}
}

// SideEffect is mutating: a subagent may run any tool its type lists.
func (t *subagentTool) SideEffect() tools.SideEffect { return tools.Mutating }

func (t *subagentTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	typ, _ := args["type"].(string)
	desc, _ := args["task"].(string)
	if typ == "" || desc == "" {
		return "", errors.New("type and task are required")
	}
	extra, _ := args["context"].(string)
	maxTurns := 0
	if v, ok := args["max_turns"].(float64); ok {
		maxTurns = int(v)
	}

	result := t.sv.Dispatch(ctx, Task{
		Type:        typ,
		Description: desc,
		Context:     extra,
		MaxTurns:    maxTurns,
		ParentID:    t.parentID,
		Depth:       t.depth,
	})
	if ctx.Err() != nil {
		return "", errors.Wrapf(errors.ErrCancelled, "subagent %s", typ)
	}
	if result.IsError {
		return "", errors.New("%s", strings.TrimPrefix(result.Content, "Error: "))
	}
	return result.Content, nil
}
