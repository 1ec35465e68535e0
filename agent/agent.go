package agent

import (
	"context"

	"github.com/m4xw311/quill/config"
	"github.com/m4xw311/quill/llm"
	"github.com/m4xw311/quill/permission"
	"github.com/m4xw311/quill/tools"
	"github.com/m4xw311/quill/transcript"
)

// Agent holds what every session of one process shares and builds the
// top-level sessions.
type Agent struct {
	Settings *config.Settings
	Factory  llm.Factory
	// Registry holds every tool; sessions get subsets of it.
	Registry *tools.Registry
	Recorder transcript.Recorder
}

func New(s *config.Settings, factory llm.Factory, registry *tools.Registry, rec transcript.Recorder) *Agent {
	if rec == nil {
		rec = transcript.Nop{}
	}
	return &Agent{Settings: s, Factory: factory, Registry: registry, Recorder: rec}
}

// Policy returns the permission policy of top-level sessions.
func (a *Agent) Policy() permission.Policy {
	p := permission.Policy{SkipPermissions: a.Settings.SkipPermissions, Mode: permission.ModeAsk}
	if a.Settings.NonInteractive {
		p.Mode = permission.ModeDeny
	}
	return p
}

// NewSession builds a top-level session with the configured main tools, a
// fresh provider and, when subagent types exist, the subagent tool.
// confirmer may be nil, in which case calls needing a prompt are denied.
func (a *Agent) NewSession(ctx context.Context, confirmer permission.Confirmer, cb Callbacks) (*Session, error) {
	reg, withSubagent, err := a.mainTools()
	if err != nil {
		return nil, err
	}

	sup := &Supervisor{
		Settings:  a.Settings,
		Factory:   a.Factory,
		Registry:  a.Registry,
		Recorder:  a.Recorder,
		Confirmer: confirmer,
		Callbacks: cb,
	}
	if withSubagent {
		if reg, err = reg.With(sup.Tool(0, "")); err != nil {
			return nil, err
		}
	}

	provider, err := a.Factory(ctx, "")
	if err != nil {
		return nil, err
	}

	s := NewSession(Options{
		Instructions: Instructions(a.Settings.WorkDir),
		Provider:     provider,
		Tools:        reg,
		Gate:         &permission.Gate{Policy: a.Policy(), Confirmer: confirmer},
		Recorder:     a.Recorder,
		Callbacks:    cb,
	})
	s.bindSubagentTool(sup)
	return s, nil
}

// mainTools resolves the main tool names. The subagent tool is offered when
// subagent types are configured, the depth limit allows it, and the toolset
// either lists it or selects every tool.
func (a *Agent) mainTools() (*tools.Registry, bool, error) {
	canDispatch := len(a.Settings.Subagents) > 0 && a.Settings.MaxDepth > 0
	if a.Settings.MainTools == nil {
		return a.Registry, canDispatch, nil
	}

	var names []string
	listed := false
	for _, name := range a.Settings.MainTools {
		if name == SubagentToolName {
			listed = true
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		reg, err := tools.NewRegistryOf()
		return reg, listed && canDispatch, err
	}
	reg, err := a.Registry.Subset(names)
	return reg, listed && canDispatch, err
}
