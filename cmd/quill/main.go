// Command quill is a coding agent for the terminal and for editors that
// speak the Agent Client Protocol.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/m4xw311/quill/agent"
	"github.com/m4xw311/quill/agent/acp"
	"github.com/m4xw311/quill/agent/terminal"
	"github.com/m4xw311/quill/config"
	"github.com/m4xw311/quill/errors"
	"github.com/m4xw311/quill/llm"
	"github.com/m4xw311/quill/tools"
	"github.com/m4xw311/quill/tools/mcp"
	"github.com/m4xw311/quill/transcript"
)

func main() {
	// API keys may live in a .env file next to the project.
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("quill"),
		kong.Description("A coding agent with tools, permissions and subagents."),
		kong.UsageOnError(),
	)
	closeLog, err := setupLogging(&cli.Globals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	err = kctx.Run(&cli.Globals)
	closeLog()
	kctx.FatalIfErrorf(err)
}

// setupLogging installs the default slog logger. Diagnostics go to stderr
// unless --debug-log names a file; stdout belongs to the front-end.
func setupLogging(g *Globals) (func(), error) {
	level := slog.LevelWarn
	switch {
	case g.Verbose >= 2:
		level = slog.LevelDebug
	case g.Verbose == 1:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if g.DebugLog != "" {
		if err := os.MkdirAll(filepath.Dir(g.DebugLog), 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating log directory")
		}
		f, err := os.OpenFile(g.DebugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "opening debug log")
		}
		w = f
		closeFn = func() { _ = f.Close() }
		if g.Verbose == 0 {
			level = slog.LevelDebug
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return closeFn, nil
}

// runtime is everything a front-end needs, plus the resources to release
// afterwards.
type runtime struct {
	agent   *agent.Agent
	closers []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			slog.Warn("cleanup failed", "error", err)
		}
	}
}

// build loads the configuration and wires providers, tools and transcript
// sinks into an agent.
func build(ctx context.Context, g *Globals) (*runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	settings, err := cfg.Resolve(g.flags())
	if err != nil {
		return nil, err
	}
	return buildWith(ctx, settings)
}

func buildWith(ctx context.Context, settings *config.Settings) (*runtime, error) {
	rt := &runtime{}

	rec, closers, err := openTranscript(settings)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, closers...)

	clients, err := mcp.StartAll(ctx, settings.MCPServers)
	if err != nil {
		slog.Warn("some MCP servers failed to start", "error", err)
	}
	var extra []tools.Tool
	for _, c := range clients {
		rt.closers = append(rt.closers, c.Stop)
		extra = append(extra, c.Tools()...)
	}

	reg, err := tools.NewRegistry(settings, extra...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	factory, err := llm.NewFactory(settings)
	if err != nil {
		rt.Close()
		return nil, err
	}
	slog.Debug("agent ready", "backend", settings.Backend, "api", settings.API, "tools", reg.Len(), "subagents", settings.SubagentNames())

	rt.agent = agent.New(settings, factory, reg, rec)
	return rt, nil
}

// openTranscript opens the sinks named by --log-file and --log-db.
func openTranscript(s *config.Settings) (transcript.Recorder, []func() error, error) {
	var sinks transcript.Multi
	var closers []func() error
	if s.LogFile != "" {
		w, err := transcript.OpenJSONL(s.LogFile)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, w)
		closers = append(closers, w.Close)
	}
	if s.LogDB != "" {
		db, err := transcript.OpenSQLite(s.LogDB)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, nil, err
		}
		sinks = append(sinks, db)
		closers = append(closers, db.Close)
	}
	switch len(sinks) {
	case 0:
		return transcript.Nop{}, nil, nil
	case 1:
		return sinks[0], closers, nil
	}
	return sinks, closers, nil
}

func (c *ChatCmd) Run(g *Globals) error {
	ctx := context.Background()
	rt, err := build(ctx, g)
	if err != nil {
		return err
	}
	defer rt.Close()

	term := terminal.New(rt.agent, terminal.Options{
		TTY:           os.Stdin,
		Verbosity:     terminal.Verbosity(c.ToolVerbosity),
		HandleSignals: true,
	})
	return term.Run(ctx, strings.Join(c.Prompt, " "))
}

func (c *ACPCmd) Run(g *Globals) error {
	ctx := context.Background()
	rt, err := build(ctx, g)
	if err != nil {
		return err
	}
	defer rt.Close()
	return acp.Run(ctx, rt.agent, os.Stdin, os.Stdout)
}

func (r *ReplayCmd) Run(g *Globals) error {
	return r.replay(context.Background(), os.Stdout)
}

func (r *ReplayCmd) replay(ctx context.Context, w io.Writer) error {
	var events []transcript.Event
	switch strings.ToLower(filepath.Ext(r.File)) {
	case ".db", ".sqlite", ".sqlite3":
		db, err := transcript.OpenSQLite(r.File)
		if err != nil {
			return err
		}
		defer db.Close()
		if events, err = db.Events(ctx, ""); err != nil {
			return err
		}
	default:
		f, err := os.Open(r.File)
		if err != nil {
			return errors.Wrapf(err, "opening transcript")
		}
		defer f.Close()
		if events, err = transcript.ReadJSONL(f); err != nil {
			return err
		}
	}
	if r.Session != "" {
		events = filterSession(events, r.Session)
	}
	return transcript.Replay(w, events)
}

// filterSession keeps the events of one session and of its subagents.
func filterSession(events []transcript.Event, id string) []transcript.Event {
	keep := map[string]bool{id: true}
	var out []transcript.Event
	for _, e := range events {
		if keep[e.SessionID] || keep[e.ParentID] {
			keep[e.SessionID] = true
			out = append(out, e)
		}
	}
	return out
}
