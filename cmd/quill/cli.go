package main

import "github.com/m4xw311/quill/config"

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Chat   ChatCmd   `cmd:"" default:"withargs" help:"Interactive session (default)"`
	ACP    ACPCmd    `cmd:"" name:"acp" help:"Serve the Agent Client Protocol over stdio"`
	Replay ReplayCmd `cmd:"" help:"Print a recorded transcript"`
}

// Globals are shared by every command.
type Globals struct {
	Backend         string `short:"b" help:"LLM backend: openai, anthropic, gemini, bedrock or mock"`
	Model           string `short:"m" help:"Model name (backend default when empty)"`
	Toolset         string `short:"t" help:"Toolset of the main agent"`
	API             string `help:"Calling convention: completion or responses"`
	ReasoningEffort string `help:"Reasoning effort for the responses API: minimal, low, medium or high"`
	NoPermissions   bool   `help:"Run every tool without asking"`
	NonInteractive  bool   `help:"Deny tools that would need confirmation instead of asking"`
	WebSearch       bool   `help:"Enable the web_search and web_fetch tools"`
	LogFile         string `help:"Append the transcript as JSON lines to this file" type:"path"`
	LogDB           string `help:"Record the transcript in this SQLite database" type:"path"`
	DebugLog        string `help:"Write diagnostic logs to this file instead of stderr" type:"path"`
	Verbose         int    `short:"v" type:"counter" help:"Diagnostic log level (-v info, -vv debug)"`
}

// ChatCmd runs the interactive terminal.
type ChatCmd struct {
	Prompt        []string `arg:"" optional:"" help:"Initial message"`
	ToolVerbosity string   `enum:"none,info,all" default:"info" help:"Tool output shown: none, info or all"`
}

// ACPCmd serves editors over stdio.
type ACPCmd struct{}

// ReplayCmd prints a transcript written with --log-file or --log-db.
type ReplayCmd struct {
	File    string `arg:"" help:"Transcript file (.jsonl, or .db for SQLite)" type:"existingfile"`
	Session string `help:"Only print this session and its subagents"`
}

func (g *Globals) flags() config.Flags {
	return config.Flags{
		Backend:         g.Backend,
		Model:           g.Model,
		Toolset:         g.Toolset,
		API:             g.API,
		ReasoningEffort: g.ReasoningEffort,
		NoPermissions:   g.NoPermissions,
		NonInteractive:  g.NonInteractive,
		WebSearch:       g.WebSearch,
		LogFile:         g.LogFile,
		LogDB:           g.LogDB,
	}
}
