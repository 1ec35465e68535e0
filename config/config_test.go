package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m4xw311/quill/errors"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFilesMerge(t *testing.T) {
	user := writeConfig(t, t.TempDir(), `
llm: anthropic
model: claude-sonnet
toolsets:
  - name: default
    tools: [read_file, list_files]
  - name: review
    tools: [grep]
subagents:
  explore:
    description: Reads the code base
    tools: [read_file, grep]
  writer:
    description: Writes files
    tools: [write_file]
filesystem_access:
  hidden: [".env"]
`)
	project := writeConfig(t, t.TempDir(), `
model: claude-opus
toolsets:
  - name: default
    tools: [read_file, run_command]
subagents:
  explore:
    description: Explores with shell access
    tools: [read_file, run_command]
    max_turns: 5
filesystem_access:
  hidden: ["secrets/**"]
  read_only: ["go.sum"]
`)

	cfg, err := LoadFiles(user, project, filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}

	if cfg.LLMClient != "anthropic" || cfg.Model != "claude-opus" {
		t.Errorf("scalar merge wrong: llm=%q model=%q", cfg.LLMClient, cfg.Model)
	}
	if len(cfg.Toolsets) != 2 {
		t.Fatalf("expected toolsets merged by name, got %+v", cfg.Toolsets)
	}
	ts, err := cfg.GetToolset("")
	if err != nil || ts == nil || ts.Tools[1] != "run_command" {
		t.Errorf("default toolset not overridden: %+v, %v", ts, err)
	}
	if cfg.Subagents["explore"].MaxTurns != 5 || cfg.Subagents["writer"].Description != "Writes files" {
		t.Errorf("subagents not merged by name: %+v", cfg.Subagents)
	}
	hidden := cfg.FilesystemAccess.Hidden
	if len(hidden) != 4 || hidden[0] != DirName {
		t.Errorf("hidden paths should accumulate after the config dir, got %v", hidden)
	}
	if len(cfg.FilesystemAccess.ReadOnly) != 1 {
		t.Errorf("read-only paths not applied: %v", cfg.FilesystemAccess.ReadOnly)
	}
}

func TestLoadFilesInvalidYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "toolsets: [unclosed")
	if _, err := LoadFiles(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestGetToolset(t *testing.T) {
	cfg := &Config{}
	ts, err := cfg.GetToolset("")
	if err != nil || ts != nil {
		t.Errorf("no toolsets should mean all tools, got %+v, %v", ts, err)
	}

	cfg.Toolsets = []Toolset{{Name: "review", Tools: []string{"grep"}}}
	if _, err := cfg.GetToolset("missing"); err == nil {
		t.Errorf("expected an error for an unknown toolset")
	} else {
		var ce *errors.ConfigurationError
		if !errors.As(err, &ce) {
			t.Errorf("expected a ConfigurationError, got %T", err)
		}
	}
}

func TestResolve(t *testing.T) {
	yes := true
	cfg := &Config{
		LLMClient:      "openai",
		CommandTimeout: 5,
		Subagents: map[string]SubagentType{
			"explore": {Description: "explore", Tools: []string{"grep"}},
			"trusted": {Tools: []string{"run_command"}, SkipPermissions: &yes, MaxTurns: 3},
		},
	}

	s, err := cfg.Resolve(Flags{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.API != APIResponses {
		t.Errorf("openai should default to the responses API, got %q", s.API)
	}
	if s.MaxDepth != DefaultMaxDepth || s.ReasoningEffort != DefaultReasoningEffort {
		t.Errorf("defaults not applied: depth=%d effort=%q", s.MaxDepth, s.ReasoningEffort)
	}
	if s.CommandTimeout != 5*time.Second {
		t.Errorf("command timeout = %v", s.CommandTimeout)
	}
	if s.MainTools != nil {
		t.Errorf("no toolset should leave MainTools nil, got %v", s.MainTools)
	}

	explore, err := s.SubagentType("explore")
	if err != nil || explore.Name != "explore" || explore.MaxTurns != DefaultSubagentTurns {
		t.Errorf("unexpected explore type %+v, %v", explore, err)
	}
	if s.SkipPermissionsFor(explore) {
		t.Errorf("explore should inherit the session policy")
	}
	trusted, _ := s.SubagentType("trusted")
	if !s.SkipPermissionsFor(trusted) || trusted.MaxTurns != 3 {
		t.Errorf("trusted type overrides not honoured: %+v", trusted)
	}
	if _, err := s.SubagentType("nope"); err == nil {
		t.Errorf("expected an error for an unknown subagent type")
	}
	if names := s.SubagentNames(); len(names) != 2 || names[0] != "explore" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestResolveRejects(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		flags Flags
	}{
		{"responses on anthropic", Config{LLMClient: "anthropic"}, Flags{API: APIResponses}},
		{"unknown api", Config{}, Flags{API: "streaming"}},
		{"unknown effort", Config{}, Flags{ReasoningEffort: "extreme"}},
		{"unknown toolset", Config{Toolsets: []Toolset{{Name: "default"}}}, Flags{Toolset: "other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cfg.Resolve(tt.flags); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}

func TestResolveFlagsOverride(t *testing.T) {
	cfg := &Config{LLMClient: "openai", Model: "gpt-4.1", API: APIResponses}
	s, err := cfg.Resolve(Flags{Backend: "anthropic", Model: "claude", API: APICompletion, NoPermissions: true, WebSearch: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Backend != "anthropic" || s.Model != "claude" || s.API != APICompletion {
		t.Errorf("flags not applied: %+v", s)
	}
	if !s.SkipPermissions || !s.WebSearch {
		t.Errorf("policy flags not applied: %+v", s)
	}
}
