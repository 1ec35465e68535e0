package config

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/m4xw311/quill/errors"
)

const (
	APICompletion = "completion"
	APIResponses  = "responses"

	DefaultMaxDepth        = 2
	DefaultSubagentTurns   = 20
	DefaultCommandTimeout  = 60 * time.Second
	DefaultReasoningEffort = "medium"
)

var reasoningEfforts = []string{"minimal", "low", "medium", "high"}

// Flags carries the command line overrides applied on top of the files.
type Flags struct {
	Backend         string
	Model           string
	Toolset         string
	API             string
	ReasoningEffort string
	NoPermissions   bool
	NonInteractive  bool
	WebSearch       bool
	LogFile         string
	LogDB           string
}

// Settings is the resolved configuration threaded into session construction.
type Settings struct {
	Backend         string
	Model           string
	API             string
	ReasoningEffort string

	// MainTools names the tools of the top-level session. Nil means every
	// registered tool.
	MainTools []string
	Subagents map[string]SubagentType
	MaxDepth  int

	SkipPermissions bool
	NonInteractive  bool
	WebSearch       bool

	AllowedCommands  []string
	FilesystemAccess FilesystemAccess
	CommandTimeout   time.Duration
	MCPServers       []MCPServer

	LogFile string
	LogDB   string
	WorkDir string
}

// Resolve merges flags over the loaded configuration.
func (c *Config) Resolve(f Flags) (*Settings, error) {
	s := &Settings{
		Backend:          firstNonEmpty(f.Backend, c.LLMClient, "openai"),
		Model:            firstNonEmpty(f.Model, c.Model),
		ReasoningEffort:  firstNonEmpty(f.ReasoningEffort, c.ReasoningEffort, DefaultReasoningEffort),
		MaxDepth:         c.MaxDepth,
		SkipPermissions:  f.NoPermissions,
		NonInteractive:   f.NonInteractive,
		WebSearch:        f.WebSearch,
		AllowedCommands:  c.AllowedCommands,
		FilesystemAccess: c.FilesystemAccess,
		MCPServers:       c.MCPServers,
		LogFile:          f.LogFile,
		LogDB:            f.LogDB,
		Subagents:        map[string]SubagentType{},
	}
	if s.MaxDepth <= 0 {
		s.MaxDepth = DefaultMaxDepth
	}
	s.CommandTimeout = DefaultCommandTimeout
	if c.CommandTimeout > 0 {
		s.CommandTimeout = time.Duration(c.CommandTimeout) * time.Second
	}

	defaultAPI := APICompletion
	if s.Backend == "openai" {
		defaultAPI = APIResponses
	}
	s.API = firstNonEmpty(f.API, c.API, defaultAPI)
	switch s.API {
	case APICompletion:
	case APIResponses:
		if s.Backend != "openai" {
			return nil, errors.NewConfigError("api", "the responses API is only available with the openai backend, not %q", s.Backend)
		}
	default:
		return nil, errors.NewConfigError("api", "unknown mode %q (want %s or %s)", s.API, APICompletion, APIResponses)
	}

	if !contains(reasoningEfforts, s.ReasoningEffort) {
		return nil, errors.NewConfigError("reasoning effort", "unknown level %q (want one of %s)", s.ReasoningEffort, strings.Join(reasoningEfforts, ", "))
	}

	ts, err := c.GetToolset(f.Toolset)
	if err != nil {
		return nil, err
	}
	if ts != nil {
		s.MainTools = append([]string(nil), ts.Tools...)
	}

	for name, st := range c.Subagents {
		st.Name = name
		if st.MaxTurns <= 0 {
			st.MaxTurns = DefaultSubagentTurns
		}
		s.Subagents[name] = st
	}

	if wd, err := os.Getwd(); err == nil {
		s.WorkDir = wd
	}
	return s, nil
}

// SubagentNames returns the configured subagent type names in sorted order.
func (s *Settings) SubagentNames() []string {
	names := make([]string, 0, len(s.Subagents))
	for name := range s.Subagents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SubagentType looks up a subagent type by name.
func (s *Settings) SubagentType(name string) (SubagentType, error) {
	st, ok := s.Subagents[name]
	if !ok {
		return SubagentType{}, errors.NewConfigError("subagent type "+name,
			"unknown (available: %s)", strings.Join(s.SubagentNames(), ", "))
	}
	return st, nil
}

// SkipPermissionsFor returns the permission policy for a subagent type.
func (s *Settings) SkipPermissionsFor(st SubagentType) bool {
	if st.SkipPermissions != nil {
		return *st.SkipPermissions
	}
	return s.SkipPermissions
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
