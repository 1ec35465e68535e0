package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/quill/config"
	"github.com/m4xw311/quill/errors"
)

// SideEffect classifies what a tool may change. The permission gate lets
// read-only tools through without asking.
type SideEffect string

const (
	ReadOnly    SideEffect = "read-only"
	Mutating    SideEffect = "mutating"
	Destructive SideEffect = "destructive"
	Network     SideEffect = "network"
)

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	SideEffect() SideEffect
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry is a closed, name-keyed set of tools. It is built once and never
// mutated afterwards; Subset and With return new registries.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds the registry of built-in tools for the given settings,
// followed by any extra tools such as those discovered on MCP servers.
func NewRegistry(s *config.Settings, extra ...Tool) (*Registry, error) {
	guard := &PathGuard{
		Hidden:   s.FilesystemAccess.Hidden,
		ReadOnly: s.FilesystemAccess.ReadOnly,
		Root:     s.WorkDir,
	}
	builtins := []Tool{
		&ListFilesTool{guard: guard},
		&ReadFileTool{guard: guard},
		&WriteFileTool{guard: guard},
		&EditFileTool{guard: guard},
		&DeleteFileTool{guard: guard},
		&MoveFileTool{guard: guard},
		&CopyFileTool{guard: guard},
		&FileInfoTool{guard: guard},
		&FindFilesTool{guard: guard},
		&GrepTool{guard: guard},
		&RunCommandTool{allowedCommands: s.AllowedCommands, timeout: s.CommandTimeout, dir: s.WorkDir},
	}
	if s.WebSearch {
		builtins = append(builtins, NewWebSearchTool(), NewWebFetchTool())
	}

	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range append(builtins, extra...) {
		if err := r.register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewRegistryOf builds a registry holding exactly the given tools.
func NewRegistryOf(list ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range list {
		if err := r.register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(t Tool) error {
	if _, exists := r.tools[t.Name()]; exists {
		return errors.NewConfigError("tool "+t.Name(), "registered twice")
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of tools.
func (r *Registry) Len() int { return len(r.order) }

// Subset returns a registry restricted to the named tools. Names may be glob
// patterns such as "gopls__*" to select every tool of an MCP server. A plain
// name that is not registered is a configuration error.
func (r *Registry) Subset(names []string) (*Registry, error) {
	sub := &Registry{tools: make(map[string]Tool)}
	for _, name := range names {
		if strings.ContainsAny(name, "*?[") {
			matched := false
			for _, candidate := range r.order {
				ok, err := doublestar.Match(name, candidate)
				if err != nil {
					return nil, errors.NewConfigError("tool pattern "+name, "%v", err)
				}
				if ok {
					matched = true
					if _, dup := sub.tools[candidate]; !dup {
						_ = sub.register(r.tools[candidate])
					}
				}
			}
			if !matched {
				return nil, errors.NewConfigError("tool pattern "+name, "matches no registered tool")
			}
			continue
		}
		t, ok := r.tools[name]
		if !ok {
			return nil, errors.NewConfigError("tool "+name, "not registered (available: %s)", strings.Join(r.order, ", "))
		}
		if _, dup := sub.tools[name]; !dup {
			_ = sub.register(t)
		}
	}
	return sub, nil
}

// With returns a copy of the registry that also holds t.
func (r *Registry) With(t Tool) (*Registry, error) {
	out := &Registry{tools: make(map[string]Tool, len(r.tools)+1)}
	for _, name := range r.order {
		_ = out.register(r.tools[name])
	}
	if err := out.register(t); err != nil {
		return nil, err
	}
	return out, nil
}

// PathGuard enforces the hidden and read-only path rules. Patterns are
// doublestar globs matched against paths relative to Root.
type PathGuard struct {
	Hidden   []string
	ReadOnly []string
	Root     string
}

func (g *PathGuard) rel(path string) string {
	if g == nil || g.Root == "" {
		return filepath.ToSlash(filepath.Clean(path))
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(g.Root, path)
	}
	rel, err := filepath.Rel(g.Root, abs)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(path))
	}
	return filepath.ToSlash(rel)
}

// CheckRead fails when path is hidden.
func (g *PathGuard) CheckRead(path string) error {
	if g == nil {
		return nil
	}
	hidden, err := isPathRestricted(g.rel(path), g.Hidden)
	if err != nil {
		return err
	}
	if hidden {
		return errors.New("access denied: path '%s' is hidden", path)
	}
	return nil
}

// CheckWrite fails when path is hidden or read-only.
func (g *PathGuard) CheckWrite(path string) error {
	if err := g.CheckRead(path); err != nil {
		return err
	}
	if g == nil {
		return nil
	}
	readOnly, err := isPathRestricted(g.rel(path), g.ReadOnly)
	if err != nil {
		return err
	}
	if readOnly {
		return errors.New("access denied: path '%s' is read-only", path)
	}
	return nil
}

// IsHidden reports whether path matches a hidden rule.
func (g *PathGuard) IsHidden(path string) bool {
	return g.CheckRead(path) != nil
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// isCommandAllowed checks the command against the regex allowlist. An empty
// allowlist permits every command; approval is left to the permission gate.
func isCommandAllowed(command string, allowed []string) (bool, error) {
	if strings.TrimSpace(command) == "" {
		return false, nil
	}
	if len(allowed) == 0 {
		return true, nil
	}
	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			if command == pattern {
				return true, nil
			}
			continue
		}
		if re.MatchString(command) {
			return true, nil
		}
	}
	return false, nil
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok
}

func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

func boolArg(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}
