package config

import (
	"os"
	"path/filepath"

	"github.com/m4xw311/quill/errors"
	"gopkg.in/yaml.v3"
)

// DirName is the per-user and per-project configuration directory.
const DirName = ".quill"

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// ReadOnlyTools lists the server's tools that never need confirmation.
	ReadOnlyTools []string `yaml:"read_only_tools"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

// SubagentType describes a kind of subagent the model can dispatch.
type SubagentType struct {
	Name        string   `yaml:"-"`
	Description string   `yaml:"description"`
	Tools       []string `yaml:"tools"`
	Model       string   `yaml:"model"`
	MaxTurns    int      `yaml:"max_turns"`
	// SkipPermissions overrides the session policy for this type when set.
	SkipPermissions *bool `yaml:"skip_permissions"`
}

type Config struct {
	LLMClient        string                  `yaml:"llm"`
	Model            string                  `yaml:"model"`
	API              string                  `yaml:"api"`
	ReasoningEffort  string                  `yaml:"reasoning_effort"`
	MaxDepth         int                     `yaml:"max_depth"`
	CommandTimeout   int                     `yaml:"command_timeout"`
	Toolsets         []Toolset               `yaml:"toolsets"`
	Subagents        map[string]SubagentType `yaml:"subagents"`
	MCPServers       []MCPServer             `yaml:"mcp_servers"`
	AllowedCommands  []string                `yaml:"allowed_commands"`
	FilesystemAccess FilesystemAccess        `yaml:"filesystem_access"`
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, DirName, "config.yaml"))
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	paths = append(paths, filepath.Join(wd, DirName, "config.yaml"))
	return LoadFiles(paths...)
}

// LoadFiles merges the given files in order. Missing files are skipped.
func LoadFiles(paths ...string) (*Config, error) {
	cfg := &Config{}
	// The config directory is never visible to the model.
	cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, DirName, DirName+"/**")

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		layer, err := loadFromFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "error loading config %s", path)
		}
		cfg.merge(layer)
	}
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	layer := &Config{}
	if err := yaml.Unmarshal(data, layer); err != nil {
		return nil, err
	}
	return layer, nil
}

// merge applies o on top of c. Scalars are replaced when set, toolsets,
// subagents and MCP servers merge by name, and lists replace when non-empty
// except hidden paths which accumulate.
func (c *Config) merge(o *Config) {
	if o.LLMClient != "" {
		c.LLMClient = o.LLMClient
	}
	if o.Model != "" {
		c.Model = o.Model
	}
	if o.API != "" {
		c.API = o.API
	}
	if o.ReasoningEffort != "" {
		c.ReasoningEffort = o.ReasoningEffort
	}
	if o.MaxDepth != 0 {
		c.MaxDepth = o.MaxDepth
	}
	if o.CommandTimeout != 0 {
		c.CommandTimeout = o.CommandTimeout
	}

	for _, ts := range o.Toolsets {
		replaced := false
		for i := range c.Toolsets {
			if c.Toolsets[i].Name == ts.Name {
				c.Toolsets[i] = ts
				replaced = true
			}
		}
		if !replaced {
			c.Toolsets = append(c.Toolsets, ts)
		}
	}

	for name, st := range o.Subagents {
		if c.Subagents == nil {
			c.Subagents = map[string]SubagentType{}
		}
		c.Subagents[name] = st
	}

	for _, srv := range o.MCPServers {
		replaced := false
		for i := range c.MCPServers {
			if c.MCPServers[i].Name == srv.Name {
				c.MCPServers[i] = srv
				replaced = true
			}
		}
		if !replaced {
			c.MCPServers = append(c.MCPServers, srv)
		}
	}

	if len(o.AllowedCommands) > 0 {
		c.AllowedCommands = o.AllowedCommands
	}
	c.FilesystemAccess.Hidden = append(c.FilesystemAccess.Hidden, o.FilesystemAccess.Hidden...)
	if len(o.FilesystemAccess.ReadOnly) > 0 {
		c.FilesystemAccess.ReadOnly = o.FilesystemAccess.ReadOnly
	}
}

// GetToolset finds a toolset by name, "default" when name is empty. A nil
// toolset with no error means the default toolset is not configured and every
// tool is available.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for _, ts := range c.Toolsets {
		if ts.Name == name {
			ts := ts
			return &ts, nil
		}
	}
	if name == "default" {
		return nil, nil
	}
	return nil, errors.NewConfigError("toolset "+name, "not configured")
}
