package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/m4xw311/quill/config"
	"github.com/m4xw311/quill/errors"
	"github.com/m4xw311/quill/tools"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NameSeparator joins server and tool names. Colons and dots are rejected by
// some providers' function name rules.
const NameSeparator = "__"

// caller is the part of a client session used by tools, so tests can
// substitute an in-memory server.
type caller interface {
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
}

// MCPClient manages the connection to a single MCP server subprocess.
type MCPClient struct {
	Name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools []*MCPTool
}

// NewMCPClient starts the MCP server subprocess and discovers its tools.
func NewMCPClient(ctx context.Context, srv config.MCPServer) (*MCPClient, error) {
	cmd := exec.Command(srv.Command, srv.Args...)
	cmd.Stderr = os.Stderr
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "quill", Version: "v1.0.0"}, nil)
	conn, err := client.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", srv.Name)
	}
	c := &MCPClient{Name: srv.Name, cmd: cmd, conn: conn}
	if err := c.discover(ctx, conn, srv.ReadOnlyTools); err != nil {
		_ = c.Stop()
		return nil, err
	}
	slog.Info("initialized MCP client", "server", srv.Name, "tools", len(c.tools))
	return c, nil
}

func (c *MCPClient) discover(ctx context.Context, conn *mcpsdk.ClientSession, readOnly []string) error {
	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			return errors.Wrapf(err, "failed to list tools from MCP server '%s'", c.Name)
		}
		for _, t := range list.Tools {
			tool, err := newMCPTool(c.Name, t, conn, readOnly)
			if err != nil {
				return err
			}
			c.tools = append(c.tools, tool)
		}
		if list.NextCursor == "" {
			return nil
		}
		params.Cursor = list.NextCursor
	}
}

// Tools returns the discovered tools.
func (c *MCPClient) Tools() []tools.Tool {
	out := make([]tools.Tool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	return out
}

// Stop terminates the MCP server subprocess.
func (c *MCPClient) Stop() error {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		slog.Debug("terminating MCP server", "server", c.Name)
		return c.cmd.Process.Kill()
	}
	return nil
}

// StartAll connects every configured server. Servers that fail to start are
// stopped and reported together; the ones that started are still returned.
func StartAll(ctx context.Context, servers []config.MCPServer) ([]*MCPClient, error) {
	var clients []*MCPClient
	var errs []error
	for _, srv := range servers {
		c, err := NewMCPClient(ctx, srv)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		clients = append(clients, c)
	}
	return clients, errors.Join(errs...)
}

// MCPTool represents a tool available from an external MCP server.
type MCPTool struct {
	serverName  string
	toolName    string
	description string
	schema      tools.Schema
	sideEffect  tools.SideEffect
	conn        caller
}

func newMCPTool(server string, t *mcpsdk.Tool, conn caller, readOnly []string) (*MCPTool, error) {
	schema := tools.Schema{Properties: map[string]tools.Property{}}
	if t.InputSchema != nil {
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode schema of MCP tool '%s'", t.Name)
		}
		if schema, err = tools.ParseSchema(raw); err != nil {
			return nil, errors.Wrapf(err, "failed to decode schema of MCP tool '%s'", t.Name)
		}
	}
	effect := tools.Mutating
	for _, name := range readOnly {
		if name == t.Name {
			effect = tools.ReadOnly
		}
	}
	return &MCPTool{
		serverName:  server,
		toolName:    t.Name,
		description: t.Description,
		schema:      schema,
		sideEffect:  effect,
		conn:        conn,
	}, nil
}

// Name returns "<server>__<tool>".
func (t *MCPTool) Name() string {
	return t.serverName + NameSeparator + t.toolName
}

func (t *MCPTool) Description() string {
	return t.description
}

func (t *MCPTool) Schema() tools.Schema { return t.schema }

func (t *MCPTool) SideEffect() tools.SideEffect { return t.sideEffect }

// Execute sends the arguments to the MCP server and returns the text content
// of the result.
func (t *MCPTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	result, err := t.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", t.Name())
	}
	var parts []string
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	out := strings.Join(parts, "")
	if result.IsError {
		return "", errors.New("MCP tool '%s' reported an error: %s", t.Name(), out)
	}
	return out, nil
}
