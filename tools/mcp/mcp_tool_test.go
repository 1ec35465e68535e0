package mcp

import (
	"context"
	"testing"

	"github.com/m4xw311/quill/tools"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type fakeConn struct {
	params *mcpsdk.CallToolParams
	result *mcpsdk.CallToolResult
}

func (f *fakeConn) CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	f.params = params
	return f.result, nil
}

func TestMCPToolNamingAndSideEffect(t *testing.T) {
	conn := &fakeConn{}
	def, err := newMCPTool("gopls", &mcpsdk.Tool{Name: "definition", Description: "Find definitions"}, conn, []string{"definition"})
	if err != nil {
		t.Fatalf("newMCPTool: %v", err)
	}
	if def.Name() != "gopls__definition" {
		t.Errorf("Name() = %q", def.Name())
	}
	if def.SideEffect() != tools.ReadOnly {
		t.Errorf("listed read-only tool classified as %s", def.SideEffect())
	}
	if def.Schema().Properties == nil {
		t.Errorf("schema properties should never be nil")
	}

	rename, err := newMCPTool("gopls", &mcpsdk.Tool{Name: "rename"}, conn, []string{"definition"})
	if err != nil {
		t.Fatalf("newMCPTool: %v", err)
	}
	if rename.SideEffect() != tools.Mutating {
		t.Errorf("unlisted tool should default to mutating, got %s", rename.SideEffect())
	}
}

func TestMCPToolExecute(t *testing.T) {
	conn := &fakeConn{result: &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "line 1\n"}, &mcpsdk.TextContent{Text: "line 2"}},
	}}
	tool, _ := newMCPTool("srv", &mcpsdk.Tool{Name: "echo"}, conn, nil)

	out, err := tool.Execute(context.Background(), map[string]interface{}{"msg": "hi"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "line 1\nline 2" {
		t.Errorf("unexpected output %q", out)
	}
	if conn.params.Name != "echo" {
		t.Errorf("server should receive the short tool name, got %q", conn.params.Name)
	}

	conn.result = &mcpsdk.CallToolResult{IsError: true, Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "boom"}}}
	if _, err := tool.Execute(context.Background(), nil); err == nil {
		t.Errorf("expected an error for an error result")
	}
}
