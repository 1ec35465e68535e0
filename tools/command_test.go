//go:build unix

package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunCommand(t *testing.T) {
	tool := &RunCommandTool{dir: t.TempDir()}
	ctx := context.Background()

	tests := []struct {
		name    string
		command string
		want    string
	}{
		{"stdout", "echo hello", "hello\n"},
		{"stderr", "echo out; echo err 1>&2", "out\n\n[stderr]\nerr\n"},
		{"exit code", "exit 3", "\n[exit code: 3]"},
		{"no output", "true", "(no output)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tool.Execute(ctx, map[string]interface{}{"command": tt.command})
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunCommandAllowlist(t *testing.T) {
	tool := &RunCommandTool{allowedCommands: []string{`^echo `}}
	if _, err := tool.Execute(context.Background(), map[string]interface{}{"command": "ls"}); err == nil {
		t.Errorf("expected ls to be refused")
	}
	if !strings.Contains(tool.Description(), "^echo ") {
		t.Errorf("description should list the allowlist")
	}
}

func TestRunCommandTimeout(t *testing.T) {
	tool := &RunCommandTool{}
	start := time.Now()
	_, err := tool.Execute(context.Background(), map[string]interface{}{"command": "sleep 30", "timeout": float64(1)})
	if err == nil || !strings.Contains(err.Error(), "timed out after 1 seconds") {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Errorf("timeout took too long: %v", time.Since(start))
	}
}

func TestRunCommandCancelKillsGroup(t *testing.T) {
	tool := &RunCommandTool{}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := tool.Execute(ctx, map[string]interface{}{"command": "sleep 30 & sleep 30; wait"})
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if time.Since(start) > 10*time.Second {
		t.Errorf("cancellation did not stop the process group: %v", time.Since(start))
	}
}
