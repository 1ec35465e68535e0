//go:build unix

package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m4xw311/quill/config"
	"github.com/m4xw311/quill/interrupt"
	"github.com/m4xw311/quill/llm"
	"github.com/m4xw311/quill/permission"
	"github.com/m4xw311/quill/session"
	"github.com/m4xw311/quill/tools"
)

func builtinRegistry(t *testing.T) (*tools.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := tools.NewRegistry(&config.Settings{WorkDir: dir, CommandTimeout: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	return reg, dir
}

func TestScenarioListFilesRunsWithoutPrompt(t *testing.T) {
	reg, dir := builtinRegistry(t)
	c := &confirmer{answer: false}
	p := script(
		say("", call("c1", "list_files", `{"path":"`+dir+`"}`)),
		say("There is one Go file."),
	)
	s := NewSession(Options{
		Provider: p,
		Tools:    reg,
		Gate:     &permission.Gate{Policy: permission.Policy{Mode: permission.ModeAsk}, Confirmer: c},
	})

	out, err := s.Run(context.Background(), "what files are here?")
	if err != nil || out.Answer != "There is one Go file." {
		t.Fatalf("unexpected outcome %+v, %v", out, err)
	}
	if c.Prompts() != 0 {
		t.Errorf("list_files is read-only and must not prompt")
	}
	r := s.History()[2].Result
	if r == nil || r.IsError || !strings.Contains(r.Content, "[FILE] main.go") {
		t.Errorf("unexpected listing %+v", r)
	}
}

func TestScenarioRunCommandDeclined(t *testing.T) {
	reg, dir := builtinRegistry(t)
	marker := filepath.Join(dir, "touched")
	c := &confirmer{answer: false}
	p := script(
		say("", call("c1", "run_command", `{"command":"touch `+marker+`"}`)),
		say("Okay, I will not run it."),
	)
	s := NewSession(Options{
		Provider: p,
		Tools:    reg,
		Gate:     &permission.Gate{Policy: permission.Policy{Mode: permission.ModeAsk}, Confirmer: c},
	})

	out, err := s.Run(context.Background(), "touch a file")
	if err != nil || out.State != StateDone {
		t.Fatalf("unexpected outcome %+v, %v", out, err)
	}
	if c.Prompts() != 1 {
		t.Errorf("expected one prompt, got %d", c.Prompts())
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Errorf("declined command ran")
	}
	if r := s.History()[2].Result; r == nil || !r.IsError || r.Content != deniedByUser {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestScenarioInterruptRunCommandThenContinue(t *testing.T) {
	reg, _ := builtinRegistry(t)
	ctrl := interrupt.New()
	executing := make(chan struct{}, 1)
	p := script(
		say("", call("c1", "run_command", `{"command":"sleep 30"}`)),
		func(ctx context.Context, req llm.Request) (*llm.Reply, error) {
			if err := session.Validate(req.History); err != nil {
				t.Errorf("history after interrupt does not validate: %v", err)
			}
			return &llm.Reply{Text: "Listening."}, nil
		},
	)
	s := NewSession(Options{
		Provider: p,
		Tools:    reg,
		Gate:     &permission.Gate{Policy: permission.Policy{SkipPermissions: true}},
		Callbacks: Callbacks{OnStateChange: func(st State) {
			if st == StateExecutingTool {
				select {
				case executing <- struct{}{}:
				default:
				}
			}
		}},
	})

	ctx, end := ctrl.Begin(context.Background())
	go func() {
		<-executing
		// Give the shell a moment to start.
		time.Sleep(100 * time.Millisecond)
		ctrl.Interrupt()
	}()
	start := time.Now()
	out, err := s.Run(ctx, "sleep for a while")
	end()
	if err != nil || out.State != StateCancelled {
		t.Fatalf("expected cancelled run, got %+v, %v", out, err)
	}
	if time.Since(start) > 10*time.Second {
		t.Errorf("interrupt took %v", time.Since(start))
	}
	if ctrl.Active() {
		t.Error("controller still holds a scope")
	}

	ctx, end = ctrl.Begin(context.Background())
	defer end()
	out, err = s.Run(ctx, "are you there?")
	if err != nil || out.Answer != "Listening." {
		t.Fatalf("new message not accepted: %+v, %v", out, err)
	}
	if got := roles(s.History()); !equalRoles(got,
		session.RoleUser, session.RoleAssistant, session.RoleTool,
		session.RoleUser, session.RoleAssistant) {
		t.Errorf("unexpected roles %v", got)
	}
}
