package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/m4xw311/quill/errors"
)

// RunCommandTool runs a shell command in its own process group.
type RunCommandTool struct {
	allowedCommands []string
	timeout         time.Duration
	dir             string
}

func (t *RunCommandTool) Name() string           { return "run_command" }
func (t *RunCommandTool) SideEffect() SideEffect { return Mutating }
func (t *RunCommandTool) Description() string {
	desc := "Executes a shell command and returns stdout, stderr and the exit code."
	if len(t.allowedCommands) == 0 {
		return desc
	}
	allowedList := "\nAllowed command patterns (regular expressions):\n"
	for _, cmd := range t.allowedCommands {
		allowedList += fmt.Sprintf("- %s\n", cmd)
	}
	return desc + allowedList
}
func (t *RunCommandTool) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"command": str("Shell command to execute"),
			"timeout": num(fmt.Sprintf("Timeout in seconds (default: %d)", int(t.defaultTimeout().Seconds()))),
		},
		Required: []string{"command"},
	}
}

func (t *RunCommandTool) defaultTimeout() time.Duration {
	if t.timeout <= 0 {
		return 60 * time.Second
	}
	return t.timeout
}

func (t *RunCommandTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	command, ok := stringArg(args, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return "", errors.New("missing or invalid 'command' argument")
	}

	allowed, err := isCommandAllowed(command, t.allowedCommands)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", errors.New("command '%s' is not in the list of allowed commands", command)
	}

	timeout := t.defaultTimeout()
	if secs := intArg(args, "timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = t.dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return "", errors.Wrapf(err, "failed to start command")
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		terminateGroup(cmd, done)
		return "", errors.Wrapf(ctx.Err(), "command interrupted")
	case <-timer.C:
		terminateGroup(cmd, done)
		return "", errors.New("command timed out after %d seconds", int(timeout.Seconds()))
	}

	var out strings.Builder
	out.WriteString(stdout.String())
	if stderr.Len() > 0 {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString("[stderr]\n")
		out.WriteString(stderr.String())
	}
	if waitErr != nil {
		exitErr, isExit := waitErr.(*exec.ExitError)
		if !isExit {
			return "", errors.Wrapf(waitErr, "command execution failed")
		}
		out.WriteString(fmt.Sprintf("\n[exit code: %d]", exitErr.ExitCode()))
	}
	if out.Len() == 0 {
		return "(no output)", nil
	}
	return out.String(), nil
}
