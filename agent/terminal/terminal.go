package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/m4xw311/quill/agent"
	"github.com/m4xw311/quill/interrupt"
	"github.com/m4xw311/quill/llm"
	"github.com/m4xw311/quill/session"
	"github.com/m4xw311/quill/tools"
)

// Verbosity controls how much of the tool traffic is printed.
type Verbosity string

const (
	VerbosityNone Verbosity = "none"
	VerbosityInfo Verbosity = "info"
	VerbosityAll  Verbosity = "all"
)

const maxResultPreview = 2000

var (
	promptStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	reasoningStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	warningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Options configures a Terminal. Zero values use stdin, stdout and a fresh
// interrupt controller.
type Options struct {
	In  io.Reader
	Out io.Writer
	// TTY receives the Esc monitor while a turn runs. Nil disables it.
	TTY        *os.File
	Verbosity  Verbosity
	Interrupts *interrupt.Controller
	// HandleSignals routes Ctrl-C to the running turn, or ends the session
	// when idle.
	HandleSignals bool
}

// Terminal handles the terminal/CLI interaction mode for the agent
type Terminal struct {
	agent *agent.Agent
	opts  Options
	out   io.Writer
	ctrl  *interrupt.Controller
	lines *lineReader

	inTurn  bool
	stopEsc func()
}

// New creates a new Terminal instance
func New(a *agent.Agent, opts Options) *Terminal {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Interrupts == nil {
		opts.Interrupts = interrupt.New()
	}
	if opts.Verbosity == "" {
		opts.Verbosity = VerbosityInfo
	}
	return &Terminal{
		agent: a,
		opts:  opts,
		out:   opts.Out,
		ctrl:  opts.Interrupts,
		lines: newLineReader(opts.In),
	}
}

// Run starts the interactive terminal session
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	ctx, quit := context.WithCancel(ctx)
	defer quit()
	if t.opts.HandleSignals {
		stop := t.ctrl.WatchSignals(quit)
		defer stop()
	}

	sess, err := t.agent.NewSession(ctx, t, t.callbacks())
	if err != nil {
		return err
	}
	t.banner()

	if initialPrompt != "" {
		fmt.Fprintln(t.out, promptStyle.Render("You:"), initialPrompt)
		t.processTurn(ctx, sess, initialPrompt)
	}

	window := llm.ContextWindow(llm.ModelName(t.agent.Settings))
	for {
		fmt.Fprintln(t.out, dimStyle.Render(llm.ContextStatus(sess.Usage(), window)))
		fmt.Fprint(t.out, promptStyle.Render("You:")+" ")
		line, err := t.lines.ReadLine(ctx)
		if err != nil {
			fmt.Fprintln(t.out)
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return err
		}

		userInput := strings.TrimSpace(line)
		if userInput == "" {
			continue
		}
		if userInput == "/quit" || userInput == "/exit" {
			return nil
		}
		t.processTurn(ctx, sess, userInput)
	}
}

func (t *Terminal) banner() {
	s := t.agent.Settings
	fmt.Fprintln(t.out, dimStyle.Render(fmt.Sprintf("quill (%s %s, %s API) in %s", s.Backend, llm.ModelName(s), s.API, s.WorkDir)))
	if agent.HasAgentsMD(s.WorkDir) {
		fmt.Fprintln(t.out, dimStyle.Render("Loaded AGENTS.md"))
	}
	fmt.Fprintln(t.out, dimStyle.Render("Press Esc or Ctrl-C to interrupt, /quit to leave."))
}

// processTurn runs one user message inside its own interrupt scope.
func (t *Terminal) processTurn(ctx context.Context, sess *agent.Session, input string) {
	turnCtx, end := t.ctrl.Begin(ctx)
	t.inTurn = true
	t.resumeEscape()
	defer func() {
		t.pauseEscape()
		t.inTurn = false
		end()
	}()

	outcome, err := sess.Run(turnCtx, input)
	switch {
	case err != nil:
		fmt.Fprintln(t.out, errorStyle.Render("Error:"), err)
	case outcome.State == agent.StateCancelled:
		fmt.Fprintln(t.out, warningStyle.Render("Interrupted."))
	}
}

func (t *Terminal) callbacks() agent.Callbacks {
	return agent.Callbacks{
		OnAssistantMessage: func(text, reasoning string) {
			if reasoning != "" && t.opts.Verbosity == VerbosityAll {
				fmt.Fprintln(t.out, reasoningStyle.Render(reasoning))
			}
			if text != "" {
				fmt.Fprintln(t.out, assistantStyle.Render("quill:"), text)
			}
		},
		OnToolCall: func(call session.ToolCall) {
			switch t.opts.Verbosity {
			case VerbosityAll:
				fmt.Fprintln(t.out, toolStyle.Render("-> "+call.Name), dimStyle.Render(string(call.Args)))
			case VerbosityInfo:
				fmt.Fprintln(t.out, toolStyle.Render("-> "+call.Name))
			}
		},
		OnToolResult: func(call session.ToolCall, result session.ToolResult) {
			switch {
			case t.opts.Verbosity == VerbosityAll:
				fmt.Fprintln(t.out, dimStyle.Render(preview(result.Content)))
			case t.opts.Verbosity == VerbosityInfo && result.IsError:
				fmt.Fprintln(t.out, errorStyle.Render("<- "+call.Name+":"), firstLine(result.Content))
			}
		},
		OnWarning: func(warning string) {
			fmt.Fprintln(t.out, warningStyle.Render("Warning: "+warning))
		},
	}
}

// Confirm asks the user whether call may run. The Esc monitor is paused
// while the answer is typed.
func (t *Terminal) Confirm(ctx context.Context, call session.ToolCall, tool tools.Tool) (bool, error) {
	t.pauseEscape()
	defer t.resumeEscape()

	fmt.Fprintf(t.out, "%s %s %s\n", warningStyle.Render("quill wants to run"), toolStyle.Render(call.Name), dimStyle.Render("("+string(tool.SideEffect())+")"))
	if args := string(call.Args); args != "{}" {
		fmt.Fprintln(t.out, dimStyle.Render(preview(args)))
	}
	fmt.Fprint(t.out, "Allow? (y/n): ")

	answer, err := t.lines.ReadLine(ctx)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (t *Terminal) resumeEscape() {
	if !t.inTurn || t.stopEsc != nil || t.opts.TTY == nil {
		return
	}
	stop, err := t.ctrl.WatchEscape(t.opts.TTY)
	if err != nil {
		slog.Debug("esc monitor unavailable", "error", err)
		return
	}
	t.stopEsc = stop
}

func (t *Terminal) pauseEscape() {
	if t.stopEsc != nil {
		t.stopEsc()
		t.stopEsc = nil
	}
}

func preview(s string) string {
	if len(s) > maxResultPreview {
		return s[:maxResultPreview] + "\n... (truncated)"
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// lineReader reads one line per request on a background goroutine so that
// a read can be abandoned when its context ends. An abandoned line is
// handed to the next reader.
type lineReader struct {
	req     chan struct{}
	res     chan lineResult
	pending bool
}

type lineResult struct {
	text string
	err  error
}

func newLineReader(r io.Reader) *lineReader {
	l := &lineReader{req: make(chan struct{}), res: make(chan lineResult, 1)}
	go func() {
		br := bufio.NewReader(r)
		for range l.req {
			text, err := br.ReadString('\n')
			if err == io.EOF && text != "" {
				err = nil
			}
			l.res <- lineResult{text: strings.TrimRight(text, "\r\n"), err: err}
		}
	}()
	return l
}

// ReadLine returns the next line. It is not safe for concurrent use.
func (l *lineReader) ReadLine(ctx context.Context) (string, error) {
	if !l.pending {
		select {
		case l.req <- struct{}{}:
			l.pending = true
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	select {
	case r := <-l.res:
		l.pending = false
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
