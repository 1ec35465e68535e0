// Package terminal implements the interactive command-line mode of quill.
//
// The terminal reads one message per line, runs it through an agent
// session and prints the assistant's answers and tool traffic with lipgloss
// styling. Mutating, destructive and network tools are confirmed with a
// y/n prompt unless permissions are skipped.
//
// # Usage
//
//	term := terminal.New(a, terminal.Options{
//	    TTY:           os.Stdin,
//	    Verbosity:     terminal.VerbosityInfo,
//	    HandleSignals: true,
//	})
//	err := term.Run(ctx, initialPrompt)
//
// # Interrupts
//
// Each message runs in its own interrupt scope. Esc (when stdin is a
// terminal) or Ctrl-C cancels the running turn and returns to the prompt;
// Ctrl-C at the prompt, EOF, /quit and /exit end the session.
//
// # Verbosity Levels
//
//   - none: only assistant text is printed
//   - info: tool names and failed results
//   - all: tool arguments, full results and reasoning summaries
package terminal
