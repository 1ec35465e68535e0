package transcript

import (
	"fmt"
	"io"
	"strings"
)

// Replay writes a readable rendering of events. Subagent events are
// indented by depth.
func Replay(w io.Writer, events []Event) error {
	for _, e := range events {
		line := replayLine(e)
		if line == "" {
			continue
		}
		indent := strings.Repeat("  ", e.Depth)
		for _, l := range strings.Split(line, "\n") {
			if _, err := fmt.Fprintf(w, "%s%s\n", indent, l); err != nil {
				return err
			}
		}
	}
	return nil
}

func replayLine(e Event) string {
	switch e.Kind {
	case UserMessage:
		return "You: " + e.Text
	case AssistantMessage:
		if e.Text == "" {
			return ""
		}
		return "Assistant: " + e.Text
	case ToolCallRequested:
		return fmt.Sprintf("-> %s %s", e.Tool, string(e.Args))
	case PermissionDecided:
		return fmt.Sprintf("   permission: %s", e.Decision)
	case ToolResult:
		status := "ok"
		if e.IsError {
			status = "error"
		}
		return fmt.Sprintf("<- %s (%s): %s", e.Tool, status, firstLine(e.Text, 200))
	case TurnCompleted:
		return fmt.Sprintf("-- turn %s --", e.State)
	case Cancelled:
		return "-- cancelled --"
	}
	return ""
}

func firstLine(s string, limit int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
