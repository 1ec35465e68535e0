package llm

import (
	"fmt"
	"strings"
)

// Usage is the token accounting reported for one model call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Total approximates how much of the context window the conversation
// occupies after the call.
func (u Usage) Total() int64 { return u.InputTokens + u.OutputTokens }

// DefaultContextWindow is assumed for models missing from contextWindows.
const DefaultContextWindow = 128_000

// Longest prefix first.
var contextWindows = []struct {
	prefix string
	tokens int64
}{
	{"gpt-4.1", 1_047_576},
	{"gpt-4o", 128_000},
	{"gpt-5", 400_000},
	{"o3", 200_000},
	{"o4", 200_000},
	{"gemini-1.5-pro", 2_097_152},
	{"gemini", 1_048_576},
	{"mock", 128_000},
}

// ContextWindow returns the maximum input tokens of model.
func ContextWindow(model string) int64 {
	// Bedrock ids carry region and vendor prefixes (us.anthropic.claude-...).
	if strings.Contains(model, "claude") {
		return 200_000
	}
	for _, w := range contextWindows {
		if strings.HasPrefix(model, w.prefix) {
			return w.tokens
		}
	}
	return DefaultContextWindow
}

// FormatTokens renders n as 950, 12.3K or 1.2M.
func FormatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprint(n)
}

// ContextStatus describes context usage, e.g. "12.3K / 128.0K tokens (9%)".
func ContextStatus(u Usage, window int64) string {
	if window <= 0 {
		window = DefaultContextWindow
	}
	used := u.Total()
	return fmt.Sprintf("%s / %s tokens (%d%%)", FormatTokens(used), FormatTokens(window), used*100/window)
}
