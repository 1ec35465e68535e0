package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const mainPrompt = `You are quill, a coding agent that helps users with software engineering tasks.

## Guidelines
- Use tools to read files before modifying them.
- Make minimal, focused changes. Do not add unnecessary code.
- Verify your changes work before reporting completion.
- If a task is unclear, ask for clarification.

## Working Directory
You are working in: %s
`

const subagentPrompt = `You are a subagent of quill, a coding agent that helps users with software engineering tasks.

## Your Role
You are a specialized %s subagent. %s

## Guidelines
- Focus on completing the assigned task efficiently.
- Use the available tools to accomplish your task.
- Report your findings and results clearly.
- If you cannot complete the task, explain why.

## Working Directory
You are working in: %s

## Task
%s
`

// subagentKickoff is the first user message of every subagent session.
const subagentKickoff = "Please complete the task described above."

// Instructions builds the system instructions of the main session. The
// contents of AGENTS.md in dir are appended when present.
func Instructions(dir string) string {
	out := fmt.Sprintf(mainPrompt, dir)
	if extra := agentsMD(dir); extra != "" {
		out += "\n" + extra
	}
	return out
}

// HasAgentsMD reports whether dir carries an AGENTS.md file.
func HasAgentsMD(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "AGENTS.md"))
	return err == nil
}

func agentsMD(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "AGENTS.md"))
	if err != nil {
		return ""
	}
	return fmt.Sprintf("# AGENTS.md instructions for %s\n\n<INSTRUCTIONS>\n%s\n</INSTRUCTIONS>\n", dir, strings.TrimRight(string(data), "\n"))
}

func subagentInstructions(typeName, description, dir string, task Task) string {
	out := fmt.Sprintf(subagentPrompt, typeName, description, dir, task.Description)
	if task.Context != "" {
		out += "\n## Additional Context\n" + task.Context + "\n"
	}
	return out
}
