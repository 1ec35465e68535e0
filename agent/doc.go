// Package agent provides the conversation loop shared by every front-end.
//
// This package contains the code that is common to the interaction modes
// (terminal CLI and ACP server). A Session owns one conversation and drives
// its turns: it submits the history to the model, routes each requested tool
// call through the permission gate, executes it, appends the result and
// repeats until the model answers without tool calls.
//
// # Architecture
//
//   - Core (this package): Agent, Session, Supervisor and the subagent tool
//   - Terminal subpackage (agent/terminal): the interactive CLI
//   - ACP subpackage (agent/acp): the Agent Client Protocol server for IDE integration
//
// # Usage
//
//	a := agent.New(settings, factory, registry, recorder)
//	sess, err := a.NewSession(ctx, confirmer, agent.Callbacks{
//	    OnAssistantMessage: func(text, reasoning string) { ... },
//	    OnToolCall:         func(call session.ToolCall) { ... },
//	    OnToolResult:       func(call session.ToolCall, result session.ToolResult) { ... },
//	})
//	if err != nil {
//	    // handle error
//	}
//	outcome, err := sess.Run(ctx, "user message")
//
// # States
//
// A Run moves through awaiting-model, awaiting-permission and executing-tool
// and ends in done, cancelled or fatal-error. Cancelling ctx ends the run at
// the next suspend point without appending anything for the interrupted
// step. Calls left unanswered by a cancelled run are answered with an
// "interrupted" error result when the next Run starts.
//
// # Subagents
//
// The subagent tool hands a task to a Supervisor, which builds a child
// Session with its own history, provider and the tool subset of the chosen
// type. Children may dispatch further only when their type lists the
// subagent tool and the depth limit allows it.
package agent
