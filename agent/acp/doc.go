// Package acp implements the Agent Client Protocol (ACP) front-end of quill.
// It lets editors such as Zed drive the agent with newline-delimited
// JSON-RPC over stdio.
//
// Supported client methods:
//   - initialize: returns the protocol version and capabilities
//   - session/new: creates an agent session
//   - session/prompt: runs one turn and answers with its stop reason
//   - session/cancel: interrupts the running turn of a session
//
// While a turn runs the server sends session/update notifications
// (agent_message_chunk, agent_thought_chunk, tool_call, tool_call_update)
// and asks for confirmation of non read-only tools with
// session/request_permission.
package acp
