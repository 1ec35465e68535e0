package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/m4xw311/quill/agent"
	"github.com/m4xw311/quill/errors"
	"github.com/m4xw311/quill/interrupt"
	"github.com/m4xw311/quill/session"
	"github.com/m4xw311/quill/tools"
)

const protocolVersion = 1

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Run serves the Agent Client Protocol on in and out until in is closed.
// Messages are newline-delimited JSON-RPC 2.0 objects. Prompts run on their
// own goroutine so that session/cancel and permission answers can arrive
// while a turn is in flight.
func Run(ctx context.Context, a *agent.Agent, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)

	s := &server{
		ctx:      ctx,
		agent:    a,
		in:       bufio.NewReader(in),
		out:      bufio.NewWriter(out),
		sessions: make(map[string]*acpSession),
		pending:  make(map[int64]chan *message),
	}
	// Turns still running when input closes are cancelled and awaited.
	defer func() {
		cancel()
		s.turns.Wait()
	}()

	slog.Debug("acp: server started")
	for {
		payload, err := s.in.ReadBytes('\n')
		if err != nil && len(payload) == 0 {
			if err == io.EOF {
				slog.Debug("acp: input closed")
				return nil
			}
			return errors.Wrapf(err, "acp: read error")
		}
		payload = []byte(strings.TrimSpace(string(payload)))
		if len(payload) == 0 {
			continue
		}

		var msg message
		if err := json.Unmarshal(payload, &msg); err != nil {
			slog.Debug("acp: parse error", "error", err)
			_ = s.writeError(nil, codeParseError, "Parse error", nil)
			continue
		}
		slog.Debug("acp: received", "method", msg.Method, "id", string(msg.ID))
		if msg.Method == "" {
			s.deliver(&msg)
			continue
		}

		switch msg.Method {
		case "initialize":
			s.handleInitialize(&msg)
		case "session/new":
			s.handleSessionNew(&msg)
		case "session/prompt":
			s.turns.Add(1)
			go func(m message) {
				defer s.turns.Done()
				s.handleSessionPrompt(&m)
			}(msg)
		case "session/cancel":
			s.handleSessionCancel(&msg)
		default:
			if msg.ID != nil {
				_ = s.writeError(msg.ID, codeMethodNotFound, "Method not found", msg.Method)
			}
		}
	}
}

// message is any JSON-RPC 2.0 message: a request or notification when
// Method is set, otherwise a response to one of our requests.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type acpSession struct {
	id   string
	sess *agent.Session
	ctrl *interrupt.Controller
}

type server struct {
	ctx   context.Context
	agent *agent.Agent
	in    *bufio.Reader

	writeMu sync.Mutex
	out     *bufio.Writer

	mu       sync.Mutex
	sessions map[string]*acpSession
	pending  map[int64]chan *message
	nextID   int64

	turns sync.WaitGroup
}

func (s *server) write(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return errors.Wrapf(err, "failed to serialize JSON-RPC message")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *server) writeResult(id json.RawMessage, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.write(message{JSONRPC: "2.0", ID: id, Result: raw})
}

func (s *server) writeError(id json.RawMessage, code int, msg string, data any) error {
	if id == nil {
		id = json.RawMessage("null")
	}
	return s.write(message{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg, Data: data}})
}

func (s *server) notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return s.write(message{JSONRPC: "2.0", Method: method, Params: raw})
}

// call sends a request to the client and waits for its response.
func (s *server) call(ctx context.Context, method string, params any) (*message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	ch := make(chan *message, 1)
	s.pending[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.write(message{JSONRPC: "2.0", ID: json.RawMessage(fmt.Sprint(id)), Method: method, Params: raw}); err != nil {
		return nil, err
	}
	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, errors.New("%s failed: %s", method, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// deliver routes a client response to the request waiting for it.
func (s *server) deliver(msg *message) {
	var id int64
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		slog.Debug("acp: response with foreign id", "id", string(msg.ID))
		return
	}
	s.mu.Lock()
	ch, ok := s.pending[id]
	s.mu.Unlock()
	if ok {
		ch <- msg
	}
}

func (s *server) session(id string) (*acpSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	as, ok := s.sessions[id]
	return as, ok
}

func (s *server) handleInitialize(msg *message) {
	var p struct {
		ProtocolVersion int             `json:"protocolVersion"`
		ClientCaps      json.RawMessage `json:"clientCapabilities,omitempty"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		slog.Debug("acp: initialize params", "error", err)
	}
	_ = s.writeResult(msg.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"agentCapabilities": map[string]any{
			"loadSession": false,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	})
}

// handleSessionNew builds a fresh agent session. The client's cwd and MCP
// servers are ignored; the agent works in its configured directory with its
// configured servers.
func (s *server) handleSessionNew(msg *message) {
	var p struct {
		Cwd        string          `json:"cwd"`
		McpServers json.RawMessage `json:"mcpServers"`
	}
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			_ = s.writeError(msg.ID, codeInvalidParams, "Invalid params", err.Error())
			return
		}
	}
	if p.Cwd != "" && p.Cwd != s.agent.Settings.WorkDir {
		slog.Warn("acp: client cwd differs from working directory", "cwd", p.Cwd, "workdir", s.agent.Settings.WorkDir)
	}

	as := &acpSession{ctrl: interrupt.New()}
	sess, err := s.agent.NewSession(s.ctx, &permissionPrompt{server: s, session: as}, s.callbacks(as))
	if err != nil {
		_ = s.writeError(msg.ID, codeInternalError, "Internal error", fmt.Sprintf("failed to create session: %v", err))
		return
	}
	as.id = sess.ID()
	as.sess = sess

	s.mu.Lock()
	s.sessions[as.id] = as
	s.mu.Unlock()
	slog.Debug("acp: session created", "session", as.id)
	_ = s.writeResult(msg.ID, map[string]any{"sessionId": as.id})
}

// contentBlock is a prompt content block. Only text and resource links are
// understood.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Size        *int64 `json:"size,omitempty"`
}

// handleSessionPrompt runs one turn and answers with its stop reason.
func (s *server) handleSessionPrompt(msg *message) {
	var p struct {
		SessionID string         `json:"sessionId"`
		Prompt    []contentBlock `json:"prompt"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		_ = s.writeError(msg.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}
	as, ok := s.session(p.SessionID)
	if !ok {
		_ = s.writeError(msg.ID, codeInvalidParams, "Invalid params", "unknown sessionId")
		return
	}

	// A second prompt must not preempt the turn already running.
	ctx, end, ok := as.ctrl.TryBegin(s.ctx)
	if !ok {
		_ = s.writeError(msg.ID, codeInvalidRequest, "Invalid request", errors.ErrSessionBusy.Error())
		return
	}
	defer end()
	outcome, err := as.sess.Run(ctx, extractUserText(p.Prompt))
	if err != nil {
		_ = s.writeError(msg.ID, codeInternalError, "Internal error", err.Error())
		return
	}
	reason := "end_turn"
	if outcome.State == agent.StateCancelled {
		reason = "cancelled"
	}
	_ = s.writeResult(msg.ID, map[string]any{"stopReason": reason})
}

func (s *server) handleSessionCancel(msg *message) {
	var p struct {
		SessionID string `json:"sessionId"`
	}
	_ = json.Unmarshal(msg.Params, &p)
	if as, ok := s.session(p.SessionID); ok {
		interrupted := as.ctrl.Interrupt()
		slog.Debug("acp: cancel", "session", p.SessionID, "interrupted", interrupted)
	}
	if msg.ID != nil {
		_ = s.writeResult(msg.ID, nil)
	}
}

func (s *server) callbacks(as *acpSession) agent.Callbacks {
	return agent.Callbacks{
		OnAssistantMessage: func(text, reasoning string) {
			if reasoning != "" {
				_ = s.update(as.id, map[string]any{
					"sessionUpdate": "agent_thought_chunk",
					"content":       textContent(reasoning),
				})
			}
			if text != "" {
				_ = s.update(as.id, map[string]any{
					"sessionUpdate": "agent_message_chunk",
					"content":       textContent(text),
				})
			}
		},
		OnToolCall: func(call session.ToolCall) {
			_ = s.update(as.id, map[string]any{
				"sessionUpdate": "tool_call",
				"toolCallId":    call.ID,
				"title":         call.Name,
				"kind":          s.toolKind(call.Name),
				"status":        "pending",
				"rawInput":      call.Args,
			})
		},
		OnToolResult: func(call session.ToolCall, result session.ToolResult) {
			status := "completed"
			if result.IsError {
				status = "failed"
			}
			_ = s.update(as.id, map[string]any{
				"sessionUpdate": "tool_call_update",
				"toolCallId":    call.ID,
				"status":        status,
				"content": []any{
					map[string]any{"type": "content", "content": textContent(result.Content)},
				},
			})
		},
		OnWarning: func(warning string) {
			slog.Warn("acp: "+warning, "session", as.id)
		},
	}
}

func (s *server) update(sessionID string, update map[string]any) error {
	return s.notify("session/update", map[string]any{"sessionId": sessionID, "update": update})
}

// toolKind maps a tool to the ACP tool kind shown by clients.
func (s *server) toolKind(name string) string {
	switch name {
	case "run_command":
		return "execute"
	case "grep", "find_files":
		return "search"
	case agent.SubagentToolName:
		return "think"
	}
	t, ok := s.agent.Registry.Get(name)
	if !ok {
		return "other"
	}
	switch t.SideEffect() {
	case tools.ReadOnly:
		return "read"
	case tools.Mutating:
		return "edit"
	case tools.Destructive:
		return "delete"
	case tools.Network:
		return "fetch"
	}
	return "other"
}

func textContent(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

// permissionPrompt asks the client through session/request_permission.
type permissionPrompt struct {
	server  *server
	session *acpSession
}

func (pp *permissionPrompt) Confirm(ctx context.Context, call session.ToolCall, tool tools.Tool) (bool, error) {
	resp, err := pp.server.call(ctx, "session/request_permission", map[string]any{
		"sessionId": pp.session.id,
		"toolCall": map[string]any{
			"toolCallId": call.ID,
			"title":      call.Name,
			"kind":       pp.server.toolKind(call.Name),
			"rawInput":   call.Args,
		},
		"options": []map[string]string{
			{"optionId": "allow", "name": "Allow", "kind": "allow_once"},
			{"optionId": "reject", "name": "Reject", "kind": "reject_once"},
		},
	})
	if err != nil {
		return false, err
	}

	var result struct {
		Outcome struct {
			Outcome  string `json:"outcome"`
			OptionID string `json:"optionId"`
		} `json:"outcome"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return false, errors.Wrapf(err, "decoding permission response")
	}
	return result.Outcome.Outcome == "selected" && result.Outcome.OptionID == "allow", nil
}

// readFileFromURI reads the file behind a file:// URI.
func readFileFromURI(uri string) (string, error) {
	parsedURL, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "invalid URI")
	}
	if parsedURL.Scheme != "file" {
		return "", errors.New("unsupported URI scheme: %s", parsedURL.Scheme)
	}
	content, err := os.ReadFile(parsedURL.Path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file")
	}
	return string(content), nil
}

// extractUserText flattens prompt blocks into one message. Resource links
// to local files are inlined.
func extractUserText(blocks []contentBlock) string {
	const maxContentSize = 50000

	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) != "" {
				parts = append(parts, b.Text)
			}
		case "resource_link":
			var sb strings.Builder
			fmt.Fprintf(&sb, "=== Resource: %s ===\n", b.Name)
			if b.Title != "" {
				fmt.Fprintf(&sb, "Title: %s\n", b.Title)
			}
			if b.Description != "" {
				fmt.Fprintf(&sb, "Description: %s\n", b.Description)
			}
			fmt.Fprintf(&sb, "URI: %s\n", b.URI)
			if b.MimeType != "" {
				fmt.Fprintf(&sb, "Type: %s\n", b.MimeType)
			}
			if b.Size != nil {
				fmt.Fprintf(&sb, "Size: %d bytes\n", *b.Size)
			}

			if strings.HasPrefix(b.URI, "file://") {
				content, err := readFileFromURI(b.URI)
				if err != nil {
					fmt.Fprintf(&sb, "\n[Error reading file: %v]\n", err)
				} else {
					if len(content) > maxContentSize {
						content = content[:maxContentSize] + "\n\n[... truncated to 50KB ...]"
					}
					fmt.Fprintf(&sb, "\n--- File Contents ---\n%s\n--- End of File ---\n", content)
				}
			} else {
				sb.WriteString("\n[External resource - content not available]\n")
			}
			sb.WriteString("=== End Resource ===\n")
			parts = append(parts, sb.String())
		}
	}
	return strings.Join(parts, "\n")
}
