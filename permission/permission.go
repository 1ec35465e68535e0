// Package permission decides whether a requested tool call may run.
package permission

import (
	"context"

	"github.com/m4xw311/quill/errors"
	"github.com/m4xw311/quill/session"
	"github.com/m4xw311/quill/tools"
)

// Decision is the outcome of one authorization.
type Decision string

const (
	Allow       Decision = "allow"
	Deny        Decision = "deny"
	AskAndAllow Decision = "ask-and-allow"
	AskAndDeny  Decision = "ask-and-deny"
)

// Allowed reports whether the call may run.
func (d Decision) Allowed() bool { return d == Allow || d == AskAndAllow }

// Mode selects what happens to calls that need confirmation.
type Mode string

const (
	ModeAsk  Mode = "ask"
	ModeDeny Mode = "deny"
)

// Policy is threaded into each session so nested sessions can override it.
type Policy struct {
	SkipPermissions bool
	Mode            Mode
}

// Confirmer asks a human whether a call may run. It must return promptly
// with ctx.Err() once ctx is cancelled.
type Confirmer interface {
	Confirm(ctx context.Context, call session.ToolCall, tool tools.Tool) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, call session.ToolCall, tool tools.Tool) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, call session.ToolCall, tool tools.Tool) (bool, error) {
	return f(ctx, call, tool)
}

// Gate applies a Policy. A nil Confirmer denies every call that would need
// a prompt.
type Gate struct {
	Policy    Policy
	Confirmer Confirmer
}

// Authorize decides one call. An error is returned when confirmation did not
// complete: a cancelled prompt yields ErrCancelled, any other failure comes
// back with AskAndDeny.
func (g *Gate) Authorize(ctx context.Context, call session.ToolCall, tool tools.Tool) (Decision, error) {
	if g.Policy.SkipPermissions {
		return Allow, nil
	}
	if tool != nil && tool.SideEffect() == tools.ReadOnly {
		return Allow, nil
	}
	if g.Policy.Mode == ModeDeny || g.Confirmer == nil {
		return Deny, nil
	}

	ok, err := g.Confirmer.Confirm(ctx, call, tool)
	if err != nil {
		if ctx.Err() != nil {
			return Deny, errors.Wrapf(errors.ErrCancelled, "confirming %s", call.Name)
		}
		return AskAndDeny, errors.Wrapf(err, "confirming %s", call.Name)
	}
	if ok {
		return AskAndAllow, nil
	}
	return AskAndDeny, nil
}

// Denial builds the error reported back to the model for a refused call.
// cause is the confirmation failure, if any.
func Denial(call session.ToolCall, d Decision, cause error) *errors.PermissionDenied {
	return &errors.PermissionDenied{Tool: call.Name, ByPolicy: d == Deny, Cause: cause}
}
