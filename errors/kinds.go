package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrCancelled is returned when the user interrupts the current operation.
// It unwinds a turn without being reported as a failure.
var ErrCancelled = stderrors.New("cancelled by user")

// ErrSessionBusy is returned when a session is asked to run while a turn is in flight.
var ErrSessionBusy = stderrors.New("session is busy")

// ProviderProtocolError reports a backend reply that breaks the tool-call
// contract: missing or duplicated call ids, undecodable arguments, or
// results that cannot be paired. It is fatal to the current turn only.
type ProviderProtocolError struct {
	Provider string
	Reason   string
}

func (e *ProviderProtocolError) Error() string {
	if e.Provider == "" {
		return "provider protocol violation: " + e.Reason
	}
	return fmt.Sprintf("provider protocol violation (%s): %s", e.Provider, e.Reason)
}

// NewProtocolError builds a ProviderProtocolError.
func NewProtocolError(provider, format string, a ...interface{}) error {
	return &ProviderProtocolError{Provider: provider, Reason: fmt.Sprintf(format, a...)}
}

// ToolExecutionFault wraps a failure raised by a tool handler. The core folds
// it into an error-bearing tool result instead of aborting the loop.
type ToolExecutionFault struct {
	Tool string
	Err  error
}

func (e *ToolExecutionFault) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionFault) Unwrap() error { return e.Err }

// PermissionDenied records that a tool call was declined, either by the
// operator at the confirmation prompt or by policy. Its message is what the
// model sees as the call's result.
type PermissionDenied struct {
	Tool     string
	ByPolicy bool
	// Cause is set when the prompt itself failed.
	Cause error
}

func (e *PermissionDenied) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("Tool execution was denied: confirmation failed: %v", e.Cause)
	case e.ByPolicy:
		return "Tool execution was denied by the permission policy."
	}
	return "Tool execution was denied by user."
}

func (e *PermissionDenied) Unwrap() error { return e.Cause }

// ConfigurationError reports an unknown tool, toolset or subagent type.
type ConfigurationError struct {
	Subject string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Subject, e.Reason)
}

// NewConfigError builds a ConfigurationError.
func NewConfigError(subject, format string, a ...interface{}) error {
	return &ConfigurationError{Subject: subject, Reason: fmt.Sprintf(format, a...)}
}

// IsCancelled reports whether err is a user cancellation.
func IsCancelled(err error) bool {
	return stderrors.Is(err, ErrCancelled)
}

// IsProtocol reports whether err is a ProviderProtocolError.
func IsProtocol(err error) bool {
	var pe *ProviderProtocolError
	return stderrors.As(err, &pe)
}
