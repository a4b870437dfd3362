// SPDX-License-Identifier: Apache-2.0
// Package errors provides the typed error taxonomy shared by every agora
// component: task store, task manager, registry, delegation and agents.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies agora errors for routing, monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates an unknown task identifier.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeDuplicateTask indicates a task with the same identifier already exists.
	CodeDuplicateTask ErrorCode = "DUPLICATE_TASK"

	// CodeTerminalTask indicates a mutation attempted on a finished task.
	CodeTerminalTask ErrorCode = "TERMINAL_TASK"

	// CodeInvalidState indicates an illegal state transition.
	CodeInvalidState ErrorCode = "INVALID_STATE"

	// CodeConflict indicates a concurrent send on a task that is in flight.
	CodeConflict ErrorCode = "CONFLICT"

	// CodeDiscovery indicates an Agent Card could not be fetched or parsed.
	CodeDiscovery ErrorCode = "DISCOVERY_ERROR"

	// CodeUnknownAgent indicates a delegation target that is not registered.
	CodeUnknownAgent ErrorCode = "UNKNOWN_AGENT"

	// CodeDelegation indicates a remote agent call failed.
	CodeDelegation ErrorCode = "DELEGATION_ERROR"

	// CodeReasoning indicates the local reasoning step failed or returned nothing.
	CodeReasoning ErrorCode = "REASONING_ERROR"

	// CodeUnsupported indicates a recognised but unsupported operation.
	CodeUnsupported ErrorCode = "UNSUPPORTED"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates rate limiting was triggered.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeToolFailure indicates a tool execution failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"
)

// DelegationKind refines CodeDelegation errors.
type DelegationKind string

const (
	// KindTimeout means the remote agent did not answer before the deadline.
	KindTimeout DelegationKind = "timeout"
	// KindRefused means the remote agent could not be reached.
	KindRefused DelegationKind = "refused"
	// KindProtocol means the remote agent answered with an error or garbage.
	KindProtocol DelegationKind = "protocol"
	// KindCanceled means the caller gave up before the remote agent answered.
	KindCanceled DelegationKind = "canceled"
)

// Error is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type Error struct {
	Code        ErrorCode
	Kind        DelegationKind
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int // HTTP-ish status for logs and CLI output
}

// Error implements the error interface.
func (e *Error) Error() string {
	code := string(e.Code)
	if e.Kind != "" {
		code = fmt.Sprintf("%s/%s", e.Code, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Kind        string                 `json:"kind,omitempty"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Message:     e.Message,
		Code:        string(e.Code),
		Kind:        string(e.Kind),
		Err:         cause,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	})
}

// New creates a new Error with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *Error) WithAttribute(key, value string) *Error {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *Error) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// AsError finds the first *Error in the chain.
// Errors of any other type are wrapped as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var target *Error
	if stderrors.As(err, &target) {
		return target
	}
	return New(CodeInternal, "internal error", err)
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var target *Error
	if stderrors.As(err, &target) {
		return target.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var target *Error
	if !stderrors.As(err, &target) {
		return false
	}
	return target.Code == code
}

// KindOf returns the delegation kind carried by err, if any.
func KindOf(err error) DelegationKind {
	var target *Error
	if !stderrors.As(err, &target) {
		return ""
	}
	return target.Kind
}

// NotFound reports an unknown task identifier.
func NotFound(taskID string) *Error {
	return New(CodeNotFound, fmt.Sprintf("task %q not found", taskID), nil).
		WithContext("task_id", taskID)
}

// DuplicateTask reports a create on an existing identifier.
func DuplicateTask(taskID string) *Error {
	return New(CodeDuplicateTask, fmt.Sprintf("task %q already exists", taskID), nil).
		WithContext("task_id", taskID)
}

// TerminalTask reports a mutation of a task in a terminal state.
func TerminalTask(taskID, state string) *Error {
	return New(CodeTerminalTask, fmt.Sprintf("task %q is %s", taskID, state), nil).
		WithContext("task_id", taskID).
		WithContext("state", state)
}

// InvalidState reports an illegal transition.
func InvalidState(taskID, from, to string) *Error {
	return New(CodeInvalidState, fmt.Sprintf("task %q cannot move from %s to %s", taskID, from, to), nil).
		WithContext("task_id", taskID).
		WithContext("from", from).
		WithContext("to", to)
}

// Conflict reports a send on a task that is already being processed.
func Conflict(taskID string) *Error {
	return New(CodeConflict, fmt.Sprintf("task %q is already being processed", taskID), nil).
		WithContext("task_id", taskID).
		WithRecoverable(true)
}

// Discovery reports an Agent Card fetch or parse failure.
func Discovery(endpoint string, cause error) *Error {
	return New(CodeDiscovery, fmt.Sprintf("agent card discovery failed for %s", endpoint), cause).
		WithContext("endpoint", endpoint).
		WithRecoverable(true)
}

// UnknownAgent reports a delegation target that is not registered.
func UnknownAgent(name string) *Error {
	return New(CodeUnknownAgent, fmt.Sprintf("unknown agent %q", name), nil).
		WithContext("agent", name)
}

// Delegation reports a failed remote agent call.
func Delegation(kind DelegationKind, agent string, cause error) *Error {
	e := New(CodeDelegation, fmt.Sprintf("delegation to %q failed", agent), cause).
		WithContext("agent", agent).
		WithContext("kind", string(kind)).
		WithRecoverable(kind != KindProtocol && kind != KindCanceled)
	e.Kind = kind
	if kind == KindTimeout {
		e.StatusCode = 504
	}
	return e
}

// Reasoning reports a failed or empty reasoning step.
func Reasoning(msg string, cause error) *Error {
	return New(CodeReasoning, msg, cause)
}

// InvalidInput reports malformed parameters.
func InvalidInput(msg string) *Error {
	return New(CodeInvalidInput, msg, nil)
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound, CodeUnknownAgent:
		return 404
	case CodeInvalidInput:
		return 400
	case CodeConflict, CodeDuplicateTask, CodeTerminalTask, CodeInvalidState:
		return 409
	case CodeTimeout:
		return 408
	case CodeRateLimit:
		return 429
	case CodeUnsupported:
		return 501
	case CodeDiscovery, CodeDelegation:
		return 502
	default:
		return 500
	}
}
