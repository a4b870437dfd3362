// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the agora CLI.
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"

	"github.com/jllopis/agora/pkg/a2a/jsonrpc/client"
	"github.com/jllopis/agora/pkg/errors"
)

// CLIError wraps an agora error with a hint for the user.
type CLIError struct {
	Err  *errors.Error
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(e *errors.Error, hint string) *CLIError {
	return &CLIError{Err: e, Hint: hint}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	msg := e.Err.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (e *CLIError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

type cliErrorJSON struct {
	Error struct {
		Code    errors.ErrorCode `json:"code"`
		Message string           `json:"message"`
		Hint    string           `json:"hint,omitempty"`
	} `json:"error"`
}

// PrintError writes the error to w.
func (e *CLIError) PrintError(w io.Writer, asJSON bool) {
	if asJSON {
		var out cliErrorJSON
		out.Error.Code = e.Err.Code
		out.Error.Message = e.Err.Error()
		out.Error.Hint = e.Hint
		_ = json.NewEncoder(w).Encode(out)
		return
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", e.Err.Code, e.Err.Error())
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

// WrapConnectionError wraps a connection error with CLI hints.
func WrapConnectionError(err error, addr string) *CLIError {
	e := errors.New(errors.CodeInternal, "connection failed", err).
		WithContext("address", addr).
		WithRecoverable(true)
	return NewCLIError(e, fmt.Sprintf("check that an agent is running at %s", addr))
}

// WrapTimeoutError wraps a timeout error with CLI hints.
func WrapTimeoutError(err error, operation string) *CLIError {
	e := errors.New(errors.CodeTimeout, operation+" timed out", err).
		WithContext("operation", operation).
		WithRecoverable(true)
	return NewCLIError(e, "try increasing the timeout with --timeout")
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	e := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg).
		WithRecoverable(false)
	return NewCLIError(e, "run 'agora help' for usage information")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	e := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", configPath).
		WithRecoverable(false)

	hint := "check the AGORA_ environment variables"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(e, hint)
}

// WrapRemoteError turns a failed call to an agent into a CLI error. JSON-RPC
// errors keep the code the agent reported.
func WrapRemoteError(err error, addr string) *CLIError {
	var rpcErr *client.RPCError
	if stderrors.As(err, &rpcErr) {
		code := errors.CodeInternal
		if rpcErr.Data != nil && rpcErr.Data.Code != "" {
			code = errors.ErrorCode(rpcErr.Data.Code)
		}
		e := errors.New(code, rpcErr.Message, nil).WithContext("rpc_code", rpcErr.Code)
		return NewCLIError(e, rpcHint(code))
	}
	var httpErr *client.HTTPError
	if stderrors.As(err, &httpErr) {
		e := errors.New(errors.CodeInternal, "agent answered "+httpErr.Status, err).
			WithContext("status", httpErr.StatusCode)
		return NewCLIError(e, fmt.Sprintf("check that %s serves the A2A JSON-RPC binding", addr))
	}
	var decodeErr *client.DecodeError
	if stderrors.As(err, &decodeErr) {
		e := errors.New(errors.CodeInternal, "invalid response", err)
		return NewCLIError(e, fmt.Sprintf("check that %s is an A2A agent", addr))
	}
	if e := errors.AsError(err); e.Code == errors.CodeDiscovery {
		return NewCLIError(e, fmt.Sprintf("check that %s publishes an agent card", addr))
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return WrapTimeoutError(err, "request")
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return WrapTimeoutError(err, "request")
	}
	return WrapConnectionError(err, addr)
}

func rpcHint(code errors.ErrorCode) string {
	switch code {
	case errors.CodeNotFound:
		return "the agent does not know this task; tasks live only as long as the agent process"
	case errors.CodeTerminalTask:
		return "the task already finished; send a new message without -task"
	case errors.CodeInvalidState:
		return "the task cannot move to that state; run 'agora get' to see where it is"
	case errors.CodeConflict:
		return "the task is still being processed; wait for it or cancel it"
	case errors.CodeInvalidInput:
		return "check the message text and flags"
	case errors.CodeUnknownAgent, errors.CodeDelegation, errors.CodeDiscovery:
		return "a remote agent could not be used; run 'agora agents' to check the registry"
	}
	return ""
}

// PrintSimpleError prints errors that carry no hint.
func PrintSimpleError(w io.Writer, err error, asJSON bool) {
	if asJSON {
		var out cliErrorJSON
		out.Error.Code = errors.AsError(err).Code
		out.Error.Message = err.Error()
		_ = json.NewEncoder(w).Encode(out)
		return
	}
	fmt.Fprintf(w, "Error: %s\n", err.Error())
}
