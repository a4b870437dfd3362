// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"github.com/jllopis/agora/pkg/errors"
)

// WrapLLMError wraps an LLM error with appropriate context.
func WrapLLMError(err error, model string) *errors.Error {
	if err == nil {
		return nil
	}
	if e := errors.AsError(err); e.Code == errors.CodeLLMError {
		return e
	}
	return errors.New(errors.CodeLLMError, "LLM call failed", err).
		WithContext("model", model).
		WithAttribute("llm.model", model).
		WithRecoverable(true)
}

// WrapToolError wraps a tool execution error with appropriate context.
func WrapToolError(err error, toolName, toolCallID string) *errors.Error {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeToolFailure, "tool execution failed", err).
		WithContext("tool_name", toolName).
		WithContext("tool_call_id", toolCallID).
		WithAttribute("tool.name", toolName).
		WithRecoverable(true)
}

// WrapMemoryError wraps a conversation memory error with appropriate context.
func WrapMemoryError(err error, operation string) *errors.Error {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeInternal, "memory operation failed", err).
		WithContext("operation", operation).
		WithAttribute("memory.operation", operation).
		WithRecoverable(true)
}

// NewIterationLimitError reports a tool loop that did not converge.
func NewIterationLimitError(maxIterations int) *errors.Error {
	return errors.Reasoning("reasoning exceeded max iterations", nil).
		WithContext("max_iterations", maxIterations).
		WithRecoverable(false)
}

// NewEmptyResponseError reports a model turn with neither text nor tool calls.
func NewEmptyResponseError(model string) *errors.Error {
	return errors.Reasoning("model returned an empty response", nil).
		WithContext("model", model)
}
