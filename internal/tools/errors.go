// Package tools provides the tool registry and execution framework.
//
// This file defines error types and the observation prefixes used when a
// failure is turned into text for the reasoning loop.
package tools

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateTool is returned by Register when the name is taken.
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrSchemaValidation marks arguments that do not satisfy a tool's
	// input schema.
	ErrSchemaValidation = errors.New("schema validation failed")
)

// ErrToolNotFound is returned when a lookup targets a name that is not
// registered.
type ErrToolNotFound struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.ToolName)
}

// Observation prefixes. A successful invocation returns the handler's
// text verbatim; every failure starts with one of these.
const (
	NotFoundPrefix   = "错误："
	ValidationPrefix = "参数校验失败："
	FailurePrefix    = "工具调用失败："
)

// IsFailure reports whether an observation describes a failed invocation.
func IsFailure(observation string) bool {
	for _, p := range []string{NotFoundPrefix, ValidationPrefix, FailurePrefix} {
		if strings.HasPrefix(observation, p) {
			return true
		}
	}
	return false
}
