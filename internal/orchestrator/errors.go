package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a request failure. Codes are returned verbatim in the
// failure response's error field.
type Code string

const (
	CodeInvalidRequest       Code = "InvalidRequest"
	CodeUnsupportedTool      Code = "UnsupportedTool"
	CodeInvalidArguments     Code = "InvalidArguments"
	CodeForbidden            Code = "Forbidden"
	CodeInvalidConfirmation  Code = "InvalidOrExpiredConfirmation"
	CodeExecutionFailure     Code = "ExecutionFailure"
)

// Error is the orchestrator's request-failure type. Every failure the
// orchestrator returns is one of these; collaborator errors are wrapped
// as CodeExecutionFailure.
type Error struct {
	Code    Code
	Message string
	Fields  []string // Violated argument fields, CodeInvalidArguments only.
	Reasons []string // Policy reasons, CodeForbidden only.
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the failure code, defaulting to CodeExecutionFailure for
// errors that did not originate in the orchestrator.
func CodeOf(err error) Code {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Code
	}
	return CodeExecutionFailure
}

func invalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: msg}
}

func unsupportedTool(name string) *Error {
	return &Error{Code: CodeUnsupportedTool, Message: fmt.Sprintf("unknown tool: %s", name)}
}

func invalidArguments(fields []string) *Error {
	return &Error{
		Code:    CodeInvalidArguments,
		Message: "invalid arguments: " + strings.Join(fields, ", "),
		Fields:  fields,
	}
}

func forbidden(reasons []string) *Error {
	return &Error{
		Code:    CodeForbidden,
		Message: "access denied by policy",
		Reasons: reasons,
	}
}

func invalidConfirmation(err error) *Error {
	return &Error{
		Code:    CodeInvalidConfirmation,
		Message: "invalid or expired confirmation",
		Err:     err,
	}
}

func executionFailure(err error) *Error {
	return &Error{
		Code:    CodeExecutionFailure,
		Message: err.Error(),
		Err:     err,
	}
}
