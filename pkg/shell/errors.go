package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/psaab/swsh/pkg/grammar"
	"github.com/psaab/swsh/pkg/mode"
)

// InternalError wraps a failure outside the command error taxonomy,
// including recovered panics.
type InternalError struct {
	Err   error
	Stack []byte
}

func (e *InternalError) Error() string { return "internal error: " + e.Err.Error() }

func (e *InternalError) Unwrap() error { return e.Err }

// Result classes reported to observers and the audit log.
const (
	ResultOK         = "ok"
	ResultSyntax     = "syntax"
	ResultUnknown    = "unknown"
	ResultAmbiguous  = "ambiguous"
	ResultValidation = "validation"
	ResultSemantic   = "semantic"
	ResultAction     = "action"
	ResultCanceled   = "canceled"
	ResultInternal   = "internal"
)

// Classify maps an execution error to its result class.
func Classify(err error) string {
	var (
		syn *grammar.SyntaxError
		unk *grammar.UnknownCommandError
		amb *grammar.AmbiguousCommandError
		val *grammar.ArgumentValidationError
		sem *grammar.SemanticError
		act *grammar.ActionError
	)
	switch {
	case err == nil, errors.Is(err, mode.ErrSessionEnded):
		return ResultOK
	case errors.As(err, &syn):
		return ResultSyntax
	case errors.As(err, &unk):
		return ResultUnknown
	case errors.As(err, &amb):
		return ResultAmbiguous
	case errors.As(err, &val):
		return ResultValidation
	case errors.As(err, &sem):
		return ResultSemantic
	case errors.As(err, &act):
		return ResultAction
	case errors.Is(err, context.Canceled):
		return ResultCanceled
	}
	return ResultInternal
}

// FormatError renders err as the single message shown to the operator.
// Errors outside the taxonomy only show their detail in debug mode.
func FormatError(err error, debug bool) string {
	switch Classify(err) {
	case ResultOK:
		return ""
	case ResultSyntax, ResultUnknown, ResultAmbiguous:
		return "Syntax: " + err.Error()
	case ResultValidation, ResultSemantic, ResultAction:
		return "Error: " + err.Error()
	case ResultCanceled:
		return "Interrupted"
	}
	if !debug {
		return "Error: command failed (use 'debug cli' for details)"
	}
	msg := "Error: " + err.Error()
	var ie *InternalError
	if errors.As(err, &ie) && len(ie.Stack) > 0 {
		msg += "\n" + strings.TrimRight(string(ie.Stack), "\n")
	}
	return msg
}

func recovered(r any, stack []byte) error {
	if err, ok := r.(error); ok {
		return &InternalError{Err: fmt.Errorf("panic: %w", err), Stack: stack}
	}
	return &InternalError{Err: fmt.Errorf("panic: %v", r), Stack: stack}
}
