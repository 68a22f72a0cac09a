package grammar

import (
	"fmt"
	"strings"
)

// SyntaxError reports a malformed or incomplete statement. Pos is the index
// of the offending word; for incomplete statements it equals the word count.
type SyntaxError struct {
	Pos        int
	Word       string
	Expected   []string
	Incomplete bool
	Trailing   bool
}

func (e *SyntaxError) Error() string {
	var b strings.Builder
	switch {
	case e.Incomplete:
		b.WriteString("incomplete command")
	case e.Trailing:
		fmt.Fprintf(&b, "unexpected trailing input %q at word %d", e.Word, e.Pos+1)
	default:
		fmt.Fprintf(&b, "invalid input %q at word %d", e.Word, e.Pos+1)
	}
	if len(e.Expected) > 0 {
		fmt.Fprintf(&b, " (expected %s)", strings.Join(e.Expected, ", "))
	}
	return b.String()
}

// UnknownCommandError reports a first word that matches no visible command.
type UnknownCommandError struct {
	Word        string
	Suggestions []string
}

func (e *UnknownCommandError) Error() string {
	msg := fmt.Sprintf("unknown command %q", e.Word)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// AmbiguousCommandError reports a word that abbreviates more than one
// keyword at the same position.
type AmbiguousCommandError struct {
	Word       string
	Pos        int
	Candidates []string
}

func (e *AmbiguousCommandError) Error() string {
	return fmt.Sprintf("ambiguous command %q: %s", e.Word, strings.Join(e.Candidates, ", "))
}

// ArgumentValidationError reports a field value rejected by its type.
type ArgumentValidationError struct {
	Field string
	Word  string
	Pos   int
	Err   error
}

func (e *ArgumentValidationError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %v", e.Word, e.Field, e.Err)
}

func (e *ArgumentValidationError) Unwrap() error { return e.Err }

// SemanticError reports a well-formed statement that is not allowed in the
// current state, e.g. an unsupported negation or an illegal mode change.
type SemanticError struct {
	Msg string
}

func (e *SemanticError) Error() string { return e.Msg }

// Semanticf builds a SemanticError.
func Semanticf(format string, args ...any) error {
	return &SemanticError{Msg: fmt.Sprintf(format, args...)}
}

// ActionError is raised by actions and data handlers to report a domain
// failure to the operator.
type ActionError struct {
	Msg string
	Err error
}

func (e *ActionError) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ActionError) Unwrap() error { return e.Err }

// Actionf builds an ActionError.
func Actionf(format string, args ...any) error {
	return &ActionError{Msg: fmt.Sprintf(format, args...)}
}

// CompileError reports a malformed command description. It is fatal at load.
type CompileError struct {
	Command string
	Err     error
}

func (e *CompileError) Error() string {
	if e.Command == "" {
		return "compile grammar: " + e.Err.Error()
	}
	return fmt.Sprintf("compile command %q: %v", e.Command, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }
