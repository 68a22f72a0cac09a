package shell

import (
	"context"
	"fmt"
	"io"

	"github.com/psaab/swsh/pkg/grammar"
)

// Call is the invocation of one action.
type Call struct {
	// Ctx is cancelled when the operator interrupts the line.
	Ctx     context.Context
	Session *Session
	// Args holds the bound parameters, by default "data" and "is-no".
	Args  map[string]any
	Match *grammar.Match
	Out   io.Writer
}

// Data returns the bound data object, or the matched one if the command's
// bindings do not pass it.
func (c *Call) Data() grammar.Data {
	if d, ok := c.Args["data"].(grammar.Data); ok {
		return d
	}
	if c.Match != nil {
		return c.Match.Data
	}
	return grammar.Data{}
}

// Negated reports whether the statement was prefixed with "no".
func (c *Call) Negated() bool {
	if v, ok := c.Args["is-no"].(bool); ok {
		return v
	}
	return c.Match != nil && c.Match.Negated
}

// Bool returns a bound boolean parameter.
func (c *Call) Bool(name string) bool {
	v, _ := c.Args[name].(bool)
	return v
}

// String returns a bound parameter formatted as text.
func (c *Call) String(name string) string {
	switch v := c.Args[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Printf writes to the statement output.
func (c *Call) Printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

// bindArgs resolves the entry's parameter bindings against the match and
// the session.
func bindArgs(bs []grammar.Binding, m *grammar.Match, s *Session) map[string]any {
	args := make(map[string]any, len(bs))
	top := s.Stack.Current()
	for _, b := range bs {
		var v any
		switch b.Source {
		case grammar.SourceData:
			v = m.Data
		case grammar.SourceNegated:
			v = m.Negated
		case grammar.SourceReplay:
			v = s.Options.Replay
		case grammar.SourceMode:
			v = top.Mode
		case grammar.SourceObjType:
			v = top.ObjType
		case grammar.SourceObjKey:
			v = top.ObjKey
		default:
			v = b.Value
		}
		args[b.Param] = v
	}
	return args
}
