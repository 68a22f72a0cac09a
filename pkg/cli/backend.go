package cli

import (
	"context"
	"io"

	"github.com/psaab/swsh/pkg/shell"
)

// Backend runs the lines typed at the prompt: a session in this process or
// one served by a remote swsh.
type Backend interface {
	Prompt() string
	Execute(ctx context.Context, line string, out io.Writer) error
	Complete(line string, cursor int) (shell.Completion, error)
	Ended() bool
	FormatError(err error) string
	// TerminalLength is the page height, 0 for no paging and -1 for the
	// height of the terminal.
	TerminalLength() int
}

// Local is a Backend running an in-process session.
type Local struct {
	Session *shell.Session
}

func (l *Local) Prompt() string { return l.Session.Prompt() }

func (l *Local) Execute(ctx context.Context, line string, out io.Writer) error {
	return l.Session.RunLine(ctx, line, out)
}

func (l *Local) Complete(line string, cursor int) (shell.Completion, error) {
	return l.Session.Complete(line, cursor), nil
}

func (l *Local) Ended() bool { return l.Session.Ended() }

func (l *Local) FormatError(err error) string {
	return shell.FormatError(err, l.Session.Options.Debug)
}

func (l *Local) TerminalLength() int { return l.Session.TerminalLength }

// SetConfirmer lets the line editor answer the session's questions.
func (l *Local) SetConfirmer(c shell.Confirmer) { l.Session.Confirmer = c }
