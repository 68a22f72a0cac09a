package shell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"github.com/psaab/swsh/pkg/grammar"
	"github.com/psaab/swsh/pkg/mode"
)

// Options are the per-session flags.
type Options struct {
	// Debug shows diagnostics of internal failures.
	Debug bool
	// Batch is set when input does not come from a terminal.
	Batch bool
	// Replay is set while the startup configuration is replayed.
	Replay bool
}

// Pager is implemented by output writers that paginate.
type Pager interface {
	io.Writer
	SetPaging(on bool)
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(question string) (bool, error)
}

// Session is the state of one operator session. It is driven by a single
// goroutine.
type Session struct {
	ID      string
	Stack   *mode.Stack
	Options Options
	// TerminalLength is the page height; 0 disables paging and -1 uses the
	// terminal size.
	TerminalLength int
	Confirmer      Confirmer

	engine *Engine
	log    *slog.Logger
	cache  completionCache
	// stack is the session's own mode stack, Stack may point to a
	// temporary one during replay.
	stack *mode.Stack
}

// NewSession starts a session in the given mode. Modes above login are
// entered through their parents, so "config" yields login, enable, config.
func (e *Engine) NewSession(start string, opts Options) (*Session, error) {
	s := &Session{
		ID:             uuid.NewString(),
		Options:        opts,
		TerminalLength: -1,
		engine:         e,
	}
	s.log = e.cfg.Logger.With("session", s.ID)
	st, err := newStack(start, s.cache.invalidate)
	if err != nil {
		return nil, err
	}
	s.Stack, s.stack = st, st
	s.log.Debug("session started", "mode", s.Stack.Current().Mode)
	return s, nil
}

func newStack(start string, onChange func()) (*mode.Stack, error) {
	st := mode.New(mode.Login)
	st.OnChange(onChange)
	switch {
	case start == "" || start == mode.Login:
	case start == mode.Enable:
		err := st.Push(mode.Frame{Mode: mode.Enable})
		return st, err
	case start == mode.Config:
		if err := st.Push(mode.Frame{Mode: mode.Enable}); err != nil {
			return nil, err
		}
		return st, st.Push(mode.Frame{Mode: mode.Config})
	default:
		return nil, fmt.Errorf("cannot start in mode %q", start)
	}
	return st, nil
}

// Engine returns the engine the session runs on.
func (s *Session) Engine() *Engine { return s.engine }

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger { return s.log }

// Ended reports whether the session is over.
func (s *Session) Ended() bool { return s.stack.Ended() }

// Prompt renders "host>" in login, "host#" in enable and "host(mode)#" in
// config modes.
func (s *Session) Prompt() string {
	host := s.engine.Hostname()
	switch m := s.Stack.Current().Mode; {
	case m == mode.Login:
		return host + ">"
	case m == mode.Enable:
		return host + "#"
	default:
		return host + "(" + m + ")#"
	}
}

// Confirm asks question unless the session is non-interactive, in which
// case it answers yes.
func (s *Session) Confirm(question string) (bool, error) {
	if s.Confirmer == nil || s.Options.Batch || s.Options.Replay {
		return true, nil
	}
	return s.Confirmer.Confirm(question)
}

// InvalidateCompletions drops the cached completion.
func (s *Session) InvalidateCompletions() { s.cache.invalidate() }

// RunLine executes every statement of line, writing their output to out.
// It stops at the first failing statement and returns its error.
func (s *Session) RunLine(ctx context.Context, line string, out io.Writer) error {
	stmts, err := Parse(line)
	if err != nil {
		s.audit(line, err)
		return err
	}
	for _, st := range stmts {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.runStatement(ctx, st, out)
		s.audit(strings.Join(st.Words, " "), err)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) audit(line string, err error) {
	res := Classify(err)
	s.engine.cfg.Observer.StatementDone(res)
	attrs := []any{"line", line, "mode", s.Stack.Current().Mode, "result", res}
	if s.Options.Replay {
		attrs = append(attrs, "replay", true)
	}
	if res == ResultInternal {
		s.log.Error("command", append(attrs, "err", err)...)
		return
	}
	s.log.Info("command", attrs...)
}

func (s *Session) runStatement(ctx context.Context, st Statement, out io.Writer) error {
	if !filters(st.Pipes) && st.Redirect == nil {
		if p, ok := out.(Pager); ok && hasNoMore(st.Pipes) {
			p.SetPaging(false)
			defer p.SetPaging(true)
		}
		return s.Execute(ctx, st.Words, out)
	}
	var buf bytes.Buffer
	err := s.Execute(ctx, st.Words, &buf)
	res := applyPipes(buf.Bytes(), st.Pipes)
	if st.Redirect != nil {
		if werr := writeRedirect(st.Redirect, res); werr != nil {
			return errors.Join(err, &grammar.ActionError{Msg: "redirect", Err: werr})
		}
		return err
	}
	if p, ok := out.(Pager); ok && hasNoMore(st.Pipes) {
		p.SetPaging(false)
		defer p.SetPaging(true)
	}
	if _, werr := out.Write(res); werr != nil && err == nil {
		err = werr
	}
	return err
}

func writeRedirect(r *Redirect, b []byte) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if r.Append {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(r.Path, flags, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Execute matches words in the current mode and invokes the bound action.
// A statement a config submode does not know, or rejects with a syntax
// error, is retried in the enclosing modes, leaving the submode when it
// matches there.
func (s *Session) Execute(ctx context.Context, words []string, out io.Writer) (err error) {
	g := s.engine.Grammar()
	m, err := g.Match(s.Stack.Scope(), words)
	if err != nil {
		var (
			unk *grammar.UnknownCommandError
			syn *grammar.SyntaxError
		)
		unknown := errors.As(err, &unk)
		if !unknown && (!errors.As(err, &syn) || syn.Incomplete) {
			return err
		}
		am, depth, aerr := s.matchEnclosing(g, words)
		switch {
		case aerr != nil && unknown:
			return aerr
		case am == nil:
			return err
		}
		frames := s.Stack.Frames()
		if perr := s.Stack.PopTo(frames[depth].Mode); perr != nil {
			return perr
		}
		m = am
	}
	fn := s.engine.action(m.Action)
	if fn == nil {
		return &InternalError{Err: fmt.Errorf("action %q is not registered", m.Action)}
	}
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r, debug.Stack())
		}
	}()
	return fn(&Call{
		Ctx:     ctx,
		Session: s,
		Args:    bindArgs(m.Entry.Bindings, m, s),
		Match:   m,
		Out:     out,
	})
}

// matchEnclosing tries the frames below a config submode, innermost
// first, and returns the match and the index of the frame it matched in.
// A statement recognised by an enclosing mode but rejected there returns
// that mode's error.
func (s *Session) matchEnclosing(g *grammar.Grammar, words []string) (*grammar.Match, int, error) {
	if !s.Stack.InSubmodeOf(mode.Config) {
		return nil, 0, nil
	}
	frames := s.Stack.Frames()
	modes := s.Stack.Modes()
	for i := len(frames) - 2; i >= 0; i-- {
		sc := grammar.Scope{Modes: modes[:i+1], ObjType: frames[i].ObjType, ObjKey: frames[i].ObjKey}
		m, err := g.Match(sc, words)
		if err == nil {
			return m, i, nil
		}
		var unk *grammar.UnknownCommandError
		if !errors.As(err, &unk) {
			return nil, 0, err
		}
		if frames[i].Mode == mode.Config {
			break
		}
	}
	return nil, 0, nil
}

// Replay runs a saved configuration in config mode on a scratch mode stack
// with Options.Replay set. Failing lines are logged and skipped.
func (s *Session) Replay(ctx context.Context, r io.Reader) (applied, failed int, err error) {
	st, err := newStack(mode.Config, s.cache.invalidate)
	if err != nil {
		return 0, 0, err
	}
	saved := s.Stack
	s.Stack = st
	s.Options.Replay = true
	defer func() {
		s.Stack = saved
		s.Options.Replay = false
		s.cache.invalidate()
	}()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Text()
		if t := strings.TrimSpace(line); t == "" || t[0] == '!' || t[0] == '#' {
			continue
		}
		err := s.RunLine(ctx, line, io.Discard)
		switch {
		case err == nil:
			applied++
		case errors.Is(err, mode.ErrSessionEnded):
			return applied, failed, nil
		case errors.Is(err, context.Canceled):
			return applied, failed, err
		default:
			failed++
			s.log.Warn("startup-config line failed", "line", n, "text", line, "err", FormatError(err, s.Options.Debug))
		}
	}
	return applied, failed, sc.Err()
}

// Completion is the result of completing the word under the cursor.
type Completion struct {
	// Partial is the part of the word already typed.
	Partial    string
	Candidates []grammar.Candidate
}

// Complete returns the candidates for the word ending at cursor, a rune
// offset into line.
func (s *Session) Complete(line string, cursor int) Completion {
	if c, ok := s.cache.get(line, cursor); ok {
		s.engine.cfg.Observer.CompletionDone(true)
		return c
	}
	s.engine.cfg.Observer.CompletionDone(false)
	rs := []rune(line)
	end := min(max(cursor, 0), len(rs))
	cc := completionContextOf(string(rs[:end]))
	c := Completion{Partial: cc.partial}
	switch {
	case cc.none:
	case cc.pipe:
		for _, n := range pipeFilterNames() {
			if strings.HasPrefix(n, strings.ToLower(cc.partial)) {
				c.Candidates = append(c.Candidates, grammar.Candidate{Text: n, Help: PipeFilters[n], Kind: grammar.CandKeyword})
			}
		}
	default:
		c.Candidates = s.engine.Grammar().Complete(s.Stack.Scope(), cc.words, cc.partial)
	}
	s.cache.put(line, cursor, c)
	return c
}

// completionCache holds the result for the last line and cursor.
type completionCache struct {
	valid  bool
	line   string
	cursor int
	result Completion
}

func (c *completionCache) get(line string, cursor int) (Completion, bool) {
	if c.valid && c.line == line && c.cursor == cursor {
		return c.result, true
	}
	return Completion{}, false
}

func (c *completionCache) put(line string, cursor int, r Completion) {
	c.valid, c.line, c.cursor, c.result = true, line, cursor, r
}

func (c *completionCache) invalidate() { c.valid = false }
