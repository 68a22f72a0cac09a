package features

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/psaab/swsh/pkg/grammar"
	"github.com/psaab/swsh/pkg/logging"
	"github.com/psaab/swsh/pkg/mode"
	"github.com/psaab/swsh/pkg/shell"
)

var processStart = time.Now()

// Core provides mode navigation, session settings, persistence and the
// audit log.
type Core struct {
	deps Deps
}

func (*Core) Name() string { return "core" }

func (f *Core) Register(r *shell.Registrar) error {
	err := registerActions(r, map[string]shell.ActionFunc{
		"enable":              push(mode.Enable),
		"configure":           push(mode.Config),
		"disable":             func(c *shell.Call) error { return c.Session.Stack.PopTo(mode.Login) },
		"end":                 func(c *shell.Call) error { return c.Session.Stack.PopTo(mode.Enable) },
		"exit":                func(c *shell.Call) error { return c.Session.Stack.Pop() },
		"quit":                quit,
		"do":                  do,
		"show-version":        f.showVersion,
		"show-syntax":         f.showSyntax,
		"show-startup-config": f.showStartupConfig,
		"show-archive":        f.showArchive,
		"show-logging":        f.showLogging,
		"clear-logging":       f.clearLogging,
		"copy":                f.copy,
		"terminal-length":     terminalLength,
		"debug-cli":           debugCLI,
		"syntax-version":      syntaxVersion,
	})
	if err != nil {
		return err
	}
	return r.Grammar.RegisterCompletion("syntax-versions", func(req grammar.CompletionRequest) []grammar.Candidate {
		vs, err := f.deps.Syntax.Versions()
		if err != nil {
			return nil
		}
		return candidates(vs, "Syntax version")
	})
}

func push(m string) shell.ActionFunc {
	return func(c *shell.Call) error {
		return c.Session.Stack.Push(mode.Frame{Mode: m})
	}
}

func quit(c *shell.Call) error {
	for {
		if err := c.Session.Stack.Pop(); err != nil {
			return err
		}
	}
}

// do runs the rest of the line as a privileged exec command without
// leaving the configuration mode.
func do(c *shell.Call) error {
	s := c.Session
	scratch := mode.New(mode.Login)
	if err := scratch.Push(mode.Frame{Mode: mode.Enable}); err != nil {
		return err
	}
	saved := s.Stack
	s.Stack = scratch
	defer func() { s.Stack = saved }()
	err := s.Execute(c.Ctx, c.Match.Words[1:], c.Out)
	if errors.Is(err, mode.ErrSessionEnded) {
		return nil
	}
	return err
}

func (f *Core) showVersion(c *shell.Call) error {
	e := c.Session.Engine()
	c.Printf("swsh switch shell, version %s\n", e.Release())
	c.Printf("Command syntax %s\n", e.SyntaxVersion())
	c.Printf("%s uptime is %s\n", e.Hostname(), time.Since(processStart).Truncate(time.Second))
	return nil
}

func (f *Core) showSyntax(c *shell.Call) error {
	e := c.Session.Engine()
	vs, err := e.SyntaxVersions()
	if err != nil {
		return &grammar.ActionError{Msg: "list syntax versions", Err: err}
	}
	for _, v := range vs {
		mark := " "
		if v == e.SyntaxVersion() {
			mark = "*"
		}
		c.Printf("%s %s\n", mark, v)
	}
	return nil
}

func (f *Core) showStartupConfig(c *shell.Call) error {
	doc, err := f.deps.Store.Load()
	if err != nil {
		return &grammar.ActionError{Err: err}
	}
	if doc == "" {
		return grammar.Actionf("startup-config is not present")
	}
	c.Printf("%s", doc)
	return nil
}

func (f *Core) showArchive(c *shell.Call) error {
	if n, ok := c.Data().Int("index"); ok {
		e, err := f.deps.Store.Saved(int(n))
		if err != nil {
			return &grammar.ActionError{Err: err}
		}
		c.Printf("%s", e.Text)
		return nil
	}
	t := newTable(c.Out, "Index", "Saved", "Lines", "Comment")
	for i, e := range f.deps.Store.History() {
		t.AppendRow([]any{i, e.Timestamp.Format(time.DateTime), strings.Count(e.Text, "\n"), e.Comment})
	}
	t.Render()
	return nil
}

func (f *Core) showLogging(c *shell.Call) error {
	if f.deps.Logging == nil {
		return grammar.Actionf("audit log is not available")
	}
	d := c.Data()
	n := 100
	if v, ok := d.Int("count"); ok {
		n = int(v)
	}
	recs := f.deps.Logging.Buffer().Latest(n, logging.Filter{Session: d.String("session")})
	if len(recs) == 0 {
		c.Printf("Audit log is empty\n")
		return nil
	}
	t := newTable(c.Out, "Time", "Session", "Mode", "Result", "Command")
	for _, r := range recs {
		sess := r.Session
		if len(sess) > 8 {
			sess = sess[:8]
		}
		t.AppendRow([]any{r.Time.Format(time.DateTime), sess, r.Mode, r.Result, r.Line})
	}
	t.Render()
	return nil
}

func (f *Core) clearLogging(c *shell.Call) error {
	if f.deps.Logging == nil {
		return grammar.Actionf("audit log is not available")
	}
	ok, err := c.Session.Confirm("Clear logging buffer?")
	if err != nil || !ok {
		return err
	}
	f.deps.Logging.Buffer().Clear()
	return nil
}

func (f *Core) copy(c *shell.Call) error {
	d := c.Data()
	s := c.Session
	switch from, to := d.String("from"), d.String("to"); {
	case from == "running-config" && to == "startup-config":
		doc, err := s.Engine().GenerateConfig(c.Ctx, s, "", nil)
		if err != nil {
			return err
		}
		if err := f.deps.Store.Save(doc, strings.Join(c.Match.Words, " ")); err != nil {
			return &grammar.ActionError{Msg: "save startup-config", Err: err}
		}
		c.Printf("[OK]\n")
		s.Logger().Info("startup-config saved", "path", f.deps.Store.Path())
	case from == "startup-config" && to == "running-config":
		doc, err := f.deps.Store.Load()
		if err != nil {
			return &grammar.ActionError{Err: err}
		}
		applied, failed, err := s.Replay(c.Ctx, strings.NewReader(doc))
		if err != nil {
			return err
		}
		c.Printf("%d lines applied, %d failed\n", applied, failed)
	default:
		return grammar.Semanticf("cannot copy %s to %s", from, to)
	}
	return nil
}

func terminalLength(c *shell.Call) error {
	if c.Negated() {
		c.Session.TerminalLength = -1
		return nil
	}
	n, ok := c.Data().Int("lines")
	if !ok {
		return incomplete(c)
	}
	c.Session.TerminalLength = int(n)
	return nil
}

func debugCLI(c *shell.Call) error {
	c.Session.Options.Debug = !c.Negated()
	state := "on"
	if c.Negated() {
		state = "off"
	}
	c.Printf("CLI debugging is %s\n", state)
	return nil
}

func syntaxVersion(c *shell.Call) error {
	e := c.Session.Engine()
	v := c.Data().String("version")
	vs, err := e.SyntaxVersions()
	if err != nil {
		return &grammar.ActionError{Msg: "list syntax versions", Err: err}
	}
	found := false
	for _, have := range vs {
		found = found || have == v
	}
	if !found {
		return grammar.Actionf("unknown syntax version %q", v)
	}
	if err := e.Reload(v); err != nil {
		return &grammar.ActionError{Msg: fmt.Sprintf("load syntax %s", v), Err: err}
	}
	c.Session.InvalidateCompletions()
	c.Printf("Command syntax %s loaded\n", e.SyntaxVersion())
	return nil
}
