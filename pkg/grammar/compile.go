package grammar

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CompileOptions configures Compile.
type CompileOptions struct {
	Version  string
	Registry *Registry
	Actions  ActionSet
}

// Grammar is the immutable, compiled command table of one syntax version.
type Grammar struct {
	Version string
	entries []*Entry
	reg     *Registry
}

var defaultBindings = []Binding{
	{Param: "data", Source: SourceData},
	{Param: "is-no", Source: SourceNegated},
}

// Compile turns descriptions into a grammar. Any malformed description,
// unknown type or unregistered procedure name fails the whole compilation.
func Compile(descs []CommandDesc, opts CompileOptions) (*Grammar, error) {
	if opts.Registry == nil {
		return nil, &CompileError{Err: errors.New("no registry")}
	}
	g := &Grammar{Version: opts.Version, reg: opts.Registry}
	c := compiler{reg: opts.Registry, actions: opts.Actions}
	for i, d := range descs {
		e, err := c.entry(d)
		if err != nil {
			name := d.Name
			if name == "" && len(d.Args) > 0 {
				name = "<" + d.Args[0].Field + ">"
			}
			return nil, &CompileError{Command: name, Err: err}
		}
		e.index = i
		g.entries = append(g.entries, e)
	}
	return g, nil
}

type compiler struct {
	reg     *Registry
	actions ActionSet
}

func (c compiler) entry(d CommandDesc) (*Entry, error) {
	if d.Name != "" && strings.ContainsAny(d.Name, " \t") {
		return nil, errors.New("command name must be a single word")
	}
	if len(d.Mode) == 0 {
		return nil, errors.New("no mode")
	}
	e := &Entry{
		Name:        d.Name,
		Action:      d.Action,
		NoAction:    d.NoAction,
		NoSupported: d.NoSupported || d.NoAction != "",
		ShortHelp:   d.ShortHelp,
		Doc:         d.Doc,
		ObjType:     d.ObjType,
		Feature:     d.Feature,
	}
	for _, m := range d.Mode {
		p, err := parseModePattern(m)
		if err != nil {
			return nil, err
		}
		for _, q := range e.Modes {
			if p.overlaps(q) {
				return nil, fmt.Errorf("mode %q conflicts with %q", p, q)
			}
		}
		e.Modes = append(e.Modes, p)
	}
	if d.Action == "" {
		return nil, errors.New("no action")
	}
	if err := c.checkAction(d.Action); err != nil {
		return nil, err
	}
	if d.NoAction != "" {
		if err := c.checkAction(d.NoAction); err != nil {
			return nil, err
		}
	}
	if d.Completion != "" {
		fn, ok := c.reg.completions[d.Completion]
		if !ok {
			return nil, fmt.Errorf("unknown completion %q", d.Completion)
		}
		e.Completion = fn
	}
	bindings, err := compileBindings(d.Bind)
	if err != nil {
		return nil, err
	}
	e.Bindings = bindings

	root := &Node{Kind: KindSequence, Data: d.Data}
	if d.Name != "" {
		root.Children = append(root.Children, &Node{
			Kind:    KindToken,
			Literal: d.Name,
			Help:    d.ShortHelp,
			Doc:     d.Doc,
		})
	} else {
		if len(d.Args) == 0 || d.Args[0].Token != "" {
			return nil, errors.New("a command without a name must start with a field or choice")
		}
	}
	args, err := c.sequence(d.Args)
	if err != nil {
		return nil, err
	}
	root.Children = append(root.Children, args...)
	e.Root = root
	return e, nil
}

func (c compiler) checkAction(name string) error {
	if c.actions == nil || !c.actions.HasAction(name) {
		return fmt.Errorf("unknown action %q", name)
	}
	return nil
}

func compileBindings(bind map[string]string) ([]Binding, error) {
	if len(bind) == 0 {
		return defaultBindings, nil
	}
	params := make([]string, 0, len(bind))
	for p := range bind {
		params = append(params, p)
	}
	sort.Strings(params)
	out := make([]Binding, 0, len(bind))
	for _, p := range params {
		v := bind[p]
		b := Binding{Param: p, Source: SourceLiteral, Value: v}
		switch {
		case strings.HasPrefix(v, "$$"):
			b.Value = v[1:]
		case strings.HasPrefix(v, "$"):
			src, ok := placeholders[v]
			if !ok {
				return nil, fmt.Errorf("parameter %q: unknown placeholder %q", p, v)
			}
			b.Source, b.Value = src, ""
		}
		out = append(out, b)
	}
	return out, nil
}

func (c compiler) sequence(descs []NodeDesc) ([]*Node, error) {
	out := make([]*Node, 0, len(descs))
	for _, d := range descs {
		n, err := c.node(d)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (c compiler) node(d NodeDesc) (*Node, error) {
	n := &Node{Data: d.Data, Help: d.Help, Doc: d.Doc, Action: d.Action, NoAction: d.NoAction}
	for _, a := range []string{d.Action, d.NoAction} {
		if a == "" {
			continue
		}
		if err := c.checkAction(a); err != nil {
			return nil, err
		}
	}
	kinds := 0
	if d.Token != "" {
		kinds++
	}
	if d.Field != "" && d.Token == "" {
		kinds++
	}
	if d.Choice != nil {
		kinds++
	}
	if d.Optional != nil {
		kinds++
	}
	if kinds != 1 {
		return nil, errors.New("a node must be exactly one of token, field, choice or optional")
	}
	switch {
	case d.Token != "":
		if strings.ContainsAny(d.Token, " \t") {
			return nil, fmt.Errorf("token %q must be a single word", d.Token)
		}
		n.Kind, n.Literal, n.Name = KindToken, d.Token, d.Field
	case d.Field != "":
		n.Kind, n.Name = KindField, d.Field
		t, err := c.fieldType(d)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", d.Field, err)
		}
		n.Type = t
		if d.Handler != "" {
			h, ok := c.reg.handlers[d.Handler]
			if !ok {
				return nil, fmt.Errorf("field %q: unknown data handler %q", d.Field, d.Handler)
			}
			n.Handler, n.HandlerName = h, d.Handler
		}
		if d.Completion != "" {
			fn, ok := c.reg.completions[d.Completion]
			if !ok {
				return nil, fmt.Errorf("field %q: unknown completion %q", d.Field, d.Completion)
			}
			n.Completion = fn
		}
	case d.Choice != nil:
		n.Kind = KindChoice
		if len(d.Choice) < 1 {
			return nil, errors.New("empty choice")
		}
		for _, alt := range d.Choice {
			if len(alt) == 0 {
				return nil, errors.New("empty choice alternative")
			}
			kids, err := c.sequence(alt)
			if err != nil {
				return nil, err
			}
			n.Alts = append(n.Alts, &Node{Kind: KindSequence, Children: kids})
		}
	default:
		n.Kind = KindOptional
		if len(d.Optional) == 0 {
			return nil, errors.New("empty optional")
		}
		kids, err := c.sequence(d.Optional)
		if err != nil {
			return nil, err
		}
		n.Children = kids
	}
	return n, nil
}

func (c compiler) fieldType(d NodeDesc) (*TypeDef, error) {
	switch {
	case len(d.Values) > 0:
		if d.Type != "" && d.Type != "enum" {
			return nil, fmt.Errorf("values given for type %q", d.Type)
		}
		return Enum(d.Field, d.Values...), nil
	case d.Range != "":
		if d.Type != "" && d.Type != "integer" {
			return nil, fmt.Errorf("range given for type %q", d.Type)
		}
		lo, hi, err := parseRange(d.Range)
		if err != nil {
			return nil, err
		}
		return IntRange(lo, hi), nil
	case d.Type == "":
		return c.reg.types["word"], nil
	case d.Type == "enum":
		return nil, errors.New("enum without values")
	}
	t, ok := c.reg.types[d.Type]
	if !ok {
		return nil, fmt.Errorf("unknown type %q", d.Type)
	}
	return t, nil
}

func parseRange(s string) (int64, int64, error) {
	i := strings.IndexByte(s[1:], '-')
	if i < 0 {
		return 0, 0, fmt.Errorf("range %q must be lo-hi", s)
	}
	i++
	lo, err1 := strconv.ParseInt(strings.TrimSpace(s[:i]), 10, 64)
	hi, err2 := strconv.ParseInt(strings.TrimSpace(s[i+1:]), 10, 64)
	if err1 != nil || err2 != nil || lo > hi {
		return 0, 0, fmt.Errorf("bad range %q", s)
	}
	return lo, hi, nil
}

// Entries returns every compiled entry in registration order.
func (g *Grammar) Entries() []*Entry { return g.entries }

// Registry returns the registry the grammar was compiled against.
func (g *Grammar) Registry() *Registry { return g.reg }

// Visible returns the entries reachable in sc, in registration order.
func (g *Grammar) Visible(sc Scope) []*Entry {
	var out []*Entry
	for _, e := range g.entries {
		if e.ObjType != "" && e.ObjType != sc.ObjType {
			continue
		}
		for _, p := range e.Modes {
			if p.Matches(sc) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func (g *Grammar) scope(sc Scope) Scope {
	if sc.ObjFields == nil && sc.ObjType != "" {
		sc.ObjFields = g.reg.ObjectFields(sc.ObjType)
	}
	return sc
}
