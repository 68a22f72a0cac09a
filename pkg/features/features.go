// Package features holds the command vocabulary of the switch: the syntax
// descriptions per version and the feature modules implementing them.
package features

import (
	"embed"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/psaab/swsh/pkg/configstore"
	"github.com/psaab/swsh/pkg/grammar"
	"github.com/psaab/swsh/pkg/logging"
	"github.com/psaab/swsh/pkg/netif"
	"github.com/psaab/swsh/pkg/shell"
)

//go:embed syntax
var builtinSyntax embed.FS

// DefaultSyntax is the syntax version loaded when none is selected.
const DefaultSyntax = "v1"

// Supplier returns the description supplier. An empty dir selects the
// built-in descriptions.
func Supplier(dir string) grammar.Supplier {
	if dir != "" {
		return grammar.Supplier{FS: os.DirFS(dir), Default: DefaultSyntax}
	}
	return grammar.Supplier{FS: builtinSyntax, Root: "syntax", Default: DefaultSyntax}
}

// BuiltinSyntax exposes the embedded description tree.
func BuiltinSyntax() fs.FS { return builtinSyntax }

// Deps are the collaborators feature modules act on.
type Deps struct {
	Store *configstore.Store
	Links netif.Source
	// Logging receives remote syslog targets and serves the audit log.
	// Nil disables both.
	Logging *logging.Handler
	// Syntax is the description supplier, consulted to complete syntax
	// version names. Zero means the built-in descriptions.
	Syntax grammar.Supplier
}

// All returns every feature module.
func All(d Deps) []shell.Feature {
	if d.Links == nil {
		d.Links = netif.Static{}
	}
	if d.Syntax.FS == nil {
		d.Syntax = Supplier("")
	}
	return []shell.Feature{
		&Core{deps: d},
		&System{deps: d},
		&Interface{deps: d},
		&ACL{deps: d},
		&Services{deps: d},
		&DHCP{deps: d},
	}
}

func registerActions(r *shell.Registrar, acts map[string]shell.ActionFunc) error {
	for name, fn := range acts {
		if err := r.Action(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// objNames splits the interface list carried in a frame key.
func objNames(c *shell.Call) []string {
	key := c.String("names")
	if key == "" {
		key = c.Session.Stack.Current().ObjKey
	}
	if key == "" {
		return nil
	}
	return strings.Split(key, ",")
}

// incomplete is returned by actions whose optional argument is only
// optional in the negated form.
func incomplete(c *shell.Call) error {
	return &grammar.SyntaxError{Pos: len(c.Match.Words), Incomplete: true}
}

// newTable returns a borderless table writer in the style of the show
// commands.
func newTable(w io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleDefault)
	t.Style().Options = table.OptionsNoBordersAndSeparators
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(table.Row(header))
	return t
}

func candidates(names []string, help string) []grammar.Candidate {
	out := make([]grammar.Candidate, len(names))
	for i, n := range names {
		out[i] = grammar.Candidate{Text: n, Help: help, Kind: grammar.CandDynamic}
	}
	return out
}
