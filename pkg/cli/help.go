package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/psaab/swsh/pkg/grammar"
)

// writeHelp prints candidates aligned in two columns, in the order given.
func writeHelp(w io.Writer, cands []grammar.Candidate) {
	if len(cands) == 0 {
		io.WriteString(w, "% No completions\n")
		return
	}
	width := 20
	for _, c := range cands {
		if len(c.Text)+2 > width {
			width = len(c.Text) + 2
		}
	}
	var sb strings.Builder
	sb.WriteString("Possible completions:\n")
	for _, c := range cands {
		if c.Help != "" {
			fmt.Fprintf(&sb, "  %-*s %s\n", width, c.Text, c.Help)
		} else {
			fmt.Fprintf(&sb, "  %s\n", c.Text)
		}
	}
	io.WriteString(w, sb.String())
}

func insertable(cands []grammar.Candidate) []grammar.Candidate {
	var out []grammar.Candidate
	for _, c := range cands {
		if c.Insertable() {
			out = append(out, c)
		}
	}
	return out
}

// completer implements readline.AutoCompleter on top of a Backend.
type completer struct {
	b   Backend
	out func() io.Writer
}

// Do returns the text to insert at pos. A single candidate is completed
// with a trailing space; several are listed and their common prefix is
// inserted.
func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	comp, err := c.b.Complete(string(line), pos)
	if err != nil {
		return nil, 0
	}
	cands := insertable(comp.Candidates)
	partial := []rune(comp.Partial)
	switch len(cands) {
	case 0:
		return nil, 0
	case 1:
		suffix := []rune(cands[0].Text)[len(partial):]
		return [][]rune{append(suffix, ' ')}, len(partial)
	}
	writeHelp(c.out(), comp.Candidates)
	cp := []rune(grammar.CommonPrefix(cands))
	if len(cp) <= len(partial) {
		return nil, 0
	}
	return [][]rune{cp[len(partial):]}, len(partial)
}
