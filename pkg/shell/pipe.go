package shell

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/psaab/swsh/pkg/grammar"
)

// Pipe is one output filter of a statement.
type Pipe struct {
	// Op is the canonical filter: include, exclude, begin, count, last or
	// no-more.
	Op  string
	Arg string
	N   int
}

// PipeFilters maps every accepted filter name to its help text.
var PipeFilters = map[string]string{
	"begin":   "Begin with the line that matches",
	"count":   "Count number of lines",
	"exclude": "Exclude lines that match",
	"except":  "Exclude lines that match",
	"find":    "Begin with the line that matches",
	"grep":    "Include lines that match",
	"include": "Include lines that match",
	"last":    "Display end of output only",
	"match":   "Include lines that match",
	"no-more": "Do not paginate output",
}

var pipeAliases = map[string]string{
	"match":  "include",
	"grep":   "include",
	"except": "exclude",
	"find":   "begin",
}

var pipeType = grammar.Enum("filter", pipeFilterNames()...)

func pipeFilterNames() []string {
	return slices.Sorted(maps.Keys(PipeFilters))
}

const defaultLast = 10

func parsePipe(args []string, pos int) (Pipe, error) {
	if len(args) == 0 {
		return Pipe{}, &grammar.SyntaxError{Pos: pos, Incomplete: true, Expected: []string{"filter"}}
	}
	v, err := pipeType.Parse(args[0], grammar.Scope{})
	if err != nil {
		return Pipe{}, &grammar.SyntaxError{Pos: pos, Word: args[0], Expected: []string{"filter"}}
	}
	name := v.(string)
	op := name
	if a, ok := pipeAliases[name]; ok {
		op = a
	}
	p := Pipe{Op: op}
	rest := args[1:]
	switch op {
	case "include", "exclude", "begin":
		if len(rest) == 0 {
			return p, &grammar.SyntaxError{Pos: pos + 1, Incomplete: true, Expected: []string{"<pattern>"}}
		}
		p.Arg = strings.Join(rest, " ")
	case "last":
		p.N = defaultLast
		if len(rest) > 1 {
			return p, &grammar.SyntaxError{Pos: pos + 2, Word: rest[1], Trailing: true}
		}
		if len(rest) == 1 {
			n, err := strconv.Atoi(rest[0])
			if err != nil || n <= 0 {
				return p, &grammar.ArgumentValidationError{Field: "lines", Word: rest[0], Pos: pos + 1, Err: fmt.Errorf("not a positive number")}
			}
			p.N = n
		}
	default:
		if len(rest) > 0 {
			return p, &grammar.SyntaxError{Pos: pos + 1, Word: rest[0], Trailing: true}
		}
	}
	return p, nil
}

// applyPipes runs the filters over the buffered output in order.
func applyPipes(out []byte, pipes []Pipe) []byte {
	for _, p := range pipes {
		if p.Op == "no-more" {
			continue
		}
		lines := splitLines(out)
		var b bytes.Buffer
		switch p.Op {
		case "include", "exclude":
			lp := strings.ToLower(p.Arg)
			for _, l := range lines {
				if strings.Contains(strings.ToLower(l), lp) == (p.Op == "include") {
					b.WriteString(l + "\n")
				}
			}
		case "begin":
			lp := strings.ToLower(p.Arg)
			found := false
			for _, l := range lines {
				if !found && strings.Contains(strings.ToLower(l), lp) {
					found = true
				}
				if found {
					b.WriteString(l + "\n")
				}
			}
		case "count":
			fmt.Fprintf(&b, "Count: %d lines\n", len(lines))
		case "last":
			start := max(len(lines)-p.N, 0)
			for _, l := range lines[start:] {
				b.WriteString(l + "\n")
			}
		}
		out = b.Bytes()
	}
	return out
}

// splitLines splits output into lines without their terminators. Lines
// have no length limit.
func splitLines(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func hasNoMore(pipes []Pipe) bool {
	for _, p := range pipes {
		if p.Op == "no-more" {
			return true
		}
	}
	return false
}

func filters(pipes []Pipe) bool {
	for _, p := range pipes {
		if p.Op != "no-more" {
			return true
		}
	}
	return false
}
