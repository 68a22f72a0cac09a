package grammar

import (
	"errors"
	"slices"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// NegationKeyword prefixes a statement to run its negated form.
const NegationKeyword = "no"

const (
	maxSuggestions    = 3
	suggestionMaxDist = 2
)

// Match is the successful result of matching one statement.
type Match struct {
	Entry   *Entry
	Action  string
	Negated bool
	Data    Data
	Words   []string
}

// Match resolves words against the commands visible in sc. The first
// registered command whose full grammar accepts every word wins.
func (g *Grammar) Match(sc Scope, words []string) (*Match, error) {
	if len(words) == 0 {
		return nil, &SyntaxError{Incomplete: true}
	}
	sc = g.scope(sc)
	entries := g.Visible(sc)
	body, off := words, 0
	negated := strings.EqualFold(words[0], NegationKeyword)
	if negated {
		body, off = words[1:], 1
		if len(body) == 0 {
			return nil, &SyntaxError{Pos: 1, Incomplete: true, Expected: negatable(entries)}
		}
	}
	o := walk(entries, sc, body, false)
	switch o.status {
	case StatusFailed:
		return nil, g.failureError(o.fail, off, entries)
	case StatusPartial:
		return nil, &SyntaxError{Pos: len(words), Incomplete: true, Expected: expected(o.live)}
	}
	t, _ := o.accepted()
	if negated && !t.entry.NoSupported {
		return nil, Semanticf("command %q has no \"no\" form", commandName(t.entry, body))
	}
	action := t.action
	if negated && t.noAction != "" {
		action = t.noAction
	}
	return &Match{
		Entry:   t.entry,
		Action:  action,
		Negated: negated,
		Data:    t.data,
		Words:   words,
	}, nil
}

func commandName(e *Entry, words []string) string {
	if e.Name != "" {
		return e.Name
	}
	return words[0]
}

func negatable(entries []*Entry) []string {
	var out []string
	for _, e := range entries {
		if e.NoSupported && e.Name != "" && !slices.Contains(out, e.Name) {
			out = append(out, e.Name)
		}
	}
	return out
}

func (g *Grammar) failureError(f *failure, off int, entries []*Entry) error {
	pos := f.pos + off
	switch {
	case f.ambiguous != nil:
		return &AmbiguousCommandError{Word: f.word, Pos: pos, Candidates: f.ambiguous}
	case f.handleErr != nil:
		var ae *ActionError
		if errors.As(f.handleErr, &ae) {
			return ae
		}
		var se *SemanticError
		if errors.As(f.handleErr, &se) {
			return se
		}
		return &ActionError{Err: f.handleErr}
	case f.fieldErr != nil:
		fe := *f.fieldErr
		fe.Pos = pos
		return &fe
	case f.trailing:
		return &SyntaxError{Pos: pos, Word: f.word, Trailing: true}
	case f.pos == 0:
		return &UnknownCommandError{Word: f.word, Suggestions: suggest(f.word, entries)}
	}
	return &SyntaxError{Pos: pos, Word: f.word, Expected: f.expected}
}

// suggest returns visible command names close to word.
func suggest(word string, entries []*Entry) []string {
	type cand struct {
		name string
		dist int
	}
	var cands []cand
	seen := make(map[string]bool)
	lw := strings.ToLower(word)
	for _, e := range entries {
		if e.Name == "" || seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		d := levenshtein.ComputeDistance(lw, strings.ToLower(e.Name))
		if d <= suggestionMaxDist {
			cands = append(cands, cand{e.Name, d})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].name < cands[j].name
	})
	var out []string
	for _, c := range cands {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, c.name)
	}
	return out
}

func sortedFold(s []string) []string {
	out := append([]string(nil), s...)
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}
