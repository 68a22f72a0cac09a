package grammar

import (
	"sort"
	"strings"
)

// CandidateKind ranks completion candidates. Lower kinds sort first.
type CandidateKind int

const (
	CandKeyword CandidateKind = iota
	CandValue
	CandDynamic
	CandPlaceholder
	CandEnd
)

// Candidate is one completion suggestion.
type Candidate struct {
	Text string
	Help string
	Kind CandidateKind
}

// Insertable reports whether the line editor may insert the candidate.
// Placeholders like <name> and <cr> are shown in help only.
func (c Candidate) Insertable() bool { return c.Kind < CandPlaceholder }

// EndCandidate marks a point where the statement may end.
var EndCandidate = Candidate{Text: "<cr>", Kind: CandEnd}

// Complete returns what may follow words when the current word is partial.
// It never fails: an unmatchable prefix yields no candidates.
func (g *Grammar) Complete(sc Scope, words []string, partial string) []Candidate {
	sc = g.scope(sc)
	entries := g.Visible(sc)
	var cands []Candidate
	if len(words) > 0 && strings.EqualFold(words[0], NegationKeyword) {
		words = words[1:]
		var neg []*Entry
		for _, e := range entries {
			if e.NoSupported {
				neg = append(neg, e)
			}
		}
		entries = neg
	} else if len(words) == 0 && hasPrefixFold(NegationKeyword, partial) && len(negatable(entries)) > 0 {
		cands = append(cands, Candidate{Text: NegationKeyword, Help: "Negate a command or set its defaults", Kind: CandKeyword})
	}
	o := walk(entries, sc, words, true)
	if o.status == StatusFailed {
		return rank(cands)
	}
	dyn := make(map[*Entry]bool)
	for _, t := range o.live {
		if t.rest != nil {
			cands = append(cands, placeholder(t.rest))
			continue
		}
		if t.k == nil {
			if partial == "" {
				cands = append(cands, EndCandidate)
			}
			continue
		}
		n := t.k.node
		req := CompletionRequest{Partial: partial, Words: words, Data: t.data, Scope: sc}
		switch n.Kind {
		case KindToken:
			if hasPrefixFold(n.Literal, partial) {
				cands = append(cands, Candidate{Text: n.Literal, Help: n.Help, Kind: CandKeyword})
			}
		case KindField:
			req.Field = n.Name
			if n.Type.Values != nil {
				for _, v := range n.Type.Values(sc) {
					if hasPrefixFold(v, partial) {
						cands = append(cands, Candidate{Text: v, Help: n.Help, Kind: CandValue})
					}
				}
			}
			if n.Completion != nil {
				cands = append(cands, dynamic(n.Completion, req)...)
			}
			if partial == "" || n.Type.Rest || fieldAccepts(n, partial, sc) {
				cands = append(cands, placeholder(n))
			}
		}
		if t.entry.Completion != nil && !dyn[t.entry] {
			dyn[t.entry] = true
			cands = append(cands, dynamic(t.entry.Completion, req)...)
		}
	}
	return rank(cands)
}

func dynamic(fn CompletionFunc, req CompletionRequest) []Candidate {
	var out []Candidate
	for _, c := range fn(req) {
		if !hasPrefixFold(c.Text, req.Partial) {
			continue
		}
		if c.Kind == CandKeyword {
			c.Kind = CandDynamic
		}
		out = append(out, c)
	}
	return out
}

func placeholder(n *Node) Candidate {
	help := n.Help
	if help == "" {
		help = n.Type.Help
	}
	return Candidate{Text: "<" + n.Name + ">", Help: help, Kind: CandPlaceholder}
}

func fieldAccepts(n *Node, word string, sc Scope) bool {
	_, err := n.Type.Parse(word, sc)
	return err == nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// rank orders candidates by kind then text and drops repeated texts,
// keeping the best ranked one.
func rank(cands []Candidate) []Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Kind != cands[j].Kind {
			return cands[i].Kind < cands[j].Kind
		}
		return cands[i].Text < cands[j].Text
	})
	out := cands[:0]
	seen := make(map[string]bool)
	for _, c := range cands {
		if seen[c.Text] {
			continue
		}
		seen[c.Text] = true
		out = append(out, c)
	}
	return out
}

// CommonPrefix returns the longest common prefix of the insertable
// candidates, compared case-insensitively and spelled as the first one, or
// "" if there are none.
func CommonPrefix(cands []Candidate) string {
	var p []rune
	first := true
	for _, c := range cands {
		if !c.Insertable() {
			continue
		}
		if first {
			p, first = []rune(c.Text), false
			continue
		}
		rs := []rune(c.Text)
		n := 0
		for n < len(p) && n < len(rs) && strings.EqualFold(string(p[n]), string(rs[n])) {
			n++
		}
		p = p[:n]
	}
	return string(p)
}
