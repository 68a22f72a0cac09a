package grammar

import (
	"strings"
)

// maxThreads bounds the number of simultaneous match candidates so that a
// pathological grammar cannot blow up a single keystroke.
const maxThreads = 4096

// Status is the result class of a walk.
type Status int

const (
	StatusComplete Status = iota
	StatusPartial
	StatusFailed
)

// cont is an immutable continuation: the nodes still to be matched, head
// first. Threads share tails.
type cont struct {
	node *Node
	next *cont
}

func push(nodes []*Node, rest *cont) *cont {
	for i := len(nodes) - 1; i >= 0; i-- {
		rest = &cont{node: nodes[i], next: rest}
	}
	return rest
}

// thread is one live way of matching the words seen so far.
type thread struct {
	entry    *Entry
	k        *cont
	data     Data
	action   string
	noAction string
	// rest is set once a rest-of-line field swallowed the remaining words.
	rest *Node
}

func (t thread) enter(n *Node) thread {
	t.data = t.data.merge(n.Data)
	if n.Action != "" {
		t.action = n.Action
		t.noAction = n.NoAction
	}
	return t
}

// atom returns the token or field node the thread expects next, or nil if
// the thread has already accepted.
func (t thread) atom() *Node {
	if t.rest != nil || t.k == nil {
		return nil
	}
	return t.k.node
}

// expand follows structural nodes until every resulting thread waits on a
// token or field, or has accepted. Order of the output is match priority:
// choice alternatives in declared order, optional taken before skipped.
func expand(t thread, out []thread) []thread {
	if len(out) >= maxThreads {
		return out
	}
	if t.k == nil {
		return append(out, t)
	}
	n, rest := t.k.node, t.k.next
	switch n.Kind {
	case KindSequence:
		t = t.enter(n)
		t.k = push(n.Children, rest)
		return expand(t, out)
	case KindChoice:
		t = t.enter(n)
		for _, alt := range n.Alts {
			a := t
			a.k = &cont{node: alt, next: rest}
			out = expand(a, out)
		}
		return out
	case KindOptional:
		take := t.enter(n)
		take.k = push(n.Children, rest)
		out = expand(take, out)
		skip := t
		skip.k = rest
		return expand(skip, out)
	}
	return append(out, t)
}

type failure struct {
	pos       int
	word      string
	ambiguous []string
	fieldErr  *ArgumentValidationError
	handleErr error
	expected  []string
	trailing  bool
}

// outcome is the result of walking the grammar over a word list.
type outcome struct {
	status Status
	pos    int
	live   []thread
	fail   *failure
}

func (o outcome) accepted() (thread, bool) {
	for _, t := range o.live {
		if t.k == nil {
			return t, true
		}
	}
	return thread{}, false
}

type walker struct {
	sc    Scope
	words []string
	// lenient keeps every prefix candidate instead of failing on ambiguity.
	// Completion walks lenient, execution walks strict.
	lenient bool
}

func walk(entries []*Entry, sc Scope, words []string, lenient bool) outcome {
	w := walker{sc: sc, words: words, lenient: lenient}
	var live []thread
	for _, e := range entries {
		t := thread{
			entry:    e,
			k:        &cont{node: e.Root},
			data:     Data{},
			action:   e.Action,
			noAction: e.NoAction,
		}
		live = expand(t, live)
	}
	for i := range words {
		next, f := w.step(live, i)
		if f != nil {
			return outcome{status: StatusFailed, pos: i, live: live, fail: f}
		}
		live = next
	}
	o := outcome{status: StatusPartial, pos: len(words), live: live}
	if _, ok := o.accepted(); ok {
		o.status = StatusComplete
	}
	return o
}

func (w *walker) parse(n *Node, i int) (any, error) {
	word := w.words[i]
	if n.Type.Rest {
		word = strings.Join(w.words[i:], " ")
	}
	return n.Type.Parse(word, w.sc)
}

// step advances every live thread over word i. Per position the candidates
// are ordered: an exact keyword beats a unique keyword prefix, which beats
// any field accepting the word. Several keywords sharing the prefix with no
// field accepting the word, and no thread already consuming the rest of the
// line, is an ambiguity.
func (w *walker) step(live []thread, i int) ([]thread, *failure) {
	word := w.words[i]
	lw := strings.ToLower(word)

	var (
		exact    bool
		prefixes []string
		fieldOK  bool
		rest     bool
		values   = make([]any, len(live))
		errs     = make([]error, len(live))
	)
	seen := make(map[string]bool)
	for idx, t := range live {
		if t.rest != nil {
			rest = true
			continue
		}
		n := t.atom()
		if n == nil {
			continue
		}
		switch n.Kind {
		case KindToken:
			ll := strings.ToLower(n.Literal)
			if ll == lw {
				exact = true
			} else if strings.HasPrefix(ll, lw) && !seen[ll] {
				seen[ll] = true
				prefixes = append(prefixes, n.Literal)
			}
		case KindField:
			values[idx], errs[idx] = w.parse(n, i)
			if errs[idx] == nil {
				fieldOK = true
			}
		}
	}

	var takeExact, takePrefix, takeField bool
	switch {
	case exact:
		takeExact = true
	case len(prefixes) == 1:
		takePrefix = true
	case len(prefixes) > 1 && w.lenient:
		takePrefix, takeField = true, true
	case len(prefixes) > 1 && !fieldOK && !rest:
		return nil, &failure{pos: i, word: word, ambiguous: sortedFold(prefixes)}
	default:
		takeField = true
	}

	var next []thread
	var handleErr error
	for idx, t := range live {
		if t.rest != nil {
			next = append(next, t)
			continue
		}
		n := t.atom()
		if n == nil {
			continue
		}
		switch n.Kind {
		case KindToken:
			ll := strings.ToLower(n.Literal)
			ok := ll == lw
			if !takeExact {
				ok = takePrefix && strings.HasPrefix(ll, lw)
			}
			if !ok {
				continue
			}
			nt := t.enter(n)
			if n.Name != "" {
				nt.data = nt.data.with(n.Name, n.Literal)
			}
			nt.k = t.k.next
			next = expand(nt, next)
		case KindField:
			if !takeField || errs[idx] != nil {
				continue
			}
			nt := t.enter(n)
			d, err := applyField(nt.data, n, values[idx])
			if err != nil {
				if handleErr == nil {
					handleErr = err
				}
				continue
			}
			nt.data = d
			nt.k = t.k.next
			if !n.Type.Rest {
				next = expand(nt, next)
				continue
			}
			for _, r := range expand(nt, nil) {
				if r.k == nil {
					r.rest = n
					next = append(next, r)
				}
			}
		}
	}
	if len(next) > 0 {
		return next, nil
	}
	return nil, w.failure(live, i, errs, handleErr)
}

func (w *walker) failure(live []thread, i int, errs []error, handleErr error) *failure {
	f := &failure{pos: i, word: w.words[i], handleErr: handleErr}
	var atoms, literals bool
	seen := make(map[string]bool)
	for idx, t := range live {
		n := t.atom()
		if n == nil {
			continue
		}
		atoms = true
		var exp string
		switch n.Kind {
		case KindToken:
			literals = true
			exp = n.Literal
		case KindField:
			exp = "<" + n.Name + ">"
			if f.fieldErr == nil && errs[idx] != nil {
				f.fieldErr = &ArgumentValidationError{Field: n.Name, Word: f.word, Pos: i, Err: errs[idx]}
			}
		}
		if !seen[exp] {
			seen[exp] = true
			f.expected = append(f.expected, exp)
		}
	}
	f.trailing = !atoms
	if literals {
		f.fieldErr = nil
	}
	return f
}

func applyField(d Data, n *Node, v any) (Data, error) {
	if n.Handler == nil {
		return d.with(n.Name, v), nil
	}
	c := d.clone()
	if err := n.Handler(c, n.Name, v); err != nil {
		return nil, err
	}
	return c, nil
}

// expected lists what the live threads wait for next.
func expected(live []thread) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range live {
		n := t.atom()
		if n == nil {
			continue
		}
		exp := n.Literal
		if n.Kind == KindField {
			exp = "<" + n.Name + ">"
		}
		if !seen[exp] {
			seen[exp] = true
			out = append(out, exp)
		}
	}
	return out
}
