package shell

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/psaab/swsh/pkg/grammar"
)

type tokKind int

const (
	tokWord tokKind = iota
	tokSemi
	tokPipe
	tokRedirect
	tokAppend
)

type token struct {
	kind   tokKind
	text   string
	quoted bool
	end    int
}

// lex splits a line into words and operators. Double quotes allow \" \\ \n
// and \t escapes, single quotes are literal. An unquoted '!' or '#' at the
// start of a statement comments out the rest of the line. In lenient mode an
// unterminated quote ends the last word instead of failing, and open
// reports it.
func lex(line string, lenient bool) (toks []token, open bool, err error) {
	var (
		word    strings.Builder
		inWord  bool
		quoted  bool
		stmtLen int
	)
	flush := func(end int) {
		if inWord {
			toks = append(toks, token{kind: tokWord, text: word.String(), quoted: quoted, end: end})
			stmtLen++
		}
		word.Reset()
		inWord, quoted = false, false
	}
	op := func(k tokKind, text string, end int) {
		toks = append(toks, token{kind: k, text: text, end: end})
		if k == tokSemi {
			stmtLen = 0
		}
	}
	rs := []rune(line)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			flush(byteOffset(rs, i))
		case (r == '!' || r == '#') && !inWord && stmtLen == 0:
			return toks, false, nil
		case r == ';':
			flush(byteOffset(rs, i))
			op(tokSemi, ";", byteOffset(rs, i+1))
		case r == '|':
			flush(byteOffset(rs, i))
			op(tokPipe, "|", byteOffset(rs, i+1))
		case r == '>':
			flush(byteOffset(rs, i))
			if i+1 < len(rs) && rs[i+1] == '>' {
				i++
				op(tokAppend, ">>", byteOffset(rs, i+1))
			} else {
				op(tokRedirect, ">", byteOffset(rs, i+1))
			}
		case r == '"' || r == '\'':
			inWord, quoted = true, true
			j := i + 1
			closed := false
			for ; j < len(rs); j++ {
				c := rs[j]
				if c == r {
					closed = true
					break
				}
				if r == '"' && c == '\\' && j+1 < len(rs) {
					j++
					switch rs[j] {
					case 'n':
						word.WriteRune('\n')
					case 't':
						word.WriteRune('\t')
					case '"', '\\':
						word.WriteRune(rs[j])
					default:
						word.WriteRune('\\')
						word.WriteRune(rs[j])
					}
					continue
				}
				word.WriteRune(c)
			}
			if !closed {
				if !lenient {
					return nil, true, &grammar.SyntaxError{Pos: stmtLen, Incomplete: true, Expected: []string{"closing " + string(r)}}
				}
				flush(len(line))
				return toks, true, nil
			}
			i = j
		default:
			inWord = true
			word.WriteRune(r)
		}
	}
	flush(len(line))
	return toks, false, nil
}

func byteOffset(rs []rune, i int) int {
	return len(string(rs[:i]))
}

// Statement is one command of a line with its output post-processing.
type Statement struct {
	Words    []string
	Pipes    []Pipe
	Redirect *Redirect
}

// Redirect sends statement output to a file.
type Redirect struct {
	Path   string
	Append bool
}

// Parse splits a line into statements. Comments and empty statements are
// dropped.
func Parse(line string) ([]Statement, error) {
	toks, _, err := lex(line, false)
	if err != nil {
		return nil, err
	}
	var out []Statement
	for _, group := range splitStatements(toks) {
		if len(group) == 0 {
			continue
		}
		st, err := parseStatement(group)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func splitStatements(toks []token) [][]token {
	var out [][]token
	var cur []token
	for _, t := range toks {
		if t.kind == tokSemi {
			out = append(out, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	return append(out, cur)
}

func parseStatement(toks []token) (Statement, error) {
	var st Statement
	i := 0
	for ; i < len(toks) && toks[i].kind == tokWord; i++ {
		st.Words = append(st.Words, toks[i].text)
	}
	if len(st.Words) == 0 {
		return st, &grammar.SyntaxError{Word: toks[0].text, Expected: []string{"command"}}
	}
	for i < len(toks) {
		t := toks[i]
		switch t.kind {
		case tokPipe:
			i++
			var args []string
			for ; i < len(toks) && toks[i].kind == tokWord; i++ {
				args = append(args, toks[i].text)
			}
			p, err := parsePipe(args, len(st.Words))
			if err != nil {
				return st, err
			}
			st.Pipes = append(st.Pipes, p)
		case tokRedirect, tokAppend:
			if i+2 != len(toks) || toks[i+1].kind != tokWord {
				return st, &grammar.SyntaxError{Word: t.text, Expected: []string{"file name"}}
			}
			st.Redirect = &Redirect{Path: toks[i+1].text, Append: t.kind == tokAppend}
			i = len(toks)
		default:
			return st, &grammar.SyntaxError{Word: t.text}
		}
	}
	return st, nil
}

// completionContext describes the statement being typed up to the cursor.
type completionContext struct {
	words   []string
	partial string
	// pipe is set when the cursor is on a pipe filter name.
	pipe bool
	// none is set when nothing can be completed, e.g. a redirect target.
	none bool
}

func completionContextOf(text string) completionContext {
	toks, open, _ := lex(text, true)
	if i := lastIndex(toks, tokSemi); i >= 0 {
		toks = toks[i+1:]
	}
	var cc completionContext
	if n := len(toks); n > 0 && toks[n-1].kind == tokWord && toks[n-1].end == len(text) && (open || !endsInSpace(text)) {
		cc.partial = toks[n-1].text
		toks = toks[:n-1]
	}
	if lastIndex(toks, tokRedirect) >= 0 || lastIndex(toks, tokAppend) >= 0 {
		cc.none = true
		return cc
	}
	if i := lastIndex(toks, tokPipe); i >= 0 {
		cc.pipe = i == len(toks)-1
		cc.none = !cc.pipe
		return cc
	}
	for _, t := range toks {
		cc.words = append(cc.words, t.text)
	}
	return cc
}

func endsInSpace(s string) bool {
	if s == "" {
		return true
	}
	r := []rune(s)
	return unicode.IsSpace(r[len(r)-1])
}

func lastIndex(toks []token, k tokKind) int {
	for i := len(toks) - 1; i >= 0; i-- {
		if toks[i].kind == k {
			return i
		}
	}
	return -1
}

// Quote renders word so that lex reads it back unchanged.
func Quote(word string) string {
	if word != "" && !strings.ContainsAny(word, " \t\n\"';|>!#") {
		return word
	}
	return strconv.Quote(word)
}
