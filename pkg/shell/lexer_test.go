package shell

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/psaab/swsh/pkg/grammar"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want []Statement
	}{
		{`show "a b" 'c\d' "x\"y\n"`, []Statement{{Words: []string{"show", "a b", `c\d`, "x\"y\n"}}}},
		{"a ; b c;; d", []Statement{{Words: []string{"a"}}, {Words: []string{"b", "c"}}, {Words: []string{"d"}}}},
		{"! comment ; x", nil},
		{"  # comment", nil},
		{"a # b", []Statement{{Words: []string{"a", "#", "b"}}}},
		{"a;!b", []Statement{{Words: []string{"a"}}}},
		{`""`, []Statement{{Words: []string{""}}}},
		{`pre"fix suffix"`, []Statement{{Words: []string{"prefix suffix"}}}},
		{"show | include foo bar | count > out.txt", []Statement{{
			Words:    []string{"show"},
			Pipes:    []Pipe{{Op: "include", Arg: "foo bar"}, {Op: "count"}},
			Redirect: &Redirect{Path: "out.txt"},
		}}},
		{"show|last>>log", []Statement{{
			Words:    []string{"show"},
			Pipes:    []Pipe{{Op: "last", N: 10}},
			Redirect: &Redirect{Path: "log", Append: true},
		}}},
	}
	for _, tt := range tests {
		got, err := Parse(tt.line)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.line, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Parse(%q) (-want +got):\n%s", tt.line, diff)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{
		`show "unterminated`,
		"| include x",
		"show >",
		"show > a b",
		"show |",
		"show | include",
		"show | count extra",
	} {
		_, err := Parse(line)
		var se *grammar.SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("Parse(%q): err = %v, want SyntaxError", line, err)
		}
	}
}

func TestCompletionContext(t *testing.T) {
	tests := []struct {
		text string
		want completionContext
	}{
		{"show ver", completionContext{words: []string{"show"}, partial: "ver"}},
		{"show ", completionContext{words: []string{"show"}}},
		{"", completionContext{}},
		{"a; b c", completionContext{words: []string{"b"}, partial: "c"}},
		{"x | in", completionContext{pipe: true, partial: "in"}},
		{"x | ", completionContext{pipe: true}},
		{"x | include fo", completionContext{none: true, partial: "fo"}},
		{"x > f", completionContext{none: true, partial: "f"}},
		{`desc "hello wo`, completionContext{words: []string{"desc"}, partial: "hello wo"}},
		{`desc "hello `, completionContext{words: []string{"desc"}, partial: "hello "}},
	}
	for _, tt := range tests {
		got := completionContextOf(tt.text)
		if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(completionContext{})); diff != "" {
			t.Errorf("completionContextOf(%q) (-want +got):\n%s", tt.text, diff)
		}
	}
}

func TestQuoteRoundTrip(t *testing.T) {
	for _, w := range []string{"plain", "two words", `with "quote"`, "semi;colon", "", "pipe|x", "!bang"} {
		st, err := Parse("cmd " + Quote(w))
		if err != nil {
			t.Fatalf("Parse(Quote(%q)): %v", w, err)
		}
		if got := st[0].Words[1]; got != w {
			t.Errorf("round trip of %q = %q", w, got)
		}
	}
}
