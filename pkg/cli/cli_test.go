package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/psaab/swsh/pkg/grammar"
	"github.com/psaab/swsh/pkg/mode"
	"github.com/psaab/swsh/pkg/shell"
)

const testSyntax = `
commands:
  - {name: enable, mode: login, short-help: Turn on privileged commands, action: enable}
  - {name: exit, mode: "login*", short-help: Exit from the current mode, action: exit}
  - name: echo
    mode: "login*"
    short-help: Print text
    action: echo
    args: [{field: text, type: line, help: Text to print}]
  - {name: fail, mode: "login*", short-help: Always fail, action: fail}
`

type testFeature struct{}

func (testFeature) Name() string { return "test" }

func (testFeature) Register(r *shell.Registrar) error {
	acts := map[string]shell.ActionFunc{
		"enable": func(c *shell.Call) error { return c.Session.Stack.Push(mode.Frame{Mode: mode.Enable}) },
		"exit":   func(c *shell.Call) error { return c.Session.Stack.Pop() },
		"echo": func(c *shell.Call) error {
			c.Printf("%s\n", c.Data().String("text"))
			return nil
		},
		"fail": func(*shell.Call) error { return grammar.Actionf("it failed") },
	}
	for name, fn := range acts {
		if err := r.Action(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func newLocal(t *testing.T) *Local {
	t.Helper()
	eng, err := shell.Build(shell.BuildConfig{
		Supplier: grammar.Supplier{
			FS:      fstest.MapFS{"v1/core.yaml": {Data: []byte(testSyntax)}},
			Default: "v1",
		},
		Features: []shell.Feature{testFeature{}},
		Hostname: func() string { return "sw1" },
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s, err := eng.NewSession(mode.Login, shell.Options{Batch: true})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return &Local{Session: s}
}

func TestRunBatch(t *testing.T) {
	l := newLocal(t)
	var stdout, stderr bytes.Buffer
	in := "! comment\n\necho one\nfail\nenable\necho two\nexit\nexit\necho never\n"
	c := New(Config{Backend: l, Stdin: strings.NewReader(in), Stdout: &stdout, Stderr: &stderr, Batch: true})
	err := c.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "1 statements failed") {
		t.Errorf("Run error = %v", err)
	}
	if diff := cmp.Diff("one\ntwo\n", stdout.String()); diff != "" {
		t.Errorf("stdout (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("fail\nError: it failed\n", stderr.String()); diff != "" {
		t.Errorf("stderr (-want +got):\n%s", diff)
	}
	if !l.Ended() {
		t.Error("session not ended")
	}
}

func TestPager(t *testing.T) {
	tests := []struct {
		name   string
		height int
		keys   string
		paging bool
		want   string
		waits  int
	}{
		{"disabled", 0, "", true, "1\n2\n3\n4\n5\n", 0},
		{"off for statement", 3, "", false, "1\n2\n3\n4\n5\n", 0},
		{"space pages", 3, "  ", true, "1\n2\n3\n4\n5\n", 2},
		{"enter steps one line", 3, "\r\r\r", true, "1\n2\n3\n4\n5\n", 4},
		{"q stops", 3, "q", true, "1\n2\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			keys := []rune(tt.keys)
			waits := 0
			p := newPager(&out, func() int { return tt.height }, func() rune {
				waits++
				if len(keys) == 0 {
					return ' '
				}
				k := keys[0]
				keys = keys[1:]
				return k
			})
			p.SetPaging(tt.paging)
			for _, l := range []string{"1\n", "2\n3\n", "4\n5\n"} {
				if n, err := p.Write([]byte(l)); err != nil || n != len(l) {
					t.Fatalf("Write(%q) = %d, %v", l, n, err)
				}
			}
			if out.String() != tt.want {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
			if waits != tt.waits {
				t.Errorf("waits = %d, want %d", waits, tt.waits)
			}
		})
	}
}

func TestWriteHelp(t *testing.T) {
	var out bytes.Buffer
	writeHelp(&out, []grammar.Candidate{
		{Text: "enable", Help: "Turn on privileged commands"},
		{Text: "<text>", Help: "Text to print", Kind: grammar.CandPlaceholder},
		grammar.EndCandidate,
	})
	want := "Possible completions:\n" +
		"  enable               Turn on privileged commands\n" +
		"  <text>               Text to print\n" +
		"  <cr>\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestCompleter(t *testing.T) {
	l := newLocal(t)
	var help bytes.Buffer
	c := &completer{b: l, out: func() io.Writer { return &help }}

	got, n := c.Do([]rune("ec"), 2)
	if n != 2 || len(got) != 1 || string(got[0]) != "ho " {
		t.Errorf("Do(ec) = %q, %d", got, n)
	}

	got, n = c.Do([]rune("e"), 1)
	if n != 1 || len(got) != 0 {
		t.Errorf("Do(e) = %q, %d", got, n)
	}
	for _, want := range []string{"echo", "enable", "exit"} {
		if !strings.Contains(help.String(), want) {
			t.Errorf("help missing %q:\n%s", want, help.String())
		}
	}
}
