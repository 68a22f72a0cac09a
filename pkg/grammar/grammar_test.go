package grammar

import (
	"errors"
	"net/netip"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testSyntax = `
commands:
  - name: hostname
    mode: config
    short-help: Set system host name
    action: set-hostname
    no-supported: true
    data: {section: system}
    args:
      - field: name
        type: hostname
  - name: interface
    mode: config
    short-help: Select an interface to configure
    action: enter-interface
    args:
      - field: ifname
        completion: complete-interfaces
      - optional:
          - choice:
              - - token: shutdown
                  field: op
                  action: shutdown-interface
              - - token: description
                  field: op
                - field: text
                  type: line
  - name: ip
    mode: config
    short-help: Global IP configuration
    action: ip-route
    no-supported: true
    args:
      - token: route
      - field: prefix
        type: cidr-range
      - field: gateway
        type: ip-address
  - name: exit
    mode: "login*"
    short-help: Leave the current mode
    action: exit
  - name: show
    mode: "enable*"
    short-help: Show running system information
    action: show
    args:
      - choice:
          - - token: version
              field: what
          - - token: vlan
              field: what
            - optional:
                - field: id
                  range: 1-4094
  - mode: config-acl
    action: acl-rule
    no-supported: true
    args:
      - field: seq
        range: 1-65535
      - field: verdict
        values: [permit, deny]
      - field: source
        type: cidr-range
  - name: remark
    mode: config-acl
    action: acl-remark
    args:
      - field: text
        type: line
  - name: shutdown
    mode: config-if
    action: if-shutdown
    no-action: if-no-shutdown
`

type actionNames []string

func (a actionNames) HasAction(name string) bool {
	for _, n := range a {
		if n == name {
			return true
		}
	}
	return false
}

var testActions = actionNames{
	"set-hostname", "enter-interface", "shutdown-interface", "ip-route",
	"exit", "show", "acl-rule", "acl-remark", "if-shutdown", "if-no-shutdown",
}

var (
	loginScope  = Scope{Modes: []string{"login"}}
	configScope = Scope{Modes: []string{"login", "enable", "config"}}
	ifScope     = Scope{Modes: []string{"login", "enable", "config", "config-if"}, ObjType: "interface", ObjKey: "ether1"}
	aclScope    = Scope{Modes: []string{"login", "enable", "config", "config-acl"}}
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	err := reg.RegisterCompletion("complete-interfaces", func(req CompletionRequest) []Candidate {
		return []Candidate{
			{Text: "ether1", Help: "Known interface"},
			{Text: "ether2", Help: "Known interface"},
			{Text: "vlan10", Help: "Known interface"},
		}
	})
	if err != nil {
		t.Fatalf("RegisterCompletion: %v", err)
	}
	return reg
}

func compileString(t *testing.T, src string) *Grammar {
	t.Helper()
	descs, err := ParseDescriptions(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseDescriptions: %v", err)
	}
	g, err := Compile(descs, CompileOptions{Version: "test", Registry: newTestRegistry(t), Actions: testActions})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return g
}

func TestMatchActionAndData(t *testing.T) {
	g := compileString(t, testSyntax)
	tests := []struct {
		name   string
		scope  Scope
		line   string
		action string
		data   Data
	}{
		{"abbreviated keywords", configScope, "inter ether1 shut", "shutdown-interface",
			Data{"ifname": "ether1", "op": "shutdown"}},
		{"enter submode", configScope, "interface ether1", "enter-interface",
			Data{"ifname": "ether1"}},
		{"rest of line", configScope, "int ether1 desc uplink to core", "enter-interface",
			Data{"ifname": "ether1", "op": "description", "text": "uplink to core"}},
		{"static data", configScope, "hostname core-sw1", "set-hostname",
			Data{"section": "system", "name": "core-sw1"}},
		{"case insensitive", configScope, "HOSTNAME core-sw1", "set-hostname",
			Data{"section": "system", "name": "core-sw1"}},
		{"inherited wildcard mode", ifScope, "exit", "exit", Data{}},
		{"exact beats prefix", configScope, "show vlan", "show", Data{"what": "vlan"}},
		{"optional range", configScope, "sh vl 10", "show", Data{"what": "vlan", "id": int64(10)}},
		{"pattern command", aclScope, "10 per 10.0.0.0/8", "acl-rule", nil},
		{"keyword before pattern", aclScope, "rem allow web", "acl-remark", Data{"text": "allow web"}},
		{"exact literal in submode", ifScope, "shutdown", "if-shutdown", Data{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := g.Match(tt.scope, strings.Fields(tt.line))
			if err != nil {
				t.Fatalf("Match(%q): %v", tt.line, err)
			}
			if m.Action != tt.action {
				t.Errorf("action = %q, want %q", m.Action, tt.action)
			}
			if m.Negated {
				t.Error("unexpected negation")
			}
			if tt.data == nil {
				return
			}
			if diff := cmp.Diff(tt.data, m.Data); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatchPatternCommandData(t *testing.T) {
	g := compileString(t, testSyntax)
	m, err := g.Match(aclScope, []string{"10", "deny", "192.0.2.0/24"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if seq, _ := m.Data.Int("seq"); seq != 10 {
		t.Errorf("seq = %d, want 10", seq)
	}
	if got := m.Data.String("verdict"); got != "deny" {
		t.Errorf("verdict = %q, want deny", got)
	}
	if got := m.Data.String("source"); got != "192.0.2.0/24" {
		t.Errorf("source = %q", got)
	}
	if m.Entry.Name != "" {
		t.Errorf("pattern entry has name %q", m.Entry.Name)
	}
}

func TestAbbreviationIdempotent(t *testing.T) {
	g := compileString(t, testSyntax)
	pairs := [][2]string{
		{"interface ether1 shutdown", "in ether1 s"},
		{"interface ether1 description a b", "interf ether1 d a b"},
		{"show vlan 7", "sho vla 7"},
		{"ip route 10.0.0.0/8 192.0.2.1", "ip r 10.0.0.0/8 192.0.2.1"},
	}
	for _, p := range pairs {
		full, err := g.Match(configScope, strings.Fields(p[0]))
		if err != nil {
			t.Fatalf("Match(%q): %v", p[0], err)
		}
		abbr, err := g.Match(configScope, strings.Fields(p[1]))
		if err != nil {
			t.Fatalf("Match(%q): %v", p[1], err)
		}
		if full.Entry != abbr.Entry || full.Action != abbr.Action {
			t.Errorf("%q and %q resolve differently", p[0], p[1])
		}
		if !cmp.Equal(full.Data, abbr.Data, cmp.Comparer(func(a, b netip.Prefix) bool { return a == b }), cmp.Comparer(func(a, b netip.Addr) bool { return a == b })) {
			t.Errorf("%q and %q produce different data: %v vs %v", p[0], p[1], full.Data, abbr.Data)
		}
	}
}

func TestMatchErrors(t *testing.T) {
	g := compileString(t, testSyntax)

	t.Run("ambiguous", func(t *testing.T) {
		_, err := g.Match(configScope, []string{"i", "ether1"})
		var amb *AmbiguousCommandError
		if !errors.As(err, &amb) {
			t.Fatalf("err = %v, want AmbiguousCommandError", err)
		}
		if diff := cmp.Diff([]string{"interface", "ip"}, amb.Candidates); diff != "" {
			t.Errorf("candidates (-want +got):\n%s", diff)
		}
		if amb.Pos != 0 {
			t.Errorf("pos = %d", amb.Pos)
		}
	})

	t.Run("ambiguous second word", func(t *testing.T) {
		_, err := g.Match(configScope, []string{"show", "v"})
		var amb *AmbiguousCommandError
		if !errors.As(err, &amb) {
			t.Fatalf("err = %v, want AmbiguousCommandError", err)
		}
		if amb.Pos != 1 {
			t.Errorf("pos = %d, want 1", amb.Pos)
		}
	})

	t.Run("unknown with suggestion", func(t *testing.T) {
		_, err := g.Match(configScope, []string{"hostnme", "x"})
		var unk *UnknownCommandError
		if !errors.As(err, &unk) {
			t.Fatalf("err = %v, want UnknownCommandError", err)
		}
		if diff := cmp.Diff([]string{"hostname"}, unk.Suggestions); diff != "" {
			t.Errorf("suggestions (-want +got):\n%s", diff)
		}
	})

	t.Run("not visible in mode", func(t *testing.T) {
		_, err := g.Match(loginScope, []string{"show", "version"})
		var unk *UnknownCommandError
		if !errors.As(err, &unk) {
			t.Fatalf("err = %v, want UnknownCommandError", err)
		}
	})

	t.Run("incomplete", func(t *testing.T) {
		_, err := g.Match(configScope, []string{"ip", "route"})
		var se *SyntaxError
		if !errors.As(err, &se) || !se.Incomplete {
			t.Fatalf("err = %v, want incomplete SyntaxError", err)
		}
		if diff := cmp.Diff([]string{"<prefix>"}, se.Expected); diff != "" {
			t.Errorf("expected (-want +got):\n%s", diff)
		}
	})

	t.Run("trailing", func(t *testing.T) {
		_, err := g.Match(configScope, []string{"exit", "now"})
		var se *SyntaxError
		if !errors.As(err, &se) || !se.Trailing {
			t.Fatalf("err = %v, want trailing SyntaxError", err)
		}
		if se.Pos != 1 {
			t.Errorf("pos = %d, want 1", se.Pos)
		}
	})

	t.Run("wrong keyword", func(t *testing.T) {
		_, err := g.Match(configScope, []string{"ip", "router"})
		var se *SyntaxError
		if !errors.As(err, &se) || se.Incomplete || se.Trailing {
			t.Fatalf("err = %v, want invalid input SyntaxError", err)
		}
	})

	t.Run("range", func(t *testing.T) {
		_, err := g.Match(configScope, []string{"show", "vlan", "5000"})
		var ve *ArgumentValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("err = %v, want ArgumentValidationError", err)
		}
		if ve.Field != "id" || ve.Pos != 2 {
			t.Errorf("field %q pos %d", ve.Field, ve.Pos)
		}
	})

	t.Run("enum", func(t *testing.T) {
		_, err := g.Match(aclScope, []string{"10", "allow", "10.0.0.0/8"})
		var ve *ArgumentValidationError
		if !errors.As(err, &ve) || ve.Field != "verdict" {
			t.Fatalf("err = %v, want ArgumentValidationError on verdict", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		_, err := g.Match(configScope, nil)
		var se *SyntaxError
		if !errors.As(err, &se) || !se.Incomplete {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestMatchNegation(t *testing.T) {
	g := compileString(t, testSyntax)

	m, err := g.Match(configScope, strings.Fields("no ip route 10.0.0.0/8 192.0.2.1"))
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !m.Negated || m.Action != "ip-route" {
		t.Errorf("negated=%v action=%q", m.Negated, m.Action)
	}

	m, err = g.Match(ifScope, []string{"no", "shut"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if m.Action != "if-no-shutdown" {
		t.Errorf("action = %q, want if-no-shutdown", m.Action)
	}

	_, err = g.Match(configScope, []string{"no", "interface", "ether1"})
	var sem *SemanticError
	if !errors.As(err, &sem) {
		t.Fatalf("err = %v, want SemanticError", err)
	}

	_, err = g.Match(configScope, []string{"no"})
	var se *SyntaxError
	if !errors.As(err, &se) || !se.Incomplete {
		t.Fatalf("err = %v, want incomplete", err)
	}
	if diff := cmp.Diff([]string{"hostname", "ip"}, se.Expected); diff != "" {
		t.Errorf("expected (-want +got):\n%s", diff)
	}
}

func TestMatchHandlerError(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.RegisterDataHandler("even", func(d Data, field string, v any) error {
		if v.(int64)%2 != 0 {
			return Actionf("%s must be even", field)
		}
		d[field] = v
		d["half"] = v.(int64) / 2
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	descs, err := ParseDescriptions(strings.NewReader(`
commands:
  - name: pair
    mode: config
    action: show
    args:
      - field: n
        type: integer
        handler: even
`))
	if err != nil {
		t.Fatal(err)
	}
	g, err := Compile(descs, CompileOptions{Registry: reg, Actions: testActions})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	m, err := g.Match(configScope, []string{"pair", "8"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if diff := cmp.Diff(Data{"n": int64(8), "half": int64(4)}, m.Data); diff != "" {
		t.Errorf("data (-want +got):\n%s", diff)
	}
	_, err = g.Match(configScope, []string{"pair", "7"})
	var ae *ActionError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want ActionError", err)
	}
}

func TestMatchChoicePriority(t *testing.T) {
	g := compileString(t, `
commands:
  - name: set
    mode: config
    action: show
    args:
      - choice:
          - - field: a
              type: integer
          - - field: b
              type: word
`)
	m, err := g.Match(configScope, []string{"set", "42"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !m.Data.Has("a") || m.Data.Has("b") {
		t.Errorf("first alternative should win, data = %v", m.Data)
	}
	m, err = g.Match(configScope, []string{"set", "x"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !m.Data.Has("b") {
		t.Errorf("data = %v, want b", m.Data)
	}
}

func TestMatchRestOfLineSurvivesAmbiguity(t *testing.T) {
	g := compileString(t, `
commands:
  - name: note
    mode: config
    action: show
    args:
      - field: text
        type: line
  - name: note
    mode: config
    action: exit
    args:
      - field: w
      - choice:
          - - token: alpha
          - - token: alps
`)
	m, err := g.Match(configScope, []string{"note", "al", "al"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if m.Action != "show" || m.Data.String("text") != "al al" {
		t.Errorf("got action %q data %v, want show with text \"al al\"", m.Action, m.Data)
	}
	if m, err = g.Match(configScope, []string{"note", "x", "alph"}); err != nil || m.Action != "show" {
		t.Errorf("Match(note x alph) = %v, %v; want the line command first", m, err)
	}
}

func texts(cands []Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Text)
	}
	return out
}

func TestComplete(t *testing.T) {
	g := compileString(t, testSyntax)
	tests := []struct {
		name    string
		scope   Scope
		words   []string
		partial string
		want    []string
	}{
		{"command prefix", configScope, nil, "in", []string{"interface"}},
		{"command list", configScope, nil, "", []string{"exit", "hostname", "interface", "ip", "no", "show"}},
		{"negation keyword", configScope, nil, "n", []string{"no"}},
		{"dynamic interface", configScope, []string{"inter"}, "eth", []string{"ether1", "ether2", "<ifname>"}},
		{"after field", configScope, []string{"interface", "ether1"}, "", []string{"description", "shutdown", "<cr>"}},
		{"ambiguous prefix lenient", configScope, []string{"show"}, "v", []string{"version", "vlan"}},
		{"negatable only", configScope, []string{"no"}, "", []string{"hostname", "ip"}},
		{"enum values", aclScope, []string{"10"}, "", []string{"deny", "permit", "<verdict>"}},
		{"range placeholder", configScope, []string{"show", "vlan"}, "", []string{"<id>", "<cr>"}},
		{"rest of line", configScope, []string{"int", "e1", "desc", "a"}, "b", []string{"<text>"}},
		{"no match", configScope, []string{"banana"}, "", nil},
		{"complete statement", configScope, []string{"exit"}, "", []string{"<cr>"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := texts(g.Complete(tt.scope, tt.words, tt.partial))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Complete(%v, %q) (-want +got):\n%s", tt.words, tt.partial, diff)
			}
		})
	}
}

func TestCompleteHelp(t *testing.T) {
	g := compileString(t, testSyntax)
	cands := g.Complete(configScope, nil, "host")
	if len(cands) != 1 || cands[0].Help != "Set system host name" {
		t.Fatalf("cands = %+v", cands)
	}
	cands = g.Complete(configScope, []string{"interface"}, "eth")
	if cands[0].Kind != CandDynamic || cands[0].Help != "Known interface" {
		t.Errorf("cands[0] = %+v", cands[0])
	}
}

func TestCommonPrefix(t *testing.T) {
	cands := []Candidate{
		{Text: "ether1", Kind: CandDynamic},
		{Text: "ether2", Kind: CandDynamic},
		{Text: "<ifname>", Kind: CandPlaceholder},
	}
	if got := CommonPrefix(cands); got != "ether" {
		t.Errorf("CommonPrefix = %q, want ether", got)
	}
	if got := CommonPrefix([]Candidate{EndCandidate}); got != "" {
		t.Errorf("CommonPrefix(<cr>) = %q", got)
	}

	tests := []struct {
		texts []string
		want  string
	}{
		{[]string{"Ethernet1", "ethernet2"}, "Ethernet"},
		{[]string{"vlän1", "vlån2"}, "vl"},
		{[]string{"äb", "äc"}, "ä"},
	}
	for _, tt := range tests {
		var cs []Candidate
		for _, txt := range tt.texts {
			cs = append(cs, Candidate{Text: txt, Kind: CandValue})
		}
		if got := CommonPrefix(cs); got != tt.want {
			t.Errorf("CommonPrefix(%q) = %q, want %q", tt.texts, got, tt.want)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown type", `
commands:
  - {name: a, mode: config, action: show, args: [{field: x, type: bogus}]}`},
		{"unknown action", `
commands:
  - {name: a, mode: config, action: missing}`},
		{"unknown no-action", `
commands:
  - {name: a, mode: config, action: show, no-action: missing}`},
		{"unknown placeholder", `
commands:
  - {name: a, mode: config, action: show, bind: {x: $bogus}}`},
		{"wildcard inside", `
commands:
  - {name: a, mode: "con*fig", action: show}`},
		{"bare wildcard", `
commands:
  - {name: a, mode: "*", action: show}`},
		{"overlapping modes", `
commands:
  - {name: a, mode: ["config*", "config-if"], action: show}`},
		{"no mode", `
commands:
  - {name: a, action: show}`},
		{"two kinds", `
commands:
  - {name: a, mode: config, action: show, args: [{token: x, optional: [{token: y}]}]}`},
		{"range on word", `
commands:
  - {name: a, mode: config, action: show, args: [{field: x, type: word, range: 1-2}]}`},
		{"bad range", `
commands:
  - {name: a, mode: config, action: show, args: [{field: x, range: 5-1}]}`},
		{"pattern starting with token", `
commands:
  - {mode: config, action: show, args: [{token: x}]}`},
		{"unknown completion", `
commands:
  - {name: a, mode: config, action: show, args: [{field: x, completion: nope}]}`},
		{"empty choice alternative", `
commands:
  - {name: a, mode: config, action: show, args: [{choice: [[]]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			descs, err := ParseDescriptions(strings.NewReader(tt.src))
			if err != nil {
				t.Fatalf("ParseDescriptions: %v", err)
			}
			_, err = Compile(descs, CompileOptions{Registry: newTestRegistry(t), Actions: testActions})
			var ce *CompileError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want CompileError", err)
			}
		})
	}
}

func TestCompileBindings(t *testing.T) {
	g := compileString(t, `
commands:
  - name: a
    mode: config
    action: show
    bind: {kind: "$obj-type", what: literal, cost: "$$5", init: "$is-init"}
  - name: b
    mode: config
    action: show
`)
	want := []Binding{
		{Param: "cost", Source: SourceLiteral, Value: "$5"},
		{Param: "init", Source: SourceReplay},
		{Param: "kind", Source: SourceObjType},
		{Param: "what", Source: SourceLiteral, Value: "literal"},
	}
	if diff := cmp.Diff(want, g.Entries()[0].Bindings); diff != "" {
		t.Errorf("bindings (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(defaultBindings, g.Entries()[1].Bindings); diff != "" {
		t.Errorf("default bindings (-want +got):\n%s", diff)
	}
}

func TestVisibleModes(t *testing.T) {
	g := compileString(t, testSyntax)
	names := func(sc Scope) []string {
		var out []string
		for _, e := range g.Visible(sc) {
			if e.Name != "" {
				out = append(out, e.Name)
			}
		}
		return out
	}
	if diff := cmp.Diff([]string{"exit"}, names(loginScope)); diff != "" {
		t.Errorf("login (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"exit", "show", "shutdown"}, names(ifScope)); diff != "" {
		t.Errorf("config-if (-want +got):\n%s", diff)
	}
}
