package runcfg

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/psaab/swsh/pkg/grammar"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func static(text string) func(*EmitContext) (string, error) {
	return func(*EmitContext) (string, error) { return text, nil }
}

func mustRegister(t *testing.T, r *Registry, p Provider) {
	t.Helper()
	if err := r.Register(p); err != nil {
		t.Fatalf("Register(%s): %v", p.Name, err)
	}
}

func TestGenerateOrderAndFeature(t *testing.T) {
	r := NewRegistry()
	enabledB := true
	mustRegister(t, r, Provider{Name: "a", Order: 100, Emit: static("a 1\n")})
	mustRegister(t, r, Provider{Name: "b", Order: 50, Emit: static("b 1"), Feature: func() bool { return enabledB }})

	got, err := r.Generate(context.Background(), "", Options{Hostname: "sw1", Version: "1.0", Now: testNow})
	if err != nil {
		t.Fatal(err)
	}
	want := "!\n! Current configuration for sw1\n! version 1.0\n! generated 2024-05-01T12:00:00Z\n!\nb 1\n!\na 1\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("document (-want +got):\n%s", diff)
	}

	enabledB = false
	got, _ = r.Generate(context.Background(), "", Options{Hostname: "sw1", Version: "1.0", Now: testNow})
	if strings.Contains(got, "b 1") || !strings.Contains(got, "a 1") {
		t.Errorf("disabled feature still emitted:\n%s", got)
	}
}

func TestGenerateHostnameThenUsername(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, Provider{Name: "username", Order: 1500, Emit: static("username admin password $sha256$x\n")})
	mustRegister(t, r, Provider{Name: "hostname", Order: 500, Emit: static("hostname sw1\n")})
	got, _ := r.Generate(context.Background(), "", Options{Hostname: "sw1", Version: "v", Now: testNow})
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	want := []string{"!", "hostname sw1", "!", "username admin password $sha256$x"}
	if diff := cmp.Diff(want, lines[4:]); diff != "" {
		t.Errorf("fragments (-want +got):\n%s", diff)
	}
}

func TestGenerateStableTies(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"x", "y", "z"} {
		mustRegister(t, r, Provider{Name: n, Order: 10, Emit: static(n)})
	}
	var names []string
	for _, p := range r.Providers() {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"x", "y", "z"}, names); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
}

func TestGenerateEmpty(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, Provider{Name: "a", Emit: static("")})
	got, err := r.Generate(context.Background(), "", Options{})
	if err != nil || got != "" {
		t.Errorf("Generate = %q, %v; want no header without fragments", got, err)
	}
}

func TestGenerateIsolatesFailures(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, Provider{Name: "bad", Order: 1, Emit: func(*EmitContext) (string, error) {
		return "", errors.New("gateway not configured")
	}})
	mustRegister(t, r, Provider{Name: "boom", Order: 2, Emit: func(*EmitContext) (string, error) {
		panic("nil map")
	}})
	mustRegister(t, r, Provider{Name: "good", Order: 3, Emit: static("good\n")})

	var failed []string
	opts := Options{Now: testNow, OnError: func(p string, err error) { failed = append(failed, p) }}
	got, err := r.Generate(context.Background(), "", opts)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"! error: section bad could not be generated", "! error: section boom could not be generated", "good"} {
		if !strings.Contains(got, s) {
			t.Errorf("missing %q in:\n%s", s, got)
		}
	}
	if strings.Contains(got, "gateway") {
		t.Errorf("diagnostic leaked without debug:\n%s", got)
	}
	if diff := cmp.Diff([]string{"bad", "boom"}, failed); diff != "" {
		t.Errorf("OnError (-want +got):\n%s", diff)
	}

	opts.Debug = true
	got, _ = r.Generate(context.Background(), "", opts)
	if !strings.Contains(got, "gateway not configured") || !strings.Contains(got, "panic: nil map") {
		t.Errorf("debug output lacks diagnostics:\n%s", got)
	}
}

func TestGenerateNamed(t *testing.T) {
	r := NewRegistry()
	calls := map[string]int{}
	for _, n := range []string{"hostname", "interface"} {
		n := n
		mustRegister(t, r, Provider{Name: n, Emit: func(ec *EmitContext) (string, error) {
			calls[n]++
			return n + " " + ec.Args.String("name"), nil
		}})
	}
	got, err := r.Generate(context.Background(), "interface", Options{Args: grammar.Data{"name": "ether1"}})
	if err != nil {
		t.Fatal(err)
	}
	if got != "interface ether1\n" {
		t.Errorf("got %q", got)
	}
	if calls["hostname"] != 0 {
		t.Error("unrelated provider was invoked")
	}
	_, err = r.Generate(context.Background(), "nope", Options{})
	var ae *grammar.ActionError
	if !errors.As(err, &ae) {
		t.Errorf("err = %v, want ActionError", err)
	}
}

func TestRegisterRules(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, Provider{Name: "a", Emit: static("")})
	if err := r.Register(Provider{Name: "a", Emit: static("")}); err == nil {
		t.Error("duplicate accepted")
	}
	if err := r.Register(Provider{Name: "b"}); err == nil {
		t.Error("provider without emit accepted")
	}
	r.Freeze()
	if err := r.Register(Provider{Name: "c", Emit: static("")}); !errors.Is(err, ErrFrozen) {
		t.Errorf("err = %v, want ErrFrozen", err)
	}
}

type allActions struct{}

func (allActions) HasAction(string) bool { return true }

func TestCommandDesc(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, Provider{Name: "hostname", Order: 500, Help: "Host name", Emit: static("")})
	mustRegister(t, r, Provider{Name: "interface", Order: 2000, Emit: static(""), Args: []grammar.NodeDesc{
		{Optional: []grammar.NodeDesc{{Field: "name", Type: "word"}}},
	}})
	g, err := grammar.Compile([]grammar.CommandDesc{r.CommandDesc("show-running-config")}, grammar.CompileOptions{
		Registry: grammar.NewRegistry(),
		Actions:  allActions{},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	sc := grammar.Scope{Modes: []string{"login", "enable"}}
	m, err := g.Match(sc, []string{"sh", "run", "int", "ether1"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if m.Data.String("section") != "interface" || m.Data.String("name") != "ether1" {
		t.Errorf("data = %v", m.Data)
	}
	m, err = g.Match(sc, []string{"show", "running-config"})
	if err != nil || m.Data.Has("section") {
		t.Errorf("Match(show running-config) = %v, %v", m, err)
	}
}
