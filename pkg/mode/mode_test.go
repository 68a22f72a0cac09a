package mode

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/psaab/swsh/pkg/grammar"
)

func TestPushSubmodeFromLogin(t *testing.T) {
	s := New(Login)
	err := s.Push(Frame{Mode: "config-router"})
	var se *grammar.SemanticError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want SemanticError", err)
	}
	if diff := cmp.Diff([]string{Login}, s.Modes()); diff != "" {
		t.Errorf("stack changed (-want +got):\n%s", diff)
	}
}

func TestPushPopNesting(t *testing.T) {
	s := New(Login)
	if err := s.Push(Frame{Mode: Config}); err != nil {
		t.Fatalf("push config: %v", err)
	}
	if err := s.Push(Frame{Mode: "config-router"}); err != nil {
		t.Fatalf("push config-router: %v", err)
	}
	if got := s.Current().Mode; got != "config-router" {
		t.Errorf("current = %q", got)
	}
	if !s.InSubmodeOf(Config) {
		t.Error("InSubmodeOf(config) = false")
	}
	if err := s.Pop(); err != nil {
		t.Fatal(err)
	}
	if err := s.Pop(); err != nil {
		t.Fatal(err)
	}
	if got := s.Current().Mode; got != Login {
		t.Errorf("current = %q, want login", got)
	}
}

func TestPushSiblingSubmodePopsBack(t *testing.T) {
	s := New(Login)
	var exited []string
	exit := func(f Frame) error {
		exited = append(exited, f.Mode+":"+f.ObjKey)
		return nil
	}
	for _, f := range []Frame{
		{Mode: Enable},
		{Mode: Config},
		{Mode: "config-if", ObjType: "interface", ObjKey: "ether1", Exit: exit},
		{Mode: "config-if", ObjType: "interface", ObjKey: "ether2", Exit: exit},
		{Mode: "config-acl", ObjKey: "web", Exit: exit},
		{Mode: "config-acl-seq", Exit: exit},
	} {
		if err := s.Push(f); err != nil {
			t.Fatalf("push %s: %v", f.Mode, err)
		}
	}
	want := []string{Login, Enable, Config, "config-acl", "config-acl-seq"}
	if diff := cmp.Diff(want, s.Modes()); diff != "" {
		t.Errorf("modes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"config-if:ether1", "config-if:ether2"}, exited); diff != "" {
		t.Errorf("exits (-want +got):\n%s", diff)
	}
}

func TestPushTopLevelPopsBack(t *testing.T) {
	s := New(Login)
	calls := 0
	for _, f := range []Frame{
		{Mode: Enable},
		{Mode: Config},
		{Mode: "config-if", Exit: func(Frame) error { calls++; return nil }},
	} {
		if err := s.Push(f); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Push(Frame{Mode: Config}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{Login, Enable, Config}, s.Modes()); diff != "" {
		t.Errorf("modes (-want +got):\n%s", diff)
	}
	if calls != 1 {
		t.Errorf("exit callback ran %d times", calls)
	}
	if err := s.PopTo(Enable); err != nil {
		t.Fatal(err)
	}
	if s.Depth() != 2 {
		t.Errorf("depth = %d", s.Depth())
	}
	if err := s.PopTo("config-if"); err == nil {
		t.Error("PopTo inactive mode succeeded")
	}
}

func TestPopBottomEndsSession(t *testing.T) {
	s := New(Login)
	if err := s.Pop(); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("err = %v, want ErrSessionEnded", err)
	}
	if !s.Ended() {
		t.Error("Ended() = false")
	}
	if err := s.Push(Frame{Mode: Enable}); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("push after end: %v", err)
	}
}

func TestExitErrorStillPops(t *testing.T) {
	s := New(Login)
	boom := errors.New("boom")
	if err := s.Push(Frame{Mode: Config}); err != nil {
		t.Fatal(err)
	}
	if err := s.Push(Frame{Mode: "config-if", Exit: func(Frame) error { return boom }}); err != nil {
		t.Fatal(err)
	}
	if err := s.Pop(); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if s.Current().Mode != Config {
		t.Errorf("current = %q", s.Current().Mode)
	}
}

func TestOnChangeAndScope(t *testing.T) {
	s := New(Login)
	n := 0
	s.OnChange(func() { n++ })
	_ = s.Push(Frame{Mode: Config})
	_ = s.Push(Frame{Mode: "config-if", ObjType: "interface", ObjKey: "ether1"})
	_ = s.Pop()
	if n != 3 {
		t.Errorf("OnChange ran %d times, want 3", n)
	}
	_ = s.Push(Frame{Mode: "config-if", ObjType: "interface", ObjKey: "ether2"})
	sc := s.Scope()
	want := grammar.Scope{Modes: []string{Login, Config, "config-if"}, ObjType: "interface", ObjKey: "ether2"}
	if diff := cmp.Diff(want, sc); diff != "" {
		t.Errorf("scope (-want +got):\n%s", diff)
	}
}
