package grammar

import (
	"fmt"
	"strings"
)

// Scope is the part of the session state the matcher may look at: the
// active modes, bottom first, and the row/table context of the top frame.
type Scope struct {
	Modes   []string
	ObjType string
	ObjKey  string

	// ObjFields lists the fields valid for ObjType. The grammar fills it in
	// from the object types registered at compile time.
	ObjFields []string
}

// Mode returns the current (top) mode, or "" for an empty scope.
func (s Scope) Mode() string {
	if len(s.Modes) == 0 {
		return ""
	}
	return s.Modes[len(s.Modes)-1]
}

// ModePattern is a compiled mode binding: either an exact mode name or a
// "prefix*" wildcard covering the mode and every submode nested above it.
type ModePattern struct {
	Prefix   string
	Wildcard bool
}

func (p ModePattern) String() string {
	if p.Wildcard {
		return p.Prefix + "*"
	}
	return p.Prefix
}

// Matches reports whether the pattern makes an entry visible in sc.
// An exact pattern only matches the current mode. A wildcard matches when
// any active frame's mode starts with the prefix, so "login*" commands stay
// visible in every mode pushed above login.
func (p ModePattern) Matches(sc Scope) bool {
	if !p.Wildcard {
		return sc.Mode() == p.Prefix
	}
	for _, m := range sc.Modes {
		if strings.HasPrefix(m, p.Prefix) {
			return true
		}
	}
	return false
}

func parseModePattern(s string) (ModePattern, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ModePattern{}, fmt.Errorf("empty mode name")
	}
	i := strings.IndexByte(s, '*')
	switch {
	case i < 0:
		return ModePattern{Prefix: s}, nil
	case i != len(s)-1:
		return ModePattern{}, fmt.Errorf("mode %q: wildcard must be the last character", s)
	case i == 0:
		return ModePattern{}, fmt.Errorf("mode %q: wildcard needs a prefix", s)
	}
	return ModePattern{Prefix: s[:i], Wildcard: true}, nil
}

// overlaps reports whether two patterns of the same entry cover a common
// mode, which makes the binding ambiguous.
func (p ModePattern) overlaps(q ModePattern) bool {
	switch {
	case p.Wildcard && q.Wildcard:
		return strings.HasPrefix(p.Prefix, q.Prefix) || strings.HasPrefix(q.Prefix, p.Prefix)
	case p.Wildcard:
		return strings.HasPrefix(q.Prefix, p.Prefix)
	case q.Wildcard:
		return strings.HasPrefix(p.Prefix, q.Prefix)
	}
	return p.Prefix == q.Prefix
}
