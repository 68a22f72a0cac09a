// Package mode implements the stack of command modes a shell session moves
// through: login, enable, config and the config-* submodes nested in it.
package mode

import (
	"errors"
	"slices"
	"strings"

	"github.com/psaab/swsh/pkg/grammar"
)

// Top-level modes. Any other mode is a submode named "<parent>-<name>".
const (
	Login  = "login"
	Enable = "enable"
	Config = "config"
)

// ErrSessionEnded is returned when the bottom frame is popped.
var ErrSessionEnded = errors.New("session ended")

// ExitFunc runs when its frame is popped. It receives the frame being left.
type ExitFunc func(f Frame) error

// Frame is one active mode.
type Frame struct {
	Mode string
	// ObjType and ObjKey name the table row a table-edit submode is editing.
	ObjType string
	ObjKey  string
	// Data is forwarded to Exit, e.g. the attributes collected for a new row.
	Data map[string]any
	Exit ExitFunc
}

// Stack is the ordered set of active frames, bottom first. It is owned by a
// single session and is not safe for concurrent use.
type Stack struct {
	frames   []Frame
	ended    bool
	onChange []func()
}

// New returns a stack holding the bottom frame.
func New(bottom string) *Stack {
	return &Stack{frames: []Frame{{Mode: bottom}}}
}

// IsTopLevel reports whether m is one of login, enable or config.
func IsTopLevel(m string) bool {
	return m == Login || m == Enable || m == Config
}

// OnChange registers fn to run after every push or pop.
func (s *Stack) OnChange(fn func()) {
	s.onChange = append(s.onChange, fn)
}

func (s *Stack) changed() {
	for _, fn := range s.onChange {
		fn()
	}
}

// Push enters f.Mode. A top-level mode already in the stack pops back to
// that frame instead of nesting a duplicate. A submode first pops back to
// its nearest ancestor; without one nothing changes and a SemanticError is
// returned.
func (s *Stack) Push(f Frame) error {
	if s.ended {
		return ErrSessionEnded
	}
	if f.Mode == "" {
		return grammar.Semanticf("empty mode name")
	}
	if IsTopLevel(f.Mode) || !strings.Contains(f.Mode, "-") {
		if i := s.index(f.Mode); i >= 0 {
			return s.popAbove(i)
		}
		s.frames = append(s.frames, f)
		s.changed()
		return nil
	}
	anc := -1
	for i := len(s.frames) - 1; i >= 0; i-- {
		if strings.HasPrefix(f.Mode, s.frames[i].Mode+"-") {
			anc = i
			break
		}
	}
	if anc < 0 {
		return grammar.Semanticf("cannot enter %s from %s mode", f.Mode, s.Current().Mode)
	}
	err := s.popAbove(anc)
	s.frames = append(s.frames, f)
	s.changed()
	return err
}

func (s *Stack) index(m string) int {
	for i, f := range s.frames {
		if f.Mode == m {
			return i
		}
	}
	return -1
}

// popAbove pops every frame above index i, running their exit callbacks.
func (s *Stack) popAbove(i int) error {
	var errs []error
	for len(s.frames)-1 > i {
		if err := s.pop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Stack) pop() error {
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	s.changed()
	if top.Exit != nil {
		return top.Exit(top)
	}
	return nil
}

// Pop leaves the current mode. Popping the bottom frame ends the session
// and returns ErrSessionEnded, joined with any exit callback error.
func (s *Stack) Pop() error {
	if s.ended {
		return ErrSessionEnded
	}
	err := s.pop()
	if len(s.frames) == 0 {
		s.ended = true
		return errors.Join(ErrSessionEnded, err)
	}
	return err
}

// PopTo pops until m is the current mode.
func (s *Stack) PopTo(m string) error {
	i := s.index(m)
	if i < 0 {
		return grammar.Semanticf("not in %s mode", m)
	}
	return s.popAbove(i)
}

// Current returns the top frame. It is the zero Frame once the session ended.
func (s *Stack) Current() Frame {
	if len(s.frames) == 0 {
		return Frame{}
	}
	return s.frames[len(s.frames)-1]
}

// InSubmodeOf reports whether the current mode is nested below prefix.
func (s *Stack) InSubmodeOf(prefix string) bool {
	return strings.HasPrefix(s.Current().Mode, prefix+"-")
}

// Contains reports whether m is active anywhere in the stack.
func (s *Stack) Contains(m string) bool { return s.index(m) >= 0 }

// Modes returns the active mode names, bottom first.
func (s *Stack) Modes() []string {
	out := make([]string, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.Mode
	}
	return out
}

// Frames returns a copy of the active frames, bottom first.
func (s *Stack) Frames() []Frame { return slices.Clone(s.frames) }

// Depth is the number of active frames.
func (s *Stack) Depth() int { return len(s.frames) }

// Ended reports whether the bottom frame has been popped.
func (s *Stack) Ended() bool { return s.ended }

// Scope returns what the grammar may see of the stack.
func (s *Stack) Scope() grammar.Scope {
	top := s.Current()
	return grammar.Scope{Modes: s.Modes(), ObjType: top.ObjType, ObjKey: top.ObjKey}
}
