package grammar

import (
	"fmt"
	"sort"
)

// DataHandler post-processes a matched field. It receives a private copy of
// the data object and decides what to store under which keys; returning an
// error rejects the field.
type DataHandler func(data Data, field string, value any) error

// CompletionRequest describes the word being completed.
type CompletionRequest struct {
	Partial string
	Field   string
	Words   []string
	Data    Data
	Scope   Scope
}

// CompletionFunc produces dynamic completion candidates. It may consult
// external state but must not block for long.
type CompletionFunc func(req CompletionRequest) []Candidate

// ActionSet reports which action names exist. The compiler rejects
// descriptions that reference unknown actions.
type ActionSet interface {
	HasAction(name string) bool
}

// Registry holds the named procedures and types command descriptions refer
// to. Feature modules populate it before the grammar is compiled.
type Registry struct {
	types       map[string]*TypeDef
	handlers    map[string]DataHandler
	completions map[string]CompletionFunc
	objTypes    map[string][]string
}

// NewRegistry returns a registry preloaded with the built-in field types.
func NewRegistry() *Registry {
	r := &Registry{
		types:       make(map[string]*TypeDef),
		handlers:    make(map[string]DataHandler),
		completions: make(map[string]CompletionFunc),
		objTypes:    make(map[string][]string),
	}
	for _, t := range builtinTypes() {
		r.types[t.Name] = t
	}
	return r
}

// RegisterType adds a typedef.
func (r *Registry) RegisterType(t *TypeDef) error {
	if t == nil || t.Name == "" || t.Parse == nil {
		return fmt.Errorf("typedef needs a name and a parser")
	}
	if _, ok := r.types[t.Name]; ok {
		return fmt.Errorf("typedef %q already registered", t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// RegisterDataHandler adds a named data handler.
func (r *Registry) RegisterDataHandler(name string, h DataHandler) error {
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("data handler %q already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// RegisterCompletion adds a named completion procedure.
func (r *Registry) RegisterCompletion(name string, fn CompletionFunc) error {
	if _, ok := r.completions[name]; ok {
		return fmt.Errorf("completion %q already registered", name)
	}
	r.completions[name] = fn
	return nil
}

// RegisterObjectType declares the editable fields of a table-edit object.
func (r *Registry) RegisterObjectType(name string, fields ...string) error {
	if _, ok := r.objTypes[name]; ok {
		return fmt.Errorf("object type %q already registered", name)
	}
	fs := append([]string(nil), fields...)
	sort.Strings(fs)
	r.objTypes[name] = fs
	return nil
}

// Type looks up a typedef by name.
func (r *Registry) Type(name string) (*TypeDef, bool) {
	t, ok := r.types[name]
	return t, ok
}

// ObjectFields returns the fields of an object type.
func (r *Registry) ObjectFields(objType string) []string {
	return r.objTypes[objType]
}
