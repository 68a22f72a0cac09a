// Package runcfg assembles the running configuration from the fragments
// emitted by independently registered providers.
package runcfg

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/psaab/swsh/pkg/grammar"
)

// Separator precedes every fragment in the generated document.
const Separator = "!"

// EmitContext is handed to a provider's Emit callback.
type EmitContext struct {
	Ctx context.Context
	// Args holds the data matched by the provider's argument grammar in
	// "show running-config <name> ...". Empty for full documents.
	Args grammar.Data
}

// Provider emits one fragment of the running configuration.
type Provider struct {
	Name  string
	Order int
	Help  string
	// Feature gates the provider. Nil means always enabled.
	Feature func() bool
	Emit    func(ec *EmitContext) (string, error)
	// Args is an optional grammar fragment accepted after the provider name.
	Args []grammar.NodeDesc
}

func (p *Provider) enabled() bool {
	return p.Feature == nil || p.Feature()
}

// Registry is the ordered set of providers. It is filled while feature
// modules load and frozen before the first session starts. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers []*Provider
	names     map[string]bool
	frozen    bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]bool)}
}

// ErrFrozen is returned by Register after Freeze.
var ErrFrozen = errors.New("running-config registry is frozen")

// Register adds p. Names are unique.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrFrozen
	}
	if p.Name == "" || p.Emit == nil {
		return fmt.Errorf("running-config provider needs a name and an emit function")
	}
	if strings.ContainsAny(p.Name, " \t") {
		return fmt.Errorf("running-config provider %q: name must be one word", p.Name)
	}
	if r.names[p.Name] {
		return fmt.Errorf("running-config provider %q already registered", p.Name)
	}
	r.names[p.Name] = true
	r.providers = append(r.providers, &p)
	// Stable so equal orders keep registration order.
	sort.SliceStable(r.providers, func(i, j int) bool {
		return r.providers[i].Order < r.providers[j].Order
	})
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Providers returns the providers in generation order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providers))
	for i, p := range r.providers {
		out[i] = *p
	}
	return out
}

func (r *Registry) lookup(name string) *Provider {
	for _, p := range r.providers {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Options controls one generation.
type Options struct {
	Hostname string
	Version  string
	// Now stamps the header. Zero means time.Now.
	Now time.Time
	// Debug replaces the one-line error comment of a failed provider with
	// the full diagnostic.
	Debug bool
	Args  grammar.Data
	// OnError observes provider failures.
	OnError func(provider string, err error)
}

// Generate returns the fragment of the named provider, or the whole
// document when name is empty. A failing provider is replaced by an error
// comment and never stops the others.
func (r *Registry) Generate(ctx context.Context, name string, opts Options) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name != "" {
		p := r.lookup(name)
		if p == nil {
			return "", grammar.Actionf("no running-config section %q", name)
		}
		return r.emit(ctx, p, opts), nil
	}

	var frags []string
	for _, p := range r.providers {
		if !p.enabled() {
			continue
		}
		if f := r.emit(ctx, p, opts); f != "" {
			frags = append(frags, f)
		}
	}
	if len(frags) == 0 {
		return "", nil
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	var b strings.Builder
	b.WriteString(Separator + "\n")
	fmt.Fprintf(&b, "%s Current configuration for %s\n", Separator, opts.Hostname)
	fmt.Fprintf(&b, "%s version %s\n", Separator, opts.Version)
	fmt.Fprintf(&b, "%s generated %s\n", Separator, now.Format(time.RFC3339))
	for _, f := range frags {
		b.WriteString(Separator + "\n")
		b.WriteString(f)
	}
	return b.String(), nil
}

func (r *Registry) emit(ctx context.Context, p *Provider, opts Options) (out string) {
	ec := &EmitContext{Ctx: ctx, Args: opts.Args}
	if ec.Args == nil {
		ec.Args = grammar.Data{}
	}
	fail := func(err error, stack []byte) {
		if opts.OnError != nil {
			opts.OnError(p.Name, err)
		}
		if !opts.Debug {
			out = fmt.Sprintf("%s error: section %s could not be generated\n", Separator, p.Name)
			return
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s error: section %s: %v\n", Separator, p.Name, err)
		for _, l := range strings.Split(strings.TrimSpace(string(stack)), "\n") {
			if l != "" {
				fmt.Fprintf(&b, "%s   %s\n", Separator, l)
			}
		}
		out = b.String()
	}
	defer func() {
		if rec := recover(); rec != nil {
			fail(fmt.Errorf("panic: %v", rec), debug.Stack())
		}
	}()
	frag, err := p.Emit(ec)
	if err != nil {
		fail(err, nil)
		return out
	}
	if frag != "" && !strings.HasSuffix(frag, "\n") {
		frag += "\n"
	}
	return frag
}

// CommandDesc describes "show running-config [<provider> [args]]" so the
// provider names and their argument grammars are matched and completed
// like any other command.
func (r *Registry) CommandDesc(action string) grammar.CommandDesc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var alts [][]grammar.NodeDesc
	for _, p := range r.providers {
		alt := []grammar.NodeDesc{{Token: p.Name, Field: "section", Help: p.Help}}
		alt = append(alt, p.Args...)
		alts = append(alts, alt)
	}
	args := []grammar.NodeDesc{{Token: "running-config", Help: "Current operating configuration"}}
	if len(alts) > 0 {
		args = append(args, grammar.NodeDesc{Optional: []grammar.NodeDesc{{Choice: alts}}})
	}
	return grammar.CommandDesc{
		Name:      "show",
		Mode:      grammar.Modes{"enable*"},
		ShortHelp: "Show running system information",
		Action:    action,
		Args:      args,
	}
}
