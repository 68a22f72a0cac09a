// Package shell ties the compiled grammar, the mode stack and the action
// registry into sessions that execute and complete command lines.
package shell

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/psaab/swsh/pkg/grammar"
	"github.com/psaab/swsh/pkg/runcfg"
)

// ActionFunc is a registered command procedure.
type ActionFunc func(c *Call) error

// Feature is a loadable module contributing actions, data handlers,
// completions, typedefs and running-config providers.
type Feature interface {
	Name() string
	Register(r *Registrar) error
}

// Registrar is handed to each feature while an engine is built.
type Registrar struct {
	Grammar *grammar.Registry
	RunCfg  *runcfg.Registry
	actions map[string]ActionFunc
}

func newRegistrar() *Registrar {
	return &Registrar{
		Grammar: grammar.NewRegistry(),
		RunCfg:  runcfg.NewRegistry(),
		actions: make(map[string]ActionFunc),
	}
}

// Action registers a named command procedure.
func (r *Registrar) Action(name string, fn ActionFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("action needs a name and a function")
	}
	if _, ok := r.actions[name]; ok {
		return fmt.Errorf("action %q already registered", name)
	}
	r.actions[name] = fn
	return nil
}

// HasAction implements grammar.ActionSet.
func (r *Registrar) HasAction(name string) bool {
	_, ok := r.actions[name]
	return ok
}

// BuildConfig configures an engine.
type BuildConfig struct {
	Supplier grammar.Supplier
	// Version selects the syntax version; empty uses the supplier default.
	Version  string
	Features []Feature
	// Release is the product version shown by "show version" and in the
	// running-config header.
	Release string
	// Hostname returns the configured host name for prompts and headers.
	Hostname func() string
	Observer Observer
	Logger   *slog.Logger
}

// Engine holds the compiled state shared by every session.
type Engine struct {
	cfg BuildConfig

	mu      sync.RWMutex
	version string
	gram    *grammar.Grammar
	actions map[string]ActionFunc
	runCfg  *runcfg.Registry
}

// ShowRunningConfigAction is the built-in action behind "show running-config".
const ShowRunningConfigAction = "show-running-config"

// Build loads every feature, compiles the selected syntax version and
// freezes the running-config registry.
func Build(cfg BuildConfig) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Hostname == nil {
		cfg.Hostname = func() string { return "switch" }
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	e := &Engine{cfg: cfg}
	if err := e.load(cfg.Version); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) load(version string) error {
	r := newRegistrar()
	if err := r.Action(ShowRunningConfigAction, e.showRunningConfig); err != nil {
		return err
	}
	loaded := make(map[string]bool)
	for _, f := range e.cfg.Features {
		if err := f.Register(r); err != nil {
			return fmt.Errorf("load feature %s: %w", f.Name(), err)
		}
		loaded[f.Name()] = true
	}
	descs, v, err := e.cfg.Supplier.Load(version)
	if err != nil {
		return err
	}
	active := descs[:0:0]
	for _, d := range descs {
		if d.Feature == "" || loaded[d.Feature] {
			active = append(active, d)
		}
	}
	active = append(active, r.RunCfg.CommandDesc(ShowRunningConfigAction))
	g, err := grammar.Compile(active, grammar.CompileOptions{
		Version:  v,
		Registry: r.Grammar,
		Actions:  r,
	})
	if err != nil {
		return err
	}
	r.RunCfg.Freeze()

	// Sessions still generating from the previous registry keep using it.
	e.mu.Lock()
	e.version, e.gram, e.actions, e.runCfg = v, g, r.actions, r.RunCfg
	e.mu.Unlock()
	e.cfg.Logger.Info("syntax loaded", "version", v, "commands", len(g.Entries()), "features", len(loaded))
	return nil
}

// Reload discards the compiled grammar and every registration and rebuilds
// them for version. On failure the previous state stays active.
func (e *Engine) Reload(version string) error {
	return e.load(version)
}

// Grammar returns the active grammar.
func (e *Engine) Grammar() *grammar.Grammar {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gram
}

// RunningConfig returns the active provider registry.
func (e *Engine) RunningConfig() *runcfg.Registry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runCfg
}

// SyntaxVersion is the loaded syntax version.
func (e *Engine) SyntaxVersion() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// SyntaxVersions lists the versions the supplier offers.
func (e *Engine) SyntaxVersions() ([]string, error) {
	return e.cfg.Supplier.Versions()
}

// Release is the product version.
func (e *Engine) Release() string { return e.cfg.Release }

// Hostname is the configured host name.
func (e *Engine) Hostname() string { return e.cfg.Hostname() }

func (e *Engine) action(name string) ActionFunc {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.actions[name]
}

func (e *Engine) showRunningConfig(c *Call) error {
	data := c.Data()
	text, err := e.GenerateConfig(c.Ctx, c.Session, data.String("section"), data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(c.Out, text)
	return err
}

// GenerateConfig renders the running configuration, or one section of it,
// for session s. Provider failures are logged and counted.
func (e *Engine) GenerateConfig(ctx context.Context, s *Session, section string, args grammar.Data) (string, error) {
	return e.RunningConfig().Generate(ctx, section, runcfg.Options{
		Hostname: e.Hostname(),
		Version:  e.Release(),
		Debug:    s.Options.Debug,
		Args:     args,
		OnError: func(p string, err error) {
			e.cfg.Observer.ProviderFailed(p)
			s.log.Warn("running-config provider failed", "provider", p, "err", err)
		},
	})
}

// Observer receives execution events, e.g. for metrics.
type Observer interface {
	StatementDone(result string)
	CompletionDone(cacheHit bool)
	ProviderFailed(provider string)
}

type nopObserver struct{}

func (nopObserver) StatementDone(string)  {}
func (nopObserver) CompletionDone(bool)   {}
func (nopObserver) ProviderFailed(string) {}
