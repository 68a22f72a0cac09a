// Package daemon implements the swsh process lifecycle: it builds the engine,
// replays the startup configuration and runs the local shell alongside the
// optional metrics and remote shell servers.
package daemon

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/psaab/swsh/pkg/api"
	"github.com/psaab/swsh/pkg/cli"
	"github.com/psaab/swsh/pkg/configstore"
	"github.com/psaab/swsh/pkg/features"
	"github.com/psaab/swsh/pkg/grammar"
	"github.com/psaab/swsh/pkg/grpcapi"
	"github.com/psaab/swsh/pkg/logging"
	"github.com/psaab/swsh/pkg/mode"
	"github.com/psaab/swsh/pkg/netif"
	"github.com/psaab/swsh/pkg/shell"
)

// Options configures the daemon.
type Options struct {
	StartupConfig string
	// Syntax selects the syntax version; empty loads the default.
	Syntax    string
	SyntaxDir string
	// StartMode is the mode the local session starts in.
	StartMode string
	Debug     bool
	Batch     bool
	Release   string
	// MetricsAddr enables the HTTP metrics and status server.
	MetricsAddr string
	// APIAuth protects the status endpoints with the configured local users.
	APIAuth bool
	// GRPCAddr enables the remote shell service.
	GRPCAddr    string
	HistoryFile string
	// Serve runs without a local shell until the process is signalled.
	Serve bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Links overrides the kernel interface inventory.
	Links netif.Source
}

// Daemon is one swsh process.
type Daemon struct {
	opts    Options
	store   *configstore.Store
	log     *slog.Logger
	logs    *logging.Handler
	reg     *prometheus.Registry
	engine  *shell.Engine
	remote  *grpcapi.Server
	// local is set while the local shell runs.
	local   atomic.Bool
}

// New creates a new Daemon.
func New(opts Options) *Daemon {
	if opts.StartMode == "" {
		opts.StartMode = mode.Login
	}
	if opts.Release == "" {
		opts.Release = "dev"
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Links == nil {
		opts.Links = netif.NewNetlink()
	}
	return &Daemon{
		opts:  opts,
		store: configstore.New(opts.StartupConfig),
	}
}

// Engine returns the compiled engine once Init has run.
func (d *Daemon) Engine() *shell.Engine { return d.engine }

// Init sets up logging, loads the syntax and replays the startup
// configuration. Run calls it when it has not been called yet.
func (d *Daemon) Init(ctx context.Context) error {
	if d.engine != nil {
		return nil
	}
	d.log, d.logs = logging.Setup(d.opts.Stderr, logging.Options{Debug: d.opts.Debug})
	slog.SetDefault(d.log)

	sup := features.Supplier(d.opts.SyntaxDir)
	d.reg = prometheus.NewRegistry()
	eng, err := shell.Build(shell.BuildConfig{
		Supplier: sup,
		Version:  d.opts.Syntax,
		Features: features.All(features.Deps{
			Store:   d.store,
			Links:   d.opts.Links,
			Logging: d.logs,
			Syntax:  sup,
		}),
		Release:  d.opts.Release,
		Hostname: d.store.Hostname,
		Observer: api.NewMetrics(d.reg),
		Logger:   d.log,
	})
	if err != nil {
		return fmt.Errorf("build shell: %w", err)
	}
	d.engine = eng
	return d.replay(ctx)
}

// replay applies the startup configuration on a throwaway session.
func (d *Daemon) replay(ctx context.Context) error {
	doc, err := d.store.Load()
	if err != nil {
		d.log.Warn("failed to load startup-config, starting with defaults", "err", err)
		return nil
	}
	if doc == "" {
		return nil
	}
	s, err := d.engine.NewSession(mode.Login, shell.Options{Debug: d.opts.Debug, Batch: true})
	if err != nil {
		return err
	}
	applied, failed, err := s.Replay(ctx, strings.NewReader(doc))
	if err != nil {
		return fmt.Errorf("replay startup-config: %w", err)
	}
	d.log.Info("startup-config applied", "file", d.store.Path(), "applied", applied, "failed", failed)
	return nil
}

// Run starts the daemon and blocks until the local shell ends or the
// process is signalled.
func (d *Daemon) Run(ctx context.Context) error {
	sigs := []os.Signal{syscall.SIGTERM}
	if d.opts.Serve {
		// The local shell handles SIGINT itself.
		sigs = append(sigs, os.Interrupt)
	}
	ctx, stop := signal.NotifyContext(ctx, sigs...)
	defer stop()

	if err := d.Init(ctx); err != nil {
		return err
	}
	d.log.Info("starting swsh", "syntax", d.engine.SyntaxVersion(), "pid", os.Getpid())

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	if d.opts.GRPCAddr != "" {
		d.remote = grpcapi.NewServer(grpcapi.Config{
			Addr:   d.opts.GRPCAddr,
			Engine: d.engine,
			Logger: d.log,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.remote.Run(ctx); err != nil {
				errCh <- fmt.Errorf("gRPC: %w", err)
			}
		}()
	}

	if d.opts.MetricsAddr != "" {
		srv := api.NewServer(api.Config{
			Addr:     d.opts.MetricsAddr,
			Registry: d.reg,
			Status:   status{d},
			Audit:    d.logs.Buffer(),
			Auth:     d.apiAuth(),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				errCh <- fmt.Errorf("metrics: %w", err)
			}
		}()
	}

	if !d.opts.Serve {
		s, err := d.engine.NewSession(d.opts.StartMode, shell.Options{Debug: d.opts.Debug, Batch: d.opts.Batch})
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
		if d.opts.Batch {
			s.TerminalLength = 0
		}
		d.local.Store(true)
		c := cli.New(cli.Config{
			Backend:     &cli.Local{Session: s},
			Stdin:       d.opts.Stdin,
			Stdout:      d.opts.Stdout,
			Stderr:      d.opts.Stderr,
			HistoryFile: d.opts.HistoryFile,
			Batch:       d.opts.Batch,
			Banner:      d.banner(),
		})
		go func() {
			defer d.local.Store(false)
			if err := c.Run(ctx); err != nil {
				errCh <- fmt.Errorf("CLI: %w", err)
				return
			}
			errCh <- nil
		}()
	}

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		d.log.Info("signal received, shutting down")
	}

	stop()
	wg.Wait()
	d.logs.Close()

	d.log.Info("shutdown complete")
	return runErr
}

func (d *Daemon) banner() string {
	var b string
	d.store.View(func(st *configstore.State) { b = st.BannerMOTD })
	return b
}

// apiAuth checks API credentials against the local users.
func (d *Daemon) apiAuth() *api.AuthConfig {
	if !d.opts.APIAuth {
		return nil
	}
	return &api.AuthConfig{
		CheckUser: func(user, pass string) bool {
			var hash string
			d.store.View(func(st *configstore.State) { hash = st.Users[user].Hash })
			if hash == "" {
				return false
			}
			return subtle.ConstantTimeCompare([]byte(hash), []byte(grammar.HashPassword(pass))) == 1
		},
	}
}

// status feeds the metrics server.
type status struct{ d *Daemon }

func (s status) SyntaxVersion() string { return s.d.engine.SyntaxVersion() }

func (s status) Release() string { return s.d.engine.Release() }

func (s status) Sessions() int {
	n := 0
	if s.d.remote != nil {
		n = s.d.remote.Sessions()
	}
	if s.d.local.Load() {
		n++
	}
	return n
}

func (s status) AuditRecords() int { return s.d.logs.Buffer().Len() }
