// swsh is a Cisco-style switch shell.
//
// Without a subcommand it runs an interactive shell on the terminal, or
// executes statements from stdin when stdin is not a terminal. "serve"
// exposes the shell over gRPC and "connect" attaches to such a server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/psaab/swsh/pkg/cli"
	"github.com/psaab/swsh/pkg/daemon"
	"github.com/psaab/swsh/pkg/grpcapi"
	"github.com/psaab/swsh/pkg/mode"
	"github.com/spf13/cobra"
)

// version is set by the linker.
var version = "dev"

const (
	defaultStartupConfig = "/etc/swsh/startup-config"
	defaultGRPCAddr      = "127.0.0.1:50061"
	syntaxEnv            = "SWSH_SYNTAX"
)

// rootOptions are the flags shared by the local shell and serve.
type rootOptions struct {
	syntax        string
	syntaxDir     string
	startMode     string
	startupConfig string
	debug         bool
	batch         bool
	metricsAddr   string
	apiAuth       bool
}

func (o *rootOptions) daemonOptions() daemon.Options {
	syntax := o.syntax
	if syntax == "" {
		syntax = os.Getenv(syntaxEnv)
	}
	return daemon.Options{
		StartupConfig: o.startupConfig,
		Syntax:        syntax,
		SyntaxDir:     o.syntaxDir,
		StartMode:     o.startMode,
		Debug:         o.debug,
		Batch:         o.batch,
		Release:       version,
		MetricsAddr:   o.metricsAddr,
		APIAuth:       o.apiAuth,
		HistoryFile:   historyFile(),
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".swsh_history")
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "swsh",
		Short: "Cisco-style switch shell",
		Long: `swsh is a command shell for configuring a switch in the style of
Cisco IOS: login, enable and config modes, unique-prefix keywords,
"?" help, Tab completion and "show running-config".

Statements are read from stdin when it is not a terminal.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemon.New(opts.daemonOptions()).Run(cmd.Context())
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.syntax, "syntax", "", "command syntax version (env "+syntaxEnv+")")
	f.StringVar(&opts.syntaxDir, "syntax-dir", "", "directory of command descriptions, overriding the built-in ones")
	f.StringVar(&opts.startMode, "mode", mode.Login, "mode the session starts in (login, enable, config)")
	f.StringVar(&opts.startupConfig, "startup-config", defaultStartupConfig, "startup configuration file")
	f.BoolVar(&opts.debug, "debug", false, "enable debug logging and internal error details")
	f.BoolVar(&opts.batch, "batch", !cli.IsTerminal(os.Stdin), "read statements from stdin without a line editor")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "HTTP metrics and status listen address (empty to disable)")
	f.BoolVar(&opts.apiAuth, "api-auth", false, "require local user credentials on the status API")

	cmd.AddCommand(newServeCmd(opts), newConnectCmd(opts))
	return cmd
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var grpcAddr string
	var local bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the shell to remote clients over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := root.daemonOptions()
			o.GRPCAddr = grpcAddr
			o.Serve = !local
			return daemon.New(o).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", defaultGRPCAddr, "gRPC listen address")
	cmd.Flags().BoolVar(&local, "local", false, "also run a shell on this terminal")
	return cmd
}

func newConnectCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect [addr]",
		Short: "Attach to a shell served by \"swsh serve\"",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := defaultGRPCAddr
			if len(args) == 1 {
				addr = args[0]
			}
			ctx := cmd.Context()
			c, err := grpcapi.Dial(ctx, addr, root.startMode, root.batch)
			if err != nil {
				return err
			}
			defer c.Close()
			return cli.New(cli.Config{
				Backend:     c,
				HistoryFile: historyFile(),
				Batch:       root.batch,
			}).Run(ctx)
		},
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "swsh: %v\n", err)
		}
		os.Exit(1)
	}
}
