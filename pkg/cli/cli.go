// Package cli is the line editor in front of a shell session: prompt,
// history, tab completion, "?" help and paging.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"

	"github.com/psaab/swsh/pkg/mode"
	"github.com/psaab/swsh/pkg/shell"
)

// Config configures a CLI.
type Config struct {
	Backend Backend
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	// HistoryFile keeps the interactive history; empty disables it.
	HistoryFile string
	// Batch reads statements from Stdin without a line editor.
	Batch  bool
	Banner string
}

// CLI is the interactive command-line interface.
type CLI struct {
	cfg   Config
	rl    *readline.Instance
	pager *pager

	// asking is set while the editor is used for --More-- or a
	// confirmation instead of a command.
	asking  atomic.Bool
	more    atomic.Bool
	moreKey atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a CLI. Unset streams default to the process's.
func New(cfg Config) *CLI {
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	return &CLI{cfg: cfg}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Run reads and executes lines until the session ends, input is exhausted
// or ctx is cancelled.
func (c *CLI) Run(ctx context.Context) error {
	if c.cfg.Batch {
		return c.runBatch(ctx)
	}
	return c.runInteractive(ctx)
}

func (c *CLI) runBatch(ctx context.Context) error {
	b := c.cfg.Backend
	sc := bufio.NewScanner(c.cfg.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	failed := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '!' || line[0] == '#' {
			continue
		}
		err := b.Execute(ctx, line, c.cfg.Stdout)
		if err != nil && !errors.Is(err, mode.ErrSessionEnded) {
			failed++
			fmt.Fprintf(c.cfg.Stderr, "%s\n%s\n", line, b.FormatError(err))
		}
		if b.Ended() {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d statements failed", failed)
	}
	return nil
}

func (c *CLI) runInteractive(ctx context.Context) error {
	b := c.cfg.Backend
	stdin, ok := c.cfg.Stdin.(io.ReadCloser)
	if !ok {
		stdin = io.NopCloser(c.cfg.Stdin)
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:              b.Prompt(),
		HistoryFile:         c.cfg.HistoryFile,
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		AutoComplete:        &completer{b: b, out: func() io.Writer { return c.rl.Stdout() }},
		Stdin:               stdin,
		Stdout:              c.cfg.Stdout,
		Stderr:              c.cfg.Stderr,
		Listener:            readline.FuncListener(c.help),
		FuncFilterInputRune: c.filterInput,
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer rl.Close()
	c.rl = rl
	c.pager = newPager(rl.Stdout(), c.pageHeight, c.waitMore)
	if cf, ok := b.(interface{ SetConfirmer(shell.Confirmer) }); ok {
		cf.SetConfirmer(c)
	}

	if c.cfg.Banner != "" {
		fmt.Fprintln(rl.Stdout(), c.cfg.Banner)
	}

	// SIGINT while a command runs cancels it; at the prompt readline
	// reports ^C itself.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if c.cancelRunning() {
				fmt.Fprintln(c.cfg.Stderr, "\n^C (command cancelled)")
			}
		}
	}()

	var lastInterrupt time.Time
	for !b.Ended() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rl.SetPrompt(b.Prompt())
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if time.Since(lastInterrupt) < 2*time.Second {
				return nil
			}
			lastInterrupt = time.Now()
			fmt.Fprintln(rl.Stderr(), "^C (press again within 2s to exit)")
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		c.execute(ctx, line)
	}
	return nil
}

func (c *CLI) execute(ctx context.Context, line string) {
	b := c.cfg.Backend
	cctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()

	c.pager.reset()
	if err := b.Execute(cctx, line, c.pager); err != nil {
		if msg := b.FormatError(err); msg != "" {
			fmt.Fprintln(c.rl.Stderr(), msg)
		}
	}
}

func (c *CLI) cancelRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

// help lists what may follow the cursor when '?' is typed. The '?' is
// removed from the line.
func (c *CLI) help(line []rune, pos int, key rune) ([]rune, int, bool) {
	if key != '?' || pos < 1 || c.asking.Load() {
		return line, pos, false
	}
	clean := make([]rune, 0, len(line)-1)
	clean = append(clean, line[:pos-1]...)
	clean = append(clean, line[pos:]...)
	out := c.rl.Stdout()
	comp, err := c.cfg.Backend.Complete(string(clean), pos-1)
	fmt.Fprintln(out)
	if err != nil {
		fmt.Fprintln(out, "  (no help available)")
	} else {
		writeHelp(out, comp.Candidates)
	}
	return clean, pos - 1, true
}

// filterInput turns any key into Enter at the --More-- prompt and records
// it.
func (c *CLI) filterInput(r rune) (rune, bool) {
	if !c.more.Load() {
		return r, true
	}
	c.moreKey.Store(r)
	return readline.CharEnter, true
}

func (c *CLI) pageHeight() int {
	if n := c.cfg.Backend.TerminalLength(); n >= 0 {
		return n
	}
	return terminalRows(c.cfg.Stdout)
}

// waitMore shows --More-- and returns the key pressed: space for the next
// page, Enter for one more line, q to stop.
func (c *CLI) waitMore() rune {
	c.asking.Store(true)
	c.more.Store(true)
	c.moreKey.Store(' ')
	c.rl.SetPrompt("--More-- ")
	c.rl.HistoryDisable()
	_, err := c.rl.Readline()
	c.rl.HistoryEnable()
	c.more.Store(false)
	c.asking.Store(false)
	// Erase the --More-- line.
	fmt.Fprint(c.rl.Stdout(), "\033[1A\033[2K\r")
	if err != nil {
		return 'q'
	}
	return c.moreKey.Load()
}

// Confirm implements shell.Confirmer. An empty answer confirms.
func (c *CLI) Confirm(question string) (bool, error) {
	c.asking.Store(true)
	defer c.asking.Store(false)
	c.rl.SetPrompt(question + " [confirm] ")
	c.rl.HistoryDisable()
	line, err := c.rl.Readline()
	c.rl.HistoryEnable()
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true, nil
	}
	return false, nil
}
