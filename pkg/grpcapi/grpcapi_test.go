package grpcapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/psaab/swsh/pkg/grammar"
	"github.com/psaab/swsh/pkg/mode"
	"github.com/psaab/swsh/pkg/shell"
)

const testSyntax = `
commands:
  - {name: enable, mode: login, action: enable}
  - {name: exit, mode: "login*", action: exit}
  - name: echo
    mode: "login*"
    action: echo
    args: [{field: text, type: line}]
  - {name: fail, mode: "login*", action: fail}
  - name: terminal
    mode: "login*"
    action: length
    args: [{token: length}, {field: lines, range: 0-512}]
`

type testFeature struct{}

func (testFeature) Name() string { return "test" }

func (testFeature) Register(r *shell.Registrar) error {
	acts := map[string]shell.ActionFunc{
		"enable": func(c *shell.Call) error { return c.Session.Stack.Push(mode.Frame{Mode: mode.Enable}) },
		"exit":   func(c *shell.Call) error { return c.Session.Stack.Pop() },
		"echo": func(c *shell.Call) error {
			c.Printf("%s\n", c.Data().String("text"))
			return nil
		},
		"fail": func(*shell.Call) error { return grammar.Actionf("it failed") },
		"length": func(c *shell.Call) error {
			n, _ := c.Data().Int("lines")
			c.Session.TerminalLength = int(n)
			return nil
		},
	}
	for name, fn := range acts {
		if err := r.Action(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func newTestServer(t *testing.T) (*Server, *grpc.ClientConn) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := shell.Build(shell.BuildConfig{
		Supplier: grammar.Supplier{
			FS:      fstest.MapFS{"v1/core.yaml": {Data: []byte(testSyntax)}},
			Default: "v1",
		},
		Features: []shell.Feature{testFeature{}},
		Hostname: func() string { return "sw1" },
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	srv := NewServer(Config{Engine: eng, Logger: logger})

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	RegisterShellServer(gs, srv)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return srv, conn
}

func TestRemoteSession(t *testing.T) {
	srv, conn := newTestServer(t)
	ctx := context.Background()

	c, err := Open(ctx, conn, "", false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.Prompt() != "sw1>" {
		t.Errorf("prompt = %q", c.Prompt())
	}
	if n := srv.Sessions(); n != 1 {
		t.Errorf("Sessions = %d", n)
	}

	var out bytes.Buffer
	if err := c.Execute(ctx, "echo hello world", &out); err != nil {
		t.Fatalf("echo: %v", err)
	}
	if out.String() != "hello world\n" {
		t.Errorf("output = %q", out.String())
	}

	if err := c.Execute(ctx, "enable", io.Discard); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if c.Prompt() != "sw1#" {
		t.Errorf("prompt after enable = %q", c.Prompt())
	}

	err = c.Execute(ctx, "fail", io.Discard)
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("fail: %v", err)
	}
	if re.Result != shell.ResultAction || c.FormatError(err) != "Error: it failed" {
		t.Errorf("remote error = %+v", re)
	}

	if err := c.Execute(ctx, "terminal length 30", io.Discard); err != nil {
		t.Fatalf("terminal length: %v", err)
	}
	if c.TerminalLength() != 30 {
		t.Errorf("TerminalLength = %d", c.TerminalLength())
	}

	for _, line := range []string{"exit", "exit"} {
		if err := c.Execute(ctx, line, io.Discard); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}
	if !c.Ended() {
		t.Error("session not ended")
	}
	if n := srv.Sessions(); n != 0 {
		t.Errorf("Sessions after exit = %d", n)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestRemoteComplete(t *testing.T) {
	_, conn := newTestServer(t)
	c, err := Open(context.Background(), conn, mode.Enable, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()
	comp, err := c.Complete("ec", 2)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	want := shell.Completion{
		Partial:    "ec",
		Candidates: []grammar.Candidate{{Text: "echo", Kind: grammar.CandKeyword}},
	}
	if diff := cmp.Diff(want, comp); diff != "" {
		t.Errorf("Complete (-want +got):\n%s", diff)
	}
}

func TestUnknownSession(t *testing.T) {
	_, conn := newTestServer(t)
	c := &Client{conn: conn, session: "nope"}
	err := c.Execute(context.Background(), "echo x", io.Discard)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("Execute on unknown session: %v", err)
	}
}

func TestOpenBadMode(t *testing.T) {
	_, conn := newTestServer(t)
	_, err := Open(context.Background(), conn, "bogus", false)
	if status.Code(errors.Unwrap(err)) != codes.InvalidArgument {
		t.Fatalf("Open: %v", err)
	}
}
