package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/psaab/swsh/pkg/shell"
)

const rpcTimeout = 5 * time.Minute

// RemoteError is a statement failure reported by the server.
type RemoteError struct {
	// Result is the result class, see shell.Classify.
	Result string
	Msg    string
}

func (e *RemoteError) Error() string { return e.Msg }

// Client is one remote shell session.
type Client struct {
	conn    *grpc.ClientConn
	owned   bool
	session string
	prompt  string
	ended   bool
	termLen int
}

// Dial connects to addr and opens a session in the given mode; empty uses
// the server's default.
func Dial(ctx context.Context, addr, start string, batch bool) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	c, err := Open(ctx, conn, start, batch)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.owned = true
	return c, nil
}

// Open starts a session on an existing connection.
func Open(ctx context.Context, conn *grpc.ClientConn, start string, batch bool) (*Client, error) {
	c := &Client{conn: conn, termLen: -1}
	resp, err := c.call(ctx, "Open", map[string]any{"mode": start, "batch": batch})
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	c.session = str(resp, "session")
	c.prompt = str(resp, "prompt")
	return c, nil
}

func (c *Client) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Session is the server-side session ID.
func (c *Client) Session() string { return c.session }

// Prompt is the prompt returned by the last call.
func (c *Client) Prompt() string { return c.prompt }

// Ended reports whether the remote session is over.
func (c *Client) Ended() bool { return c.ended }

// TerminalLength is the page height configured in the remote session.
func (c *Client) TerminalLength() int { return c.termLen }

// Execute runs line remotely and copies its output to out. A failing
// statement returns a *RemoteError after its output was written.
func (c *Client) Execute(ctx context.Context, line string, out io.Writer) error {
	resp, err := c.call(ctx, "Execute", map[string]any{"session": c.session, "line": line})
	if err != nil {
		return err
	}
	if _, err := io.WriteString(out, str(resp, "output")); err != nil {
		return err
	}
	c.termLen = num(resp, "terminal-length")
	if flag(resp, "ended") {
		c.ended = true
	} else {
		c.prompt = str(resp, "prompt")
	}
	if msg := str(resp, "error"); msg != "" {
		return &RemoteError{Result: str(resp, "result"), Msg: msg}
	}
	return nil
}

// Complete asks the server for the candidates at cursor.
func (c *Client) Complete(line string, cursor int) (shell.Completion, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()
	resp, err := c.call(ctx, "Complete", map[string]any{"session": c.session, "line": line, "cursor": cursor})
	if err != nil {
		return shell.Completion{}, err
	}
	out := shell.Completion{Partial: str(resp, "partial")}
	for _, v := range resp.GetFields()["candidates"].GetListValue().GetValues() {
		out.Candidates = append(out.Candidates, candidateFromValue(v))
	}
	return out, nil
}

// FormatError renders err for the operator.
func (c *Client) FormatError(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Msg
	}
	return "Error: " + err.Error()
}

// Close ends the remote session and, for dialed clients, the connection.
func (c *Client) Close() error {
	var err error
	if !c.ended {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err = c.call(ctx, "Close", map[string]any{"session": c.session})
		cancel()
		c.ended = true
	}
	if c.owned {
		err = errors.Join(err, c.conn.Close())
	}
	return err
}
