package grpcapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/psaab/swsh/pkg/grammar"
	"github.com/psaab/swsh/pkg/mode"
	"github.com/psaab/swsh/pkg/shell"
)

// Config configures the gRPC server.
type Config struct {
	Addr   string
	Engine *shell.Engine
	// Start is the mode remote sessions begin in unless the client asks for
	// another one.
	Start  string
	Logger *slog.Logger
}

// Server implements the swsh.Shell service on top of an engine.
type Server struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*remoteSession
}

// remoteSession serialises the calls of one client; a shell session is
// driven by a single goroutine.
type remoteSession struct {
	mu sync.Mutex
	s  *shell.Session
}

// NewServer creates a new gRPC server.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Start == "" {
		cfg.Start = mode.Login
	}
	return &Server{cfg: cfg, sessions: make(map[string]*remoteSession)}
}

// Sessions is the number of open remote sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run starts the gRPC server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gRPC listen: %w", err)
	}

	srv := grpc.NewServer()
	RegisterShellServer(srv, s)

	errCh := make(chan error, 1)
	go func() {
		s.cfg.Logger.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	srv.GracefulStop()
	return nil
}

func (s *Server) session(req *structpb.Struct) (*remoteSession, error) {
	id := str(req, "session")
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.sessions[id]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "session %q not found", id)
	}
	return rs, nil
}

func (s *Server) drop(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Open starts a session.
func (s *Server) Open(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := str(req, "mode")
	if start == "" {
		start = s.cfg.Start
	}
	sess, err := s.cfg.Engine.NewSession(start, shell.Options{Batch: flag(req, "batch")})
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}
	s.mu.Lock()
	s.sessions[sess.ID] = &remoteSession{s: sess}
	s.mu.Unlock()
	sess.Logger().Info("remote session opened", "mode", start)
	return structpb.NewStruct(map[string]any{
		"session": sess.ID,
		"prompt":  sess.Prompt(),
	})
}

// Execute runs one line. Statement failures are part of the response, a
// gRPC error means the session could not be reached.
func (s *Server) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rs, err := s.session(req)
	if err != nil {
		return nil, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	sess := rs.s

	var out bytes.Buffer
	err = sess.RunLine(ctx, str(req, "line"), &out)
	resp := map[string]any{
		"output":          out.String(),
		"result":          shell.Classify(err),
		"terminal-length": sess.TerminalLength,
	}
	if err != nil && !errors.Is(err, mode.ErrSessionEnded) {
		resp["error"] = shell.FormatError(err, sess.Options.Debug)
	}
	if sess.Ended() {
		resp["ended"] = true
		s.drop(sess.ID)
		sess.Logger().Info("remote session ended")
	} else {
		resp["prompt"] = sess.Prompt()
	}
	return structpb.NewStruct(resp)
}

// Complete returns the candidates for the word under the cursor.
func (s *Server) Complete(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rs, err := s.session(req)
	if err != nil {
		return nil, err
	}
	rs.mu.Lock()
	c := rs.s.Complete(str(req, "line"), num(req, "cursor"))
	rs.mu.Unlock()

	cands := make([]any, len(c.Candidates))
	for i, cand := range c.Candidates {
		cands[i] = map[string]any{
			"text": cand.Text,
			"help": cand.Help,
			"kind": int(cand.Kind),
		}
	}
	return structpb.NewStruct(map[string]any{
		"partial":    c.Partial,
		"candidates": cands,
	})
}

// Close ends a session.
func (s *Server) Close(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rs, err := s.session(req)
	if err != nil {
		return nil, err
	}
	s.drop(rs.s.ID)
	rs.s.Logger().Info("remote session closed")
	return &structpb.Struct{}, nil
}

func candidateFromValue(v *structpb.Value) grammar.Candidate {
	st := v.GetStructValue()
	return grammar.Candidate{
		Text: str(st, "text"),
		Help: str(st, "help"),
		Kind: grammar.CandidateKind(num(st, "kind")),
	}
}
