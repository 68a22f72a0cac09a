// Package logging sets up structured logging and keeps the audit trail of
// executed commands.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// AuditMessage is the log message sessions emit for every statement.
const AuditMessage = "command"

// Handler is an slog.Handler that copies command records into a Buffer
// and forwards records to remote syslog servers, in addition to a wrapped
// base handler.
type Handler struct {
	base   slog.Handler
	buf    *Buffer
	remote *remotes
	attrs  []slog.Attr
	groups []string
}

type remotes struct {
	mu      sync.RWMutex
	clients []*SyslogClient
}

// NewHandler wraps base. buf may be nil.
func NewHandler(base slog.Handler, buf *Buffer) *Handler {
	return &Handler{base: base, buf: buf, remote: &remotes{}}
}

// Options configures Setup.
type Options struct {
	Debug bool
	// BufferSize is the number of audit records kept; 0 means 1000.
	BufferSize int
}

// Setup builds the process logger: a text handler on w, level Debug when
// requested, wrapped by the audit handler.
func Setup(w io.Writer, opts Options) (*slog.Logger, *Handler) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	size := opts.BufferSize
	if size == 0 {
		size = 1000
	}
	base := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	h := NewHandler(base, NewBuffer(size))
	return slog.New(h), h
}

// Buffer returns the audit buffer.
func (h *Handler) Buffer() *Buffer { return h.buf }

// SetClients replaces the set of syslog clients. Old clients are closed.
func (h *Handler) SetClients(clients []*SyslogClient) {
	h.remote.mu.Lock()
	old := h.remote.clients
	h.remote.clients = clients
	h.remote.mu.Unlock()
	for _, c := range old {
		c.Close()
	}
}

// Clients returns the active syslog clients.
func (h *Handler) Clients() []*SyslogClient {
	h.remote.mu.RLock()
	defer h.remote.mu.RUnlock()
	return append([]*SyslogClient(nil), h.remote.clients...)
}

// Close closes all syslog clients.
func (h *Handler) Close() { h.SetClients(nil) }

// Enabled implements slog.Handler. Audit records are kept regardless of
// the base level.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo || h.base.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.base.Enabled(ctx, r.Level) {
		err = h.base.Handle(ctx, r)
	}
	if h.buf != nil && r.Message == AuditMessage {
		h.buf.Add(h.record(r))
	}

	h.remote.mu.RLock()
	clients := h.remote.clients
	h.remote.mu.RUnlock()
	if len(clients) > 0 {
		severity := slogLevelToSyslog(r.Level)
		msg := formatRecord(r, h.attrs, h.groups)
		for _, c := range clients {
			if c.ShouldSend(severity) {
				c.Send(severity, msg)
			}
		}
	}
	return err
}

func (h *Handler) record(r slog.Record) Record {
	rec := Record{Time: r.Time, Level: r.Level, Msg: r.Message}
	set := func(a slog.Attr) {
		switch a.Key {
		case "session":
			rec.Session = a.Value.String()
		case "mode":
			rec.Mode = a.Value.String()
		case "line":
			rec.Line = a.Value.String()
		case "result":
			rec.Result = a.Value.String()
		}
	}
	for _, a := range h.attrs {
		set(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		set(a)
		return true
	})
	return rec
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		base:   h.base.WithAttrs(attrs),
		buf:    h.buf,
		remote: h.remote,
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		base:   h.base.WithGroup(name),
		buf:    h.buf,
		remote: h.remote,
		attrs:  h.attrs,
		groups: append(append([]string{}, h.groups...), name),
	}
}

// slogLevelToSyslog maps slog levels to syslog severity values.
func slogLevelToSyslog(level slog.Level) int {
	switch {
	case level >= slog.LevelError:
		return SyslogError
	case level >= slog.LevelWarn:
		return SyslogWarning
	case level >= slog.LevelInfo:
		return SyslogInfo
	default:
		return SyslogDebug
	}
}

// formatRecord produces a compact text representation of a log record.
func formatRecord(r slog.Record, preAttrs []slog.Attr, groups []string) string {
	var b strings.Builder
	b.WriteString(r.Message)

	for _, a := range preAttrs {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if len(groups) > 0 {
			key = strings.Join(groups, ".") + "." + key
		}
		fmt.Fprintf(&b, " %s=%s", key, a.Value.String())
		return true
	})

	return b.String()
}
