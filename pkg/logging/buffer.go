package logging

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Record is one audited log entry.
type Record struct {
	Time    time.Time
	Level   slog.Level
	Msg     string
	Session string
	Mode    string
	Line    string
	Result  string
}

// Buffer is a thread-safe circular buffer of recent records.
type Buffer struct {
	mu    sync.RWMutex
	buf   []Record
	size  int
	head  int // next write position
	count int
}

// NewBuffer creates a buffer holding up to size records.
func NewBuffer(size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{buf: make([]Record, size), size: size}
}

// Add appends a record, overwriting the oldest if full.
func (b *Buffer) Add(rec Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf[b.head] = rec
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
}

// Len returns the number of stored records.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Filter selects records. Empty fields match everything.
type Filter struct {
	Session string
	Result  string
	// Text is a case-insensitive substring of the command line.
	Text string
}

func (f Filter) matches(r *Record) bool {
	if f.Session != "" && !strings.HasPrefix(r.Session, f.Session) {
		return false
	}
	if f.Result != "" && r.Result != f.Result {
		return false
	}
	if f.Text != "" && !strings.Contains(strings.ToLower(r.Line), strings.ToLower(f.Text)) {
		return false
	}
	return true
}

// Latest returns up to n matching records, oldest first.
func (b *Buffer) Latest(n int, f Filter) []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	var out []Record
	for i := 0; i < b.count && len(out) < n; i++ {
		idx := (b.head - 1 - i + b.size) % b.size
		if f.matches(&b.buf[idx]) {
			out = append(out, b.buf[idx])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Clear drops every record.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head, b.count = 0, 0
}
