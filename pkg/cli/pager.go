package cli

import (
	"bytes"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// pager paginates statement output, waiting for a key after every page.
type pager struct {
	w io.Writer
	// height returns the page height; values below 2 disable paging.
	height func() int
	// wait shows the --More-- prompt and returns the key pressed.
	wait func() rune

	paging bool
	lines  int
	quit   bool
}

func newPager(w io.Writer, height func() int, wait func() rune) *pager {
	return &pager{w: w, height: height, wait: wait, paging: true}
}

// SetPaging implements shell.Pager.
func (p *pager) SetPaging(on bool) { p.paging = on }

// reset starts a new statement.
func (p *pager) reset() {
	p.lines = 0
	p.quit = false
	p.paging = true
}

func (p *pager) Write(b []byte) (int, error) {
	if p.quit {
		return len(b), nil
	}
	h := p.height()
	if !p.paging || h < 2 || p.wait == nil {
		return p.w.Write(b)
	}
	n := len(b)
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			_, err := p.w.Write(b)
			return n, err
		}
		if _, err := p.w.Write(b[:i+1]); err != nil {
			return n, err
		}
		b = b[i+1:]
		p.lines++
		if p.lines < h-1 {
			continue
		}
		switch p.wait() {
		case 'q', 'Q':
			p.quit = true
			return n, nil
		case '\r', '\n':
			p.lines = h - 2
		default:
			p.lines = 0
		}
	}
	return n, nil
}

// terminalRows returns the height of the terminal behind w, or 0.
func terminalRows(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	ws, err := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0
	}
	return int(ws.Row)
}
