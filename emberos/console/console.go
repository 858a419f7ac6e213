// Package console is the stdio device behind descriptors 0, 1 and 2. Output
// is split into lines for the log sink and, when a framebuffer is attached,
// rendered on a VT100 terminal. Input is queued by the host and drained by
// reads without blocking.
package console

import (
	"sync"
	"unicode/utf8"

	"ember/hal"

	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

const (
	defaultMaxLine  = 256
	defaultMaxInput = 4096
)

// Config configures a Console.
type Config struct {
	// Prefix is prepended to every logged line.
	Prefix string

	// Framebuffer, if set, receives the terminal picture on Present.
	Framebuffer hal.Framebuffer

	// MaxLine forces a logged line break after this many bytes.
	MaxLine int

	// MaxInput bounds the queued input; further bytes are dropped.
	MaxInput int
}

// Console implements the kernel console device.
type Console struct {
	mu  sync.Mutex
	log hal.Logger
	cfg Config

	line []byte
	in   []byte

	fb    hal.Framebuffer
	disp  *fbDisplay
	term  *tinyterm.Terminal
	dirty bool
}

// New returns a console logging to log.
func New(log hal.Logger, cfg Config) *Console {
	if cfg.MaxLine <= 0 {
		cfg.MaxLine = defaultMaxLine
	}
	if cfg.MaxInput <= 0 {
		cfg.MaxInput = defaultMaxInput
	}
	c := &Console{log: log, cfg: cfg}
	if fb := cfg.Framebuffer; fb != nil && fb.Width() > 0 && fb.Height() > 0 {
		c.fb = fb
		c.disp = newFBDisplay(fb.Width(), fb.Height())
		c.term = tinyterm.NewTerminal(c.disp)
		c.term.Configure(&tinyterm.Config{
			Font:       &proggy.TinySZ8pt7b,
			FontHeight: 10,
			FontOffset: 6,
		})
		c.dirty = true
	}
	return c
}

// Write logs complete lines and draws p on the terminal.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range p {
		switch b {
		case '\n':
			c.flushLine()
		case '\r':
		default:
			c.line = append(c.line, b)
			if len(c.line) >= c.cfg.MaxLine {
				c.flushLine()
			}
		}
	}
	if c.term != nil && len(p) > 0 {
		c.term.Write(p)
		c.dirty = true
	}
	return len(p), nil
}

// Read drains queued input into p. It returns 0 when nothing is queued.
func (c *Console) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := copy(p, c.in)
	c.in = c.in[:copy(c.in, c.in[n:])]
	return n, nil
}

// Feed queues input bytes.
func (c *Console) Feed(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := c.cfg.MaxInput - len(c.in)
	if room <= 0 {
		return
	}
	if len(p) > room {
		p = p[:room]
	}
	c.in = append(c.in, p...)
}

// FeedKey queues the bytes a key press produces.
func (c *Console) FeedKey(ev hal.KeyEvent) {
	if !ev.Press {
		return
	}
	switch {
	case ev.Rune != 0:
		c.Feed(utf8.AppendRune(nil, ev.Rune))
	case ev.Code == hal.KeyEnter:
		c.Feed([]byte{'\n'})
	case ev.Code == hal.KeyBackspace:
		c.Feed([]byte{'\b'})
	case ev.Code == hal.KeyTab:
		c.Feed([]byte{'\t'})
	case ev.Code == hal.KeyEscape:
		c.Feed([]byte{0x1b})
	}
}

// Flush logs a pending partial line.
func (c *Console) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.line) > 0 {
		c.flushLine()
	}
}

// Present copies the terminal to the framebuffer and presents it if
// anything was drawn since the last call.
func (c *Console) Present() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.term == nil || !c.dirty {
		return nil
	}
	c.dirty = false
	c.disp.blit(c.fb)
	return c.fb.Present()
}

func (c *Console) flushLine() {
	if c.log != nil {
		c.log.WriteLineString(c.cfg.Prefix + string(c.line))
	}
	c.line = c.line[:0]
}
