// terminal_host.go - Host console for guest console I/O

package main

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
)

// Console buffers keyboard input from the host and collects guest
// output. Import stubs read and write it, the TerminalHost feeds it.
type Console struct {
	mu     sync.Mutex
	input  []byte
	output []byte
	echo   bool
}

func NewConsole() *Console {
	return &Console{echo: true}
}

// PushKey queues one input byte for the guest
func (c *Console) PushKey(b byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = append(c.input, b)
	if c.echo {
		c.output = append(c.output, b)
	}
}

// ReadAvailable pops up to max queued input bytes without blocking
func (c *Console) ReadAvailable(max int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.input)
	if n > max {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, c.input[:n])
	c.input = c.input[n:]
	return out
}

// ReadLine blocks until a full line (LF-terminated) is queued or the
// timeout expires. The newline is included. A zero timeout never expires.
func (c *Console) ReadLine(timeout time.Duration) []byte {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		for i, b := range c.input {
			if b == '\n' {
				line := make([]byte, i+1)
				copy(line, c.input[:i+1])
				c.input = c.input[i+1:]
				c.mu.Unlock()
				return line
			}
		}
		c.mu.Unlock()
		if timeout > 0 && time.Now().After(deadline) {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Write appends guest output
func (c *Console) Write(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output = append(c.output, p...)
}

// DrainOutput returns and clears the pending output
func (c *Console) DrainOutput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.output) == 0 {
		return ""
	}
	out := string(c.output)
	c.output = c.output[:0]
	return out
}

// TerminalHost reads raw stdin and feeds bytes into a Console.
// Only instantiated in main.go for interactive use, never in tests.
type TerminalHost struct {
	console      *Console
	stopCh       chan struct{}
	done         chan struct{}
	stopped      sync.Once
	fd           int
	nonblockSet  bool
	oldTermState *term.State
}

// NewTerminalHost creates a host adapter that reads stdin into the given console.
func NewTerminalHost(console *Console) *TerminalHost {
	return &TerminalHost{
		console: console,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start sets stdin to non-blocking raw mode and begins reading in a
// goroutine. Call Stop() to restore stdin.
func (h *TerminalHost) Start() {
	h.fd = int(os.Stdin.Fd())

	// Raw mode disables OS-level echo and line buffering. The console
	// handles echo itself.
	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminal_host: failed to set raw mode: %v\n", err)
		close(h.done)
		return
	}
	h.oldTermState = oldState

	if err := syscall.SetNonblock(h.fd, true); err != nil {
		fmt.Fprintf(os.Stderr, "terminal_host: failed to set nonblocking stdin: %v\n", err)
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
		close(h.done)
		return
	}
	h.nonblockSet = true

	go func() {
		defer close(h.done)
		buf := make([]byte, 1)

		for {
			select {
			case <-h.stopCh:
				return
			default:
			}

			n, err := syscall.Read(h.fd, buf)
			if n > 0 {
				b := buf[0]
				// Raw mode sends CR for Enter; the guest expects LF.
				if b == '\r' {
					b = '\n'
				}
				// Modern terminals send 0x7F (DEL) for Backspace; translate to 0x08 (BS).
				if b == 0x7F {
					b = 0x08
				}
				h.console.PushKey(b)
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
}

// Stop terminates the stdin reading goroutine and restores stdin to blocking mode.
func (h *TerminalHost) Stop() {
	h.stopped.Do(func() {
		close(h.stopCh)
	})
	<-h.done
	if h.nonblockSet {
		_ = syscall.SetNonblock(h.fd, false)
		h.nonblockSet = false
	}
	if h.oldTermState != nil {
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
	}
}

// PrintOutput drains the console output buffer and prints it to stdout.
// Call this periodically from the main loop for interactive mode.
func (h *TerminalHost) PrintOutput() {
	out := h.console.DrainOutput()
	if len(out) > 0 {
		fmt.Print(out)
	}
}
