// Package progress provides live progress reporting for bulk operations.
//
// Reporters are purely observational: they must never block or fail the
// operation they observe, and every implementation is safe for concurrent
// Advance calls from fan-out workers.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Indeterminate marks a reporter with no known total.
const Indeterminate = -1

// Reporter observes a stream of "advance by one" ticks.
type Reporter interface {
	// Start begins a new phase with the given label and expected total.
	// Pass Indeterminate when the total is unknown.
	Start(label string, total int)

	// Advance records n completed items.
	Advance(n int)

	// Done finishes the current phase.
	Done()
}

// Func adapts a plain callback into a Reporter. The callback receives
// the tick increment and Indeterminate for the total; Start and Done
// are no-ops.
type Func func(completed, total int)

// Start implements Reporter.
func (f Func) Start(label string, total int) {}

// Advance implements Reporter.
func (f Func) Advance(n int) { f(n, Indeterminate) }

// Done implements Reporter.
func (f Func) Done() {}

// Nop returns a reporter that discards all events.
func Nop() Reporter { return nopReporter{} }

type nopReporter struct{}

func (nopReporter) Start(string, int) {}
func (nopReporter) Advance(int)       {}
func (nopReporter) Done()             {}

// Console renders a single-line counter to a writer, refreshed at most
// every refresh interval to keep terminal output cheap.
type Console struct {
	mu        sync.Mutex
	out       io.Writer
	label     string
	total     int
	completed int
	lastDraw  time.Time
	refresh   time.Duration
}

// NewConsole creates a console reporter writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{
		out:     out,
		refresh: 100 * time.Millisecond,
	}
}

// Start implements Reporter.
func (c *Console) Start(label string, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.label = label
	c.total = total
	c.completed = 0
	c.lastDraw = time.Time{}
	c.draw()
}

// Advance implements Reporter.
func (c *Console) Advance(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed += n
	if time.Since(c.lastDraw) < c.refresh {
		return
	}
	c.draw()
}

// Done implements Reporter.
func (c *Console) Done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draw()
	fmt.Fprintln(c.out)
}

// Completed returns the number of ticks observed in the current phase.
func (c *Console) Completed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

func (c *Console) draw() {
	c.lastDraw = time.Now()
	if c.total == Indeterminate {
		fmt.Fprintf(c.out, "\r%s: %d", c.label, c.completed)
		return
	}
	fmt.Fprintf(c.out, "\r%s: %d/%d", c.label, c.completed, c.total)
}
