// Package cli provides terminal output helpers for articlectl.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
)

// Printer writes status lines, key/value tables and JSON.
type Printer struct {
	out      io.Writer
	colorize bool
	asJSON   bool
}

// NewPrinter writes to w. Colors are used only when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{out: w, colorize: isTerminal(w)}
}

// SetJSON switches Result output to indented JSON.
func (p *Printer) SetJSON(v bool) {
	p.asJSON = v
}

func (p *Printer) status(mark, color, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if p.colorize {
		fmt.Fprintf(p.out, "%s%s%s %s\n", color, mark, ColorReset, msg)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", mark, msg)
}

func (p *Printer) Success(format string, args ...interface{}) {
	p.status("✓", ColorGreen, format, args...)
}

func (p *Printer) Error(format string, args ...interface{}) {
	p.status("✗", ColorRed, format, args...)
}

func (p *Printer) Warning(format string, args ...interface{}) {
	p.status("!", ColorYellow, format, args...)
}

func (p *Printer) Info(format string, args ...interface{}) {
	p.status("i", ColorBlue, format, args...)
}

// Field is one row of a Result table.
type Field struct {
	Key   string
	Value interface{}
}

// Result prints fields as an aligned table, or as a JSON object in JSON mode.
func (p *Printer) Result(fields ...Field) error {
	if p.asJSON {
		obj := make(map[string]interface{}, len(fields))
		for _, f := range fields {
			obj[f.Key] = f.Value
		}
		return p.JSON(obj)
	}
	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(tw, "%s:\t%v\n", f.Key, f.Value)
	}
	return tw.Flush()
}

// JSON prints v indented.
func (p *Printer) JSON(v interface{}) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Spinner shows progress while waiting on ledger confirmations.
type Spinner struct {
	frames   []string
	prefix   string
	writer   io.Writer
	colorize bool
	interval time.Duration

	mu     sync.Mutex
	active bool
	done   chan struct{}
	exited chan struct{}
}

// NewSpinner creates a spinner labelled prefix. It renders nothing unless w is a terminal.
func NewSpinner(w io.Writer, prefix string) *Spinner {
	return &Spinner{
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix:   prefix,
		writer:   w,
		colorize: isTerminal(w),
		interval: 100 * time.Millisecond,
	}
}

// Start begins rendering. Calling Start on a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active || !s.colorize {
		return
	}
	s.active = true
	s.done = make(chan struct{})
	s.exited = make(chan struct{})

	go func(done, exited chan struct{}) {
		defer close(exited)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Fprintf(s.writer, "\r%s%s%s %s", ColorCyan, s.frames[i%len(s.frames)], ColorReset, s.prefix)
			}
		}
	}(s.done, s.exited)
}

// Stop halts rendering and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.done)
	<-s.exited
	fmt.Fprint(s.writer, "\r"+strings.Repeat(" ", len(s.prefix)+4)+"\r")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
