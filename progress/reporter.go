// Package progress shows how many downloads have finished.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
	"go.uber.org/atomic"
)

// Options configures the progress reporter.
type Options struct {
	// Total is the number of units that will be reported.
	Total int

	// Title is shown in front of the bar.
	// Default: "Downloading"
	Title string

	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// Interactive forces the bar on or off. When nil it is shown only if
	// Output is a terminal.
	Interactive *bool
}

// Reporter counts finished units and renders them either as a progress bar
// or, when the output is not a terminal, as one line per unit.
type Reporter struct {
	opts        Options
	interactive bool

	completed atomic.Int64
	failed    atomic.Int64

	mu      sync.Mutex
	bar     *pterm.ProgressbarPrinter
	stopped bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Title == "" {
		opts.Title = "Downloading"
	}

	interactive := isTerminal(opts.Output)
	if opts.Interactive != nil {
		interactive = *opts.Interactive
	}

	return &Reporter{
		opts:        opts,
		interactive: interactive,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Start draws the empty bar. It is a no-op in line mode.
func (r *Reporter) Start() error {
	if !r.interactive || r.opts.Total == 0 {
		return nil
	}

	bar, err := pterm.DefaultProgressbar.
		WithTotal(r.opts.Total).
		WithTitle(r.opts.Title).
		WithWriter(r.opts.Output).
		Start()
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.bar = bar
	r.mu.Unlock()
	return nil
}

// Increment records one finished unit. It is safe for concurrent use.
func (r *Reporter) Increment(succeeded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	done := r.completed.Inc()
	failed := r.failed.Load()
	if !succeeded {
		failed = r.failed.Inc()
	}
	if r.stopped {
		return
	}

	if r.bar != nil {
		r.bar.Increment()
		return
	}
	if failed > 0 {
		fmt.Fprintf(r.opts.Output, "%s: %d/%d (%d failed)\n", r.opts.Title, done, r.opts.Total, failed)
	} else {
		fmt.Fprintf(r.opts.Output, "%s: %d/%d\n", r.opts.Title, done, r.opts.Total)
	}
}

// Stop removes the bar from the screen. Later increments are counted but
// not drawn.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	r.stopped = true
	if r.bar != nil {
		r.bar.Stop()
	}
}

func (r *Reporter) Completed() int64 {
	return r.completed.Load()
}

func (r *Reporter) Failed() int64 {
	return r.failed.Load()
}

// PrintSummary writes the end-of-run totals.
func (r *Reporter) PrintSummary(bytes int64, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	done := r.completed.Load()
	failed := r.failed.Load()
	fmt.Fprintf(r.opts.Output, "Done: %d downloaded, %d failed, %s in %s\n",
		done-failed,
		failed,
		FormatBytes(bytes),
		FormatDuration(elapsed),
	)
}

// FormatBytes formats b as a human-readable size.
func FormatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm %ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
