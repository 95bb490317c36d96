package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// Progress reports transfer progress. Its methods are no-ops on a nil
// *Progress, which the CLI uses when stderr is not a terminal.
type Progress struct {
	bar *progressbar.ProgressBar
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NewProgress returns a progress bar for total bytes on w, or nil when
// enabled is false.
func NewProgress(w io.Writer, total int64, description string, enabled bool) *Progress {
	if !enabled {
		return nil
	}
	if description == "" {
		description = "Processing..."
	}
	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return &Progress{bar: bar}
}

// Set moves the bar to n bytes.
func (p *Progress) Set(n int64) {
	if p == nil {
		return
	}
	_ = p.bar.Set64(n)
}

// Writer returns a writer that advances the bar, for io.Copy destinations.
// A nil Progress yields io.Discard.
func (p *Progress) Writer() io.Writer {
	if p == nil {
		return io.Discard
	}
	return p.bar
}

// Finish completes the bar.
func (p *Progress) Finish() {
	if p == nil {
		return
	}
	_ = p.bar.Finish()
}
