// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ManualProgressBar implement progress bar functionality that must
// be manually managed. That is, the Display() function must be called
// whenever an updated progress bar should be printed.
//
// ManualProgressBar does not use concurrency.
type ManualProgressBar struct {
	out             io.Writer
	width           float64
	maxProgress     float64
	currentProgress float64
	bar             strings.Builder
	startTime       time.Time
}

// NewManualProgressBar returns a new ManualProgressBar which prints to
// standard output
func NewManualProgressBar(width, max int) *ManualProgressBar {
	return NewManualProgressBarTo(os.Stdout, width, max)
}

// NewManualProgressBarTo returns a new ManualProgressBar which prints
// to out
func NewManualProgressBarTo(out io.Writer, width,
	max int) *ManualProgressBar {
	return &ManualProgressBar{
		out:         out,
		width:       float64(width),
		maxProgress: float64(max),
		startTime:   time.Now(),
	}
}

// Increment increments the interal progress counter. Each time an
// iteration is performed, Increment should be called.
func (p *ManualProgressBar) Increment() {
	if p.currentProgress < p.maxProgress {
		p.currentProgress++
	}
}

// Progress returns the fraction of iterations completed
func (p *ManualProgressBar) Progress() float64 {
	if p.maxProgress <= 0 {
		return 1
	}
	return p.currentProgress / p.maxProgress
}

// String returns the progress bar as a single line
func (p *ManualProgressBar) String() string {
	p.bar.Reset()
	p.bar.WriteString("|")

	filled := int(p.Progress() * p.width)
	p.bar.WriteString(strings.Repeat("█", filled))
	p.bar.WriteString(strings.Repeat(" ", int(p.width)-filled))

	fmt.Fprintf(&p.bar, "| [%.2f%% | elapsed: %v]", p.Progress()*100,
		time.Since(p.startTime).Truncate(time.Second))
	return p.bar.String()
}

// Display clears the current line and prints the progress bar on it
func (p *ManualProgressBar) Display() {
	fmt.Fprintf(p.out, "\n\033[1A\033[K%v", p.String())
}
