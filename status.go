package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// StatusLine renders stats as a single line that overwrites itself.
type StatusLine struct {
	mu    sync.Mutex
	out   io.Writer
	total uint64
	quiet bool

	// Colors
	colorLabel    func(a ...interface{}) string
	colorSent     func(a ...interface{}) string
	colorReceived func(a ...interface{}) string
	colorRate     func(a ...interface{}) string
	colorProgress func(a ...interface{}) string
}

// NewStatusLine writes to out. total is the number of queries the run will
// attempt, or zero when unbounded; it only drives the progress bar.
func NewStatusLine(out io.Writer, total uint64, quiet bool) *StatusLine {
	return &StatusLine{
		out:           out,
		total:         total,
		quiet:         quiet,
		colorLabel:    color.New(color.FgCyan).SprintFunc(),
		colorSent:     color.New(color.FgHiBlue).SprintFunc(),
		colorReceived: color.New(color.FgGreen).SprintFunc(),
		colorRate:     color.New(color.FgYellow).SprintFunc(),
		colorProgress: color.New(color.FgHiBlue).SprintFunc(),
	}
}

func (sl *StatusLine) Update(st Stats) {
	if sl.quiet {
		return
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	fmt.Fprintf(sl.out, "\r%s  \r", sl.render(st))
}

func (sl *StatusLine) Final(st Stats) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	fmt.Fprintf(sl.out, "\r\033[K%s\n", sl.render(st))
}

// Clear erases the current line so other output can take its place.
func (sl *StatusLine) Clear() {
	if sl.quiet {
		return
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	fmt.Fprint(sl.out, "\r\033[K")
}

func (sl *StatusLine) render(st Stats) string {
	line := fmt.Sprintf("%s [%s] - %s [%s] - %s [%s pps] - %s [%.2f%%]",
		sl.colorLabel("Sent:"), sl.colorSent(st.Sent),
		sl.colorLabel("Received:"), sl.colorReceived(st.Received),
		sl.colorLabel("Reply rate:"), sl.colorRate(st.ReplyRate()),
		sl.colorLabel("Ratio:"), st.Ratio())

	if sl.total > 0 {
		pct := float64(st.Sent) / float64(sl.total) * 100
		line += fmt.Sprintf(" | %s %.1f%%", sl.renderProgressBar(pct, 15), pct)
	}
	return line + " | " + formatDuration(st.Elapsed)
}

func (sl *StatusLine) renderProgressBar(percentage float64, width int) string {
	filled := int(float64(width) * percentage / 100)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return sl.colorProgress(bar)
}

func formatNumber(n uint64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	} else if n < 1000000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	} else {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
}
