package engine

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ProgressBar renders a single-line transfer bar for the CLI.
type ProgressBar struct {
	w       io.Writer
	title   string
	started time.Time
}

func NewProgressBar(w io.Writer, title string) *ProgressBar {
	return &ProgressBar{w: w, title: title, started: time.Now()}
}

// Render redraws the bar in place. ETA is estimated from the average rate so far.
func (p *ProgressBar) Render(percent int) {
	percent = min(max(percent, 0), 100)
	elapsed := time.Since(p.started)

	etaStr := "calc..."
	if percent > 0 && percent < 100 {
		remaining := time.Duration(float64(elapsed) * float64(100-percent) / float64(percent))
		etaStr = remaining.Truncate(time.Second).String()
	}

	// [=========>          ]
	const barWidth = 20
	completedWidth := percent * barWidth / 100
	bar := strings.Repeat("=", completedWidth)
	if completedWidth < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-completedWidth-1)
	}

	fmt.Fprintf(p.w, "\r[%s] %3d%% | ETA: %-7s | %s      ", bar, percent, etaStr, p.title)
}

// Finish prints the summary line once the file is on disk.
func (p *ProgressBar) Finish(size int64, path string) {
	elapsed := time.Since(p.started)
	seconds := max(elapsed.Seconds(), 0.1)
	rate := uint64(float64(size) / seconds)

	fmt.Fprintf(p.w, "\r[%s] 100%% | %s in %s (%s/s) | %s\n",
		strings.Repeat("=", 20), humanize.Bytes(uint64(size)), elapsed.Truncate(time.Millisecond), humanize.Bytes(rate), path)
}

// Fail terminates the bar line after a failed transfer.
func (p *ProgressBar) Fail() {
	fmt.Fprintf(p.w, "\nDownload failed: %s\n", p.title)
}
