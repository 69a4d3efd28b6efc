package progress

import (
	"fmt"
	"io"
	"log"

	"github.com/schollz/progressbar/v3"
)

// BarReporter draws a terminal progress bar
type BarReporter struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewBarReporter creates a bar that renders to w
func NewBarReporter(w io.Writer) *BarReporter {
	return &BarReporter{w: w}
}

// Start creates the bar for total jobs
func (b *BarReporter) Start(total int) {
	b.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetDescription("Transcribing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(b.w)
		}),
	)
}

// Update moves the bar to the completed count
func (b *BarReporter) Update(s Snapshot) {
	if b.bar == nil {
		return
	}
	b.bar.Set(s.Completed)
}

// LogReporter writes one log line per finished job. Used when output is not
// a terminal.
type LogReporter struct {
	logger *log.Logger
}

// NewLogReporter logs through logger, or the standard logger when nil
func NewLogReporter(logger *log.Logger) *LogReporter {
	if logger == nil {
		logger = log.Default()
	}
	return &LogReporter{logger: logger}
}

func (l *LogReporter) Start(total int) {
	l.logger.Printf("Processing %d videos", total)
}

func (l *LogReporter) Update(s Snapshot) {
	status := "ok"
	if s.LastKind != "" {
		status = s.LastKind
	}
	l.logger.Printf("Progress: %d/%d (%.1f%%) %s [%s]", s.Completed, s.Total, s.Percent(), s.Last, status)
}
