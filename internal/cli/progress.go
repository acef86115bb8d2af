package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"
)

// Progress renders advisory sub-batch progress. The bar is created lazily
// because the total is only known once the first sub-batch finishes.
type Progress struct {
	writer      io.Writer
	bar         *progressbar.ProgressBar
	description string
}

// NewProgress creates a progress reporter writing to w.
func NewProgress(w io.Writer, description string) *Progress {
	return &Progress{writer: w, description: description}
}

// Update is shaped to be passed to llm.Suggester.WithProgress.
func (p *Progress) Update(done, total int) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.writer),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("[cyan][bold]"+p.description+"[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[yellow]=[reset]",
				SaucerHead:    "[yellow]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				_, _ = fmt.Fprintln(p.writer)
			}),
		)
	}
	if err := p.bar.Set(done); err != nil {
		slog.Warn("failed to update progress bar", "error", err)
	}
}
