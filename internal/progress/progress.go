// Package progress renders a terminal progress bar for the pipeline's
// long-running passes (document signing, LSH scanning, deduped yield),
// the same role tqdm plays in the reference implementation.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Bar wraps a progressbar.ProgressBar with the pipeline's consistent
// styling, rendered to stderr so it never interleaves with piped
// stdout output.
type Bar struct {
	bar *progressbar.ProgressBar
}

// New creates a Bar tracking total units of work, described by label.
func New(total int64, label string) *Bar {
	return &Bar{bar: newProgressBar(os.Stderr, total, label)}
}

func newProgressBar(writer io.Writer, total int64, label string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(writer),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(writer)
		}),
	)
}

// Add advances the bar by n units.
func (b *Bar) Add(n int) {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Add(n)
}

// Close finalizes the bar, printing the trailing newline.
func (b *Bar) Close() {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Close()
}
