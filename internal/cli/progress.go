package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// progressReporter receives per-file sync progress.
type progressReporter interface {
	Update(done, total int, path string)
	Finish()
}

// newReporter returns a terminal progress bar, or line output when running
// under CI.
func newReporter(w io.Writer) progressReporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &lineReporter{w: w}
	}
	return &barReporter{w: w}
}

type barReporter struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func (r *barReporter) Update(done, total int, path string) {
	if r.bar == nil {
		r.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(r.w),
			progressbar.OptionSetDescription("Indexing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	r.bar.Describe(path)
	_ = r.bar.Set(done)
}

func (r *barReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

type lineReporter struct {
	w io.Writer
}

func (r *lineReporter) Update(done, total int, path string) {
	fmt.Fprintf(r.w, "[%d/%d] %s\n", done, total, path)
}

func (r *lineReporter) Finish() {}
