// Package progress shows download progress for catalog packages.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/klauern/skillmaster/internal/logging"
	"github.com/klauern/skillmaster/internal/ui"
)

// Bar is a byte-counting progress bar. It implements io.Writer so it can
// sit behind an io.TeeReader. When the output is not a terminal it only
// counts bytes and logs at debug level.
type Bar struct {
	bar     *progressbar.ProgressBar
	enabled bool
	desc    string
	written int64
}

// Options configures the progress bar behavior.
type Options struct {
	// Max is the expected number of bytes; -1 when unknown.
	Max int64
	// Description is the prefix text shown before the progress bar.
	Description string
	// Writer is the output destination. Defaults to os.Stderr.
	Writer io.Writer
	// Force shows the bar even when Writer is not a terminal.
	Force bool
}

// New creates a progress bar for a download of opts.Max bytes.
// The bar is hidden when colors are disabled, when Writer is not a
// terminal, or when debug logging is on.
func New(opts Options) *Bar {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}

	b := &Bar{
		enabled: opts.Force || shouldShowProgress(opts.Writer),
		desc:    opts.Description,
	}
	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s started", opts.Description), "bytes", opts.Max)
		return b
	}

	b.bar = progressbar.NewOptions64(
		opts.Max,
		progressbar.OptionSetDescription(opts.Description),
		progressbar.OptionSetWriter(opts.Writer),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(20),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprint(opts.Writer, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(ui.IsColorEnabled()),
	)
	return b
}

// Write counts len(p) bytes of progress.
func (b *Bar) Write(p []byte) (int, error) {
	b.written += int64(len(p))
	if !b.enabled {
		return len(p), nil
	}
	return b.bar.Write(p)
}

// Written returns the number of bytes counted so far.
func (b *Bar) Written() int64 {
	return b.written
}

// Enabled reports whether the bar renders output.
func (b *Bar) Enabled() bool {
	return b.enabled
}

// Describe updates the progress bar description.
func (b *Bar) Describe(desc string) {
	b.desc = desc
	if !b.enabled {
		return
	}
	b.bar.Describe(desc)
}

// Finish completes the progress bar and logs completion.
func (b *Bar) Finish() error {
	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s completed", b.desc), "bytes", b.written)
		return nil
	}
	return b.bar.Finish()
}

// Clear removes the progress bar from the terminal.
func (b *Bar) Clear() error {
	if !b.enabled {
		return nil
	}
	return b.bar.Clear()
}

// shouldShowProgress determines if progress bars should be displayed.
func shouldShowProgress(w io.Writer) bool {
	if !ui.IsColorEnabled() {
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice == 0 {
		return false
	}

	// Debug output and a redrawn bar would interleave.
	return !logging.Default().Enabled(context.Background(), logging.LevelDebug)
}
