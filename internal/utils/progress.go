package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// Progress is a single mpb bar that concurrent workers advance. It is a
// no-op when disabled or when stderr is not a terminal.
type Progress struct {
	container *mpb.Progress
	bar       *mpb.Bar

	mu          sync.Mutex
	description string
}

var descLength = 24

// NewProgress creates a progress bar over total items
func NewProgress(total int, enabled bool) *Progress {
	p := &Progress{}
	if !enabled || !isTerminal() {
		return p
	}
	p.start(os.Stderr, total)
	return p
}

func (p *Progress) start(out io.Writer, total int) {
	fmt.Fprintln(out)

	p.container = mpb.New(
		mpb.WithOutput(out),
		mpb.WithWidth(64),
		mpb.WithRefreshRate(100*time.Millisecond),
	)

	p.bar = p.container.New(int64(total),
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				return truncate(p.current(), descLength)
			}, decor.WC{W: descLength, C: decor.DindentRight}),
			decor.Name("  "),
			decor.CountersNoUnit("%d/%d", decor.WC{C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Name("  "),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)
}

func (p *Progress) current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.description
}

// Increment records one finished item and shows its description
func (p *Progress) Increment(description string) {
	if p.bar == nil {
		return
	}
	p.mu.Lock()
	p.description = description
	p.mu.Unlock()
	p.bar.Increment()
}

// Finish completes the bar and waits for the final render
func (p *Progress) Finish() {
	if p.container == nil {
		return
	}
	p.bar.SetTotal(-1, true)
	p.container.Wait()
	fmt.Fprintln(os.Stderr)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-2] + ".."
	}
	return s
}

// isTerminal checks if stderr is a terminal (TTY)
func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
