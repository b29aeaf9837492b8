package present

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// Terminal renders frames to a terminal. Progress frames drive a single
// progress bar; every other frame closes it and prints a block.
type Terminal struct {
	out io.Writer

	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{
		out:   out,
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func (t *Terminal) Render(f Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if f.Kind == KindProgress {
		if t.bar == nil {
			t.bar = progressbar.NewOptions(100,
				progressbar.OptionSetWriter(t.out),
				progressbar.OptionSetDescription(f.Text),
				progressbar.OptionSetWidth(30),
				progressbar.OptionSetPredictTime(false),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = t.bar.Set(f.Progress)
		return
	}
	t.closeBar()

	switch f.Kind {
	case KindPlaceholder:
		if f.Title != "" {
			fmt.Fprintln(t.out, t.title(f.Title))
		}
		if f.Preview != "" {
			fmt.Fprintf(t.out, "%s Preview: %s\n", t.info("[INFO]"), f.Preview)
		} else {
			fmt.Fprintln(t.out, t.dim(f.Text))
		}
	case KindResult:
		fmt.Fprintf(t.out, "%s Result: %s\n", t.ok("[OK]"), f.Result)
	case KindError:
		fmt.Fprintf(t.out, "%s %s\n", t.err("[ERROR]"), f.Message)
		if f.Details != "" {
			fmt.Fprintln(t.out, t.dim(f.Details))
		}
	}
}

// Close finishes a progress bar left open.
func (t *Terminal) Close() {
	t.mu.Lock()
	t.closeBar()
	t.mu.Unlock()
}

func (t *Terminal) closeBar() {
	if t.bar == nil {
		return
	}
	_ = t.bar.Finish()
	t.bar = nil
}
