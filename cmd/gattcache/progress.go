package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/gattcache/internal/groutine"
	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter redraws a single status line with the current phase and
// elapsed (or remaining) seconds until Stop is called.
//
// A ProgressPrinter is single-use: Start at most once, Stop any number of times.
type ProgressPrinter struct {
	out       io.Writer
	prefix    string
	phase     atomic.Value // string
	startTime time.Time
	duration  time.Duration // countdown length, zero counts up
	stopChan  chan struct{}
	done      chan struct{}
	started   atomic.Bool
	stopped   atomic.Bool
}

// NewProgressPrinter creates a progress printer that shows elapsed time.
func NewProgressPrinter(out io.Writer, prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{out: out, prefix: prefix}
	p.phase.Store(phase)
	return p
}

// NewCountdownProgressPrinter creates a progress printer that counts down from duration.
func NewCountdownProgressPrinter(out io.Writer, prefix, phase string, duration time.Duration) *ProgressPrinter {
	p := NewProgressPrinter(out, prefix, phase)
	p.duration = duration
	return p
}

// newCommandProgress returns a printer on the command's stderr, or nil when
// stderr is not a terminal. A nil printer ignores every call.
func newCommandProgress(cmd *cobra.Command, prefix, phase string, countdown time.Duration) *ProgressPrinter {
	f, ok := cmd.ErrOrStderr().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	return NewCountdownProgressPrinter(f, prefix, phase, countdown)
}

// Start begins redrawing in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if p == nil {
		return
	}
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})
	p.startTime = time.Now()
	p.render()

	groutine.Go(context.Background(), "progress-printer", func(context.Context) {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.render()
			}
		}
	})
}

// SetPhase changes the phase shown on the next redraw. Safe for concurrent use.
func (p *ProgressPrinter) SetPhase(phase string) {
	if p == nil {
		return
	}
	p.phase.Store(phase)
}

// Stop ends the redraw loop and clears the line. Safe to call more than once.
func (p *ProgressPrinter) Stop() {
	if p == nil || !p.started.Load() || !p.stopped.CompareAndSwap(false, true) {
		return
	}
	close(p.stopChan)
	<-p.done
	fmt.Fprint(p.out, clearLineSequence)
}

func (p *ProgressPrinter) render() {
	phase := p.phase.Load().(string)
	if seconds := p.seconds(time.Since(p.startTime)); seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
		return
	}
	fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
}

// seconds is the elapsed time, or the remaining time rounded to the nearest
// second in countdown mode. A finished countdown shows zero.
func (p *ProgressPrinter) seconds(elapsed time.Duration) int {
	if p.duration == 0 {
		return int(elapsed.Seconds())
	}
	remaining := p.duration - elapsed
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds() + 0.5)
}
