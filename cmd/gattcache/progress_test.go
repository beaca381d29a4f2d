package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer guards a bytes.Buffer shared with the printer goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressPrinter(t *testing.T) {
	t.Run("phases and stop", func(t *testing.T) {
		// GOAL: Verify the printer redraws the current phase and clears the line on Stop
		//
		// TEST SCENARIO: Start → phase changes → redraw shows it → Stop clears → second Stop is a no-op

		out := &syncBuffer{}
		p := NewProgressPrinter(out, "Exploring", "scanning")
		p.Start()
		assert.Contains(t, out.String(), "Exploring (scanning...)", "first frame MUST be drawn immediately")

		p.SetPhase("connecting")
		assert.Eventually(t, func() bool {
			return strings.Contains(out.String(), "connecting")
		}, time.Second, 10*time.Millisecond, "redraw MUST show the new phase")

		p.Stop()
		assert.True(t, strings.HasSuffix(out.String(), clearLineSequence), "Stop MUST clear the line")

		written := out.String()
		p.Stop()
		assert.Equal(t, written, out.String(), "second Stop MUST NOT write")
	})

	t.Run("start twice panics", func(t *testing.T) {
		p := NewProgressPrinter(&syncBuffer{}, "x", "y")
		p.Start()
		defer p.Stop()
		assert.Panics(t, p.Start)
	})

	t.Run("nil printer", func(t *testing.T) {
		var p *ProgressPrinter
		assert.NotPanics(t, func() {
			p.Start()
			p.SetPhase("x")
			p.Stop()
		})
	})
}

func TestProgressSeconds(t *testing.T) {
	up := NewProgressPrinter(&syncBuffer{}, "x", "y")
	assert.Equal(t, 3, up.seconds(3700*time.Millisecond), "count up MUST truncate")

	down := NewCountdownProgressPrinter(&syncBuffer{}, "x", "y", 10*time.Second)
	assert.Equal(t, 6, down.seconds(3700*time.Millisecond), "countdown MUST round")
	assert.Equal(t, 0, down.seconds(11*time.Second), "finished countdown MUST show zero")
}
