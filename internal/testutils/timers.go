package testutils

import (
	"sync"
	"time"

	"github.com/srg/gattcache/internal/device"
)

// ManualTimers is a device.AfterFunc whose timers only fire when the test says so.
type ManualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	owner    *ManualTimers
	duration time.Duration
	fn       func()
	done     bool
}

func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// AfterFunc records f; pass it to device.WithAfterFunc.
func (m *ManualTimers) AfterFunc(d time.Duration, f func()) device.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{owner: m, duration: d, fn: f}
	m.timers = append(m.timers, t)
	return t
}

// FireAll runs every timer that is neither stopped nor fired and returns how many ran.
func (m *ManualTimers) FireAll() int {
	m.mu.Lock()
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.done {
			t.done = true
			due = append(due, t)
		}
	}
	m.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	return len(due)
}

// Active counts timers that are still armed.
func (m *ManualTimers) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// Durations lists the requested delay of every timer created so far.
func (m *ManualTimers) Durations() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, 0, len(m.timers))
	for _, t := range m.timers {
		out = append(out, t.duration)
	}
	return out
}
