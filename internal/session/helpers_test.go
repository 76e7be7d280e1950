package session

import (
	"testing"
	"time"

	"github.com/example/flashbot/internal/spaced_repetition"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type memoryStore struct {
	data map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) Load(key string) ([]byte, error) {
	return m.data[key], nil
}

func (m *memoryStore) Save(key string, data []byte) error {
	m.data[key] = append([]byte(nil), data...)
	return nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newScheduler(t *testing.T) (*spaced_repetition.Scheduler, *clock) {
	t.Helper()
	clk := &clock{now: t0}
	return spaced_repetition.NewScheduler(newMemoryStore(), spaced_repetition.WithClock(clk.Now)), clk
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

func (t *fakeTimer) Fire() { t.f() }

type fakeTimers struct {
	timers []*fakeTimer
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) Timer {
	t := &fakeTimer{d: d, f: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) Last() *fakeTimer {
	return f.timers[len(f.timers)-1]
}
