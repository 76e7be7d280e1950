package session

import (
	"sync"
	"time"
)

// Timer is the handle returned by an AfterFunc
type Timer interface {
	Stop() bool
}

// AfterFunc runs f once after d. time.AfterFunc is the default.
type AfterFunc func(d time.Duration, f func()) Timer

func systemAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type taskState int

const (
	taskPending taskState = iota
	taskFired
	taskCancelled
)

// Task is a scheduled function that runs at most once and can be cancelled before it fires
type Task struct {
	mu    sync.Mutex
	state taskState
	timer Timer
	fn    func()
}

// Schedule runs fn after d using after
func Schedule(after AfterFunc, d time.Duration, fn func()) *Task {
	t := &Task{fn: fn}
	timer := after(d, t.run)

	t.mu.Lock()
	t.timer = timer
	t.mu.Unlock()
	return t
}

func (t *Task) run() {
	t.mu.Lock()
	if t.state != taskPending {
		t.mu.Unlock()
		return
	}
	t.state = taskFired
	t.mu.Unlock()

	t.fn()
}

// Cancel prevents the task from running. It returns false if the task already ran or was cancelled.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != taskPending {
		return false
	}
	t.state = taskCancelled
	if t.timer != nil {
		t.timer.Stop()
	}
	return true
}

// Pending reports whether the task has neither run nor been cancelled
func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == taskPending
}
