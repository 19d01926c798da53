package tracker

import (
	"sync/atomic"
	"time"
)

type State int32

const (
	Created State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Task periodically checks one product page. A stopped task cannot be
// restarted; enrolling the URL again creates a new task.
type Task struct {
	ID        string
	URL       string
	Interval  Interval
	StartedAt time.Time

	stop  atomic.Bool
	state atomic.Int32
	done  chan struct{}
}

func newTask(id, url string, every Interval, now time.Time) *Task {
	return &Task{
		ID:        id,
		URL:       url,
		Interval:  every,
		StartedAt: now,
		done:      make(chan struct{}),
	}
}

// Stop asks the task to exit. It does not wait: the task notices the
// request before its next check, after any sleep already in progress.
func (t *Task) Stop() { t.stop.Store(true) }

// StopRequested reports whether Stop has been called.
func (t *Task) StopRequested() bool { return t.stop.Load() }

// Done is closed once the task's goroutine has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) State() State { return State(t.state.Load()) }

func (t *Task) setState(s State) { t.state.Store(int32(s)) }
