package sandbox

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
)

// loop is a session-scoped job queue. Background work (timers, bridge
// requests) never touches the VM directly; it enqueues a job that the
// session runs on the goroutine that owns the VM.
type loop struct {
	jobs chan func()

	// pending counts async work whose completion job has not run yet
	pending atomic.Int64

	mu     sync.Mutex
	timers map[int64]*timer
	nextID int64

	// invoke runs a fired timer callback on the loop goroutine
	invoke func(fn goja.Callable, args []goja.Value)

	closed    chan struct{}
	closeOnce sync.Once
}

type timer struct {
	t        *time.Timer
	fn       goja.Callable
	args     []goja.Value
	interval time.Duration
	repeat   bool
}

func newLoop(invoke func(goja.Callable, []goja.Value)) *loop {
	return &loop{
		invoke: invoke,
		jobs:   make(chan func(), 64),
		timers: make(map[int64]*timer),
		closed: make(chan struct{}),
	}
}

// enqueue hands fn to the owning goroutine; it reports false once closed
func (l *loop) enqueue(fn func()) bool {
	select {
	case l.jobs <- fn:
		return true
	case <-l.closed:
		return false
	}
}

// begin registers one unit of async work; the returned func must be called
// from the loop goroutine when that work completes.
func (l *loop) begin() (done func()) {
	l.pending.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { l.pending.Add(-1) })
	}
}

// idle reports whether nothing can enqueue further jobs
func (l *loop) idle() bool {
	return l.pending.Load() == 0 && len(l.jobs) == 0
}

func (l *loop) schedule(fn goja.Callable, delay time.Duration, repeat bool, args []goja.Value) int64 {
	if delay < 0 {
		delay = 0
	}
	if repeat && delay < time.Millisecond {
		delay = time.Millisecond
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	entry := &timer{fn: fn, args: args, interval: delay, repeat: repeat}
	l.timers[id] = entry
	l.pending.Add(1)

	entry.t = time.AfterFunc(delay, func() {
		l.enqueue(func() {
			if fn, args, ok := l.fire(id); ok {
				l.invoke(fn, args)
			}
		})
	})
	return id
}

// fire claims a due timer, rearming intervals
func (l *loop) fire(id int64) (goja.Callable, []goja.Value, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.timers[id]
	if !ok {
		return nil, nil, false
	}
	if entry.repeat {
		entry.t.Reset(entry.interval)
	} else {
		delete(l.timers, id)
		l.pending.Add(-1)
	}
	return entry.fn, entry.args, true
}

func (l *loop) clear(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.timers[id]; ok {
		entry.t.Stop()
		delete(l.timers, id)
		l.pending.Add(-1)
	}
}

func (l *loop) close() {
	l.closeOnce.Do(func() {
		close(l.closed)

		l.mu.Lock()
		for id, entry := range l.timers {
			entry.t.Stop()
			delete(l.timers, id)
		}
		l.mu.Unlock()
	})
}

// activeTimers is used by tests to assert nothing leaks past Close
func (l *loop) activeTimers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}
