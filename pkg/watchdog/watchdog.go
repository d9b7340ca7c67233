package watchdog

import (
	"sync"
	"time"
)

// Watchdog invokes a handler when it has not been touched for too long
type Watchdog struct {
	maxSilence time.Duration
	onExpire   func()

	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
	running  bool
	expired  bool
	gen      uint64 // invalidates timers armed before the last touch
}

// New creates a stopped watchdog. onExpire is called from its own goroutine
// at most once per Start.
func New(maxSilence time.Duration, onExpire func()) *Watchdog {
	return &Watchdog{
		maxSilence: maxSilence,
		onExpire:   onExpire,
	}
}

// Start begins monitoring. Starting a running watchdog restarts its window.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.running = true
	w.expired = false
	w.armLocked()
}

// Touch resets the window. It has no effect unless the watchdog is running.
func (w *Watchdog) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.armLocked()
}

// Stop disarms the watchdog and suppresses any pending expiry. Safe to call
// more than once.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.running = false
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Expired reports whether the watchdog fired since it was last started
func (w *Watchdog) Expired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expired
}

// Running reports whether expiry is being monitored
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Deadline returns the time the watchdog will fire unless touched
func (w *Watchdog) Deadline() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deadline, w.running
}

func (w *Watchdog) armLocked() {
	w.gen++
	gen := w.gen
	if w.timer != nil {
		w.timer.Stop()
	}
	w.deadline = time.Now().Add(w.maxSilence)
	w.timer = time.AfterFunc(w.maxSilence, func() { w.fire(gen) })
}

func (w *Watchdog) fire(gen uint64) {
	w.mu.Lock()
	if !w.running || w.expired || gen != w.gen {
		w.mu.Unlock()
		return
	}
	w.expired = true
	w.running = false
	w.timer = nil
	w.mu.Unlock()

	if w.onExpire != nil {
		w.onExpire()
	}
}
