package bridge

import (
	"sync"
	"time"
)

// LivenessWatcher turns a stream of "seen" signals into visibility changes.
// The first Seen reports visible; silence for longer than the timeout
// reports not visible. Callbacks only fire on changes.
type LivenessWatcher struct {
	timeout  time.Duration
	onChange func(visible bool)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	visible bool
	stopped bool
}

// NewLivenessWatcher creates an unarmed watcher.
func NewLivenessWatcher(timeout time.Duration, onChange func(visible bool)) *LivenessWatcher {
	return &LivenessWatcher{timeout: timeout, onChange: onChange}
}

// Seen records a liveness signal and re-arms the timeout.
func (w *LivenessWatcher) Seen() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = time.AfterFunc(w.timeout, func() { w.expire(gen) })
	was := w.visible
	w.visible = true
	w.mu.Unlock()

	if !was {
		w.onChange(true)
	}
}

func (w *LivenessWatcher) expire(gen uint64) {
	w.mu.Lock()
	// A Seen after this timer fired owns the newer generation.
	if w.stopped || gen != w.gen || !w.visible {
		w.mu.Unlock()
		return
	}
	w.visible = false
	w.mu.Unlock()

	w.onChange(false)
}

// Visible reports the current visibility.
func (w *LivenessWatcher) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

// Stop disarms the watcher. No callbacks fire afterwards.
func (w *LivenessWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}
