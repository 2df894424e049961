package bridge

import (
	"sync"
	"testing"
	"time"
)

type visibilityLog struct {
	mu     sync.Mutex
	events []bool
}

func (l *visibilityLog) record(v bool) {
	l.mu.Lock()
	l.events = append(l.events, v)
	l.mu.Unlock()
}

func (l *visibilityLog) snapshot() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.events...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLivenessWatcherVisibleThenTimeout(t *testing.T) {
	log := &visibilityLog{}
	w := NewLivenessWatcher(30*time.Millisecond, log.record)
	defer w.Stop()

	w.Seen()
	w.Seen()
	if got := log.snapshot(); len(got) != 1 || !got[0] {
		t.Fatalf("events = %v, want [true]", got)
	}

	waitFor(t, func() bool { return len(log.snapshot()) == 2 })
	if got := log.snapshot(); got[1] {
		t.Errorf("events = %v, want [true false]", got)
	}
	if w.Visible() {
		t.Error("watcher still visible after timeout")
	}

	w.Seen()
	if got := log.snapshot(); len(got) != 3 || !got[2] {
		t.Errorf("events = %v, want visible again", got)
	}
}

func TestLivenessWatcherSeenResetsTimer(t *testing.T) {
	log := &visibilityLog{}
	w := NewLivenessWatcher(80*time.Millisecond, log.record)
	defer w.Stop()

	for i := 0; i < 5; i++ {
		w.Seen()
		time.Sleep(20 * time.Millisecond)
	}
	if got := log.snapshot(); len(got) != 1 {
		t.Errorf("events = %v, want only the first visible edge", got)
	}
}

func TestLivenessWatcherStop(t *testing.T) {
	log := &visibilityLog{}
	w := NewLivenessWatcher(10*time.Millisecond, log.record)
	w.Seen()
	w.Stop()
	time.Sleep(40 * time.Millisecond)
	w.Seen()

	if got := log.snapshot(); len(got) != 1 {
		t.Errorf("events = %v, want no callbacks after Stop", got)
	}
}
