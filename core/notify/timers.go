package notify

import (
	"sync"
	"time"
)

// Timers keeps one local deadline timer per key. They only shorten the
// reaction time to a missed deadline: a lost timer is caught by the
// reconciler sweep.
type Timers struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	now    func() time.Time
}

// NewTimers creates an empty timer set.
func NewTimers() *Timers {
	return &Timers{timers: make(map[string]*time.Timer), now: time.Now}
}

// Arm schedules fire at deadline, replacing any timer for key.
func (t *Timers) Arm(key string, deadline time.Time, fire func()) {
	d := deadline.Sub(t.now())
	if d < 0 {
		d = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[key]; ok {
		old.Stop()
	}
	var tm *time.Timer
	tm = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.timers[key] == tm {
			delete(t.timers, key)
		}
		t.mu.Unlock()
		fire()
	})
	t.timers[key] = tm
}

// Disarm cancels the timer for key if any.
func (t *Timers) Disarm(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.timers[key]; ok {
		tm.Stop()
		delete(t.timers, key)
	}
}

// Len returns the number of armed timers.
func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Stop cancels every timer.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, tm := range t.timers {
		tm.Stop()
		delete(t.timers, k)
	}
}
