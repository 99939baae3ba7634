package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"resumechat/internal/ports"
)

// Scheduler runs dictation timers on a clockwork clock.
type Scheduler struct {
	clock clockwork.Clock
}

func New(clock clockwork.Clock) Scheduler {
	return Scheduler{clock: clock}
}

// Real schedules callbacks on wall-clock time.
func Real() Scheduler {
	return New(clockwork.NewRealClock())
}

func (s Scheduler) AfterFunc(d time.Duration, fn func()) ports.Timer {
	return s.clock.AfterFunc(d, fn)
}

// Fake is a logical clock for tests. clockwork runs each due callback on its
// own goroutine; Advance returns once all of them have returned.
type Fake struct {
	clock *clockwork.FakeClock

	mu      sync.Mutex
	pending map[*fakeTimer]struct{}
}

type fakeTimer struct {
	owner    *Fake
	timer    clockwork.Timer
	deadline time.Time
	done     chan struct{}
}

func NewFake() *Fake {
	return &Fake{clock: clockwork.NewFakeClock(), pending: make(map[*fakeTimer]struct{})}
}

func (f *Fake) Now() time.Time {
	return f.clock.Now()
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) ports.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	timer := &fakeTimer{owner: f, deadline: f.clock.Now().Add(d), done: make(chan struct{})}
	timer.timer = f.clock.AfterFunc(d, func() {
		defer close(timer.done)
		fn()
	})
	f.pending[timer] = struct{}{}
	return timer
}

// Advance moves logical time forward and waits for the callbacks that fell
// due. Timers scheduled by those callbacks start from the new time.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.clock.Now().Add(d)
	var due []*fakeTimer
	for timer := range f.pending {
		if !timer.deadline.After(target) {
			due = append(due, timer)
			delete(f.pending, timer)
		}
	}
	f.mu.Unlock()

	f.clock.Advance(d)
	for _, timer := range due {
		<-timer.done
	}
}

// Pending reports how many timers are scheduled and not yet fired or stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (t *fakeTimer) Stop() bool {
	if !t.timer.Stop() {
		return false
	}
	t.owner.mu.Lock()
	delete(t.owner.pending, t)
	t.owner.mu.Unlock()
	close(t.done)
	return true
}
