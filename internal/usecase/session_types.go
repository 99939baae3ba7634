package usecase

import (
	"resumechat/internal/ports"
)

// activeSession is the recognition feeding the current dictation session.
type activeSession struct {
	generation  uint64
	recognition ports.Recognition
	eventsDone  chan struct{}
}

// pauseTimers are the silence timers armed after every fragment. At most one
// of each is pending.
type pauseTimers struct {
	short  ports.Timer
	medium ports.Timer
	long   ports.Timer
}

func (t *pauseTimers) stop() {
	for _, timer := range []ports.Timer{t.short, t.medium, t.long} {
		if timer != nil {
			timer.Stop()
		}
	}
	*t = pauseTimers{}
}

// SessionSnapshot exposes the dictation text state.
type SessionSnapshot struct {
	Initial     string
	Accumulated string
	Live        string
}
