package peer

import (
	"time"

	"github.com/huddlelab/huddle/pkg/config"
)

const (
	defaultGrace       = 5 * time.Second
	defaultMaxAttempts = 3
)

// reconnector is the reconnection controller. It owns the single
// cancellable grace timer and the attempt counter, nothing else keeps
// recovery state. All methods must be called under the engine lock;
// the armed timer callback re-enters the engine through its own
// locking entry point.
type reconnector struct {
	grace    time.Duration
	max      int
	attempts int
	timer    *time.Timer
}

func newReconnector(conf config.Reconnect) reconnector {
	r := reconnector{grace: conf.Grace, max: conf.MaxAttempts}
	if r.grace <= 0 {
		r.grace = defaultGrace
	}
	if r.max <= 0 {
		r.max = defaultMaxAttempts
	}
	return r
}

// arm schedules the grace timer, replacing a previously armed one.
func (r *reconnector) arm(fn func()) {
	r.cancel()
	r.timer = time.AfterFunc(r.grace, fn)
}

// cancel stops the grace timer if armed.
func (r *reconnector) cancel() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// reset cancels the timer and zeroes the attempt counter, called on
// every successful connect.
func (r *reconnector) reset() {
	r.cancel()
	r.attempts = 0
}

// next counts an attempt and reports whether it is still within the cap.
func (r *reconnector) next() bool {
	r.attempts++
	return r.attempts <= r.max
}
