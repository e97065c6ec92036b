package physics

import (
	"sync"
	"time"
)

// DefaultInterval is roughly one animation frame.
const DefaultInterval = 16 * time.Millisecond

// TickFunc performs one unit of work and reports whether the loop should
// keep ticking.
type TickFunc func() bool

// Loop is a repeating timer that calls a TickFunc until it reports that
// there is nothing left to do or the loop is stopped. At most one tick runs
// at a time.
type Loop struct {
	interval time.Duration

	mu      sync.Mutex
	running bool
	kick    bool
	stop    chan struct{}
	done    chan struct{}
}

// NewLoop creates a stopped loop.
func NewLoop(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{interval: interval}
}

// Start begins ticking. If the loop is already running the call only
// guarantees at least one more tick, so a restart racing with a loop that
// just went idle is never lost.
func (l *Loop) Start(tick TickFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		l.kick = true
		return
	}
	l.running = true
	l.kick = false
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(tick, l.stop, l.done)
}

// Stop halts the loop and waits for an in-flight tick to finish. Stopping
// an idle or never-started loop is a no-op. Stop must not be called from
// inside a TickFunc.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.running {
		l.running = false
		l.kick = false
		close(l.stop)
	}
	done := l.done
	l.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Running reports whether the loop goroutine is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) run(tick TickFunc, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if tick() {
			continue
		}

		l.mu.Lock()
		select {
		case <-stop:
			l.mu.Unlock()
			return
		default:
		}
		if l.kick {
			l.kick = false
			l.mu.Unlock()
			continue
		}
		l.running = false
		l.mu.Unlock()
		return
	}
}
