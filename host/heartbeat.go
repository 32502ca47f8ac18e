package host

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Heartbeat calls a send function on every tick until stopped.
type Heartbeat struct {
	clock    clock.Clock
	interval time.Duration
	beat     func()

	mu   sync.Mutex
	stop chan struct{}
}

// NewHeartbeat returns a stopped heartbeat that calls beat every interval.
func NewHeartbeat(c clock.Clock, interval time.Duration, beat func()) *Heartbeat {
	return &Heartbeat{clock: c, interval: interval, beat: beat}
}

// Start begins ticking. Starting a running heartbeat does nothing.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stop != nil {
		return
	}
	h.stop = make(chan struct{})

	ticker := h.clock.Ticker(h.interval)
	go h.run(ticker, h.stop)
}

func (h *Heartbeat) run(ticker *clock.Ticker, stop chan struct{}) {
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			h.beat()
		}
	}
}

// Stop halts ticking. It does not wait for a beat in progress, so it may be
// called from inside beat.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stop == nil {
		return
	}
	close(h.stop)
	h.stop = nil
}

// Running reports whether the heartbeat is ticking.
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stop != nil
}
