package multiview

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// heartbeat periodically proves the device is still listening by sending a
// cheap query through the ordinary command path. Probes queue behind real
// traffic, so a healthy busy link never fails a probe for being busy.
//
// A run of consecutive probe timeouts means the device has gone quiet while
// the serial port still looks open (cable pulled mid-run, device wedged).
// Once the run reaches the configured threshold the link is reported failed
// and the reconnection loop takes over.
type heartbeat struct {
	interval  time.Duration
	timeout   time.Duration
	threshold int

	execute   func(timeout time.Duration) error
	connected func() bool
	report    func(err error)

	// failures counts consecutive probe failures since the last success.
	failures atomic.Int32

	done     *closeOnce
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newHeartbeat(interval, timeout time.Duration, threshold int, execute func(time.Duration) error, connected func() bool, report func(error)) *heartbeat {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	return &heartbeat{
		interval:  interval,
		timeout:   timeout,
		threshold: threshold,
		execute:   execute,
		connected: connected,
		report:    report,
		done:      newCloseOnce(),
	}
}

func (h *heartbeat) start() {
	h.wg.Add(1)
	go h.run()
}

func (h *heartbeat) stop() {
	h.stopOnce.Do(func() {
		h.done.Close()
		h.wg.Wait()
	})
}

// resetFailures clears the consecutive-failure streak. Called on every
// reconnect so a fresh link starts with a clean slate.
func (h *heartbeat) resetFailures() {
	h.failures.Store(0)
}

func (h *heartbeat) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done.Done():
			return
		case <-ticker.C:
			h.probe()
		}
	}
}

func (h *heartbeat) probe() {
	if !h.connected() {
		return
	}

	err := h.execute(h.timeout)
	if err == nil {
		h.failures.Store(0)
		return
	}

	// A probe rejected because the link is already down, or because the
	// channel is closing, says nothing new about device health.
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrLinkFailure) || errors.Is(err, ErrClosed) {
		return
	}

	n := h.failures.Add(1)
	if int(n) >= h.threshold {
		h.failures.Store(0)
		h.report(fmt.Errorf("%w: %d consecutive heartbeat probes unanswered", ErrLinkFailure, n))
	}
}
