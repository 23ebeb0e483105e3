package multiview

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// slotState tracks the lifecycle of one pending request slot.
type slotState int

const (
	// slotQueued means the command has been admitted but not yet written.
	slotQueued slotState = iota

	// slotSent means the command is on the wire awaiting response lines.
	slotSent

	// slotOrphaned means the deadline fired after the command was written.
	// The slot stays at the head so late response lines are consumed and
	// discarded instead of being attributed to the next request.
	slotOrphaned

	// slotDone means the request has left the queue.
	slotDone
)

// pendingRequest is one admitted command, tracked from register until its
// single terminal resolution.
type pendingRequest struct {
	id        uint64
	cmd       Command
	submitted time.Time

	// consumed counts response lines matched so far; lines holds them.
	consumed int
	lines    []string

	// result receives exactly one terminal Result. Buffered so resolution
	// never blocks on an abandoned caller.
	result chan Result

	// terminal closes when the slot stops blocking the writer (resolved or
	// orphaned), releasing the next queued command to the wire.
	terminal chan struct{}

	state slotState
	timer *time.Timer
}

// deliverOutcome describes what the table did with one inbound line.
type deliverOutcome int

const (
	// deliverNoPending means nothing was awaiting lines.
	deliverNoPending deliverOutcome = iota

	// deliverConsumed means the line advanced a multi-line response that is
	// not yet complete.
	deliverConsumed

	// deliverResolved means the line completed the head-of-line request.
	deliverResolved

	// deliverDiscarded means the line was absorbed by an orphaned slot.
	deliverDiscarded

	// deliverMismatch means the line matched no expected pattern and the
	// head-of-line request was failed with ErrProtocolMismatch.
	deliverMismatch
)

// delivery carries the outcome of routing one line, plus the affected
// command where a request resolved or failed.
type delivery struct {
	outcome deliverOutcome
	cmd     Command       // valid for deliverResolved and deliverMismatch
	lines   []string      // full response, valid for deliverResolved
	latency time.Duration // admission to resolution, valid for deliverResolved
	err     error         // valid for deliverMismatch
}

// pendingTable is the strict-FIFO correlation table. The device carries no
// request identifiers, so the oldest written request owns the next inbound
// line, always.
//
// Thread Safety: all methods are safe for concurrent use.
type pendingTable struct {
	mu       sync.Mutex
	queue    []*pendingRequest
	capacity int
	nextID   uint64
	now      func() time.Time
}

func newPendingTable(capacity int) *pendingTable {
	if capacity <= 0 {
		capacity = defaultQueueDepth
	}
	return &pendingTable{capacity: capacity, now: time.Now}
}

// register admits cmd and arms its deadline timer. Fails with ErrQueueFull
// at capacity. cmd.Timeout must be set.
func (t *pendingTable) register(cmd Command) (*pendingRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.queue) >= t.capacity {
		return nil, ErrQueueFull
	}

	t.nextID++
	req := &pendingRequest{
		id:        t.nextID,
		cmd:       cmd,
		submitted: t.now(),
		result:    make(chan Result, 1),
		terminal:  make(chan struct{}),
		state:     slotQueued,
	}
	req.timer = time.AfterFunc(cmd.Timeout, func() { t.expire(req.id) })
	t.queue = append(t.queue, req)
	return req, nil
}

// markSent transitions req onto the wire. Returns false when the slot is no
// longer sendable (its deadline fired while it waited in the queue); the
// writer must then skip it without writing.
func (t *pendingTable) markSent(req *pendingRequest) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if req.state != slotQueued {
		return false
	}
	req.state = slotSent
	return true
}

// nextSendable returns the next command to write: the oldest queued slot,
// but only when nothing is currently on the wire awaiting lines. Orphaned
// slots do not block the wire; their answer may never come.
func (t *pendingTable) nextSendable() *pendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, req := range t.queue {
		switch req.state {
		case slotSent:
			return nil
		case slotQueued:
			return req
		}
	}
	return nil
}

// deliver routes one inbound line.
//
// Orphans are matched first: a line that fits an orphan's outstanding
// pattern is its late response and is discarded. An orphan that cannot own
// the line is retired on the spot: strict device ordering means that once
// a newer line has arrived, the orphan's response is never coming.
func (t *pendingTable) deliver(line string) delivery {
	t.mu.Lock()
	defer t.mu.Unlock()

	for len(t.queue) > 0 {
		head := t.queue[0]

		switch head.state {
		case slotOrphaned:
			if Classify(head.cmd, head.consumed, line) != LineMismatch {
				head.consumed++
				if head.consumed >= len(head.cmd.Expect) {
					head.state = slotDone
					t.queue = t.queue[1:]
				}
				return delivery{outcome: deliverDiscarded}
			}
			head.state = slotDone
			t.queue = t.queue[1:]
			continue

		case slotSent:
			if Classify(head.cmd, head.consumed, line) == LineMismatch {
				err := fmt.Errorf("%w: %s expected prefix %q, got %q",
					ErrProtocolMismatch, head.cmd.Name, head.cmd.Expect[head.consumed], line)
				t.resolveLocked(head, Result{Command: head.cmd.Name, Err: err}, slotDone)
				t.queue = t.queue[1:]
				return delivery{outcome: deliverMismatch, cmd: head.cmd, err: err}
			}

			head.lines = append(head.lines, strings.TrimSpace(line))
			head.consumed++
			if head.consumed < len(head.cmd.Expect) {
				return delivery{outcome: deliverConsumed}
			}

			latency := t.now().Sub(head.submitted)
			res := Result{
				Command: head.cmd.Name,
				Lines:   append([]string(nil), head.lines...),
				Value:   primaryValue(head.cmd, head.lines),
				Latency: latency,
			}
			t.resolveLocked(head, res, slotDone)
			t.queue = t.queue[1:]
			return delivery{outcome: deliverResolved, cmd: head.cmd, lines: res.Lines, latency: latency}

		default:
			// Head is queued, not yet written; the line cannot be its answer.
			return delivery{outcome: deliverNoPending}
		}
	}
	return delivery{outcome: deliverNoPending}
}

// expire resolves one request with ErrTimeout when its deadline fires. A
// request still waiting to be written is removed outright; one already on
// the wire stays in place as an orphan so its late lines are absorbed.
// Requests behind it are unaffected.
func (t *pendingTable) expire(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	var req *pendingRequest
	for i, r := range t.queue {
		if r.id == id {
			idx, req = i, r
			break
		}
	}
	if req == nil {
		return
	}

	res := Result{
		Command: req.cmd.Name,
		Err:     fmt.Errorf("%w: %s unanswered after %s", ErrTimeout, req.cmd.Name, req.cmd.Timeout),
	}

	switch req.state {
	case slotQueued:
		// Never written; nothing will arrive for it.
		t.resolveLocked(req, res, slotDone)
		t.queue = append(t.queue[:idx], t.queue[idx+1:]...)
	case slotSent:
		t.resolveLocked(req, res, slotOrphaned)
	}
}

// failAll resolves every outstanding request with err and empties the queue.
// Orphans already delivered their result at expiry and are simply dropped.
// Returns how many requests were failed.
func (t *pendingTable) failAll(err error) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	failed := 0
	for _, req := range t.queue {
		if req.state == slotOrphaned {
			req.state = slotDone
			continue
		}
		t.resolveLocked(req, Result{Command: req.cmd.Name, Err: err}, slotDone)
		failed++
	}
	t.queue = nil
	return failed
}

// depth returns how many slots are live, orphans included.
func (t *pendingTable) depth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// resolveLocked delivers req's single terminal result, stops its timer, and
// releases the writer. The slot's queue position is the caller's concern.
// Caller holds t.mu.
func (t *pendingTable) resolveLocked(req *pendingRequest, res Result, next slotState) {
	if req.state == slotDone || req.state == slotOrphaned {
		// Exactly-once resolution is enforced here; reaching this is a
		// logic error in the table, not a recoverable condition.
		panic("multiview: pending request resolved twice")
	}
	if req.timer != nil {
		req.timer.Stop()
	}
	req.result <- res
	close(req.terminal)
	req.state = next
}
