package multiview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Default tuning for the command channel. Zero-valued Config fields fall
// back to these.
const (
	defaultCommandTimeout    = 2 * time.Second
	defaultQueueDepth        = 32
	defaultGraceWindow       = 500 * time.Millisecond
	defaultHeartbeatInterval = 30 * time.Second
	defaultProbeTimeout      = 2 * time.Second
	defaultFailureThreshold  = 3

	// heartbeatCommand is the cheapest query the device answers. Its reply
	// doubles as a power-state refresh for the cache.
	heartbeatCommand = "power.query"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Link is one live conversation with the device: write a command line, read
// response lines, learn about the first fatal fault. serialio.Port satisfies
// it; tests substitute their own.
type Link interface {
	// WriteLine sends one terminated command line.
	WriteLine(line string) error

	// Lines yields complete inbound lines. Closed when the link dies.
	Lines() <-chan string

	// Errors yields the first fatal fault, then nothing.
	Errors() <-chan error

	// Close releases the underlying handle.
	Close() error
}

// DialFunc opens a fresh Link. The connection loop calls it once per
// attempt; ctx cancellation must abort a stalled open.
type DialFunc func(ctx context.Context) (Link, error)

// Logger interface for optional logging.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Journal receives every observed state change, in observation order.
// Implementations must be safe for concurrent use.
type Journal interface {
	Record(ctx context.Context, obs Observation) error
}

// Telemetry receives operational measurements. Implementations must be
// cheap and must not block.
type Telemetry interface {
	RecordStateTransition(from, to ConnectionState, epoch string)
	RecordCommand(name string, latency time.Duration, err error)
	RecordProbe(success bool)
}

// Result is the terminal outcome of one executed command.
type Result struct {
	Command string        // command name as submitted
	Lines   []string      // response lines, in arrival order
	Value   string        // extracted state value, empty when none applies
	Latency time.Duration // admission to resolution
	Err     error         // terminal error, nil on success
}

// DeviceInfo identifies the connected device.
type DeviceInfo struct {
	Type     string
	Firmware string
	Epoch    string
}

// Stats is a point-in-time snapshot of channel counters.
type Stats struct {
	State              ConnectionState
	Epoch              string
	Uptime             time.Duration
	PendingDepth       int
	LinesReceived      uint64
	CommandsSent       uint64
	ResponsesResolved  uint64
	Timeouts           uint64
	ProtocolMismatches uint64
	UnsolicitedLines   uint64
	UnmatchedLines     uint64
	DiscardedLines     uint64
	QueueRejections    uint64
	LinkFailures       uint64
	Reconnects         uint64
	ProbeFailures      uint64
	CachedKeys         int
}

// Config controls channel behaviour. The zero value is usable; every field
// has a sensible default.
type Config struct {
	// CommandTimeout bounds a command from admission to resolution when the
	// caller passes no explicit timeout.
	CommandTimeout time.Duration

	// QueueDepth caps commands admitted but not yet resolved. Admission
	// beyond it fails with ErrQueueFull.
	QueueDepth int

	// GraceWindow is how long Execute waits for a connection to come up
	// before failing with ErrNotConnected. Zero selects the default;
	// negative disables waiting.
	GraceWindow time.Duration

	// HeartbeatInterval separates liveness probes.
	HeartbeatInterval time.Duration

	// ProbeTimeout bounds each heartbeat probe.
	ProbeTimeout time.Duration

	// FailureThreshold is how many consecutive probe failures declare the
	// link dead.
	FailureThreshold int

	// BackoffBase and BackoffMax scale reconnection delays.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// BackoffMultiplier is the exponential growth factor per failed
	// attempt. Zero selects the default.
	BackoffMultiplier float64

	// BackoffJitter is the random fraction added on top of each delay, in
	// [0, 1]. Zero selects the default; negative disables jitter.
	BackoffJitter float64
}

// Channel is the single front door to the device. It owns the serial link,
// serialises commands onto the wire in admission order, correlates response
// lines by position, caches observed state, and rebuilds the connection
// when it fails.
//
// Thread Safety: all methods are safe for concurrent use.
type Channel struct {
	dial DialFunc
	cfg  Config

	table   *pendingTable
	cache   *StateCache
	backoff *Backoff
	hb      *heartbeat

	// ctx cancels dial attempts and journal writes on Close.
	ctx       context.Context
	ctxCancel context.CancelFunc

	// linkMu guards link and epoch; the connection loop swaps them.
	linkMu sync.RWMutex
	link   Link
	epoch  string

	// stateMu guards state and connectedCh. connectedCh is closed on entry
	// to StateConnected and replaced on exit, so waiters see edges.
	stateMu     sync.Mutex
	state       ConnectionState
	connectedCh chan struct{}

	// failCh carries the first failure signal for the current link.
	failCh chan error

	// kickCh nudges the writer when new work or a new link arrives.
	kickCh chan struct{}

	connectedAt atomic.Int64 // unix nanos, 0 while down

	started  atomic.Bool
	done     *closeOnce
	stopOnce sync.Once
	wg       sync.WaitGroup

	linesReceived      atomic.Uint64
	commandsSent       atomic.Uint64
	responsesResolved  atomic.Uint64
	timeouts           atomic.Uint64
	protocolMismatches atomic.Uint64
	unsolicitedLines   atomic.Uint64
	unmatchedLines     atomic.Uint64
	discardedLines     atomic.Uint64
	queueRejections    atomic.Uint64
	linkFailures       atomic.Uint64
	connects           atomic.Uint64
	probeFailures      atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex

	hooksMu   sync.RWMutex
	journal   Journal
	telemetry Telemetry
}

// NewChannel wires a command channel around dial. The channel does nothing
// until Start; commands fail with ErrNotConnected until the first connect
// completes.
func NewChannel(dial DialFunc, cfg Config) (*Channel, error) {
	if dial == nil {
		return nil, fmt.Errorf("dial function is required")
	}

	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	switch {
	case cfg.GraceWindow == 0:
		cfg.GraceWindow = defaultGraceWindow
	case cfg.GraceWindow < 0:
		cfg.GraceWindow = 0
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = defaultBackoffMultiplier
	}
	switch {
	case cfg.BackoffJitter == 0:
		cfg.BackoffJitter = defaultBackoffJitter
	case cfg.BackoffJitter < 0:
		cfg.BackoffJitter = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Channel{
		dial:        dial,
		cfg:         cfg,
		table:       newPendingTable(cfg.QueueDepth),
		cache:       NewStateCache(),
		backoff:     NewBackoff(cfg.BackoffBase, cfg.BackoffMax, cfg.BackoffMultiplier, cfg.BackoffJitter),
		ctx:         ctx,
		ctxCancel:   cancel,
		state:       StateDisconnected,
		connectedCh: make(chan struct{}),
		failCh:      make(chan error, 1),
		kickCh:      make(chan struct{}, 1),
		done:        newCloseOnce(),
	}

	c.hb = newHeartbeat(cfg.HeartbeatInterval, cfg.ProbeTimeout, cfg.FailureThreshold,
		c.probeExecute,
		func() bool { return c.ConnectionStatus() == StateConnected },
		c.reportFailure,
	)

	return c, nil
}

// SetLogger sets the logger. Safe to call at any time.
func (c *Channel) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// SetJournal sets the observation journal. Call before Start.
func (c *Channel) SetJournal(j Journal) {
	c.hooksMu.Lock()
	c.journal = j
	c.hooksMu.Unlock()
}

// SetTelemetry sets the telemetry sink. Call before Start.
func (c *Channel) SetTelemetry(t Telemetry) {
	c.hooksMu.Lock()
	c.telemetry = t
	c.hooksMu.Unlock()
}

// Start launches the connection, writer, and heartbeat loops.
func (c *Channel) Start() error {
	if c.isClosed() {
		return ErrClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("channel already started")
	}

	c.wg.Add(2)
	go c.runConnectionLoop()
	go c.runWriter()
	c.hb.start()

	return nil
}

// Execute encodes and sends one command and blocks until it resolves, its
// deadline fires, or ctx is cancelled. A zero timeout selects the
// configured default.
//
// Parameter validation happens before any I/O, so ErrInvalidParams is
// returned without touching the wire. On ctx cancellation the command stays
// pending; its own deadline retires it and late response lines are absorbed
// internally.
func (c *Channel) Execute(ctx context.Context, name string, params []int, timeout time.Duration) (Result, error) {
	if c.isClosed() {
		return Result{}, ErrClosed
	}

	cmd, err := Encode(name, params)
	if err != nil {
		return Result{}, err
	}
	if timeout <= 0 {
		timeout = c.cfg.CommandTimeout
	}
	cmd.Timeout = timeout

	if err := c.awaitConnected(ctx); err != nil {
		return Result{}, err
	}

	req, err := c.table.register(cmd)
	if err != nil {
		c.queueRejections.Add(1)
		return Result{}, fmt.Errorf("%w: queue depth %d", err, c.cfg.QueueDepth)
	}

	// Close may have raced admission; fail the table again so nothing
	// lingers with the writer gone.
	if c.isClosed() {
		c.table.failAll(ErrClosed)
	} else {
		c.kickWriter()
	}

	select {
	case res := <-req.result:
		c.recordOutcome(res)
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// ReadCached returns the last observed value for key without touching the
// device. ok is false when the key has never been observed.
func (c *Channel) ReadCached(key string) (Observation, bool) {
	return c.cache.Get(key)
}

// Snapshot returns a copy of every cached observation.
func (c *Channel) Snapshot() map[string]Observation {
	return c.cache.Snapshot()
}

// ConnectionStatus reports the current lifecycle state.
func (c *Channel) ConnectionStatus() ConnectionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// DeviceInfo queries the device for its model and firmware strings.
func (c *Channel) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	typeRes, err := c.Execute(ctx, "device.type", nil, 0)
	if err != nil {
		return DeviceInfo{}, err
	}
	fwRes, err := c.Execute(ctx, "device.firmware", nil, 0)
	if err != nil {
		return DeviceInfo{}, err
	}
	return DeviceInfo{
		Type:     firstLine(typeRes.Lines),
		Firmware: firstLine(fwRes.Lines),
		Epoch:    c.currentEpoch(),
	}, nil
}

// Stats returns a snapshot of channel counters.
func (c *Channel) Stats() Stats {
	var uptime time.Duration
	if at := c.connectedAt.Load(); at > 0 {
		uptime = time.Since(time.Unix(0, at))
	}

	connects := c.connects.Load()
	var reconnects uint64
	if connects > 1 {
		reconnects = connects - 1
	}

	return Stats{
		State:              c.ConnectionStatus(),
		Epoch:              c.currentEpoch(),
		Uptime:             uptime,
		PendingDepth:       c.table.depth(),
		LinesReceived:      c.linesReceived.Load(),
		CommandsSent:       c.commandsSent.Load(),
		ResponsesResolved:  c.responsesResolved.Load(),
		Timeouts:           c.timeouts.Load(),
		ProtocolMismatches: c.protocolMismatches.Load(),
		UnsolicitedLines:   c.unsolicitedLines.Load(),
		UnmatchedLines:     c.unmatchedLines.Load(),
		DiscardedLines:     c.discardedLines.Load(),
		QueueRejections:    c.queueRejections.Load(),
		LinkFailures:       c.linkFailures.Load(),
		Reconnects:         reconnects,
		ProbeFailures:      c.probeFailures.Load(),
		CachedKeys:         c.cache.Len(),
	}
}

// Close tears the channel down: pending commands fail with ErrClosed, the
// port handle is released, every goroutine is joined. Safe to call more
// than once.
func (c *Channel) Close() error {
	c.stopOnce.Do(func() {
		c.done.Close()
		c.ctxCancel()
		c.hb.stop()

		if failed := c.table.failAll(ErrClosed); failed > 0 {
			c.logInfo("failed pending commands on close", "count", failed)
		}
		c.teardownLink()
		c.wg.Wait()
		c.setState(StateDisconnected)
		c.logInfo("channel closed")
	})
	return nil
}

// runConnectionLoop owns the connection lifecycle: dial, install, watch for
// failure, tear down, back off, repeat. Exits only on Close.
func (c *Channel) runConnectionLoop() {
	defer c.wg.Done()

	for {
		if c.isClosed() {
			return
		}

		c.setState(StateConnecting)
		c.logInfo("connecting to device", "attempt", c.backoff.Attempts()+1)

		link, err := c.dial(c.ctx)
		if err != nil {
			if c.isClosed() {
				return
			}
			c.setState(StateDisconnected)
			c.logError("connect failed", err)
			if !c.sleepBackoff() {
				return
			}
			continue
		}

		epoch := uuid.NewString()
		c.installLink(link, epoch)
		c.backoff.Reset()
		c.connects.Add(1)
		c.hb.resetFailures()
		c.setState(StateConnected)
		c.logInfo("device connected", "epoch", epoch, "total_connects", c.connects.Load())

		c.primeConnection()

		err = c.awaitFailure()
		if err == nil {
			return // Close signalled; teardown happens there.
		}

		c.setState(StateDegraded)
		c.logError("link failed", err)
		if failed := c.table.failAll(fmt.Errorf("%w: %v", ErrLinkFailure, err)); failed > 0 {
			c.logInfo("failed pending commands", "count", failed)
		}
		c.linkFailures.Add(1)
		c.teardownLink()
		c.setState(StateDisconnected)

		if !c.sleepBackoff() {
			return
		}
	}
}

// installLink publishes a fresh link and starts its reader.
func (c *Channel) installLink(link Link, epoch string) {
	// A failure signal left over from the previous link must not fail the
	// new one.
	select {
	case <-c.failCh:
	default:
	}

	c.linkMu.Lock()
	c.link = link
	c.epoch = epoch
	c.linkMu.Unlock()

	c.connectedAt.Store(time.Now().UnixNano())

	c.wg.Add(1)
	go c.readLoop(link, epoch)

	c.kickWriter()
}

// teardownLink retires the current link, closing the underlying handle.
func (c *Channel) teardownLink() {
	c.linkMu.Lock()
	link := c.link
	c.link = nil
	c.epoch = ""
	c.linkMu.Unlock()

	c.connectedAt.Store(0)

	if link != nil {
		link.Close() //nolint:errcheck // best-effort close of a dead link
	}
}

// awaitFailure blocks until the current link reports a fault or the channel
// closes. Returns nil only on close.
func (c *Channel) awaitFailure() error {
	select {
	case <-c.done.Done():
		return nil
	case err := <-c.failCh:
		return err
	}
}

// reportFailure signals the connection loop that the current link is dead.
// Non-blocking: only the first report per link matters.
func (c *Channel) reportFailure(err error) {
	select {
	case c.failCh <- err:
	default:
	}
}

// primeConnection seeds the cache after a fresh connect by querying power
// state through the ordinary command path. Best effort: a missing answer
// surfaces through the usual timeout machinery.
func (c *Channel) primeConnection() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.Execute(c.ctx, heartbeatCommand, nil, 0); err != nil && !errors.Is(err, ErrClosed) {
			c.logDebug("connection prime query failed", "error", err)
		}
	}()
}

// sleepBackoff waits out the next reconnection delay. Returns false when
// the channel closed during the wait.
func (c *Channel) sleepBackoff() bool {
	delay := c.backoff.Next()
	c.logInfo("retrying connection", "backoff", delay.String(), "attempt", c.backoff.Attempts())

	select {
	case <-c.done.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// readLoop drains one link until it dies or the channel closes.
func (c *Channel) readLoop(link Link, epoch string) {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			return
		case err, ok := <-link.Errors():
			if !ok {
				return
			}
			c.reportFailure(err)
			return
		case line, ok := <-link.Lines():
			if !ok {
				// Reader ended without a fault report; treat it as one so
				// the connection loop rebuilds the link.
				c.reportFailure(fmt.Errorf("%w: line stream ended", ErrLinkFailure))
				return
			}
			c.routeLine(line, epoch)
		}
	}
}

// routeLine hands one inbound line to the pending table and records what
// became of it.
func (c *Channel) routeLine(line, epoch string) {
	c.linesReceived.Add(1)

	d := c.table.deliver(line)
	switch d.outcome {
	case deliverResolved:
		c.responsesResolved.Add(1)
		c.applyObservations(d.cmd, d.lines, epoch)
	case deliverConsumed:
		// Mid-sequence; nothing to record yet.
	case deliverDiscarded:
		c.discardedLines.Add(1)
		c.logDebug("discarded late response line", "line", line)
	case deliverMismatch:
		c.protocolMismatches.Add(1)
		c.logError("protocol mismatch", d.err)
		// The line failed the head-of-line request, but it may still be an
		// unsolicited announcement that interleaved with the response.
		if key, value, ok := classifyUnsolicited(line); ok {
			c.unsolicitedLines.Add(1)
			c.applyObservation(key, value, epoch)
		}
	case deliverNoPending:
		if key, value, ok := classifyUnsolicited(line); ok {
			c.unsolicitedLines.Add(1)
			c.applyObservation(key, value, epoch)
		} else {
			c.unmatchedLines.Add(1)
			c.logDebug("unmatched device line", "line", line)
		}
	}
}

// applyObservations extracts state from a resolved command's response lines.
func (c *Channel) applyObservations(cmd Command, lines []string, epoch string) {
	for _, line := range lines {
		if key, value, ok := observeLine(cmd, line); ok {
			c.applyObservation(key, value, epoch)
		}
	}
}

// applyObservation updates the cache and journals the change. Unchanged
// values refresh the timestamp but are not journalled.
func (c *Channel) applyObservation(key, value, epoch string) {
	obs, changed := c.cache.Update(key, value, epoch)
	if !changed {
		return
	}

	c.logDebug("state observed", "key", key, "value", value)

	if j := c.getJournal(); j != nil {
		if err := j.Record(c.ctx, obs); err != nil {
			c.logError("journal record failed", err)
		}
	}
}

// runWriter is the single wire writer. It drains sendable requests in
// admission order and waits for each sent request to reach a terminal
// state before sending the next, keeping the conversation half-duplex.
func (c *Channel) runWriter() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			return
		case <-c.kickCh:
		}

		for {
			req := c.table.nextSendable()
			if req == nil {
				break
			}
			if !c.writeRequest(req) {
				break
			}

			select {
			case <-req.terminal:
			case <-c.done.Done():
				return
			}
		}
	}
}

// writeRequest puts one queued command on the wire. Returns false when the
// writer should stop draining (no link, or the write itself failed).
func (c *Channel) writeRequest(req *pendingRequest) bool {
	link := c.currentLink()
	if link == nil {
		return false
	}

	// Marking sent before writing closes the gap where a deadline firing
	// mid-write would treat the command as never written and hand its late
	// response to the next request.
	if !c.table.markSent(req) {
		// Deadline fired while queued; nothing went on the wire.
		return true
	}

	if err := link.WriteLine(req.cmd.RawLine); err != nil {
		c.reportFailure(err)
		return false
	}

	c.commandsSent.Add(1)
	c.logDebug("command written", "command", req.cmd.Name, "line", req.cmd.RawLine)
	return true
}

// probeExecute runs the heartbeat query through the ordinary command path,
// so probes queue behind real traffic instead of racing it.
func (c *Channel) probeExecute(timeout time.Duration) error {
	_, err := c.Execute(c.ctx, heartbeatCommand, nil, timeout)
	if err != nil && !errors.Is(err, ErrClosed) {
		c.probeFailures.Add(1)
	}
	if t := c.getTelemetry(); t != nil {
		t.RecordProbe(err == nil)
	}
	return err
}

// awaitConnected blocks until the channel is connected, the grace window
// lapses, or ctx fires. The grace window lets requests racing a reconnect
// succeed instead of failing on a transient gap.
func (c *Channel) awaitConnected(ctx context.Context) error {
	c.stateMu.Lock()
	state := c.state
	ch := c.connectedCh
	c.stateMu.Unlock()

	if state == StateConnected {
		return nil
	}
	if c.cfg.GraceWindow <= 0 {
		return fmt.Errorf("%w: channel is %s", ErrNotConnected, state)
	}

	timer := time.NewTimer(c.cfg.GraceWindow)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: channel is %s after %s grace", ErrNotConnected, c.ConnectionStatus(), c.cfg.GraceWindow)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done.Done():
		return ErrClosed
	}
}

// setState publishes a lifecycle transition and maintains connectedCh.
func (c *Channel) setState(next ConnectionState) {
	c.stateMu.Lock()
	prev := c.state
	if prev == next {
		c.stateMu.Unlock()
		return
	}
	c.state = next
	if next == StateConnected {
		close(c.connectedCh)
	} else if prev == StateConnected {
		c.connectedCh = make(chan struct{})
	}
	c.stateMu.Unlock()

	c.logInfo("connection state changed", "from", prev.String(), "to", next.String())

	if t := c.getTelemetry(); t != nil {
		t.RecordStateTransition(prev, next, c.currentEpoch())
	}
}

func (c *Channel) recordOutcome(res Result) {
	if errors.Is(res.Err, ErrTimeout) {
		c.timeouts.Add(1)
	}
	if t := c.getTelemetry(); t != nil {
		t.RecordCommand(res.Command, res.Latency, res.Err)
	}
}

// kickWriter nudges the writer loop. Non-blocking: one pending kick is
// enough, the writer drains everything sendable per wake.
func (c *Channel) kickWriter() {
	select {
	case c.kickCh <- struct{}{}:
	default:
	}
}

func (c *Channel) currentLink() Link {
	c.linkMu.RLock()
	defer c.linkMu.RUnlock()
	return c.link
}

func (c *Channel) currentEpoch() string {
	c.linkMu.RLock()
	defer c.linkMu.RUnlock()
	return c.epoch
}

func (c *Channel) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

func firstLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

func (c *Channel) getJournal() Journal {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.journal
}

func (c *Channel) getTelemetry() Telemetry {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.telemetry
}

// logInfo logs an info message if logger is set.
func (c *Channel) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (c *Channel) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (c *Channel) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
