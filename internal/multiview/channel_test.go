package multiview

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeLink is an in-memory Link with a scriptable write hook.
type fakeLink struct {
	mu      sync.Mutex
	writes  []string
	closed  bool
	onWrite func(line string) error

	lines chan string
	errs  chan error
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		lines: make(chan string, 64),
		errs:  make(chan error, 1),
	}
}

func (f *fakeLink) WriteLine(line string) error {
	f.mu.Lock()
	f.writes = append(f.writes, line)
	hook := f.onWrite
	f.mu.Unlock()

	if hook != nil {
		return hook(line)
	}
	return nil
}

func (f *fakeLink) Lines() <-chan string { return f.lines }
func (f *fakeLink) Errors() <-chan error { return f.errs }

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.lines)
	}
	return nil
}

// respond pushes device lines unless the link has been torn down.
func (f *fakeLink) respond(lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for _, l := range lines {
		f.lines <- l
	}
}

// fail injects a fatal link fault.
func (f *fakeLink) fail(err error) {
	select {
	case f.errs <- err:
	default:
	}
}

func (f *fakeLink) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// fakeDialer hands out a fresh fakeLink per attempt.
type fakeDialer struct {
	mu    sync.Mutex
	links []*fakeLink
	err   error
	setup func(*fakeLink)
}

func (d *fakeDialer) dial(_ context.Context) (Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	l := newFakeLink()
	if d.setup != nil {
		d.setup(l)
	}
	d.links = append(d.links, l)
	return l, nil
}

func (d *fakeDialer) link(i int) *fakeLink {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.links) {
		return nil
	}
	return d.links[i]
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.links)
}

// scriptedResponder answers exact wire lines with scripted device output.
func scriptedResponder(responses map[string][]string) func(*fakeLink) {
	return func(f *fakeLink) {
		f.onWrite = func(line string) error {
			if out, ok := responses[line]; ok {
				f.respond(out...)
			}
			return nil
		}
	}
}

func testConfig() Config {
	return Config{
		CommandTimeout:    250 * time.Millisecond,
		QueueDepth:        8,
		GraceWindow:       time.Second,
		HeartbeatInterval: time.Hour, // keep probes out of the way
		ProbeTimeout:      50 * time.Millisecond,
		FailureThreshold:  3,
		BackoffBase:       time.Millisecond,
		BackoffMax:        4 * time.Millisecond,
	}
}

func startTestChannel(t *testing.T, dial DialFunc, cfg Config) *Channel {
	t.Helper()

	ch, err := NewChannel(dial, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ch.Close() }) //nolint:errcheck // Test cleanup
	return ch
}

func waitConnected(t *testing.T, ch *Channel) {
	t.Helper()
	waitFor(t, 2*time.Second, "channel connected", func() bool {
		return ch.ConnectionStatus() == StateConnected
	})
}

// waitPrimed waits out the on-connect power probe so tests see a quiet wire.
func waitPrimed(t *testing.T, ch *Channel) {
	t.Helper()
	waitFor(t, 2*time.Second, "prime query resolved", func() bool {
		return ch.Stats().ResponsesResolved >= 1
	})
}

func TestChannelExecutePowerOn(t *testing.T) {
	dialer := &fakeDialer{setup: scriptedResponder(map[string][]string{
		"r power!": {"Power OFF"},
		"power 1!": {"Power ON", "System Initializing...", "Initialization Finished!"},
	})}
	ch := startTestChannel(t, dialer.dial, testConfig())
	waitConnected(t, ch)

	res, err := ch.Execute(context.Background(), "power", []int{1}, 0)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Value != "on" {
		t.Errorf("result value = %q, want %q", res.Value, "on")
	}
	if len(res.Lines) != 3 {
		t.Errorf("result lines = %d, want 3", len(res.Lines))
	}
	if res.Latency < 0 {
		t.Errorf("latency = %v, want >= 0", res.Latency)
	}

	obs, ok := ch.ReadCached("power")
	if !ok {
		t.Fatal("ReadCached(power) ok = false")
	}
	if obs.Value != "on" {
		t.Errorf("cached power = %q, want %q", obs.Value, "on")
	}
	if obs.Epoch == "" {
		t.Error("cached observation has no epoch")
	}

	stats := ch.Stats()
	if stats.State != StateConnected {
		t.Errorf("state = %v, want connected", stats.State)
	}
	if stats.CommandsSent < 2 { // prime probe + power on
		t.Errorf("commands sent = %d, want >= 2", stats.CommandsSent)
	}
	if stats.Epoch == "" {
		t.Error("stats epoch empty while connected")
	}
}

func TestChannelInvalidParamsNeverTouchTheWire(t *testing.T) {
	dialer := &fakeDialer{setup: scriptedResponder(map[string][]string{
		"r power!": {"Power ON"},
	})}
	ch := startTestChannel(t, dialer.dial, testConfig())
	waitConnected(t, ch)
	waitPrimed(t, ch)

	tests := []struct {
		name    string
		command string
		params  []int
	}{
		{"out of range", "output.audio.vol", []int{150}},
		{"missing param", "power", nil},
		{"unknown command", "hdmi.toaster", []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ch.Execute(context.Background(), tt.command, tt.params, 0)
			if !errors.Is(err, ErrInvalidParams) {
				t.Errorf("Execute() error = %v, want ErrInvalidParams", err)
			}
		})
	}

	if got := dialer.link(0).written(); len(got) != 1 || got[0] != "r power!" {
		t.Errorf("wire saw %v, want only the prime probe", got)
	}
}

func TestChannelNotConnected(t *testing.T) {
	cfg := testConfig()
	cfg.GraceWindow = -1 // fail immediately rather than waiting

	dialer := &fakeDialer{err: errors.New("no such device")}
	ch := startTestChannel(t, dialer.dial, cfg)

	_, err := ch.Execute(context.Background(), "power.query", nil, 0)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Execute() error = %v, want ErrNotConnected", err)
	}
}

func TestChannelGraceWindowCoversConnecting(t *testing.T) {
	dialer := &fakeDialer{setup: scriptedResponder(map[string][]string{
		"r power!": {"Power ON"},
	})}
	slowDial := func(ctx context.Context) (Link, error) {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return dialer.dial(ctx)
	}

	ch := startTestChannel(t, slowDial, testConfig())

	// No waiting for Connected here: the grace window must carry the call
	// across the dial.
	res, err := ch.Execute(context.Background(), "power.query", nil, 0)
	if err != nil {
		t.Fatalf("Execute() during Connecting error = %v", err)
	}
	if res.Value != "on" {
		t.Errorf("result value = %q, want %q", res.Value, "on")
	}
}

func TestChannelExecuteTimeoutThenLateResponse(t *testing.T) {
	dialer := &fakeDialer{setup: scriptedResponder(map[string][]string{
		"r power!": {"Power ON"},
		// "power 0!" deliberately unanswered.
	})}
	ch := startTestChannel(t, dialer.dial, testConfig())
	waitConnected(t, ch)
	waitPrimed(t, ch)

	_, err := ch.Execute(context.Background(), "power", []int{0}, 40*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Execute() error = %v, want ErrTimeout", err)
	}
	if got := ch.Stats().Timeouts; got != 1 {
		t.Errorf("timeouts = %d, want 1", got)
	}

	// The answer limps in late: it must be absorbed by the orphaned slot,
	// not attributed to anything or written into the cache.
	dialer.link(0).respond("Power OFF")
	waitFor(t, 2*time.Second, "late line discarded", func() bool {
		return ch.Stats().DiscardedLines == 1
	})

	if obs, _ := ch.ReadCached("power"); obs.Value != "on" {
		t.Errorf("cached power = %q after discarded line, want %q", obs.Value, "on")
	}

	// The channel is still healthy for the next command.
	res, err := ch.Execute(context.Background(), "power.query", nil, 0)
	if err != nil {
		t.Fatalf("follow-up Execute() error = %v", err)
	}
	if res.Value != "on" {
		t.Errorf("follow-up value = %q, want %q", res.Value, "on")
	}
}

func TestChannelConcurrentExecutesCorrelate(t *testing.T) {
	dialer := &fakeDialer{}
	dialer.setup = func(f *fakeLink) {
		f.onWrite = func(line string) error {
			switch {
			case line == "r power!":
				f.respond("Power ON")
			case strings.HasPrefix(line, "s output audio vol "):
				n := strings.TrimSuffix(strings.TrimPrefix(line, "s output audio vol "), "!")
				f.respond("Output Audio Volume: " + n)
			}
			return nil
		}
	}
	ch := startTestChannel(t, dialer.dial, testConfig())
	waitConnected(t, ch)

	const callers = 6
	errCh := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(vol int) {
			defer wg.Done()
			res, err := ch.Execute(context.Background(), "output.audio.vol", []int{vol}, time.Second)
			if err != nil {
				errCh <- err
				return
			}
			if res.Value != strconv.Itoa(vol) {
				errCh <- errors.New("volume " + strconv.Itoa(vol) + " got foreign response " + res.Value)
			}
		}(10 + i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Error(err)
	}
}

func TestChannelQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueDepth = 2

	dialer := &fakeDialer{setup: scriptedResponder(map[string][]string{
		"r power!": {"Power ON"},
		// multiview queries deliberately unanswered.
	})}
	ch := startTestChannel(t, dialer.dial, cfg)
	waitConnected(t, ch)
	waitPrimed(t, ch)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := ch.Execute(context.Background(), "multiview.query", nil, time.Hour)
			results <- err
		}()
	}
	waitFor(t, 2*time.Second, "two commands pending", func() bool {
		return ch.table.depth() == 2
	})

	_, err := ch.Execute(context.Background(), "multiview.query", nil, time.Hour)
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Execute() at capacity error = %v, want ErrQueueFull", err)
	}
	if got := ch.Stats().QueueRejections; got != 1 {
		t.Errorf("queue rejections = %d, want 1", got)
	}

	// Close must unblock the stuck callers.
	ch.Close()
	for i := 0; i < 2; i++ {
		if err := <-results; !errors.Is(err, ErrClosed) {
			t.Errorf("pending caller error = %v, want ErrClosed", err)
		}
	}
}

func TestChannelLinkFailureFailsAllAndReconnects(t *testing.T) {
	dialer := &fakeDialer{setup: scriptedResponder(map[string][]string{
		"r power!": {"Power ON"},
	})}
	ch := startTestChannel(t, dialer.dial, testConfig())
	waitConnected(t, ch)
	waitPrimed(t, ch)

	firstEpoch := ch.Stats().Epoch
	if firstEpoch == "" {
		t.Fatal("no epoch while connected")
	}

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := ch.Execute(context.Background(), "multiview.query", nil, time.Hour)
			results <- err
		}()
	}
	waitFor(t, 2*time.Second, "two commands pending", func() bool {
		return ch.table.depth() == 2
	})

	dialer.link(0).fail(errors.New("read /dev/ttyUSB0: input/output error"))

	for i := 0; i < 2; i++ {
		if err := <-results; !errors.Is(err, ErrLinkFailure) {
			t.Errorf("pending caller error = %v, want ErrLinkFailure", err)
		}
	}

	waitFor(t, 2*time.Second, "reconnected", func() bool {
		s := ch.Stats()
		return s.State == StateConnected && s.Reconnects == 1
	})

	stats := ch.Stats()
	if stats.LinkFailures != 1 {
		t.Errorf("link failures = %d, want 1", stats.LinkFailures)
	}
	if stats.Epoch == "" || stats.Epoch == firstEpoch {
		t.Errorf("epoch after reconnect = %q, want a fresh one (was %q)", stats.Epoch, firstEpoch)
	}
	if dialer.dials() != 2 {
		t.Errorf("dial attempts = %d, want 2", dialer.dials())
	}
}

func TestChannelUnsolicitedLines(t *testing.T) {
	dialer := &fakeDialer{setup: scriptedResponder(map[string][]string{
		"r power!": {"Power ON"},
	})}
	ch := startTestChannel(t, dialer.dial, testConfig())
	waitConnected(t, ch)
	waitPrimed(t, ch)

	// Front-panel volume change announces itself with no request pending.
	dialer.link(0).respond("Output Audio Volume: 77")
	waitFor(t, 2*time.Second, "unsolicited volume cached", func() bool {
		obs, ok := ch.ReadCached("audio.volume")
		return ok && obs.Value == "77"
	})
	if got := ch.Stats().UnsolicitedLines; got != 1 {
		t.Errorf("unsolicited lines = %d, want 1", got)
	}

	// Unrecognisable chatter is counted and dropped.
	dialer.link(0).respond("0x4F mystery vendor blob")
	waitFor(t, 2*time.Second, "unmatched line counted", func() bool {
		return ch.Stats().UnmatchedLines == 1
	})
}

func TestChannelProtocolMismatchMidSequence(t *testing.T) {
	dialer := &fakeDialer{setup: scriptedResponder(map[string][]string{
		"r power!": {"Power ON"},
		"power 1!": {"Power ON", "FAULT: fan stalled"},
	})}
	ch := startTestChannel(t, dialer.dial, testConfig())
	waitConnected(t, ch)
	waitPrimed(t, ch)

	_, err := ch.Execute(context.Background(), "power", []int{1}, 0)
	if !errors.Is(err, ErrProtocolMismatch) {
		t.Fatalf("Execute() error = %v, want ErrProtocolMismatch", err)
	}
	if got := ch.Stats().ProtocolMismatches; got != 1 {
		t.Errorf("protocol mismatches = %d, want 1", got)
	}

	// The pipeline recovers; the next command resolves normally.
	res, err := ch.Execute(context.Background(), "power.query", nil, 0)
	if err != nil {
		t.Fatalf("follow-up Execute() error = %v", err)
	}
	if res.Value != "on" {
		t.Errorf("follow-up value = %q, want %q", res.Value, "on")
	}
}

func TestChannelExecuteContextCancelled(t *testing.T) {
	dialer := &fakeDialer{setup: scriptedResponder(map[string][]string{
		"r power!": {"Power ON"},
	})}
	ch := startTestChannel(t, dialer.dial, testConfig())
	waitConnected(t, ch)
	waitPrimed(t, ch)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := ch.Execute(ctx, "multiview.query", nil, time.Hour)
		result <- err
	}()

	waitFor(t, 2*time.Second, "command pending", func() bool {
		return ch.table.depth() == 1
	})
	cancel()

	if err := <-result; !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestChannelHeartbeatDeclaresMuteLinkDead(t *testing.T) {
	cfg := testConfig()
	cfg.CommandTimeout = 25 * time.Millisecond
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.ProbeTimeout = 25 * time.Millisecond
	cfg.FailureThreshold = 2
	cfg.GraceWindow = 100 * time.Millisecond

	// The device opens but never answers anything.
	dialer := &fakeDialer{}
	ch := startTestChannel(t, dialer.dial, cfg)

	waitFor(t, 5*time.Second, "mute link declared dead", func() bool {
		return ch.Stats().LinkFailures >= 1
	})
	if got := ch.Stats().ProbeFailures; got < 2 {
		t.Errorf("probe failures = %d, want >= 2", got)
	}

	waitFor(t, 5*time.Second, "reconnect attempted", func() bool {
		return dialer.dials() >= 2
	})
}

func TestChannelDeviceInfo(t *testing.T) {
	dialer := &fakeDialer{setup: scriptedResponder(map[string][]string{
		"r power!":      {"Power ON"},
		"r type!":       {"UHD-401MV"},
		"r fw version!": {"V1.08"},
	})}
	ch := startTestChannel(t, dialer.dial, testConfig())
	waitConnected(t, ch)

	info, err := ch.DeviceInfo(context.Background())
	if err != nil {
		t.Fatalf("DeviceInfo() error = %v", err)
	}
	if info.Type != "UHD-401MV" {
		t.Errorf("type = %q, want %q", info.Type, "UHD-401MV")
	}
	if info.Firmware != "V1.08" {
		t.Errorf("firmware = %q, want %q", info.Firmware, "V1.08")
	}
	if info.Epoch == "" {
		t.Error("epoch empty")
	}

	if obs, ok := ch.ReadCached("device.type"); !ok || obs.Value != "UHD-401MV" {
		t.Errorf("cached device.type = %+v, want UHD-401MV", obs)
	}
}

func TestChannelWindowQueryAll(t *testing.T) {
	dialer := &fakeDialer{setup: scriptedResponder(map[string][]string{
		"r power!": {"Power ON"},
		"r window 0 in!": {
			"Window 1 In HDMI 2",
			"Window 2 In HDMI 2",
			"Window 3 In HDMI 1",
			"Window 4 In HDMI 4",
		},
	})}
	ch := startTestChannel(t, dialer.dial, testConfig())
	waitConnected(t, ch)

	res, err := ch.Execute(context.Background(), "window.input.query.all", nil, 0)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(res.Lines) != 4 {
		t.Fatalf("result lines = %d, want 4", len(res.Lines))
	}

	want := map[string]string{
		"window.1.input": "2",
		"window.2.input": "2",
		"window.3.input": "1",
		"window.4.input": "4",
	}
	for key, value := range want {
		obs, ok := ch.ReadCached(key)
		if !ok || obs.Value != value {
			t.Errorf("cached %s = %+v, want %q", key, obs, value)
		}
	}
}

func TestChannelJournalReceivesChanges(t *testing.T) {
	type record struct {
		key, value string
	}
	var mu sync.Mutex
	var records []record

	journal := journalFunc(func(_ context.Context, obs Observation) error {
		mu.Lock()
		records = append(records, record{obs.Key, obs.Value})
		mu.Unlock()
		return nil
	})

	dialer := &fakeDialer{setup: scriptedResponder(map[string][]string{
		"r power!": {"Power ON"},
	})}
	ch, err := NewChannel(dialer.dial, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	ch.SetJournal(journal)
	if err := ch.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ch.Close() }) //nolint:errcheck // Test cleanup

	waitConnected(t, ch)
	waitPrimed(t, ch)

	// Same value again: cache refreshes, journal stays quiet.
	if _, err := ch.Execute(context.Background(), "power.query", nil, 0); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	got := len(records)
	mu.Unlock()
	if got != 1 {
		t.Errorf("journal records = %d, want 1 (unchanged values are not journalled)", got)
	}
}

// journalFunc adapts a function to the Journal interface.
type journalFunc func(ctx context.Context, obs Observation) error

func (f journalFunc) Record(ctx context.Context, obs Observation) error { return f(ctx, obs) }

func TestChannelLifecycle(t *testing.T) {
	if _, err := NewChannel(nil, Config{}); err == nil {
		t.Error("NewChannel(nil) error = nil, want required-dial error")
	}

	ch, err := NewChannel((&fakeDialer{err: errors.New("nope")}).dial, Config{})
	if err != nil {
		t.Fatal(err)
	}

	// Zero config takes defaults.
	if ch.cfg.CommandTimeout != defaultCommandTimeout {
		t.Errorf("command timeout = %v, want %v", ch.cfg.CommandTimeout, defaultCommandTimeout)
	}
	if ch.cfg.QueueDepth != defaultQueueDepth {
		t.Errorf("queue depth = %d, want %d", ch.cfg.QueueDepth, defaultQueueDepth)
	}
	if ch.cfg.GraceWindow != defaultGraceWindow {
		t.Errorf("grace window = %v, want %v", ch.cfg.GraceWindow, defaultGraceWindow)
	}

	if err := ch.Start(); err != nil {
		t.Fatal(err)
	}
	if err := ch.Start(); err == nil {
		t.Error("second Start() error = nil, want already-started error")
	}

	if err := ch.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if _, err := ch.Execute(context.Background(), "power.query", nil, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Execute() after Close error = %v, want ErrClosed", err)
	}
	if got := ch.ConnectionStatus(); got != StateDisconnected {
		t.Errorf("state after Close = %v, want disconnected", got)
	}
}

func TestChannelNegativeGraceDisablesWaiting(t *testing.T) {
	ch, err := NewChannel((&fakeDialer{}).dial, Config{GraceWindow: -1})
	if err != nil {
		t.Fatal(err)
	}
	if ch.cfg.GraceWindow != 0 {
		t.Errorf("grace window = %v, want 0", ch.cfg.GraceWindow)
	}
}
