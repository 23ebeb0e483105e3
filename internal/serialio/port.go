package serialio

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Default port settings.
const (
	// defaultBaudRate matches the device's fixed RS-232 rate.
	defaultBaudRate = 115200

	// defaultReadTimeout bounds each blocking read so the reader loop
	// notices shutdown promptly.
	defaultReadTimeout = 200 * time.Millisecond

	// lineBufferSize is the capacity of the inbound line channel.
	lineBufferSize = 64

	// readChunkSize is the transfer buffer handed to each port read.
	readChunkSize = 256

	// maxLineBytes caps one accumulated line. Anything longer is treated as
	// noise and dropped; the device's longest documented response is well
	// under this.
	maxLineBytes = 512
)

// Config holds the serial port settings.
type Config struct {
	// Port is the device node, e.g. /dev/ttyUSB0.
	Port string

	// BaudRate is the line rate. Default: 115200.
	BaudRate int

	// ReadTimeout bounds each blocking read. Default: 200ms.
	ReadTimeout time.Duration
}

// devicePort is the subset of the serial driver used by Port.
// Narrowed so tests can substitute a fake.
type devicePort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// openDevice opens the underlying driver handle. Swapped out in tests.
var openDevice = func(name string, mode *serial.Mode) (devicePort, error) {
	return serial.Open(name, mode)
}

// closeOnce wraps a close channel so multiple closers are safe.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce { return &closeOnce{ch: make(chan struct{})} }

// Close closes the channel exactly once.
func (c *closeOnce) Close() { c.once.Do(func() { close(c.ch) }) }

func (c *closeOnce) Done() <-chan struct{} { return c.ch }

// Port owns one exclusive handle to the device.
//
// Complete inbound lines arrive on Lines(); the first fatal I/O error
// arrives on Errors() and ends the reader loop. The Port never reconnects.
type Port struct {
	cfg Config
	dev devicePort

	writeMu sync.Mutex

	lines chan string
	errs  chan error

	done *closeOnce
	wg   sync.WaitGroup
}

// Open opens the configured device node and starts the reader loop.
//
// The node's existence is checked first so an unplugged adapter yields
// ErrPortNotFound rather than an opaque driver error. Stale bytes from a
// previous session are flushed before the reader starts, so the first line
// read belongs to the first command written.
//
// ctx bounds the open attempt only; a wedged driver open cannot stall a
// reconnect cycle indefinitely.
func Open(ctx context.Context, cfg Config) (*Port, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("serialio: port name is required")
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}

	if _, err := os.Stat(cfg.Port); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPortNotFound, cfg.Port)
		}
		return nil, fmt.Errorf("serialio: stat %s: %w", cfg.Port, err)
	}

	// The device speaks fixed 8N1 framing.
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	dev, err := openWithContext(ctx, cfg.Port, mode)
	if err != nil {
		return nil, err
	}

	if err := dev.SetReadTimeout(cfg.ReadTimeout); err != nil {
		dev.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("serialio: set read timeout: %w", err)
	}

	// Flush a previous session's leftovers, best effort.
	_ = dev.ResetInputBuffer()
	_ = dev.ResetOutputBuffer()

	p := &Port{
		cfg:   cfg,
		dev:   dev,
		lines: make(chan string, lineBufferSize),
		errs:  make(chan error, 1),
		done:  newCloseOnce(),
	}

	p.wg.Add(1)
	go p.readLoop()

	return p, nil
}

// openWithContext races the driver open against ctx.
func openWithContext(ctx context.Context, name string, mode *serial.Mode) (devicePort, error) {
	type result struct {
		dev devicePort
		err error
	}
	ch := make(chan result, 1)

	go func() {
		dev, err := openDevice(name, mode)
		ch <- result{dev: dev, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("serialio: open %s: %w", name, res.err)
		}
		return res.dev, nil
	case <-ctx.Done():
		// The open may still complete later; release the handle when it does.
		go func() {
			if res := <-ch; res.err == nil {
				res.dev.Close() //nolint:errcheck // caller already gave up
			}
		}()
		return nil, fmt.Errorf("serialio: open %s: %w", name, ctx.Err())
	}
}

// WriteLine writes one command line followed by CRLF.
func (p *Port) WriteLine(line string) error {
	if p.isClosed() {
		return ErrPortClosed
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	payload := []byte(line + "\r\n")
	n, err := p.dev.Write(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if n != len(payload) {
		return fmt.Errorf("%w: short write (%d of %d bytes)", ErrWriteFailed, n, len(payload))
	}
	return nil
}

// Lines returns the channel of complete inbound lines. It is closed when the
// reader loop exits.
func (p *Port) Lines() <-chan string { return p.lines }

// Errors returns the channel carrying the first fatal link error.
func (p *Port) Errors() <-chan error { return p.errs }

// Name returns the configured device node.
func (p *Port) Name() string { return p.cfg.Port }

// Close tears down the port and waits for the reader loop to exit.
// Safe to call multiple times.
func (p *Port) Close() error {
	p.done.Close()
	err := p.dev.Close()
	p.wg.Wait()
	if err != nil {
		return fmt.Errorf("serialio: close: %w", err)
	}
	return nil
}

// readLoop reassembles inbound bytes into lines until a fatal error or
// shutdown. Lines are split on LF; CR and surrounding whitespace are
// stripped; empty lines are skipped.
func (p *Port) readLoop() {
	defer p.wg.Done()
	defer close(p.lines)

	buf := make([]byte, readChunkSize)
	var acc []byte
	discarding := false

	for {
		if p.isClosed() {
			return
		}

		n, err := p.dev.Read(buf)
		if err != nil {
			if p.isClosed() {
				// Close() tore down the handle under us.
				return
			}
			p.reportError(fmt.Errorf("%w: %v", ErrReadFailed, err))
			return
		}
		if n == 0 {
			// Read timeout tick; loop so shutdown is noticed.
			continue
		}

		for _, b := range buf[:n] {
			if b == '\n' {
				if !discarding {
					if line := strings.TrimSpace(string(acc)); line != "" {
						if !p.deliver(line) {
							return
						}
					}
				}
				discarding = false
				acc = acc[:0]
				continue
			}
			if discarding {
				continue
			}
			acc = append(acc, b)
			if len(acc) > maxLineBytes {
				// Binary noise or a desynced stream; drop until the next LF.
				discarding = true
				acc = acc[:0]
			}
		}
	}
}

// deliver hands one complete line to the consumer, giving up on shutdown.
func (p *Port) deliver(line string) bool {
	select {
	case p.lines <- line:
		return true
	case <-p.done.Done():
		return false
	}
}

// reportError surfaces a fatal link error. Only the first one matters.
func (p *Port) reportError(err error) {
	select {
	case p.errs <- err:
	default:
	}
}

func (p *Port) isClosed() bool {
	select {
	case <-p.done.Done():
		return true
	default:
		return false
	}
}

// ListPorts enumerates serial device nodes on the host. Used for startup
// diagnostics when the configured port cannot be opened.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialio: list ports: %w", err)
	}
	return ports, nil
}
