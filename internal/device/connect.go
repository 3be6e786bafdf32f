package device

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultConnectTimeout is the whole-subtree timeout applied when a
// ConnectRequest carries none.
const DefaultConnectTimeout = 10 * time.Second

// ConnectState describes where a device is in its connect lifecycle.
type ConnectState string

// ConnectState constants.
const (
	StateNeverConnected ConnectState = "never_connected"
	StateConnecting     ConnectState = "connecting"
	StateConnected      ConnectState = "connected"
	StateFailed         ConnectState = "failed"
)

// ConnectRequest carries the parameters of one connect call.
//
// The zero value requests a real-mode connect with the default timeout.
type ConnectRequest struct {
	// Mock switches the subtree to simulated connections. Leaf devices
	// record on their mock controller instead of touching transports.
	Mock bool

	// MockController seeds the mock hierarchy for this subtree. Setting
	// it implies Mock. When Mock is requested without a controller, a
	// fresh one is materialised each time a new fan-out starts.
	MockController *Mock

	// Registry, when non-nil, receives the device-to-controller binding
	// of every device that starts a mock-mode fan-out. Bindings are
	// never pruned; the registry lives as long as its owner keeps it.
	Registry *MockRegistry

	// Timeout encloses the entire subtree fan-out, not each child
	// individually. Zero selects DefaultConnectTimeout.
	Timeout time.Duration

	// Force discards any reusable previous attempt and starts a new
	// fan-out regardless of mode or outcome.
	Force bool
}

// attempt is the handle of one started connect fan-out. err is written
// once, before done is closed, so readers that observe the close also
// observe the error.
type attempt struct {
	id   string
	done chan struct{}
	err  error
}

// failed reports whether the attempt has finished with an error.
// A still-running attempt has not failed.
func (a *attempt) failed() bool {
	select {
	case <-a.done:
		return a.err != nil
	default:
		return false
	}
}

func (a *attempt) finished() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// wait blocks until the attempt finishes or the caller's context ends.
// Abandoning the wait does not stop the attempt: other callers may still
// be joined on it.
func (a *attempt) wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect brings the device and its whole subtree into a connected state.
//
// A previous attempt is reused when it ran in the same mode and has not
// finished with an error: concurrent callers requesting the same mode
// converge on a single in-flight fan-out, and a later call after success
// returns immediately. A finished-failed attempt, a mode switch, or
// req.Force starts a fresh fan-out through the device's Connector.
//
// One timeout encloses the entire subtree: the context handed to the
// Connector carries it, and every descendant connect runs beneath it.
// Cancelling the context that started an attempt cancels the whole
// in-flight subtree rather than orphaning it.
//
// Parameters:
//   - ctx: Context for cancellation; the attempt is bound to the context
//     of the call that started it
//   - req: Mode, timeout, and mock wiring for this call
//
// Returns:
//   - error: nil once every descendant connected; a *NotConnectedError
//     aggregate if any failed; ctx.Err() if the caller gave up waiting
func (b *Base) Connect(ctx context.Context, req ConnectRequest) error {
	if req.Timeout <= 0 {
		req.Timeout = DefaultConnectTimeout
	}
	if req.MockController != nil {
		req.Mock = true
	}

	b.mu.Lock()
	if b.self == nil {
		b.mu.Unlock()
		return ErrNotInitialised
	}

	reusable := b.lastMock != nil &&
		*b.lastMock == req.Mock &&
		b.current != nil &&
		!b.current.failed()

	if req.Force || !reusable {
		if req.Mock && req.MockController == nil {
			// One fresh controller per newly started mock fan-out,
			// not per reuse of an existing one.
			req.MockController = NewMock()
		}
		mode := req.Mock
		b.lastMock = &mode
		if req.Mock && req.Registry != nil {
			req.Registry.bind(b.self, req.MockController)
		}
		b.current = b.startAttempt(ctx, req)
	}
	at := b.current
	b.mu.Unlock()

	return at.wait(ctx)
}

// ConnectState reports the device's position in the connect lifecycle.
func (b *Base) ConnectState() ConnectState {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.current == nil:
		return StateNeverConnected
	case !b.current.finished():
		return StateConnecting
	case b.current.err != nil:
		return StateFailed
	default:
		return StateConnected
	}
}

// ConnectedMock reports whether the most recent connect ran in mock mode.
// The second return is false before the first connect.
func (b *Base) ConnectedMock() (bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastMock == nil {
		return false, false
	}
	return *b.lastMock, true
}

// startAttempt launches the connector fan-out for req in its own
// goroutine and returns its handle. Caller holds b.mu.
func (b *Base) startAttempt(ctx context.Context, req ConnectRequest) *attempt {
	at := &attempt{
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
	self, conn, mon, log := b.self, b.connector, b.monitor, b.log

	go func() {
		defer close(at.done)

		mon.ConnectStarted(self, at.id, req.Mock)
		started := time.Now()

		cctx, cancel := context.WithTimeout(ctx, req.Timeout)
		defer cancel()
		at.err = conn.Connect(cctx, self, req)

		elapsed := time.Since(started)
		mon.ConnectFinished(self, at.id, req.Mock, elapsed, at.err)
		if log != nil {
			if at.err != nil {
				log.Debug("device connect failed",
					"attempt", at.id,
					"mock", req.Mock,
					"elapsed", elapsed,
					"error", at.err,
				)
			} else {
				log.Debug("device connected",
					"attempt", at.id,
					"mock", req.Mock,
					"elapsed", elapsed,
				)
			}
		}
	}()

	return at
}
