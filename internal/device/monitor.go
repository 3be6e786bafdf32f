package device

import "time"

// Monitor observes connect lifecycle events on a device. Implementations
// must be safe for concurrent use; callbacks run on the connect goroutine
// and should return quickly.
type Monitor interface {
	// ConnectStarted fires when a fresh attempt begins (reused attempts
	// do not fire again).
	ConnectStarted(d Device, attemptID string, mock bool)

	// ConnectFinished fires exactly once per started attempt, with the
	// elapsed wall time and the final error (nil on success).
	ConnectFinished(d Device, attemptID string, mock bool, elapsed time.Duration, err error)
}

type noopMonitor struct{}

func (noopMonitor) ConnectStarted(Device, string, bool) {}

func (noopMonitor) ConnectFinished(Device, string, bool, time.Duration, error) {}

// MultiMonitor fans each event out to every member in order.
type MultiMonitor []Monitor

func (m MultiMonitor) ConnectStarted(d Device, attemptID string, mock bool) {
	for _, mon := range m {
		mon.ConnectStarted(d, attemptID, mock)
	}
}

func (m MultiMonitor) ConnectFinished(d Device, attemptID string, mock bool, elapsed time.Duration, err error) {
	for _, mon := range m {
		mon.ConnectFinished(d, attemptID, mock, elapsed, err)
	}
}
