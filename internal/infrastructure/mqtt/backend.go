package mqtt

import (
	"context"
	"fmt"
	"sync"
)

// Backend adapts one device/field topic pair on a shared Session into
// the endpoint contract leaf signals connect through. Connecting a
// backend ensures the session is up and subscribes to the signal's
// retained state topic; the latest payload is cached for reads.
type Backend struct {
	session *Session
	state   string
	command string
	qos     byte

	mu         sync.Mutex
	subscribed bool
	last       []byte
	seen       bool
}

// NewBackend creates a backend for the named device field on session.
func NewBackend(session *Session, deviceName, field string) *Backend {
	t := session.Topics()
	return &Backend{
		session: session,
		state:   t.SignalState(deviceName, field),
		command: t.SignalCommand(deviceName, field),
		qos:     byte(session.cfg.QoS),
	}
}

// Connect brings the session up if needed and subscribes to the state
// topic. Safe to call repeatedly; after a failure the next call retries
// both steps.
func (b *Backend) Connect(ctx context.Context) error {
	if err := b.session.Connect(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	already := b.subscribed
	b.mu.Unlock()
	if already {
		return nil
	}

	err := b.session.Subscribe(b.state, b.qos, func(_ string, payload []byte) error {
		b.mu.Lock()
		b.last = append(b.last[:0], payload...)
		b.seen = true
		b.mu.Unlock()
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing %s: %w", b.state, err)
	}

	b.mu.Lock()
	b.subscribed = true
	b.mu.Unlock()
	return nil
}

// Source identifies the endpoint: "mqtt://<state topic>".
func (b *Backend) Source() string {
	return "mqtt://" + b.state
}

// Last returns a copy of the most recent state payload, or false if none
// has arrived since connecting.
func (b *Backend) Last() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.seen {
		return nil, false
	}
	out := make([]byte, len(b.last))
	copy(out, b.last)
	return out, true
}

// Send publishes a command payload for this signal.
func (b *Backend) Send(payload []byte) error {
	return b.session.Publish(b.command, payload, b.qos, false)
}
