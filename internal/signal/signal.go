package signal

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/conduit-core/internal/device"
)

// Backend is one transport endpoint a Signal connects to.
type Backend interface {
	// Connect establishes the endpoint. It must respect ctx's deadline
	// and be safe to call again after a failure.
	Connect(ctx context.Context) error

	// Source identifies the endpoint for logs and diagnostics, e.g.
	// "mqtt://site/stat/table1/position" or "soft://table1-position".
	Source() string
}

// Signal is a leaf device wrapping a single Backend.
//
// In real mode Connect delegates to the backend. In mock mode the backend
// is never touched: the connect is recorded on the subtree's mock
// controller instead, and the controller keeps a simulated value that
// Put/Get operate on.
type Signal struct {
	device.Base

	mu      sync.Mutex
	backend Backend
	mock    *device.Mock
}

// New creates an unnamed signal over backend.
func New(backend Backend) (*Signal, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	s := &Signal{backend: backend}
	if err := s.Init(s, "", device.ConnectorFunc(s.connect)); err != nil {
		return nil, fmt.Errorf("initialising signal: %w", err)
	}
	return s, nil
}

func (s *Signal) connect(ctx context.Context, _ device.Device, req device.ConnectRequest) error {
	if req.Mock {
		s.mu.Lock()
		s.mock = req.MockController
		s.mu.Unlock()
		if req.MockController != nil {
			req.MockController.Record("connect", s.Source())
		}
		return nil
	}

	s.mu.Lock()
	s.mock = nil
	backend := s.backend
	s.mu.Unlock()

	if err := backend.Connect(ctx); err != nil {
		return fmt.Errorf("connecting %s: %w", backend.Source(), err)
	}
	return nil
}

// Source reports the backend's endpoint identity.
func (s *Signal) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Source()
}

// Backend returns the wrapped backend.
func (s *Signal) Backend() Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// Soft is an in-memory Backend that always connects. It doubles as a
// value store so trees can be driven end to end without a broker.
type Soft struct {
	mu    sync.Mutex
	name  string
	value any
	set   bool
}

// NewSoft creates a soft backend identified by name.
func NewSoft(name string) *Soft {
	return &Soft{name: name}
}

// Connect always succeeds immediately (unless ctx is already done).
func (s *Soft) Connect(ctx context.Context) error {
	return ctx.Err()
}

// Source returns "soft://<name>".
func (s *Soft) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return "soft://" + s.name
}

// Put stores a value.
func (s *Soft) Put(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.set = true
}

// Get returns the stored value, or ErrNoValue before the first Put.
func (s *Soft) Get() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return nil, ErrNoValue
	}
	return s.value, nil
}
