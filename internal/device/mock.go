package device

import (
	"sync"
	"time"
)

// MockOp is one recorded operation on a mock controller.
type MockOp struct {
	// Name is the operation, e.g. "connect", "put", "get".
	Name string

	// Args carries operation-specific detail (a put value, a source).
	Args []any

	// At is when the operation was recorded.
	At time.Time
}

// Mock is a simulated-connection controller for one device subtree.
//
// A mock-mode connect hands the root device a Mock; the fan-out derives a
// child controller per child name so the mock hierarchy mirrors the
// device tree. Leaf connectors record their operations here instead of
// touching a transport, and tests inspect the recording afterwards.
type Mock struct {
	mu       sync.Mutex
	parent   *Mock
	name     string
	children map[string]*Mock
	ops      []MockOp

	// ConnectErr, when set on a leaf's controller, makes mock-mode
	// connects of that leaf fail with this error.
	ConnectErr error

	// ConnectDelay stalls mock-mode connects, for timeout tests.
	ConnectDelay time.Duration
}

// NewMock creates a root mock controller.
func NewMock() *Mock {
	return &Mock{children: make(map[string]*Mock)}
}

// Child returns the controller derived for the named child, creating it
// on first use. Repeated calls with the same name return the same
// controller.
func (m *Mock) Child(name string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.children[name]; ok {
		return c
	}
	c := &Mock{parent: m, name: name, children: make(map[string]*Mock)}
	m.children[name] = c
	return c
}

// Parent returns the controller this one was derived from, nil at the root.
func (m *Mock) Parent() *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parent
}

// Record appends an operation to this controller's log.
func (m *Mock) Record(name string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, MockOp{Name: name, Args: args, At: time.Now()})
}

// Ops returns a copy of the recorded operations in order.
func (m *Mock) Ops() []MockOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockOp, len(m.ops))
	copy(out, m.ops)
	return out
}

// MockRegistry maps devices to the controller their most recent mock-mode
// connect used. Pass one in ConnectRequest.Registry to populate it; look
// controllers up afterwards to drive or inspect simulated devices.
//
// Bindings are keyed by device pointer identity and overwritten when the
// same device starts a new mock fan-out.
type MockRegistry struct {
	mu    sync.Mutex
	mocks map[Device]*Mock
}

// NewMockRegistry creates an empty registry.
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{mocks: make(map[Device]*Mock)}
}

func (r *MockRegistry) bind(d Device, m *Mock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mocks[d] = m
}

// Lookup returns the controller bound to d, or false if d has not started
// a mock-mode connect through this registry.
func (r *MockRegistry) Lookup(d Device) (*Mock, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mocks[d]
	return m, ok
}

// Len returns the number of bound devices.
func (r *MockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mocks)
}
