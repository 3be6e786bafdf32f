package device

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Device is implemented by every node in a device tree.
//
// Concrete devices embed Base, which provides the full implementation, and
// call Init from their constructor to wire the embedding value in. Devices
// are compared by pointer identity; any Device can be used as a map key.
type Device interface {
	// Name returns the device's current name ("" while unnamed).
	Name() string

	// SetName sets the device's name and re-propagates derived names
	// through the current child set.
	SetName(name string)

	// Parent returns the owning device, or nil for a detached root.
	Parent() Device

	// Children returns the current child set in registration order.
	Children() []Child

	// Connect brings this device and its whole subtree into a
	// connected state. See Base.Connect for the caching rules.
	Connect(ctx context.Context, req ConnectRequest) error

	// base gives the package access to the shared state. Implementing
	// Device outside this package therefore requires embedding Base.
	base() *Base
}

// Child pairs a registered child device with its name within the parent.
type Child struct {
	Name   string
	Device Device
}

// Base is the embeddable implementation of Device.
//
// It owns the name, the parent link, the registered children, and the
// connect cache. The zero value is unusable: constructors must call Init
// before any other method.
type Base struct {
	mu        sync.Mutex
	self      Device
	connector Connector
	monitor   Monitor

	name     string
	parent   Device
	children []Child

	// root is the logger names are scoped onto; log is root plus the
	// current device name, recreated on every SetName.
	root *slog.Logger
	log  *slog.Logger

	// lastMock is the mode of the most recent connect, nil before the
	// first one. current is the most recent attempt handle.
	lastMock *bool
	current  *attempt
}

// Init wires the embedding device into its Base and runs the connector's
// child materialisation hook. It must be called exactly once from the
// device constructor, before any other method.
//
// Parameters:
//   - self: the outermost embedding device
//   - name: initial name ("" for unnamed)
//   - connector: connect strategy; nil selects ChildConnector
//
// Returns:
//   - error: if the connector fails to materialise children
func (b *Base) Init(self Device, name string, connector Connector) error {
	if self == nil {
		return fmt.Errorf("%w: Init requires the embedding device", ErrNotInitialised)
	}
	if connector == nil {
		connector = ChildConnector{}
	}

	b.mu.Lock()
	b.self = self
	b.connector = connector
	if b.monitor == nil {
		b.monitor = noopMonitor{}
	}
	if b.root == nil {
		b.root = slog.Default()
	}
	b.mu.Unlock()

	// Materialisation is idempotent so devices that need child references
	// during construction may call it again later via Connector().
	if err := connector.MaterializeChildren(self); err != nil {
		return fmt.Errorf("materialising children: %w", err)
	}

	self.SetName(name)
	return nil
}

// Name returns the device's current name.
func (b *Base) Name() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.name
}

// Parent returns the owning device, or nil.
func (b *Base) Parent() Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parent
}

// Connector returns the connect strategy bound at Init.
func (b *Base) Connector() Connector {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connector
}

// SetName sets the device's own name, recreates the name-scoped logger,
// and renames every currently registered child to "<name>-<childName>"
// (child names have leading underscores stripped). An empty name unnames
// the whole subtree. Renaming is a pure overwrite; children registered
// after this call keep their old names until the next SetName.
func (b *Base) SetName(name string) {
	b.mu.Lock()
	b.name = name
	b.log = b.logger().With("device", name)
	self := b.self
	children := make([]Child, len(b.children))
	copy(children, b.children)
	b.mu.Unlock()

	// Vectors override Children, so prefer the polymorphic view when the
	// base has been initialised.
	if self != nil {
		children = self.Children()
	}
	for _, c := range children {
		childName := ""
		if name != "" {
			childName = name + "-" + strings.TrimLeft(c.Name, "_")
		}
		c.Device.SetName(childName)
	}
}

// logger returns the unscoped root logger, defaulting lazily so that a
// Base renamed before Init still logs somewhere sensible.
func (b *Base) logger() *slog.Logger {
	if b.root == nil {
		b.root = slog.Default()
	}
	return b.root
}

// SetLogger replaces the logger that device names are scoped onto and
// recreates the current name-scoped logger.
func (b *Base) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	b.mu.Lock()
	b.root = l
	b.log = l.With("device", b.name)
	b.mu.Unlock()
}

// SetMonitor sets the connect lifecycle monitor for this device only.
// Use SetTreeMonitor to apply one to a whole subtree.
func (b *Base) SetMonitor(m Monitor) {
	if m == nil {
		m = noopMonitor{}
	}
	b.mu.Lock()
	b.monitor = m
	b.mu.Unlock()
}

// Children returns the registered children in registration order.
func (b *Base) Children() []Child {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Child, len(b.children))
	copy(out, b.children)
	return out
}

// Attach registers child under name and binds its parent link to this
// device. The binding is atomic with the single-parent invariant check:
// re-attaching an existing child of this device is a no-op, attaching a
// device that already has a different parent fails with ErrAlreadyParented
// and leaves both trees unchanged.
func (b *Base) Attach(name string, child Device) error {
	b.mu.Lock()
	self := b.self
	b.mu.Unlock()
	if self == nil {
		return ErrNotInitialised
	}
	if child == nil {
		return ErrNilChild
	}
	if name == "" {
		return ErrEmptyChildName
	}

	bound, err := bindParent(child, self)
	if err != nil {
		return fmt.Errorf("attaching %q: %w", name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.children {
		if c.Name != name {
			continue
		}
		if c.Device == child {
			return nil
		}
		// The name is taken: unwind the parent link we just bound so the
		// rejected child stays attachable elsewhere.
		if bound {
			unbindParent(child)
		}
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	b.children = append(b.children, Child{Name: name, Device: child})
	return nil
}

// bindParent sets child's parent link to parent, enforcing the
// at-most-one-parent invariant under the child's own lock. bound reports
// whether this call created the link, so a failed registration can undo it.
func bindParent(child, parent Device) (bound bool, err error) {
	cb := child.base()
	cb.mu.Lock()
	existing := cb.parent
	if existing == nil {
		cb.parent = parent
	}
	cb.mu.Unlock()

	switch existing {
	case nil:
		return true, nil
	case parent:
		return false, nil
	default:
		return false, fmt.Errorf("%w: cannot bind %q to %q, it belongs to %q",
			ErrAlreadyParented, child.Name(), parent.Name(), existing.Name())
	}
}

// unbindParent clears child's parent link after a registration it was
// bound for has failed.
func unbindParent(child Device) {
	cb := child.base()
	cb.mu.Lock()
	cb.parent = nil
	cb.mu.Unlock()
}

func (b *Base) base() *Base { return b }

// Composite is a plain branch device: a named container for explicitly
// attached children with the default child fan-out connector.
type Composite struct {
	Base
}

// NewComposite creates an unnamed composite device.
func NewComposite() *Composite {
	c := &Composite{}
	// ChildConnector never fails to materialise.
	_ = c.Init(c, "", ChildConnector{})
	return c
}

// StateOf reports where d sits in the connect lifecycle.
func StateOf(d Device) ConnectState {
	return d.base().ConnectState()
}

// Walk visits root and every descendant in depth-first registration order.
func Walk(root Device, fn func(d Device)) {
	fn(root)
	for _, c := range root.Children() {
		Walk(c.Device, fn)
	}
}

// SetTreeMonitor applies one connect monitor to root and all descendants.
func SetTreeMonitor(root Device, m Monitor) {
	Walk(root, func(d Device) {
		d.base().SetMonitor(m)
	})
}

// SetTreeLogger applies one root logger to root and all descendants.
func SetTreeLogger(root Device, l *slog.Logger) {
	Walk(root, func(d Device) {
		d.base().SetLogger(l)
	})
}
