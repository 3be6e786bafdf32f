package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// GroupOptions configures how a Group names and connects its devices.
type GroupOptions struct {
	// Mock selects mock-mode connects for the whole group.
	Mock bool

	// Registry receives device-to-controller bindings in mock mode.
	Registry *MockRegistry

	// Timeout encloses each device's whole-subtree connect. Zero
	// selects DefaultConnectTimeout.
	Timeout time.Duration

	// SkipName leaves device names untouched on Add.
	SkipName bool

	// SkipConnect makes Connect a no-op, for building trees that are
	// connected later or not at all.
	SkipConnect bool

	// Logger, when set, is applied to every added subtree.
	Logger *slog.Logger

	// Monitor, when set, is applied to every added subtree.
	Monitor Monitor
}

// Group registers top-level devices by explicit name, names each one as
// it is added, and connects them all concurrently in one call.
//
// Adding replaces the caller-scope introspection a registry might do:
// every device is handed over with the name it should carry.
type Group struct {
	mu      sync.Mutex
	opts    GroupOptions
	order   []string
	devices map[string]Device
	running bool
}

// NewGroup creates a group with the given options.
func NewGroup(opts GroupOptions) *Group {
	return &Group{
		opts:    opts,
		devices: make(map[string]Device),
	}
}

// Add registers dev under name, names its subtree (unless SkipName), and
// applies the group's logger and monitor to the subtree.
//
// Returns:
//   - error: ErrNilChild, ErrEmptyChildName, or ErrDuplicateName when
//     the registration is invalid; nil otherwise
func (g *Group) Add(name string, dev Device) error {
	if dev == nil {
		return ErrNilChild
	}
	if name == "" {
		return ErrEmptyChildName
	}

	g.mu.Lock()
	if _, ok := g.devices[name]; ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	g.devices[name] = dev
	g.order = append(g.order, name)
	opts := g.opts
	g.mu.Unlock()

	if !opts.SkipName && dev.Name() == "" {
		dev.SetName(name)
	}
	if opts.Logger != nil {
		SetTreeLogger(dev, opts.Logger)
	}
	if opts.Monitor != nil {
		SetTreeMonitor(dev, opts.Monitor)
	}
	return nil
}

// Device returns the registered device by name.
func (g *Group) Device(name string) (Device, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.devices[name]
	return d, ok
}

// Devices returns name/device pairs in registration order.
func (g *Group) Devices() []Child {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Child, 0, len(g.order))
	for _, n := range g.order {
		out = append(out, Child{Name: n, Device: g.devices[n]})
	}
	return out
}

// Connect connects every registered device concurrently and folds the
// failures into one aggregate, exactly like a composite fan-out. A
// second Connect while one is running on the same group fails with
// ErrConnectInProgress.
//
// Returns:
//   - error: nil when all devices connected (or SkipConnect is set);
//     *NotConnectedError otherwise
func (g *Group) Connect(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return ErrConnectInProgress
	}
	g.running = true
	opts := g.opts
	names := make([]string, len(g.order))
	copy(names, g.order)
	devices := make([]Device, len(names))
	for i, n := range names {
		devices[i] = g.devices[n]
	}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.running = false
		g.mu.Unlock()
	}()

	if opts.SkipConnect || len(devices) == 0 {
		return nil
	}

	req := ConnectRequest{
		Mock:     opts.Mock,
		Registry: opts.Registry,
		Timeout:  opts.Timeout,
	}

	errs := make([]error, len(devices))
	var wg sync.WaitGroup
	for i, d := range devices {
		wg.Add(1)
		go func(i int, d Device) {
			defer wg.Done()
			errs[i] = d.Connect(ctx, req)
		}(i, d)
	}
	wg.Wait()

	var failures []Failure
	for i, err := range errs {
		if err == nil {
			continue
		}
		failures = append(failures, Failure{
			Name:     names[i],
			Err:      err,
			TimedOut: errors.Is(err, context.DeadlineExceeded),
		})
	}
	return newNotConnected(failures)
}
