package device

import (
	"context"
	"errors"
	"sync"
)

// Connector is the connect strategy bound to a device at Init.
//
// MaterializeChildren runs during Init and may register children the
// device derives from configuration rather than explicit Attach calls;
// most connectors leave it a no-op. Connect establishes the device's own
// connection and fans out to descendants. The context it receives already
// carries the whole-subtree timeout.
type Connector interface {
	MaterializeChildren(self Device) error
	Connect(ctx context.Context, self Device, req ConnectRequest) error
}

// ChildConnector is the default strategy for branch devices: no own
// connection, just a concurrent fan-out over the registered children.
type ChildConnector struct{}

// MaterializeChildren is a no-op; ChildConnector devices get their
// children from explicit Attach or Set calls.
func (ChildConnector) MaterializeChildren(Device) error { return nil }

// Connect connects every child concurrently and folds the failures into
// one aggregate.
func (ChildConnector) Connect(ctx context.Context, self Device, req ConnectRequest) error {
	return ConnectChildren(ctx, self, req)
}

// ConnectChildren launches a Connect on every child of self and waits for
// all of them. Every child is launched before any is awaited, so one slow
// or failing child never delays its siblings' start. Children of a
// mock-mode fan-out receive controllers derived from the parent's by
// child name, keeping the mock hierarchy congruent with the device tree.
//
// Parameters:
//   - ctx: carries the enclosing fan-out's deadline
//   - self: the device whose children are connected
//   - req: the parent's request; Timeout is passed through so nested
//     WithTimeout calls can only shrink the deadline, never extend it
//
// Returns:
//   - error: nil if every child connected, else a *NotConnectedError
//     with one Failure per failed child in registration order
func ConnectChildren(ctx context.Context, self Device, req ConnectRequest) error {
	children := self.Children()
	if len(children) == 0 {
		return nil
	}

	errs := make([]error, len(children))
	var wg sync.WaitGroup
	for i, c := range children {
		childReq := req
		if req.Mock && req.MockController != nil {
			childReq.MockController = req.MockController.Child(c.Name)
		}
		wg.Add(1)
		go func(i int, c Child) {
			defer wg.Done()
			errs[i] = c.Device.Connect(ctx, childReq)
		}(i, c)
	}
	wg.Wait()

	var failures []Failure
	for i, err := range errs {
		if err == nil {
			continue
		}
		failures = append(failures, Failure{
			Name:     children[i].Name,
			Err:      err,
			TimedOut: errors.Is(err, context.DeadlineExceeded),
		})
	}
	return newNotConnected(failures)
}

// ConnectorFunc adapts a plain function into a leaf Connector with no
// child materialisation.
type ConnectorFunc func(ctx context.Context, self Device, req ConnectRequest) error

func (ConnectorFunc) MaterializeChildren(Device) error { return nil }

func (f ConnectorFunc) Connect(ctx context.Context, self Device, req ConnectRequest) error {
	return f(ctx, self, req)
}
