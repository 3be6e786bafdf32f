// Package device provides the device tree core for Conduit.
//
// A device tree is a hierarchy of named, connectable nodes. Leaves wrap a
// transport backend (MQTT signal, soft in-memory value); composites own
// named children or integer-indexed collections. The package owns three
// concerns: tree composition and naming, the connect orchestration state
// machine, and batch naming/connection of top-level devices.
//
// # Key Types
//
//   - Device: the interface every tree node implements
//   - Base: embeddable implementation of Device (naming, children, connect cache)
//   - Vector: a device whose children are addressed by integer key
//   - Connector: strategy for materialising and connecting a device's children
//   - Group: batch registration, naming, and connection of top-level devices
//   - Mock / MockRegistry: simulated-connection controllers and their bindings
//
// # Composition
//
// Children are registered explicitly with Attach (or Set on a Vector). The
// attach operation binds the child's parent link atomically: a device has at
// most one parent, and attaching an already-parented device to a different
// parent fails with ErrAlreadyParented. Naming propagates top-down through
// the current child set on every SetName call:
//
//	motor := NewComposite()
//	motor.Attach("position", positionSignal)
//	motor.SetName("table1")       // positionSignal is now "table1-position"
//
// # Connecting
//
// Connect establishes a live connection to a device and, through its
// Connector's fan-out, to every descendant, concurrently, under one timeout
// that encloses the whole subtree. A successful or still-running attempt in
// the same mode (real vs. mock) is reused, so concurrent callers converge
// on a single fan-out; a finished-failed attempt, a mode switch, or Force
// starts a fresh one. Failures are folded at each fan-out boundary into a
// single NotConnectedError enumerating every failed child by name.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. The only cross-device
// shared state is the MockRegistry, which is append-only and internally
// locked. Devices are compared and used as map keys by pointer identity.
package device
