// Package signal provides leaf devices that wrap a single transport
// endpoint.
//
// A Signal is the smallest connectable unit in a device tree: it has no
// children, one Backend, and a value type fixed at construction. Real
// connects delegate to the backend; mock connects bypass it entirely and
// record against the subtree's mock controller, so trees can be exercised
// without any transport running.
//
// Backends included here: Soft (in-memory, always connectable). The mqtt
// package provides a broker-backed Backend with the same contract.
package signal
