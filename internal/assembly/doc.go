// Package assembly builds the device tree declared in configuration.
//
// Each configured device becomes a composite; its signals become leaf
// devices over MQTT backends when a broker session is available, or soft
// in-memory backends otherwise. Banks become integer-indexed signal
// collections. The result is a group ready to name and connect the
// whole tree in one call.
package assembly
