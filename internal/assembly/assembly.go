package assembly

import (
	"fmt"
	"sort"

	"github.com/nerrad567/conduit-core/internal/device"
	"github.com/nerrad567/conduit-core/internal/infrastructure/config"
	"github.com/nerrad567/conduit-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/conduit-core/internal/signal"
)

// Options configures tree assembly.
type Options struct {
	// Session supplies MQTT backends. Nil assembles soft-backed signals,
	// for broker-less deployments and tests.
	Session *mqtt.Session

	// Group is passed through to the device group that registers the
	// assembled devices.
	Group device.GroupOptions
}

// Build assembles the configured device tree into a fresh group.
//
// Devices are added in configuration order; signal and bank names are
// sorted so assembly is deterministic. The group is returned unconnected;
// call Connect on it when ready.
//
// Returns:
//   - *device.Group: The populated group
//   - error: If construction or registration of any device fails
func Build(tree config.TreeConfig, opts Options) (*device.Group, error) {
	g := device.NewGroup(opts.Group)

	for _, dc := range tree.Devices {
		dev, err := buildDevice(dc, opts.Session)
		if err != nil {
			return nil, fmt.Errorf("assembling device %q: %w", dc.Name, err)
		}
		if err := g.Add(dc.Name, dev); err != nil {
			return nil, fmt.Errorf("registering device %q: %w", dc.Name, err)
		}
	}

	return g, nil
}

// buildDevice assembles one composite with its signals and banks.
func buildDevice(dc config.DeviceConfig, session *mqtt.Session) (device.Device, error) {
	root := device.NewComposite()

	for _, name := range sortedKeys(dc.Signals) {
		sig, err := buildSignal(session, dc.Name, dc.Signals[name])
		if err != nil {
			return nil, fmt.Errorf("signal %q: %w", name, err)
		}
		if err := root.Attach(name, sig); err != nil {
			return nil, fmt.Errorf("attaching signal %q: %w", name, err)
		}
	}

	for _, bankName := range sortedKeys(dc.Banks) {
		bank := device.NewVector()
		for i, field := range dc.Banks[bankName] {
			sig, err := buildSignal(session, dc.Name, field)
			if err != nil {
				return nil, fmt.Errorf("bank %q element %d: %w", bankName, i, err)
			}
			if err := bank.Set(i, sig); err != nil {
				return nil, fmt.Errorf("bank %q element %d: %w", bankName, i, err)
			}
		}
		if err := root.Attach(bankName, bank); err != nil {
			return nil, fmt.Errorf("attaching bank %q: %w", bankName, err)
		}
	}

	return root, nil
}

// buildSignal creates one leaf over the right backend for the deployment.
func buildSignal(session *mqtt.Session, deviceName, field string) (*signal.Signal, error) {
	var backend signal.Backend
	if session != nil {
		backend = mqtt.NewBackend(session, deviceName, field)
	} else {
		backend = signal.NewSoft(deviceName + "/" + field)
	}
	return signal.New(backend)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
