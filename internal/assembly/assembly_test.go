package assembly

import (
	"context"
	"strings"
	"testing"

	"github.com/nerrad567/conduit-core/internal/device"
	"github.com/nerrad567/conduit-core/internal/infrastructure/config"
	"github.com/nerrad567/conduit-core/internal/signal"
)

func testTree() config.TreeConfig {
	return config.TreeConfig{
		Devices: []config.DeviceConfig{
			{
				Name: "table1",
				Signals: map[string]string{
					"position": "position",
					"velocity": "velocity",
				},
			},
			{
				Name: "det",
				Signals: map[string]string{
					"exposure": "exposure",
				},
				Banks: map[string][]string{
					"channels": {"ch0", "ch1", "ch2"},
				},
			},
		},
	}
}

func TestBuild_SoftBackends(t *testing.T) {
	g, err := Build(testTree(), Options{Group: device.GroupOptions{SkipConnect: true}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	devices := g.Devices()
	if len(devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(devices))
	}

	table, ok := g.Device("table1")
	if !ok {
		t.Fatal("table1 not registered")
	}
	if table.Name() != "table1" {
		t.Errorf("name = %q", table.Name())
	}

	var names []string
	device.Walk(table, func(d device.Device) {
		names = append(names, d.Name())
	})
	want := []string{"table1", "table1-position", "table1-velocity"}
	if len(names) != len(want) {
		t.Fatalf("tree names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestBuild_BanksAreIndexed(t *testing.T) {
	g, err := Build(testTree(), Options{Group: device.GroupOptions{SkipConnect: true}})
	if err != nil {
		t.Fatal(err)
	}

	det, _ := g.Device("det")
	var bankNames []string
	device.Walk(det, func(d device.Device) {
		if strings.HasPrefix(d.Name(), "det-channels-") {
			bankNames = append(bankNames, d.Name())
		}
	})

	want := []string{"det-channels-0", "det-channels-1", "det-channels-2"}
	if len(bankNames) != len(want) {
		t.Fatalf("bank names = %v, want %v", bankNames, want)
	}
	for i := range want {
		if bankNames[i] != want[i] {
			t.Errorf("bank name[%d] = %q, want %q", i, bankNames[i], want[i])
		}
	}
}

func TestBuild_SoftTreeConnects(t *testing.T) {
	g, err := Build(testTree(), Options{})
	if err != nil {
		t.Fatal(err)
	}

	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("connecting soft tree: %v", err)
	}

	table, _ := g.Device("table1")
	if got := device.StateOf(table); got != device.StateConnected {
		t.Errorf("state = %v, want connected", got)
	}
}

func TestBuild_MockModeRecordsOnControllers(t *testing.T) {
	reg := device.NewMockRegistry()
	g, err := Build(testTree(), Options{
		Group: device.GroupOptions{Mock: true, Registry: reg},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("mock connect: %v", err)
	}

	table, _ := g.Device("table1")
	m, ok := reg.Lookup(table)
	if !ok {
		t.Fatal("table1 has no mock binding")
	}

	ops := m.Child("position").Ops()
	if len(ops) != 1 || ops[0].Name != "connect" {
		t.Errorf("position mock ops = %+v", ops)
	}
}

func TestBuild_DuplicateDeviceName(t *testing.T) {
	tree := config.TreeConfig{
		Devices: []config.DeviceConfig{
			{Name: "x"},
			{Name: "x"},
		},
	}

	if _, err := Build(tree, Options{Group: device.GroupOptions{SkipConnect: true}}); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestBuild_SignalSources(t *testing.T) {
	g, err := Build(testTree(), Options{Group: device.GroupOptions{SkipConnect: true}})
	if err != nil {
		t.Fatal(err)
	}

	table, _ := g.Device("table1")
	var sources []string
	device.Walk(table, func(d device.Device) {
		if s, ok := d.(*signal.Signal); ok {
			sources = append(sources, s.Source())
		}
	})

	for _, src := range sources {
		if !strings.HasPrefix(src, "soft://table1/") {
			t.Errorf("source = %q, want soft backend", src)
		}
	}
}
