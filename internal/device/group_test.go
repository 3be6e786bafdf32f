package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestGroup_AddNamesDevice(t *testing.T) {
	g := NewGroup(GroupOptions{SkipConnect: true})
	motor := NewComposite()
	sig := newTestDevice(t, &countingConnector{})
	if err := motor.Attach("position", sig); err != nil {
		t.Fatal(err)
	}

	if err := g.Add("table1", motor); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if got := motor.Name(); got != "table1" {
		t.Errorf("device name = %q, want %q", got, "table1")
	}
	if got := sig.Name(); got != "table1-position" {
		t.Errorf("child name = %q, want %q", got, "table1-position")
	}
}

func TestGroup_AddKeepsExistingName(t *testing.T) {
	g := NewGroup(GroupOptions{SkipConnect: true})
	d := NewComposite()
	d.SetName("custom")

	if err := g.Add("registered", d); err != nil {
		t.Fatal(err)
	}
	if got := d.Name(); got != "custom" {
		t.Errorf("name = %q, pre-named devices keep their name", got)
	}
}

func TestGroup_SkipNameLeavesUnnamed(t *testing.T) {
	g := NewGroup(GroupOptions{SkipName: true, SkipConnect: true})
	d := NewComposite()

	if err := g.Add("x", d); err != nil {
		t.Fatal(err)
	}
	if got := d.Name(); got != "" {
		t.Errorf("name = %q, want empty with SkipName", got)
	}
}

func TestGroup_AddValidation(t *testing.T) {
	g := NewGroup(GroupOptions{SkipConnect: true})

	if err := g.Add("", NewComposite()); !errors.Is(err, ErrEmptyChildName) {
		t.Errorf("empty name: got %v", err)
	}
	if err := g.Add("x", nil); !errors.Is(err, ErrNilChild) {
		t.Errorf("nil device: got %v", err)
	}
	if err := g.Add("x", NewComposite()); err != nil {
		t.Fatal(err)
	}
	if err := g.Add("x", NewComposite()); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("duplicate: got %v", err)
	}
}

func TestGroup_ConnectAggregatesFailures(t *testing.T) {
	g := NewGroup(GroupOptions{Timeout: time.Second})

	if err := g.Add("good", newTestDevice(t, &countingConnector{})); err != nil {
		t.Fatal(err)
	}
	if err := g.Add("bad", newTestDevice(t, &countingConnector{err: errors.New("refused")})); err != nil {
		t.Fatal(err)
	}

	err := g.Connect(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}

	var agg *NotConnectedError
	if !errors.As(err, &agg) {
		t.Fatalf("error type = %T", err)
	}
	failures := agg.Failures()
	if len(failures) != 1 || failures[0].Name != "bad" {
		t.Errorf("failures = %+v, want exactly the bad device", failures)
	}
}

func TestGroup_SkipConnect(t *testing.T) {
	conn := &countingConnector{}
	g := NewGroup(GroupOptions{SkipConnect: true})
	if err := g.Add("d", newTestDevice(t, conn)); err != nil {
		t.Fatal(err)
	}

	if err := g.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := conn.calls.Load(); got != 0 {
		t.Errorf("connector called %d times, want 0", got)
	}
}

func TestGroup_MockModePopulatesRegistry(t *testing.T) {
	reg := NewMockRegistry()
	g := NewGroup(GroupOptions{Mock: true, Registry: reg})

	a := newTestDevice(t, &countingConnector{})
	b := newTestDevice(t, &countingConnector{})
	if err := g.Add("a", a); err != nil {
		t.Fatal(err)
	}
	if err := g.Add("b", b); err != nil {
		t.Fatal(err)
	}

	if err := g.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if reg.Len() != 2 {
		t.Fatalf("registry bindings = %d, want 2", reg.Len())
	}
	ma, _ := reg.Lookup(a)
	mb, _ := reg.Lookup(b)
	if ma == nil || mb == nil || ma == mb {
		t.Error("each top-level device should get its own controller")
	}
}

func TestGroup_ReentrantConnectRejected(t *testing.T) {
	g := NewGroup(GroupOptions{Timeout: time.Second})
	release := make(chan struct{})
	blocking := ConnectorFunc(func(ctx context.Context, _ Device, _ ConnectRequest) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err := g.Add("d", newTestDevice(t, blocking)); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	firstErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		firstErr <- g.Connect(context.Background())
	}()

	// Wait for the first connect to be in flight.
	deadline := time.After(time.Second)
	for {
		d, _ := g.Device("d")
		if d.base().ConnectState() == StateConnecting {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first connect never started")
		case <-time.After(time.Millisecond):
		}
	}

	if err := g.Connect(context.Background()); !errors.Is(err, ErrConnectInProgress) {
		t.Errorf("re-entrant connect: got %v, want ErrConnectInProgress", err)
	}

	close(release)
	wg.Wait()
	if err := <-firstErr; err != nil {
		t.Errorf("first connect: %v", err)
	}

	// After completion the group accepts connects again.
	if err := g.Connect(context.Background()); err != nil {
		t.Errorf("connect after completion: %v", err)
	}
}

func TestGroup_DevicesInRegistrationOrder(t *testing.T) {
	g := NewGroup(GroupOptions{SkipConnect: true})
	for _, n := range []string{"c", "a", "b"} {
		if err := g.Add(n, NewComposite()); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	for _, c := range g.Devices() {
		got = append(got, c.Name)
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
