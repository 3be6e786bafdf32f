package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingConnector counts Connect calls and returns a scripted error.
type countingConnector struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (c *countingConnector) MaterializeChildren(Device) error { return nil }

func (c *countingConnector) Connect(ctx context.Context, _ Device, _ ConnectRequest) error {
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.err
}

type testDevice struct {
	Base
}

func newTestDevice(t *testing.T, c Connector) *testDevice {
	t.Helper()
	d := &testDevice{}
	if err := d.Init(d, "", c); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return d
}

func TestConnect_SuccessIsCached(t *testing.T) {
	conn := &countingConnector{}
	d := newTestDevice(t, conn)

	for i := 0; i < 3; i++ {
		if err := d.Connect(context.Background(), ConnectRequest{}); err != nil {
			t.Fatalf("Connect %d: %v", i, err)
		}
	}

	if got := conn.calls.Load(); got != 1 {
		t.Errorf("connector called %d times, want 1", got)
	}
	if got := d.ConnectState(); got != StateConnected {
		t.Errorf("state = %v, want %v", got, StateConnected)
	}
}

func TestConnect_FailureRetriesOnNextCall(t *testing.T) {
	conn := &countingConnector{err: errors.New("backend down")}
	d := newTestDevice(t, conn)

	if err := d.Connect(context.Background(), ConnectRequest{}); err == nil {
		t.Fatal("expected first connect to fail")
	}
	if got := d.ConnectState(); got != StateFailed {
		t.Errorf("state after failure = %v, want %v", got, StateFailed)
	}

	conn.err = nil
	if err := d.Connect(context.Background(), ConnectRequest{}); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if got := conn.calls.Load(); got != 2 {
		t.Errorf("connector called %d times, want 2", got)
	}
}

func TestConnect_ForceReconnects(t *testing.T) {
	conn := &countingConnector{}
	d := newTestDevice(t, conn)

	if err := d.Connect(context.Background(), ConnectRequest{}); err != nil {
		t.Fatal(err)
	}
	if err := d.Connect(context.Background(), ConnectRequest{Force: true}); err != nil {
		t.Fatal(err)
	}

	if got := conn.calls.Load(); got != 2 {
		t.Errorf("connector called %d times, want 2", got)
	}
}

func TestConnect_ModeSwitchReconnects(t *testing.T) {
	conn := &countingConnector{}
	d := newTestDevice(t, conn)
	ctx := context.Background()

	if err := d.Connect(ctx, ConnectRequest{Mock: true}); err != nil {
		t.Fatal(err)
	}
	if err := d.Connect(ctx, ConnectRequest{}); err != nil {
		t.Fatal(err)
	}
	if err := d.Connect(ctx, ConnectRequest{Mock: true}); err != nil {
		t.Fatal(err)
	}

	if got := conn.calls.Load(); got != 3 {
		t.Errorf("connector called %d times, want 3", got)
	}
}

func TestConnect_ConcurrentSameModeSharesAttempt(t *testing.T) {
	conn := &countingConnector{delay: 50 * time.Millisecond}
	d := newTestDevice(t, conn)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = d.Connect(context.Background(), ConnectRequest{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if got := conn.calls.Load(); got != 1 {
		t.Errorf("connector called %d times, want 1", got)
	}
}

func TestConnect_AbandonedWaitDoesNotFailAttempt(t *testing.T) {
	conn := &countingConnector{delay: 30 * time.Millisecond}
	d := newTestDevice(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Connect(ctx, ConnectRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: got %v, want context.Canceled", err)
	}

	// The attempt above was bound to the cancelled context, so it ends
	// cancelled; a fresh call must start a new attempt and succeed.
	if err := d.Connect(context.Background(), ConnectRequest{}); err != nil {
		t.Fatalf("fresh connect: %v", err)
	}
}

func TestConnect_TimeoutClassifiedInAggregate(t *testing.T) {
	slow := newTestDevice(t, &countingConnector{delay: time.Second})
	fast := newTestDevice(t, &countingConnector{})
	bad := newTestDevice(t, &countingConnector{err: errors.New("refused")})

	p := NewComposite()
	for name, d := range map[string]Device{"slow": slow, "fast": fast, "bad": bad} {
		if err := p.Attach(name, d); err != nil {
			t.Fatal(err)
		}
	}
	p.SetName("p")

	err := p.Connect(context.Background(), ConnectRequest{Timeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatal("expected aggregate failure")
	}
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("aggregate does not match ErrNotConnected: %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("aggregate does not surface deadline: %v", err)
	}

	var agg *NotConnectedError
	if !errors.As(err, &agg) {
		t.Fatalf("error type = %T", err)
	}
	byName := map[string]Failure{}
	for _, f := range agg.Failures() {
		byName[f.Name] = f
	}
	if len(byName) != 2 {
		t.Fatalf("failures = %v, want slow and bad only", byName)
	}
	if f, ok := byName["slow"]; !ok || !f.TimedOut {
		t.Errorf("slow failure = %+v, want TimedOut", f)
	}
	if f, ok := byName["bad"]; !ok || f.TimedOut {
		t.Errorf("bad failure = %+v, want not TimedOut", f)
	}
}

func TestConnect_AggregateMessageNestsChildren(t *testing.T) {
	inner := newTestDevice(t, &countingConnector{err: errors.New("refused")})
	mid := NewComposite()
	top := NewComposite()

	if err := mid.Attach("sig", inner); err != nil {
		t.Fatal(err)
	}
	if err := top.Attach("stage", mid); err != nil {
		t.Fatal(err)
	}
	top.SetName("top")

	err := top.Connect(context.Background(), ConnectRequest{})
	if err == nil {
		t.Fatal("expected failure")
	}

	msg := err.Error()
	if !strings.Contains(msg, "not connected:") {
		t.Errorf("message missing header: %q", msg)
	}
	if !strings.Contains(msg, "stage:") {
		t.Errorf("message missing failing branch: %q", msg)
	}
	if !strings.Contains(msg, "    sig: refused") {
		t.Errorf("message missing indented leaf cause: %q", msg)
	}
}

func TestConnect_FanOutLaunchesAllChildren(t *testing.T) {
	// Both children sleep; if they ran sequentially the total would
	// exceed the timeout, concurrently they both finish.
	c1 := &countingConnector{delay: 60 * time.Millisecond}
	c2 := &countingConnector{delay: 60 * time.Millisecond}
	p := NewComposite()
	if err := p.Attach("a", newTestDevice(t, c1)); err != nil {
		t.Fatal(err)
	}
	if err := p.Attach("b", newTestDevice(t, c2)); err != nil {
		t.Fatal(err)
	}

	err := p.Connect(context.Background(), ConnectRequest{Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("concurrent fan-out: %v", err)
	}
}

func TestConnect_MockControllerDerivedPerChild(t *testing.T) {
	var leafMock *Mock
	var mu sync.Mutex
	leafConn := ConnectorFunc(func(_ context.Context, _ Device, req ConnectRequest) error {
		mu.Lock()
		leafMock = req.MockController
		mu.Unlock()
		return nil
	})

	child := newTestDevice(t, leafConn)
	p := NewComposite()
	if err := p.Attach("motor", child); err != nil {
		t.Fatal(err)
	}

	root := NewMock()
	if err := p.Connect(context.Background(), ConnectRequest{MockController: root}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	got := leafMock
	mu.Unlock()
	if got != root.Child("motor") {
		t.Error("leaf did not receive the controller derived for its name")
	}
	if got.Parent() != root {
		t.Error("derived controller not parented to the root controller")
	}
}

func TestConnect_FreshMockPerNewFanOut(t *testing.T) {
	reg := NewMockRegistry()
	conn := &countingConnector{}
	d := newTestDevice(t, conn)
	ctx := context.Background()

	if err := d.Connect(ctx, ConnectRequest{Mock: true, Registry: reg}); err != nil {
		t.Fatal(err)
	}
	first, ok := reg.Lookup(d)
	if !ok {
		t.Fatal("no registry binding after mock connect")
	}

	// Cached connect in the same mode does not rebind.
	if err := d.Connect(ctx, ConnectRequest{Mock: true, Registry: reg}); err != nil {
		t.Fatal(err)
	}
	cached, _ := reg.Lookup(d)
	if cached != first {
		t.Error("cached mock connect replaced the controller")
	}

	// Forced reconnect starts a new fan-out with a fresh controller.
	if err := d.Connect(ctx, ConnectRequest{Mock: true, Registry: reg, Force: true}); err != nil {
		t.Fatal(err)
	}
	fresh, _ := reg.Lookup(d)
	if fresh == first {
		t.Error("forced mock reconnect reused the old controller")
	}
}

func TestConnect_StateTransitions(t *testing.T) {
	conn := &countingConnector{delay: 40 * time.Millisecond}
	d := newTestDevice(t, conn)

	if got := d.ConnectState(); got != StateNeverConnected {
		t.Fatalf("initial state = %v", got)
	}

	done := make(chan error, 1)
	go func() { done <- d.Connect(context.Background(), ConnectRequest{}) }()

	// Poll for the connecting window.
	deadline := time.After(time.Second)
	for d.ConnectState() != StateConnecting {
		select {
		case <-deadline:
			t.Fatal("never observed connecting state")
		case <-time.After(time.Millisecond):
		}
	}

	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if got := d.ConnectState(); got != StateConnected {
		t.Errorf("final state = %v", got)
	}
}

func TestConnect_UninitialisedBaseFails(t *testing.T) {
	var b Base
	err := b.Connect(context.Background(), ConnectRequest{})
	if !errors.Is(err, ErrNotInitialised) {
		t.Errorf("got %v, want ErrNotInitialised", err)
	}
}

type recordingMonitor struct {
	mu       sync.Mutex
	started  []string
	finished []string
	errs     []error
}

func (m *recordingMonitor) ConnectStarted(d Device, id string, mock bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, d.Name())
}

func (m *recordingMonitor) ConnectFinished(d Device, id string, mock bool, elapsed time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, d.Name())
	m.errs = append(m.errs, err)
}

func TestConnect_MonitorObservesLifecycle(t *testing.T) {
	mon := &recordingMonitor{}
	d := newTestDevice(t, &countingConnector{})
	d.SetName("dev")
	d.SetMonitor(mon)

	if err := d.Connect(context.Background(), ConnectRequest{}); err != nil {
		t.Fatal(err)
	}
	// Cached call must not fire the monitor again.
	if err := d.Connect(context.Background(), ConnectRequest{}); err != nil {
		t.Fatal(err)
	}

	mon.mu.Lock()
	defer mon.mu.Unlock()
	if len(mon.started) != 1 || len(mon.finished) != 1 {
		t.Fatalf("monitor events: started=%d finished=%d, want 1/1", len(mon.started), len(mon.finished))
	}
	if mon.errs[0] != nil {
		t.Errorf("finished err = %v, want nil", mon.errs[0])
	}
}
