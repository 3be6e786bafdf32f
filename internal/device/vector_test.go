package device

import (
	"context"
	"errors"
	"testing"
)

func TestVector_SetAndNaming(t *testing.T) {
	v := NewVector()
	c0 := NewComposite()
	c1 := NewComposite()

	if err := v.Set(0, c0); err != nil {
		t.Fatalf("Set 0: %v", err)
	}
	if err := v.Set(1, c1); err != nil {
		t.Fatalf("Set 1: %v", err)
	}

	p := NewComposite()
	if err := p.Attach("c", v); err != nil {
		t.Fatalf("Attach vector: %v", err)
	}
	p.SetName("p")

	if got := v.Name(); got != "p-c" {
		t.Errorf("vector name = %q, want %q", got, "p-c")
	}
	if got := c0.Name(); got != "p-c-0" {
		t.Errorf("element 0 name = %q, want %q", got, "p-c-0")
	}
	if got := c1.Name(); got != "p-c-1" {
		t.Errorf("element 1 name = %q, want %q", got, "p-c-1")
	}
}

func TestVector_KeysAscendingAndSparse(t *testing.T) {
	v := NewVector()
	for _, k := range []int{7, 2, 5} {
		if err := v.Set(k, NewComposite()); err != nil {
			t.Fatalf("Set %d: %v", k, err)
		}
	}

	keys := v.Keys()
	want := []int{2, 5, 7}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %d, want %d", i, keys[i], want[i])
		}
	}

	children := v.Children()
	if children[0].Name != "2" || children[2].Name != "7" {
		t.Errorf("children names = %q,%q,%q, want decimal keys in order",
			children[0].Name, children[1].Name, children[2].Name)
	}
}

func TestVector_Validation(t *testing.T) {
	v := NewVector()

	if err := v.Set(-1, NewComposite()); !errors.Is(err, ErrVectorKey) {
		t.Errorf("negative key: got %v, want ErrVectorKey", err)
	}
	if err := v.Set(0, nil); !errors.Is(err, ErrNilChild) {
		t.Errorf("nil child: got %v, want ErrNilChild", err)
	}
	if err := v.Attach("x", NewComposite()); !errors.Is(err, ErrVectorAttach) {
		t.Errorf("attach: got %v, want ErrVectorAttach", err)
	}
}

func TestVector_SetRejectsParentedDevice(t *testing.T) {
	child := NewComposite()
	p := NewComposite()
	if err := p.Attach("c", child); err != nil {
		t.Fatal(err)
	}

	v := NewVector()
	if err := v.Set(0, child); !errors.Is(err, ErrAlreadyParented) {
		t.Errorf("got %v, want ErrAlreadyParented", err)
	}
	if v.Len() != 0 {
		t.Errorf("vector gained a child from a rejected Set")
	}
}

func TestVector_ReplaceAndDelete(t *testing.T) {
	v := NewVector()
	first := NewComposite()
	second := NewVector() // any device works as an element

	if err := v.Set(3, first); err != nil {
		t.Fatal(err)
	}
	if err := v.Set(3, second); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got, _ := v.Get(3); got != Device(second) {
		t.Error("replace did not take effect")
	}
	if v.Len() != 1 {
		t.Errorf("len after replace = %d, want 1", v.Len())
	}

	v.Delete(3)
	if _, ok := v.Get(3); ok {
		t.Error("key still present after Delete")
	}
	if v.Len() != 0 {
		t.Errorf("len after delete = %d, want 0", v.Len())
	}
}

func TestVector_ConnectFansOutOverElements(t *testing.T) {
	v := NewVector()
	good := newTestDevice(t, &countingConnector{})
	bad := newTestDevice(t, &countingConnector{err: errors.New("refused")})

	if err := v.Set(0, good); err != nil {
		t.Fatal(err)
	}
	if err := v.Set(1, bad); err != nil {
		t.Fatal(err)
	}
	v.SetName("bank")

	err := v.Connect(context.Background(), ConnectRequest{})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected aggregate", err)
	}

	var agg *NotConnectedError
	if !errors.As(err, &agg) {
		t.Fatalf("error type = %T", err)
	}
	failures := agg.Failures()
	if len(failures) != 1 || failures[0].Name != "1" {
		t.Errorf("failures = %+v, want exactly element 1", failures)
	}
}
