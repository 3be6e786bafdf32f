package device

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Vector is a device whose children are addressed by non-negative
// integer key instead of field name. Keys need not be contiguous; the
// child set iterates in ascending key order and child names derive from
// the decimal key ("bank" + key 3 propagates as "bank-3").
//
// Insert children with Set; Attach always fails on a Vector.
type Vector struct {
	Base

	vm    sync.Mutex // guards keys and items; Base.mu guards Base state only
	keys  []int
	items map[int]Device
}

// NewVector creates an unnamed, empty vector device.
func NewVector() *Vector {
	v := &Vector{
		items: make(map[int]Device),
	}
	_ = v.Init(v, "", ChildConnector{})
	return v
}

// Set inserts or replaces the child at key, binding its parent link to
// the vector. The single-parent invariant applies exactly as for Attach.
// Replacing a key leaves the old child parented to the vector but out of
// the child set.
func (v *Vector) Set(key int, child Device) error {
	if child == nil {
		return ErrNilChild
	}
	if key < 0 {
		return fmt.Errorf("%w: %d", ErrVectorKey, key)
	}
	if _, err := bindParent(child, v); err != nil {
		return fmt.Errorf("setting vector key %d: %w", key, err)
	}

	v.vm.Lock()
	defer v.vm.Unlock()
	if _, ok := v.items[key]; !ok {
		v.keys = append(v.keys, key)
		sort.Ints(v.keys)
	}
	v.items[key] = child
	return nil
}

// Get returns the child at key, or false if the key is unset.
func (v *Vector) Get(key int) (Device, bool) {
	v.vm.Lock()
	defer v.vm.Unlock()
	d, ok := v.items[key]
	return d, ok
}

// Delete removes the child at key. The child keeps its parent link; the
// vector simply stops enumerating it.
func (v *Vector) Delete(key int) {
	v.vm.Lock()
	defer v.vm.Unlock()
	if _, ok := v.items[key]; !ok {
		return
	}
	delete(v.items, key)
	for i, k := range v.keys {
		if k == key {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of children.
func (v *Vector) Len() int {
	v.vm.Lock()
	defer v.vm.Unlock()
	return len(v.items)
}

// Keys returns the set keys in ascending order.
func (v *Vector) Keys() []int {
	v.vm.Lock()
	defer v.vm.Unlock()
	out := make([]int, len(v.keys))
	copy(out, v.keys)
	return out
}

// Children returns the keyed children in ascending key order, named by
// their decimal key so naming and fan-out treat them like any child set.
func (v *Vector) Children() []Child {
	v.vm.Lock()
	defer v.vm.Unlock()
	out := make([]Child, 0, len(v.keys))
	for _, k := range v.keys {
		out = append(out, Child{Name: strconv.Itoa(k), Device: v.items[k]})
	}
	return out
}

// Attach is not supported on vectors.
func (v *Vector) Attach(string, Device) error {
	return ErrVectorAttach
}
