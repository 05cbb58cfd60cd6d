package store

import (
	"sort"

	"github.com/Kleo-p/algo-wear"
)

// Mem is an in-memory wear.GlobalState.
type Mem struct {
	vals map[string]wear.Value
}

// NewMem returns an empty Mem.
func NewMem() *Mem {
	return &Mem{vals: make(map[string]wear.Value)}
}

func (m *Mem) Get(key string) (wear.Value, bool, error) {
	v, ok := m.vals[key]
	return v, ok, nil
}

func (m *Mem) Put(key string, v wear.Value) error {
	m.vals[key] = copyValue(v)
	return nil
}

// Snapshot returns a copy of every value in m.
func (m *Mem) Snapshot() map[string]wear.Value {
	out := make(map[string]wear.Value, len(m.vals))
	for k, v := range m.vals {
		out[k] = copyValue(v)
	}
	return out
}

// Len returns the number of keys in m.
func (m *Mem) Len() int {
	return len(m.vals)
}

// Overlay buffers writes on top of a base state.
// Reads see buffered writes first. Nothing reaches the base until Commit.
type Overlay struct {
	base   wear.GlobalState
	writes map[string]wear.Value
}

// NewOverlay returns an Overlay over base.
func NewOverlay(base wear.GlobalState) *Overlay {
	return &Overlay{
		base:   base,
		writes: make(map[string]wear.Value),
	}
}

func (o *Overlay) Get(key string) (wear.Value, bool, error) {
	if v, ok := o.writes[key]; ok {
		return v, true, nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Put(key string, v wear.Value) error {
	o.writes[key] = copyValue(v)
	return nil
}

// Keys returns the keys written to o, sorted.
func (o *Overlay) Keys() []string {
	keys := make([]string, 0, len(o.writes))
	for k := range o.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Commit applies the buffered writes to the base in key order
// and clears the buffer.
func (o *Overlay) Commit() error {
	for _, k := range o.Keys() {
		err := o.base.Put(k, o.writes[k])
		if err != nil {
			return err
		}
	}
	o.Discard()
	return nil
}

// Discard drops the buffered writes.
func (o *Overlay) Discard() {
	o.writes = make(map[string]wear.Value)
}

func copyValue(v wear.Value) wear.Value {
	if v.Bytes != nil {
		v.Bytes = append([]byte{}, v.Bytes...)
	}
	return v
}
