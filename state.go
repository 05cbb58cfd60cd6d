package wear

import (
	"encoding/binary"
	"fmt"

	"github.com/chain/txvm/errors"
)

// ValueKind distinguishes the two kinds of global state values.
// The numbering follows the host's encoding.
type ValueKind uint8

const (
	KindBytes ValueKind = 1
	KindUint  ValueKind = 2
)

func (k ValueKind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindUint:
		return "uint"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a single global state value.
type Value struct {
	Kind  ValueKind `json:"kind"`
	Bytes []byte    `json:"bytes,omitempty"`
	Uint  uint64    `json:"uint,omitempty"`
}

// BytesValue returns a bytes-kind Value holding a copy of b.
func BytesValue(b []byte) Value {
	return Value{Kind: KindBytes, Bytes: append([]byte{}, b...)}
}

// UintValue returns a uint-kind Value.
func UintValue(u uint64) Value {
	return Value{Kind: KindUint, Uint: u}
}

// Encode returns the value's payload as bytes.
// Uint values are encoded as 8 big-endian bytes.
func (v Value) Encode() []byte {
	if v.Kind == KindUint {
		return Itob(v.Uint)
	}
	return append([]byte{}, v.Bytes...)
}

// DecodeValue is the inverse of Value.Encode.
func DecodeValue(kind ValueKind, payload []byte) (Value, error) {
	switch kind {
	case KindBytes:
		return BytesValue(payload), nil
	case KindUint:
		if len(payload) != 8 {
			return Value{}, fmt.Errorf("uint payload is %d bytes, want 8", len(payload))
		}
		return UintValue(binary.BigEndian.Uint64(payload)), nil
	}
	return Value{}, fmt.Errorf("unknown value kind %d", kind)
}

// GlobalState is the key-value storage an application's approval
// logic reads and writes. The host supplies it; writes made during a
// rejected call must never become visible.
type GlobalState interface {
	// Get returns the value stored under key and whether it exists.
	Get(key string) (Value, bool, error)
	Put(key string, v Value) error
}

// ErrKind is the root of errors for a value of the wrong kind.
var ErrKind = errors.New("wrong value kind")

func getUint(gs GlobalState, key string) (uint64, error) {
	v, ok, err := gs.Get(key)
	if err != nil {
		return 0, errors.Wrapf(err, "reading %s", key)
	}
	if !ok {
		return 0, nil
	}
	if v.Kind != KindUint {
		return 0, errors.WithDetailf(ErrKind, "%s holds %s", key, v.Kind)
	}
	return v.Uint, nil
}

func getBytes(gs GlobalState, key string) ([]byte, error) {
	v, ok, err := gs.Get(key)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", key)
	}
	if !ok {
		return nil, nil
	}
	if v.Kind != KindBytes {
		return nil, errors.WithDetailf(ErrKind, "%s holds %s", key, v.Kind)
	}
	return v.Bytes, nil
}

// Btoi converts big-endian bytes to an integer.
// Empty input is zero; more than 8 bytes is an error.
func Btoi(b []byte) (uint64, error) {
	if len(b) > 8 {
		return 0, fmt.Errorf("btoi: %d bytes exceeds 8", len(b))
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// Itob converts an integer to 8 big-endian bytes.
func Itob(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}
