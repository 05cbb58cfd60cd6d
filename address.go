package wear

import (
	"encoding/hex"
	"fmt"

	"github.com/stellar/go/strkey"
)

// Address identifies an account by its ed25519 public key.
// Its text form is a strkey account ID.
type Address [32]byte

// ZeroAddress is the address of no account.
var ZeroAddress Address

// AddressFromBytes copies a 32-byte public key into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != len(a) {
		return a, fmt.Errorf("address is %d bytes, want %d", len(b), len(a))
	}
	copy(a[:], b)
	return a, nil
}

// ParseAddress decodes a strkey account ID.
func ParseAddress(s string) (Address, error) {
	raw, err := strkey.Decode(strkey.VersionByteAccountID, s)
	if err != nil {
		return ZeroAddress, fmt.Errorf("parsing address %q: %s", s, err)
	}
	return AddressFromBytes(raw)
}

func (a Address) String() string {
	s, err := strkey.Encode(strkey.VersionByteAccountID, a[:])
	if err != nil {
		return hex.EncodeToString(a[:])
	}
	return s
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
