// Package wear implements the approval logic of the wear marketplace
// application.
//
// Each deployed application holds exactly one Listing in its global
// state. A seller creates the listing when the application is created,
// buyers purchase one unit at a time by pairing an application call with
// a payment to the seller, and the seller may change the discount or
// restock. Approve decides whether a single application call is accepted;
// the host is responsible for applying the writes it makes only when the
// whole group is accepted.
package wear

import (
	"bytes"

	"github.com/chain/txvm/errors"
)

// Marker is the note every creation transaction must carry.
// It also serves as the prefix indexers search for.
const Marker = "wear:uv3"

// Global state keys.
const (
	KeyCreator     = "_creator"
	KeyName        = "_name"
	KeyDescription = "_description"
	KeyAmount      = "_amount"
	KeyImage       = "_image"
	KeyStock       = "_stock"
	KeyDiscount    = "_discount"
)

// Keys lists every global key a listing occupies, in the order
// creation writes them.
var Keys = []string{
	KeyCreator,
	KeyName,
	KeyDescription,
	KeyImage,
	KeyAmount,
	KeyStock,
	KeyDiscount,
}

// Listing is the item record held in an application's global state.
type Listing struct {
	Creator     Address `json:"creator"`
	Name        []byte  `json:"name"`
	Description []byte  `json:"description"`
	Image       []byte  `json:"image"`
	Amount      uint64  `json:"amount"`
	Stock       uint64  `json:"stock"`
	Discount    uint64  `json:"discount"`
}

// Price returns the amount a buyer must pay for one unit.
// It reports false when the discount exceeds the amount.
func (l *Listing) Price() (uint64, bool) {
	if l.Discount > l.Amount {
		return 0, false
	}
	return l.Amount - l.Discount, true
}

// LoadListing reads a listing out of gs.
// Missing keys read as zero values, the way the host reports them.
func LoadListing(gs GlobalState) (*Listing, error) {
	var (
		l   Listing
		err error
	)
	creator, err := getBytes(gs, KeyCreator)
	if err != nil {
		return nil, err
	}
	if len(creator) > 0 {
		l.Creator, err = AddressFromBytes(creator)
		if err != nil {
			return nil, errors.Wrap(err, "decoding creator")
		}
	}
	if l.Name, err = getBytes(gs, KeyName); err != nil {
		return nil, err
	}
	if l.Description, err = getBytes(gs, KeyDescription); err != nil {
		return nil, err
	}
	if l.Image, err = getBytes(gs, KeyImage); err != nil {
		return nil, err
	}
	if l.Amount, err = getUint(gs, KeyAmount); err != nil {
		return nil, err
	}
	if l.Stock, err = getUint(gs, KeyStock); err != nil {
		return nil, err
	}
	if l.Discount, err = getUint(gs, KeyDiscount); err != nil {
		return nil, err
	}
	return &l, nil
}

// Store writes every field of l into gs.
func (l *Listing) Store(gs GlobalState) error {
	puts := []struct {
		key string
		val Value
	}{
		{KeyCreator, BytesValue(l.Creator[:])},
		{KeyName, BytesValue(l.Name)},
		{KeyDescription, BytesValue(l.Description)},
		{KeyImage, BytesValue(l.Image)},
		{KeyAmount, UintValue(l.Amount)},
		{KeyStock, UintValue(l.Stock)},
		{KeyDiscount, UintValue(l.Discount)},
	}
	for _, p := range puts {
		err := gs.Put(p.key, p.val)
		if err != nil {
			return errors.Wrapf(err, "writing %s", p.key)
		}
	}
	return nil
}

// Equal reports whether two listings hold identical values.
func (l *Listing) Equal(other *Listing) bool {
	return l.Creator == other.Creator &&
		bytes.Equal(l.Name, other.Name) &&
		bytes.Equal(l.Description, other.Description) &&
		bytes.Equal(l.Image, other.Image) &&
		l.Amount == other.Amount &&
		l.Stock == other.Stock &&
		l.Discount == other.Discount
}
