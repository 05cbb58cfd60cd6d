// Package account manages the ed25519 identities that sign
// transactions submitted to the sandbox host.
package account

import (
	"github.com/chain/txvm/errors"
	"github.com/stellar/go/keypair"

	"github.com/Kleo-p/algo-wear"
)

// ErrBadSignature is the root of signature verification failures.
var ErrBadSignature = errors.New("bad signature")

// New generates a random keypair.
func New() (*keypair.Full, error) {
	kp, err := keypair.Random()
	return kp, errors.Wrap(err, "generating random keypair")
}

// FromSeed restores a keypair from its strkey seed.
func FromSeed(seed string) (*keypair.Full, error) {
	kp, err := keypair.Parse(seed)
	if err != nil {
		return nil, errors.Wrap(err, "parsing seed")
	}
	full, ok := kp.(*keypair.Full)
	if !ok {
		return nil, errors.New("not a seed")
	}
	return full, nil
}

// Address returns the wear address of kp.
func Address(kp keypair.KP) (wear.Address, error) {
	return wear.ParseAddress(kp.Address())
}

// SignedTxn is a transaction with its sender's signature over the
// transaction ID.
type SignedTxn struct {
	Txn wear.Txn `json:"txn"`
	Sig []byte   `json:"sig"`
}

// Sign signs txn with kp, which must be the key of txn's sender.
func Sign(kp *keypair.Full, txn wear.Txn) (SignedTxn, error) {
	addr, err := Address(kp)
	if err != nil {
		return SignedTxn{}, err
	}
	if addr != txn.Sender {
		return SignedTxn{}, errors.WithDetailf(ErrBadSignature, "signer %s is not sender %s", addr, txn.Sender)
	}
	id := txn.ID()
	sig, err := kp.Sign(id[:])
	if err != nil {
		return SignedTxn{}, errors.Wrap(err, "signing txn")
	}
	return SignedTxn{Txn: txn, Sig: sig}, nil
}

// SignGroup signs each transaction of a group with the key of its
// sender, looked up in keys by address.
func SignGroup(keys map[wear.Address]*keypair.Full, txns []wear.Txn) ([]SignedTxn, error) {
	out := make([]SignedTxn, 0, len(txns))
	for i, txn := range txns {
		kp, ok := keys[txn.Sender]
		if !ok {
			return nil, errors.WithDetailf(ErrBadSignature, "no key for sender %s of txn %d", txn.Sender, i)
		}
		st, err := Sign(kp, txn)
		if err != nil {
			return nil, errors.Wrapf(err, "signing txn %d", i)
		}
		out = append(out, st)
	}
	return out, nil
}

// Verify checks that st is signed by its sender.
func Verify(st SignedTxn) error {
	kp, err := keypair.Parse(st.Txn.Sender.String())
	if err != nil {
		return errors.Wrap(err, "parsing sender")
	}
	id := st.Txn.ID()
	err = kp.Verify(id[:], st.Sig)
	if err != nil {
		return errors.WithDetailf(ErrBadSignature, "txn %x: %s", id[:], err)
	}
	return nil
}
