package account

import (
	"testing"

	"github.com/chain/txvm/errors"
	"github.com/stellar/go/keypair"

	"github.com/Kleo-p/algo-wear"
)

func TestSignVerify(t *testing.T) {
	kp, err := New()
	if err != nil {
		t.Fatal(err)
	}
	addr, err := Address(kp)
	if err != nil {
		t.Fatal(err)
	}
	if addr.String() != kp.Address() {
		t.Fatalf("got address %s, want %s", addr, kp.Address())
	}

	st, err := Sign(kp, wear.UpdateStockTxn(addr, 7, 10))
	if err != nil {
		t.Fatal(err)
	}
	if err := Verify(st); err != nil {
		t.Fatalf("verifying own signature: %s", err)
	}

	st.Txn.Args[1] = wear.Itob(11)
	if err := Verify(st); errors.Root(err) != ErrBadSignature {
		t.Fatalf("got %v verifying tampered txn, want %s", err, ErrBadSignature)
	}
}

func TestSignWrongKey(t *testing.T) {
	kp1, err := New()
	if err != nil {
		t.Fatal(err)
	}
	kp2, err := New()
	if err != nil {
		t.Fatal(err)
	}
	addr2, err := Address(kp2)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Sign(kp1, wear.DeleteTxn(addr2, 1))
	if errors.Root(err) != ErrBadSignature {
		t.Fatalf("got %v signing for another sender, want %s", err, ErrBadSignature)
	}
}

func TestFromSeed(t *testing.T) {
	kp, err := New()
	if err != nil {
		t.Fatal(err)
	}
	got, err := FromSeed(kp.Seed())
	if err != nil {
		t.Fatal(err)
	}
	if got.Address() != kp.Address() {
		t.Errorf("got address %s, want %s", got.Address(), kp.Address())
	}
	if _, err := FromSeed(kp.Address()); err == nil {
		t.Error("expected an error restoring from an address")
	}
}

func TestSignGroup(t *testing.T) {
	buyer, err := New()
	if err != nil {
		t.Fatal(err)
	}
	seller, err := New()
	if err != nil {
		t.Fatal(err)
	}
	buyerAddr, _ := Address(buyer)
	sellerAddr, _ := Address(seller)

	group := wear.BuyGroup(buyerAddr, 3, sellerAddr, 90)
	keys := map[wear.Address]*keypair.Full{buyerAddr: buyer}
	signed, err := SignGroup(keys, group)
	if err != nil {
		t.Fatal(err)
	}
	for i, st := range signed {
		if err := Verify(st); err != nil {
			t.Errorf("txn %d: %s", i, err)
		}
	}

	_, err = SignGroup(map[wear.Address]*keypair.Full{sellerAddr: seller}, group)
	if errors.Root(err) != ErrBadSignature {
		t.Errorf("got %v signing without the buyer's key, want %s", err, ErrBadSignature)
	}
}
