package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/chain/txvm/errors"
	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap/zaptest"

	"github.com/Kleo-p/algo-wear"
)

var (
	seller   = testAddr(1)
	buyer    = testAddr(2)
	stranger = testAddr(3)
)

func testAddr(b byte) wear.Address {
	var a wear.Address
	a[0] = b
	a[31] = b
	return a
}

func testListing() *wear.Listing {
	return &wear.Listing{
		Name:        []byte("wool coat"),
		Description: []byte("size M"),
		Image:       []byte("https://example.com/coat.png"),
		Amount:      100,
		Stock:       5,
		Discount:    10,
	}
}

// withTestLedger runs fn against a ledger on a fresh sqlite file.
// Rounds close only when the test closes them.
func withTestLedger(t *testing.T, fn func(context.Context, *Ledger)) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	testdir, err := ioutil.TempDir("", "wearledger")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(testdir)

	db, err := sql.Open("sqlite3", fmt.Sprintf("%s/testdb", testdir))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	l, err := New(ctx, db, WithLogger(zaptest.NewLogger(t)), WithRoundInterval(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	fn(ctx, l)
}

func mustSubmit(ctx context.Context, t *testing.T, l *Ledger, txns ...wear.Txn) *Result {
	t.Helper()
	res, err := l.Submit(ctx, txns)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func mustCreate(ctx context.Context, t *testing.T, l *Ledger, creator wear.Address) uint64 {
	t.Helper()
	res := mustSubmit(ctx, t, l, wear.CreateTxn(creator, testListing()))
	id := res.Applied[0].CreatedAppID
	if id == 0 {
		t.Fatal("creation reported no app id")
	}
	return id
}

func mustFund(ctx context.Context, t *testing.T, l *Ledger, addr wear.Address, amount uint64) {
	t.Helper()
	_, err := l.Fund(ctx, addr, amount)
	if err != nil {
		t.Fatal(err)
	}
}

func wantBalance(ctx context.Context, t *testing.T, l *Ledger, addr wear.Address, want uint64) {
	t.Helper()
	got, err := l.Balance(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("got balance %d for %s, want %d", got, addr, want)
	}
}

func TestCreateAndBuy(t *testing.T) {
	withTestLedger(t, func(ctx context.Context, l *Ledger) {
		id := mustCreate(ctx, t, l, seller)
		if id != 1 {
			t.Errorf("got app id %d, want 1", id)
		}

		info, err := l.App(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		want := testListing()
		want.Creator = seller
		if diff := cmp.Diff(want, info.Listing); diff != "" {
			t.Errorf("listing mismatch (-want +got):\n%s", diff)
		}
		if info.Deployer != seller {
			t.Errorf("got deployer %s, want %s", info.Deployer, seller)
		}

		mustFund(ctx, t, l, buyer, 1000)
		res := mustSubmit(ctx, t, l, wear.BuyGroup(buyer, id, seller, 90)...)
		if res.Round != 2 {
			t.Errorf("group accepted into round %d, want 2", res.Round)
		}
		wantBalance(ctx, t, l, buyer, 910)
		wantBalance(ctx, t, l, seller, 90)

		info, err = l.App(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if info.Listing.Stock != 4 {
			t.Errorf("got stock %d after purchase, want 4", info.Listing.Stock)
		}
	})
}

func TestRefusedGroupsLeaveNoTrace(t *testing.T) {
	withTestLedger(t, func(ctx context.Context, l *Ledger) {
		id := mustCreate(ctx, t, l, seller)
		mustFund(ctx, t, l, buyer, 1000)
		mustFund(ctx, t, l, stranger, 50)

		before, err := l.App(ctx, id)
		if err != nil {
			t.Fatal(err)
		}

		ungrouped := wear.BuyGroup(buyer, id, seller, 90)
		ungrouped[0].Group, ungrouped[1].Group = [32]byte{}, [32]byte{}

		oddPay := wear.PayTxn(buyer, seller, 90)
		oddPay.OnCompletion = 9

		cases := []struct {
			name string
			txns []wear.Txn
			root error
		}{
			{"wrong price", wear.BuyGroup(buyer, id, seller, 89), wear.ErrRejected},
			{"poor buyer", wear.BuyGroup(stranger, id, seller, 90), ErrInsufficientFunds},
			{"unlinked", ungrouped, ErrMalformedGroup},
			{"no such app", wear.BuyGroup(buyer, id+1, seller, 90), ErrNoSuchApp},
			{"stranger restocks", []wear.Txn{wear.UpdateStockTxn(stranger, id, 50)}, wear.ErrRejected},
			{"stranger deletes", []wear.Txn{wear.DeleteTxn(stranger, id)}, wear.ErrRejected},
			{"empty", nil, ErrMalformedGroup},
			{"unknown on-completion", []wear.Txn{oddPay}, ErrMalformedGroup},
		}
		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				_, err := l.Submit(ctx, c.txns)
				if errors.Root(err) != c.root {
					t.Fatalf("got error %v, want root %s", err, c.root)
				}
				if !IsRejection(err) {
					t.Errorf("%v not reported as a rejection", err)
				}
			})
		}

		after, err := l.App(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(before, after); diff != "" {
			t.Errorf("refused groups changed the app (-before +after):\n%s", diff)
		}
		wantBalance(ctx, t, l, buyer, 1000)
		wantBalance(ctx, t, l, stranger, 50)
		wantBalance(ctx, t, l, seller, 0)
	})
}

func TestLaterFailureUndoesEarlierCall(t *testing.T) {
	withTestLedger(t, func(ctx context.Context, l *Ledger) {
		id := mustCreate(ctx, t, l, seller)
		mustFund(ctx, t, l, buyer, 89)

		// The call is approved on its own; the payment then overdraws.
		_, err := l.Submit(ctx, wear.BuyGroup(buyer, id, seller, 90))
		if errors.Root(err) != ErrInsufficientFunds {
			t.Fatalf("got error %v, want %s", err, ErrInsufficientFunds)
		}
		info, err := l.App(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if info.Listing.Stock != 5 {
			t.Errorf("got stock %d, want 5", info.Listing.Stock)
		}
	})
}

func TestSellerUpdates(t *testing.T) {
	withTestLedger(t, func(ctx context.Context, l *Ledger) {
		id := mustCreate(ctx, t, l, seller)
		mustSubmit(ctx, t, l, wear.ChangeDiscountTxn(seller, id, 40))
		mustSubmit(ctx, t, l, wear.UpdateStockTxn(seller, id, 1))

		mustFund(ctx, t, l, buyer, 60)
		mustSubmit(ctx, t, l, wear.BuyGroup(buyer, id, seller, 60)...)

		_, err := l.Submit(ctx, wear.BuyGroup(buyer, id, seller, 60))
		r, ok := wear.RejectionOf(err)
		if !ok {
			t.Fatalf("got error %v, want rejection", err)
		}
		if r.Check != "stock available" {
			t.Errorf("got failed check %q, want stock available", r.Check)
		}
	})
}

func TestDeleteApp(t *testing.T) {
	withTestLedger(t, func(ctx context.Context, l *Ledger) {
		id := mustCreate(ctx, t, l, seller)
		mustSubmit(ctx, t, l, wear.DeleteTxn(seller, id))

		info, err := l.App(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !info.Deleted {
			t.Error("app not marked deleted")
		}
		if info.Globals != nil {
			t.Errorf("deleted app still reports %d globals", len(info.Globals))
		}

		_, err = l.Submit(ctx, []wear.Txn{wear.UpdateStockTxn(seller, id, 3)})
		if errors.Root(err) != ErrNoSuchApp {
			t.Errorf("got error %v calling deleted app, want %s", err, ErrNoSuchApp)
		}

		// IDs are never reused.
		if next := mustCreate(ctx, t, l, seller); next != id+1 {
			t.Errorf("got app id %d after delete, want %d", next, id+1)
		}
	})
}

func TestCreateTwoInOneGroup(t *testing.T) {
	withTestLedger(t, func(ctx context.Context, l *Ledger) {
		txns := []wear.Txn{
			wear.CreateTxn(seller, testListing()),
			wear.CreateTxn(stranger, testListing()),
		}
		wear.AssignGroup(txns)
		res := mustSubmit(ctx, t, l, txns...)
		var got []uint64
		for _, ad := range res.Applied {
			got = append(got, ad.CreatedAppID)
		}
		if diff := cmp.Diff([]uint64{1, 2}, got); diff != "" {
			t.Errorf("created ids mismatch (-want +got):\n%s", diff)
		}
		info, err := l.App(ctx, 2)
		if err != nil {
			t.Fatal(err)
		}
		if info.Listing.Creator != stranger {
			t.Errorf("got creator %s, want %s", info.Listing.Creator, stranger)
		}
	})
}

func TestFundOverflow(t *testing.T) {
	withTestLedger(t, func(ctx context.Context, l *Ledger) {
		mustFund(ctx, t, l, buyer, 1<<64-1)
		_, err := l.Fund(ctx, buyer, 1)
		if errors.Root(err) != ErrOverflow {
			t.Errorf("got error %v, want %s", err, ErrOverflow)
		}
	})
}

func TestRounds(t *testing.T) {
	withTestLedger(t, func(ctx context.Context, l *Ledger) {
		if h := l.Height(); h != 1 {
			t.Fatalf("got initial height %d, want 1", h)
		}
		waiter, cancel := l.RoundWaiter(2)
		defer cancel()
		select {
		case <-waiter:
			t.Fatal("round 2 reported closed before closing")
		default:
		}

		id := mustCreate(ctx, t, l, seller)
		mustSubmit(ctx, t, l, wear.ChangeDiscountTxn(seller, id, 0))

		r, err := l.CloseRound(ctx)
		if err != nil {
			t.Fatal(err)
		}
		select {
		case <-waiter:
		default:
			t.Error("round 2 waiter not released")
		}
		if r.Number != 2 || len(r.Groups) != 2 {
			t.Fatalf("got round %d with %d groups, want round 2 with 2", r.Number, len(r.Groups))
		}
		if got := r.Groups[0][0].CreatedAppID; got != id {
			t.Errorf("got created app %d in round, want %d", got, id)
		}

		got, err := l.GetRound(ctx, 2)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(r, got); diff != "" {
			t.Errorf("stored round mismatch (-closed +read):\n%s", diff)
		}

		res := mustSubmit(ctx, t, l, wear.ChangeDiscountTxn(seller, id, 1))
		if res.Round != 3 {
			t.Errorf("group accepted into round %d, want 3", res.Round)
		}
	})
}

func TestLateTimerKeepsRound(t *testing.T) {
	withTestLedger(t, func(ctx context.Context, l *Ledger) {
		id := mustCreate(ctx, t, l, seller)
		res := mustSubmit(ctx, t, l, wear.ChangeDiscountTxn(seller, id, 5))

		_, err := l.CloseRound(ctx)
		if err != nil {
			t.Fatal(err)
		}
		// The timer for the round just closed fires after losing the race.
		l.closeScheduled(res.Round)
		if h := l.Height(); h != res.Round {
			t.Fatalf("got height %d after stale timer, want %d", h, res.Round)
		}

		// The timer for the open round still closes it.
		l.closeScheduled(res.Round + 1)
		if h := l.Height(); h != res.Round+1 {
			t.Errorf("got height %d after timer, want %d", h, res.Round+1)
		}
	})
}

func TestRoundWaiterCancel(t *testing.T) {
	withTestLedger(t, func(ctx context.Context, l *Ledger) {
		_, cancel1 := l.RoundWaiter(100)
		ch2, cancel2 := l.RoundWaiter(100)
		defer cancel2()

		cancel1()
		l.mu.Lock()
		n := len(l.waiters[100])
		l.mu.Unlock()
		if n != 1 {
			t.Fatalf("got %d waiters for round 100 after one cancel, want 1", n)
		}

		cancel2()
		l.mu.Lock()
		n = len(l.waiters)
		l.mu.Unlock()
		if n != 0 {
			t.Errorf("got %d rounds with waiters after cancels, want 0", n)
		}
		select {
		case <-ch2:
			t.Error("canceled waiter was released")
		default:
		}

		// Canceling after the round closed is harmless.
		ch3, cancel3 := l.RoundWaiter(2)
		_, err := l.CloseRound(ctx)
		if err != nil {
			t.Fatal(err)
		}
		<-ch3
		cancel3()
	})
}
