package ledger

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Kleo-p/algo-wear"
	"github.com/Kleo-p/algo-wear/store"
)

func TestPins(t *testing.T) {
	withTestLedger(t, func(ctx context.Context, l *Ledger) {
		pinFunc := func(ch chan<- *Round) func(context.Context, *Round) error {
			return func(ctx context.Context, round *Round) error {
				select {
				case ch <- round:
				case <-ctx.Done():
				}
				return ctx.Err()
			}
		}

		pin1ctx, pin1cancel := context.WithCancel(ctx)
		defer pin1cancel()

		pin1ch := make(chan *Round)
		pin1done := make(chan struct{})
		go func() {
			l.RunPin(pin1ctx, "pin1", pinFunc(pin1ch))
			close(pin1done)
		}()

		pin2ch := make(chan *Round)
		go l.RunPin(ctx, "pin2", pinFunc(pin2ch))

		expect := func(name string, ch <-chan *Round, want *Round) {
			t.Helper()
			select {
			case <-ctx.Done():
				t.Fatal(ctx.Err())

			case got := <-ch:
				if !reflect.DeepEqual(want, got) {
					t.Errorf("round mismatch on %s (got round %d, want %d)", name, got.Number, want.Number)
				}
				t.Logf("%s: round %d", name, got.Number)
			}
		}

		// Both pins start with the genesis round from the db.
		r1, err := l.GetRound(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		expect("pin1", pin1ch, r1)
		expect("pin2", pin2ch, r1)

		mustCreate(ctx, t, l, seller)
		r2, err := l.CloseRound(ctx)
		if err != nil {
			t.Fatal(err)
		}
		expect("pin1", pin1ch, r2)
		expect("pin2", pin2ch, r2)

		pin1cancel()
		<-pin1done

		r3, err := l.CloseRound(ctx)
		if err != nil {
			t.Fatal(err)
		}

		select {
		case <-pin1ch:
			t.Fatal("did not expect to see another round from pin1 (yet)")

		default:
		}
		expect("pin2", pin2ch, r3)

		// A restarted pin resumes after the last round it recorded.
		pin1ach := make(chan *Round)
		go l.RunPin(ctx, "pin1", pinFunc(pin1ach))
		expect("pin1", pin1ach, r3)

		r4, err := l.CloseRound(ctx)
		if err != nil {
			t.Fatal(err)
		}
		expect("pin1", pin1ach, r4)
		expect("pin2", pin2ch, r4)
	})
}

// waitForPin polls until the named pin has processed round.
func waitForPin(ctx context.Context, t *testing.T, l *Ledger, name string, round uint64) {
	t.Helper()
	for {
		h, err := store.PinHeight(ctx, l.DB, name)
		if err != nil {
			t.Fatal(err)
		}
		if h >= round {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("pin %s stuck at round %d, want %d", name, h, round)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestIndexer(t *testing.T) {
	withTestLedger(t, func(ctx context.Context, l *Ledger) {
		id1 := mustCreate(ctx, t, l, seller)
		id2 := mustCreate(ctx, t, l, stranger)
		mustSubmit(ctx, t, l, wear.UpdateStockTxn(seller, id1, 9))
		r, err := l.CloseRound(ctx)
		if err != nil {
			t.Fatal(err)
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go l.RunIndexer(ctx)
		waitForPin(ctx, t, l, IndexerPin, r.Number)

		got, err := l.Listings(ctx)
		if err != nil {
			t.Fatal(err)
		}
		var ids []uint64
		for _, il := range got {
			ids = append(ids, il.AppID)
		}
		if diff := cmp.Diff([]uint64{id1, id2}, ids); diff != "" {
			t.Fatalf("listing ids mismatch (-want +got):\n%s", diff)
		}
		if got[0].Owner != seller || got[0].Listing.Stock != 9 {
			t.Errorf("got listing %d owned by %s with stock %d, want %s with 9", got[0].AppID, got[0].Owner, got[0].Listing.Stock, seller)
		}

		// Deleted listings drop out without reindexing.
		mustSubmit(ctx, t, l, wear.DeleteTxn(stranger, id2))
		r, err = l.CloseRound(ctx)
		if err != nil {
			t.Fatal(err)
		}
		waitForPin(ctx, t, l, IndexerPin, r.Number)
		got, err = l.Listings(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].AppID != id1 {
			t.Errorf("got %d listings after delete, want only app %d", len(got), id1)
		}
	})
}
