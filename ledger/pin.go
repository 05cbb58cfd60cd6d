package ledger

import (
	"bytes"
	"context"
	"time"

	"github.com/chain/txvm/errors"
	i10rnet "github.com/interstellar/starlight/net"
	"go.uber.org/zap"

	"github.com/Kleo-p/algo-wear"
	"github.com/Kleo-p/algo-wear/store"
)

// IndexerPin is the name of the pin that maintains the listing index.
const IndexerPin = "indexer"

// RunPin runs as a goroutine.
// It calls f on every closed round, in order, starting after the last
// round the named pin recorded, and records each round once f succeeds.
// Failures are retried with backoff until ctx is canceled.
func (l *Ledger) RunPin(ctx context.Context, name string, f func(context.Context, *Round) error) {
	log := l.log.With(zap.String("pin", name))
	defer log.Info("pin exiting")

	r := l.Reader()
	defer r.Dispose()

	var lastHeight uint64
	ok := l.retry(ctx, log, "reading pin height", func() error {
		var err error
		lastHeight, err = store.PinHeight(ctx, l.DB, name)
		return err
	})
	if !ok {
		return
	}

	processRound := func(round *Round) bool {
		return l.retry(ctx, log, "processing round", func() error {
			err := f(ctx, round)
			if err != nil {
				return errors.Wrapf(err, "running pin %s on round %d", name, round.Number)
			}
			// n.b. not ctx, so a processed round is always recorded
			err = store.SetPinHeight(context.Background(), l.DB, name, round.Number)
			if err != nil {
				return err
			}
			lastHeight = round.Number
			return nil
		})
	}

	// catchUp processes rounds from the db through the given height.
	catchUp := func(through uint64) bool {
		for lastHeight < through {
			var round *Round
			ok := l.retry(ctx, log, "reading backlog round", func() error {
				var err error
				round, err = l.GetRound(ctx, lastHeight+1)
				return err
			})
			if !ok || !processRound(round) {
				return false
			}
		}
		return true
	}

	if !catchUp(l.Height()) {
		return
	}

	for {
		x, ok := r.Read(ctx)
		if !ok {
			return
		}
		round := x.(*Round)
		if round.Number <= lastHeight {
			continue
		}
		if !catchUp(round.Number - 1) {
			return
		}
		if !processRound(round) {
			return
		}
	}
}

// retry calls fn until it succeeds, waiting with backoff between
// attempts. It reports false if ctx is canceled first.
func (l *Ledger) retry(ctx context.Context, log *zap.Logger, what string, fn func() error) bool {
	backoff := i10rnet.Backoff{Base: 100 * time.Millisecond}
	for {
		err := fn()
		if ctx.Err() != nil {
			return false
		}
		if err == nil {
			return true
		}
		wait := backoff.Next()
		log.Warn(what+", retrying", zap.Error(err), zap.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

// RunIndexer runs as a goroutine, indexing every application created
// with the listing marker note.
func (l *Ledger) RunIndexer(ctx context.Context) {
	l.RunPin(ctx, IndexerPin, l.indexRound)
}

func (l *Ledger) indexRound(ctx context.Context, round *Round) error {
	for _, group := range round.Groups {
		for _, ad := range group {
			if ad.CreatedAppID == 0 || !bytes.HasPrefix(ad.Txn.Note, []byte(wear.Marker)) {
				continue
			}
			err := store.AddListing(ctx, l.DB, ad.CreatedAppID, round.Number)
			if err != nil {
				return err
			}
			l.log.Info("indexed listing", zap.Uint64("app_id", ad.CreatedAppID), zap.Uint64("round", round.Number))
		}
	}
	return nil
}

// IndexedListing is a live listing found by the indexer.
type IndexedListing struct {
	AppID   uint64        `json:"app_id"`
	Owner   wear.Address  `json:"owner"`
	Listing *wear.Listing `json:"listing"`
}

// Listings returns every indexed listing whose application still exists.
func (l *Ledger) Listings(ctx context.Context) ([]IndexedListing, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids, err := store.LiveListings(ctx, l.DB)
	if err != nil {
		return nil, err
	}
	var out []IndexedListing
	for _, id := range ids {
		info, err := l.app(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, IndexedListing{
			AppID:   id,
			Owner:   info.Deployer,
			Listing: info.Listing,
		})
	}
	return out, nil
}
