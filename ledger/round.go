package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bobg/multichan"
	"github.com/chain/txvm/errors"
	"github.com/chain/txvm/protocol/bc"
	"go.uber.org/zap"

	"github.com/Kleo-p/algo-wear/store"
)

// Round is a closed batch of accepted groups.
type Round struct {
	Number uint64        `json:"round"`
	TimeMS uint64        `json:"time_ms"`
	Groups [][]ApplyData `json:"groups"`
}

// Time returns the time the round closed.
func (r *Round) Time() time.Time {
	return time.Unix(0, 0).Add(bc.MillisDuration(r.TimeMS))
}

// Height returns the number of the latest closed round.
func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

// Reader returns a reader that sees every round closed after the call.
func (l *Ledger) Reader() *multichan.R {
	return l.w.Reader()
}

// RoundWaiter returns a channel that is closed once round n has closed,
// and a func that drops the channel for callers that stop waiting.
func (l *Ledger) RoundWaiter(n uint64) (<-chan struct{}, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan struct{})
	if n <= l.height {
		close(ch)
		return ch, func() {}
	}
	l.waiters[n] = append(l.waiters[n], ch)
	return ch, func() { l.dropWaiter(n, ch) }
}

func (l *Ledger) dropWaiter(n uint64, ch chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chs := l.waiters[n]
	for i, c := range chs {
		if c != ch {
			continue
		}
		chs = append(chs[:i], chs[i+1:]...)
		break
	}
	if len(chs) == 0 {
		delete(l.waiters, n)
		return
	}
	l.waiters[n] = chs
}

// GetRound reads a closed round.
func (l *Ledger) GetRound(ctx context.Context, n uint64) (*Round, error) {
	timeMS, groups, err := store.GetRound(ctx, l.DB, n)
	if err != nil {
		return nil, err
	}
	r := &Round{Number: n, TimeMS: timeMS}
	for i, bits := range groups {
		var g []ApplyData
		err = json.Unmarshal(bits, &g)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing group %d of round %d", i, n)
		}
		r.Groups = append(r.Groups, g)
	}
	return r, nil
}

// must be called with l.mu held.
func (l *Ledger) scheduleClose() {
	if l.closing != nil {
		return
	}
	closeAt := time.Now().Add(l.interval)
	l.log.Debug("round open", zap.Uint64("round", l.open), zap.Time("close_at", closeAt))
	round := l.open
	l.closing = time.AfterFunc(l.interval, func() {
		l.closeScheduled(round)
	})
}

// closeScheduled closes round when its timer fires,
// unless an explicit CloseRound got there first.
func (l *Ledger) closeScheduled(round uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.open != round {
		return
	}
	_, err := l.closeRound(context.Background())
	if err != nil {
		l.log.Error("closing round", zap.Error(err), zap.Uint64("round", round))
	}
}

// CloseRound closes the open round immediately, even when it holds no
// groups, and publishes it to readers.
func (l *Ledger) CloseRound(ctx context.Context) (*Round, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeRound(ctx)
}

// must be called with l.mu held.
func (l *Ledger) closeRound(ctx context.Context) (*Round, error) {
	if l.closing != nil {
		l.closing.Stop()
		l.closing = nil
	}
	n := l.open
	err := store.CloseRound(ctx, l.DB, n, bc.Millis(time.Now()))
	if err != nil {
		return nil, err
	}
	r, err := l.GetRound(ctx, n)
	if err != nil {
		return nil, err
	}

	l.height = n
	l.open = n + 1
	l.seq = 0
	for h, chs := range l.waiters {
		if h > l.height {
			continue
		}
		for _, ch := range chs {
			close(ch)
		}
		delete(l.waiters, h)
	}
	l.w.Write(r)

	roundHeight.Set(float64(n))
	roundGroups.Observe(float64(len(r.Groups)))
	l.log.Info("closed round", zap.Uint64("round", n), zap.Int("groups", len(r.Groups)))
	return r, nil
}
