// Package ledger is a sandbox host for the wear application.
//
// It keeps account balances, application records and global state in a
// sqlite database, evaluates submitted transaction groups atomically,
// and collects accepted groups into rounds that pins can follow.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/bobg/multichan"
	"github.com/chain/txvm/errors"
	"go.uber.org/zap"

	"github.com/Kleo-p/algo-wear"
	"github.com/Kleo-p/algo-wear/store"
)

// DefaultRoundInterval is how long a round stays open after the first
// group is accepted into it.
const DefaultRoundInterval = 5 * time.Second

var (
	// ErrMalformedGroup is the root of errors for groups whose
	// linkage is invalid.
	ErrMalformedGroup = errors.New("malformed group")

	// ErrInsufficientFunds is the root of errors for payments larger
	// than the payer's balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNoSuchApp is the root of errors for calls to applications that
	// do not exist or were deleted.
	ErrNoSuchApp = errors.New("no such application")

	// ErrOverflow is the root of errors for balances that would exceed
	// the largest representable amount.
	ErrOverflow = errors.New("balance overflow")
)

// IsRejection reports whether err means the group was refused,
// as opposed to the host failing to evaluate it.
func IsRejection(err error) bool {
	switch errors.Root(err) {
	case wear.ErrRejected, ErrMalformedGroup, ErrInsufficientFunds, ErrNoSuchApp, ErrOverflow:
		return true
	}
	return false
}

// Ledger is the sandbox host. All submissions are serialized.
type Ledger struct {
	DB *sql.DB

	log      *zap.Logger
	interval time.Duration
	w        *multichan.W

	mu      sync.Mutex
	height  uint64 // latest closed round
	open    uint64 // round accepting groups
	seq     int    // groups accepted into the open round
	closing *time.Timer
	waiters map[uint64][]chan struct{}
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithRoundInterval sets how long a round stays open.
func WithRoundInterval(d time.Duration) Option {
	return func(l *Ledger) { l.interval = d }
}

// New opens a ledger on db, creating its schema if needed.
// Groups accepted into a round that was still open when the previous
// process stopped remain in that round.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Ledger, error) {
	// sqlite has a single writer.
	db.SetMaxOpenConns(1)

	err := store.Init(ctx, db)
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		DB:       db,
		log:      zap.NewNop(),
		interval: DefaultRoundInterval,
		w:        multichan.New((*Round)(nil)),
		waiters:  make(map[uint64][]chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.height, err = store.Height(ctx, db)
	if err != nil {
		return nil, err
	}
	l.open = l.height + 1
	l.seq, err = store.CountGroups(ctx, db, l.open)
	if err != nil {
		return nil, err
	}
	if l.seq > 0 {
		l.log.Info("resuming open round", zap.Uint64("round", l.open), zap.Int("groups", l.seq))
		l.scheduleClose()
	}
	roundHeight.Set(float64(l.height))
	return l, nil
}

// Fund credits amount to addr outside of any round.
func (l *Ledger) Fund(ctx context.Context, addr wear.Address, amount uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, err := store.Balance(ctx, l.DB, addr)
	if err != nil {
		return 0, err
	}
	if bal > math.MaxUint64-amount {
		return 0, errors.WithDetailf(ErrOverflow, "funding %s with %d", addr, amount)
	}
	bal += amount
	err = store.SetBalance(ctx, l.DB, addr, bal)
	if err != nil {
		return 0, err
	}
	l.log.Info("funded account", zap.Stringer("address", addr), zap.Uint64("amount", amount), zap.Uint64("balance", bal))
	return bal, nil
}

// Balance returns the balance of addr.
func (l *Ledger) Balance(ctx context.Context, addr wear.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return store.Balance(ctx, l.DB, addr)
}

// AppInfo is an application record together with its global state.
type AppInfo struct {
	store.App
	Globals map[string]wear.Value `json:"globals"`
	Listing *wear.Listing         `json:"listing,omitempty"`
}

// App returns the record and global state of an application.
// Deleted applications are reported without state.
func (l *Ledger) App(ctx context.Context, id uint64) (*AppInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.app(ctx, id)
}

func (l *Ledger) app(ctx context.Context, id uint64) (*AppInfo, error) {
	app, err := store.GetApp(ctx, l.DB, id)
	if errors.Root(err) == store.ErrNotFound {
		return nil, errors.WithDetailf(ErrNoSuchApp, "app %d", id)
	}
	if err != nil {
		return nil, err
	}
	info := &AppInfo{App: *app}
	if app.Deleted {
		return info, nil
	}
	globals, err := store.LoadGlobals(ctx, l.DB, id)
	if err != nil {
		return nil, err
	}
	info.Globals = globals.Snapshot()
	info.Listing, err = wear.LoadListing(globals)
	return info, errors.Wrapf(err, "reading listing of app %d", id)
}

// ApplyData is an accepted transaction with the effects the host
// reports back for it.
type ApplyData struct {
	Txn          wear.Txn `json:"txn"`
	CreatedAppID uint64   `json:"created_app_id,omitempty"`
}

// Result describes an accepted group.
type Result struct {
	Round   uint64      `json:"round"`
	GroupID [32]byte    `json:"group_id"`
	Applied []ApplyData `json:"applied"`
}

// Submit evaluates txns as one atomic group. Either every transaction
// is accepted and its effects are written, or none is and the ledger is
// left unchanged. Refusals satisfy IsRejection.
func (l *Ledger) Submit(ctx context.Context, txns []wear.Txn) (*Result, error) {
	label := groupOp(txns)
	err := wear.VerifyGroup(txns)
	if err != nil {
		groupsTotal.WithLabelValues(label, "rejected").Inc()
		return nil, errors.Sub(ErrMalformedGroup, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.submit(ctx, txns)
	if err != nil {
		result := "error"
		if IsRejection(err) {
			result = "rejected"
		}
		groupsTotal.WithLabelValues(label, result).Inc()
		l.log.Info("group refused", zap.String("op", label), zap.Uint64("round", l.open), zap.Error(err))
		return nil, err
	}
	groupsTotal.WithLabelValues(label, "accepted").Inc()
	l.log.Info("group accepted", zap.String("op", label), zap.Uint64("round", l.open), zap.Binary("group", res.GroupID[:]))
	l.scheduleClose()
	return res, nil
}

func (l *Ledger) submit(ctx context.Context, txns []wear.Txn) (*Result, error) {
	dbtx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning db transaction")
	}
	defer dbtx.Rollback()

	ev := newEvaluation(ctx, dbtx, l.open)
	applied, err := ev.run(txns)
	if err != nil {
		return nil, err
	}
	err = ev.flush()
	if err != nil {
		return nil, err
	}
	bits, err := json.Marshal(applied)
	if err != nil {
		return nil, errors.Wrap(err, "encoding group")
	}
	err = store.AddGroup(ctx, dbtx, l.open, l.seq, bits)
	if err != nil {
		return nil, err
	}
	err = dbtx.Commit()
	if err != nil {
		return nil, errors.Wrap(err, "committing group")
	}
	l.seq++
	return &Result{
		Round:   l.open,
		GroupID: wear.GroupID(txns),
		Applied: applied,
	}, nil
}

// groupOp names the operation a group performs, for logs and metrics.
func groupOp(txns []wear.Txn) string {
	for i, t := range txns {
		if t.Type != wear.TxnAppCall {
			continue
		}
		op, _ := wear.Classify(&wear.Call{Group: txns, Index: i, AppID: t.AppID})
		return op.String()
	}
	return "pay"
}
