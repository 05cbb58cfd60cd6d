package ledger

import (
	"context"
	"math"
	"sort"

	"github.com/chain/txvm/errors"

	"github.com/Kleo-p/algo-wear"
	"github.com/Kleo-p/algo-wear/store"
)

type appState struct {
	app     *store.App
	globals *store.Mem
	dirty   bool
}

// evaluation holds the effects of one group until it is known whether
// the whole group is accepted.
type evaluation struct {
	ctx   context.Context
	db    store.DB
	round uint64

	balances  map[wear.Address]uint64
	apps      map[uint64]*appState
	nextAppID uint64
}

func newEvaluation(ctx context.Context, db store.DB, round uint64) *evaluation {
	return &evaluation{
		ctx:      ctx,
		db:       db,
		round:    round,
		balances: make(map[wear.Address]uint64),
		apps:     make(map[uint64]*appState),
	}
}

func (ev *evaluation) run(txns []wear.Txn) ([]ApplyData, error) {
	applied := make([]ApplyData, 0, len(txns))
	for i := range txns {
		ad := ApplyData{Txn: txns[i]}
		var err error
		switch txns[i].Type {
		case wear.TxnPay:
			err = ev.pay(&txns[i])
		case wear.TxnAppCall:
			ad.CreatedAppID, err = ev.call(txns, i)
		default:
			err = errors.WithDetailf(ErrMalformedGroup, "txn %d has type %s", i, txns[i].Type)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "txn %d", i)
		}
		applied = append(applied, ad)
	}
	return applied, nil
}

func (ev *evaluation) balance(addr wear.Address) (uint64, error) {
	if bal, ok := ev.balances[addr]; ok {
		return bal, nil
	}
	bal, err := store.Balance(ev.ctx, ev.db, addr)
	if err != nil {
		return 0, err
	}
	ev.balances[addr] = bal
	return bal, nil
}

func (ev *evaluation) pay(t *wear.Txn) error {
	bal, err := ev.balance(t.Sender)
	if err != nil {
		return err
	}
	if bal < t.Amount {
		return errors.WithDetailf(ErrInsufficientFunds, "%s holds %d, pays %d", t.Sender, bal, t.Amount)
	}
	ev.balances[t.Sender] = bal - t.Amount

	bal, err = ev.balance(t.Receiver)
	if err != nil {
		return err
	}
	if bal > math.MaxUint64-t.Amount {
		return errors.WithDetailf(ErrOverflow, "paying %d to %s", t.Amount, t.Receiver)
	}
	ev.balances[t.Receiver] = bal + t.Amount
	return nil
}

func (ev *evaluation) loadApp(id uint64) (*appState, error) {
	if st, ok := ev.apps[id]; ok {
		if st.app.Deleted {
			return nil, errors.WithDetailf(ErrNoSuchApp, "app %d was deleted", id)
		}
		return st, nil
	}
	app, err := store.GetApp(ev.ctx, ev.db, id)
	if errors.Root(err) == store.ErrNotFound {
		return nil, errors.WithDetailf(ErrNoSuchApp, "app %d", id)
	}
	if err != nil {
		return nil, err
	}
	if app.Deleted {
		return nil, errors.WithDetailf(ErrNoSuchApp, "app %d was deleted", id)
	}
	globals, err := store.LoadGlobals(ev.ctx, ev.db, id)
	if err != nil {
		return nil, err
	}
	st := &appState{app: app, globals: globals}
	ev.apps[id] = st
	return st, nil
}

func (ev *evaluation) allocAppID() (uint64, error) {
	if ev.nextAppID == 0 {
		id, err := store.NextAppID(ev.ctx, ev.db)
		if err != nil {
			return 0, err
		}
		ev.nextAppID = id
	}
	id := ev.nextAppID
	ev.nextAppID++
	return id, nil
}

// call runs the application logic for txns[i] against a buffered view of
// the application's state. The buffer is folded into the group's view
// only if the call is approved.
func (ev *evaluation) call(txns []wear.Txn, i int) (uint64, error) {
	t := &txns[i]

	var (
		st      *appState
		created uint64
		err     error
	)
	if t.AppID == 0 {
		created, err = ev.allocAppID()
		if err != nil {
			return 0, err
		}
		st = &appState{
			app: &store.App{
				ID:           created,
				Deployer:     t.Sender,
				CreatedRound: ev.round,
			},
			globals: store.NewMem(),
		}
	} else {
		st, err = ev.loadApp(t.AppID)
		if err != nil {
			return 0, err
		}
	}

	ov := store.NewOverlay(st.globals)
	c := &wear.Call{
		Group:    txns,
		Index:    i,
		AppID:    t.AppID,
		Deployer: st.app.Deployer,
		State:    ov,
	}
	if t.AppID != 0 && t.OnCompletion == wear.ClearState {
		err = wear.Clear(c)
	} else {
		err = wear.Approve(c)
	}
	if err != nil {
		return 0, err
	}
	err = ov.Commit()
	if err != nil {
		return 0, errors.Wrap(err, "applying global writes")
	}
	st.dirty = true
	if created != 0 {
		ev.apps[created] = st
	}
	if t.AppID != 0 && t.OnCompletion == wear.DeleteApplication {
		st.app.Deleted = true
	}
	return created, nil
}

// flush writes the group's effects through ev.db.
func (ev *evaluation) flush() error {
	for addr, bal := range ev.balances {
		err := store.SetBalance(ev.ctx, ev.db, addr, bal)
		if err != nil {
			return err
		}
	}
	ids := make([]uint64, 0, len(ev.apps))
	for id := range ev.apps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		st := ev.apps[id]
		if !st.dirty {
			continue
		}
		err := store.PutApp(ev.ctx, ev.db, st.app)
		if err != nil {
			return err
		}
		if st.app.Deleted {
			err = store.DeleteGlobals(ev.ctx, ev.db, id)
		} else {
			err = store.SaveGlobals(ev.ctx, ev.db, id, st.globals.Snapshot())
		}
		if err != nil {
			return err
		}
	}
	return nil
}
