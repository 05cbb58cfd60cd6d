package wear

import (
	"bytes"
	"fmt"

	"github.com/chain/txvm/errors"
)

// Call is everything the approval logic may observe about one
// application call: the group it arrived in, which member of the group
// it is, the application it targets, and that application's state.
type Call struct {
	Group []Txn
	Index int

	// AppID is zero while the application is being created.
	AppID uint64

	// Deployer is the account that created the application.
	Deployer Address

	State GlobalState
}

// Txn returns the transaction being evaluated.
func (c *Call) Txn() *Txn {
	return &c.Group[c.Index]
}

func (c *Call) validate() error {
	if c.Index < 0 || c.Index >= len(c.Group) {
		return fmt.Errorf("call index %d outside group of %d", c.Index, len(c.Group))
	}
	if c.Group[c.Index].Type != TxnAppCall {
		return fmt.Errorf("txn %d is %s, not an application call", c.Index, c.Group[c.Index].Type)
	}
	if c.State == nil {
		return fmt.Errorf("no global state")
	}
	return nil
}

// Classify determines which operation c requests.
// Calls that match no operation are rejected.
func Classify(c *Call) (Op, error) {
	txn := c.Txn()
	if c.AppID == 0 {
		return OpCreate, nil
	}
	// Any other on-completion dispatches on the method tag like NoOp.
	switch txn.OnCompletion {
	case DeleteApplication:
		return OpDelete, nil
	case ClearState:
		return OpClear, nil
	}
	if len(txn.Args) == 0 {
		return OpUnknown, reject(OpUnknown, "method argument present")
	}
	switch ParseMethod(txn.Args[0]) {
	case MethodBuy:
		return OpBuy, nil
	case MethodChangeDiscount:
		return OpChangeDiscount, nil
	case MethodUpdateStock:
		return OpUpdateStock, nil
	}
	return OpUnknown, reject(OpUnknown, fmt.Sprintf("method %q known", txn.Args[0]))
}

// Approve runs the approval logic for c. A nil result approves the call;
// any writes it made to c.State must then be applied by the host along
// with the rest of the group. A rejection has ErrRejected as its root.
func Approve(c *Call) error {
	err := c.validate()
	if err != nil {
		return err
	}
	op, err := Classify(c)
	if err != nil {
		return err
	}
	switch op {
	case OpCreate:
		return create(c)
	case OpDelete:
		return deleteApp(c)
	case OpBuy:
		return buy(c)
	case OpChangeDiscount:
		return changeDiscount(c)
	case OpUpdateStock:
		return updateStock(c)
	}
	// ClearState is decided by Clear, never by the approval logic.
	return reject(op, "handled by approval logic")
}

// Clear runs the clear-state logic, which approves unconditionally.
func Clear(c *Call) error {
	return nil
}

// argUint decodes argument i, reporting false when it is missing or
// longer than 8 bytes.
func argUint(txn *Txn, i int) (uint64, bool) {
	if i >= len(txn.Args) {
		return 0, false
	}
	v, err := Btoi(txn.Args[i])
	return v, err == nil
}

func create(c *Call) error {
	txn := c.Txn()
	var (
		amount, stock, discount uint64
		ok                      bool
	)
	err := all(OpCreate,
		Check{"six arguments", func() bool { return len(txn.Args) == 6 }},
		Check{"note is " + Marker, func() bool { return bytes.Equal(txn.Note, []byte(Marker)) }},
		Check{"amount is an integer", func() bool { amount, ok = argUint(txn, 3); return ok }},
		Check{"amount above zero", func() bool { return amount > 0 }},
		Check{"stock is an integer", func() bool { stock, ok = argUint(txn, 4); return ok }},
		Check{"discount is an integer", func() bool { discount, ok = argUint(txn, 5); return ok }},
	)
	if err != nil {
		return err
	}
	l := &Listing{
		Creator:     txn.Sender,
		Name:        txn.Args[0],
		Description: txn.Args[1],
		Image:       txn.Args[2],
		Amount:      amount,
		Stock:       stock,
		Discount:    discount,
	}
	return errors.Wrap(l.Store(c.State), "initializing listing")
}

func deleteApp(c *Call) error {
	txn := c.Txn()
	return all(OpDelete,
		Check{"sender is deployer", func() bool { return txn.Sender == c.Deployer }},
	)
}

func buy(c *Call) error {
	l, err := LoadListing(c.State)
	if err != nil {
		return errors.Wrap(err, "loading listing")
	}
	txn := c.Txn()
	var pay *Txn
	err = all(OpBuy,
		Check{"group of two", func() bool { return len(c.Group) == 2 }},
		Check{"call is first in group", func() bool { return c.Index == 0 }},
		Check{"one argument", func() bool { return len(txn.Args) == 1 }},
		Check{"stock available", func() bool { return l.Stock > 0 }},
		Check{"second txn is a payment", func() bool { pay = &c.Group[1]; return pay.Type == TxnPay }},
		Check{"payment to creator", func() bool { return pay.Receiver == l.Creator }},
		Check{"discount within amount", func() bool { _, ok := l.Price(); return ok }},
		Check{"payment equals discounted price", func() bool { p, _ := l.Price(); return pay.Amount == p }},
		Check{"payer is buyer", func() bool { return pay.Sender == c.Group[0].Sender }},
	)
	if err != nil {
		return err
	}
	err = c.State.Put(KeyStock, UintValue(l.Stock-1))
	return errors.Wrap(err, "decrementing stock")
}

func changeDiscount(c *Call) error {
	l, err := LoadListing(c.State)
	if err != nil {
		return errors.Wrap(err, "loading listing")
	}
	txn := c.Txn()
	var discount uint64
	err = all(OpChangeDiscount,
		Check{"group of one", func() bool { return len(c.Group) == 1 }},
		Check{"two arguments", func() bool { return len(txn.Args) == 2 }},
		Check{"sender is creator", func() bool { return txn.Sender == l.Creator }},
		Check{"discount is an integer", func() bool {
			var ok bool
			discount, ok = argUint(txn, 1)
			return ok
		}},
	)
	if err != nil {
		return err
	}
	err = c.State.Put(KeyDiscount, UintValue(discount))
	return errors.Wrap(err, "writing discount")
}

func updateStock(c *Call) error {
	l, err := LoadListing(c.State)
	if err != nil {
		return errors.Wrap(err, "loading listing")
	}
	txn := c.Txn()
	var stock uint64
	err = all(OpUpdateStock,
		Check{"group of one", func() bool { return len(c.Group) == 1 }},
		Check{"two arguments", func() bool { return len(txn.Args) == 2 }},
		Check{"stock is an integer", func() bool {
			var ok bool
			stock, ok = argUint(txn, 1)
			return ok
		}},
		Check{"stock above zero", func() bool { return stock > 0 }},
		Check{"sender is creator", func() bool { return txn.Sender == l.Creator }},
	)
	if err != nil {
		return err
	}
	err = c.State.Put(KeyStock, UintValue(stock))
	return errors.Wrap(err, "writing stock")
}
