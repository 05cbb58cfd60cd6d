package wear

import (
	"encoding/binary"
	"fmt"

	"github.com/chain/txvm/protocol/txvm"
)

// MaxGroupSize is the largest number of transactions the host evaluates
// as one atomic group.
const MaxGroupSize = 16

// TxnType is the kind of a transaction.
type TxnType uint8

const (
	TxnPay     TxnType = 1
	TxnAppCall TxnType = 6
)

var txnTypeNames = map[TxnType]string{
	TxnPay:     "pay",
	TxnAppCall: "appl",
}

func (t TxnType) String() string {
	if s, ok := txnTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("txntype(%d)", uint8(t))
}

func (t TxnType) MarshalText() ([]byte, error) {
	if s, ok := txnTypeNames[t]; ok {
		return []byte(s), nil
	}
	return nil, fmt.Errorf("unknown txn type %d", uint8(t))
}

func (t *TxnType) UnmarshalText(text []byte) error {
	for k, v := range txnTypeNames {
		if v == string(text) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown txn type %q", text)
}

// OnCompletion is the lifecycle intent an application call carries.
type OnCompletion uint8

const (
	NoOp OnCompletion = iota
	OptIn
	CloseOut
	ClearState
	UpdateApplication
	DeleteApplication
)

var onCompletionNames = []string{
	NoOp:              "noop",
	OptIn:             "optin",
	CloseOut:          "closeout",
	ClearState:        "clear",
	UpdateApplication: "update",
	DeleteApplication: "delete",
}

func (oc OnCompletion) String() string {
	if int(oc) < len(onCompletionNames) {
		return onCompletionNames[oc]
	}
	return fmt.Sprintf("oncompletion(%d)", uint8(oc))
}

func (oc OnCompletion) MarshalText() ([]byte, error) {
	if int(oc) >= len(onCompletionNames) {
		return nil, fmt.Errorf("unknown on-completion %d", uint8(oc))
	}
	return []byte(onCompletionNames[oc]), nil
}

func (oc *OnCompletion) UnmarshalText(text []byte) error {
	for i, name := range onCompletionNames {
		if name == string(text) {
			*oc = OnCompletion(i)
			return nil
		}
	}
	return fmt.Errorf("unknown on-completion %q", text)
}

// Txn is a single request submitted to the host.
// Payment fields are meaningful only for TxnPay,
// application fields only for TxnAppCall.
type Txn struct {
	Type   TxnType `json:"type"`
	Sender Address `json:"sender"`
	Note   []byte  `json:"note,omitempty"`

	Receiver Address `json:"receiver"`
	Amount   uint64  `json:"amount,omitempty"`

	AppID        uint64       `json:"app_id,omitempty"`
	OnCompletion OnCompletion `json:"on_completion"`
	Args         [][]byte     `json:"args,omitempty"`

	Group [32]byte `json:"group"`
}

// Bytes returns the canonical encoding of t: every field in a fixed
// order, variable-length fields prefixed with their length.
func (t *Txn) Bytes() []byte {
	buf := []byte{byte(t.Type)}
	buf = append(buf, t.Sender[:]...)
	buf = appendBytes(buf, t.Note)
	buf = append(buf, t.Receiver[:]...)
	buf = binary.BigEndian.AppendUint64(buf, t.Amount)
	buf = binary.BigEndian.AppendUint64(buf, t.AppID)
	buf = append(buf, byte(t.OnCompletion))
	buf = binary.AppendUvarint(buf, uint64(len(t.Args)))
	for _, arg := range t.Args {
		buf = appendBytes(buf, arg)
	}
	return append(buf, t.Group[:]...)
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

// ID returns the transaction ID, which covers every field
// including the group ID.
func (t *Txn) ID() [32]byte {
	return txvm.VMHash("WearTxn", t.Bytes())
}

// GroupID computes the ID binding txns into one atomic group.
// Each transaction is hashed with its Group field cleared.
func GroupID(txns []Txn) [32]byte {
	var buf []byte
	for _, t := range txns {
		t.Group = [32]byte{}
		id := t.ID()
		buf = append(buf, id[:]...)
	}
	return txvm.VMHash("WearGroup", buf)
}

// AssignGroup sets the Group field of every transaction in txns to
// their GroupID. A lone transaction is left ungrouped.
func AssignGroup(txns []Txn) {
	if len(txns) < 2 {
		return
	}
	gid := GroupID(txns)
	for i := range txns {
		txns[i].Group = gid
	}
}

// VerifyGroup reports whether txns form a well-linked group:
// non-empty, no larger than MaxGroupSize, every member of a known type
// and on-completion, and every member carrying the same correct group ID. A lone transaction may omit its group ID.
func VerifyGroup(txns []Txn) error {
	if len(txns) == 0 {
		return fmt.Errorf("empty group")
	}
	if len(txns) > MaxGroupSize {
		return fmt.Errorf("group of %d exceeds %d", len(txns), MaxGroupSize)
	}
	for i, t := range txns {
		if _, ok := txnTypeNames[t.Type]; !ok {
			return fmt.Errorf("txn %d has unknown type %d", i, uint8(t.Type))
		}
		if int(t.OnCompletion) >= len(onCompletionNames) {
			return fmt.Errorf("txn %d has unknown on-completion %d", i, uint8(t.OnCompletion))
		}
	}
	if len(txns) == 1 && txns[0].Group == [32]byte{} {
		return nil
	}
	gid := GroupID(txns)
	for i, t := range txns {
		if t.Group != gid {
			return fmt.Errorf("txn %d carries group %x, want %x", i, t.Group[:], gid[:])
		}
	}
	return nil
}
