package wear

import (
	"fmt"

	"github.com/chain/txvm/errors"
)

// ErrRejected is the root of every error produced by a failed
// precondition. The host reports it to callers as a plain rejection.
var ErrRejected = errors.New("rejected")

// Rejection names the operation and the check that failed.
type Rejection struct {
	Op    Op
	Check string
}

func (r *Rejection) String() string {
	return fmt.Sprintf("%s: %s", r.Op, r.Check)
}

const rejectionKey = "rejection"

func reject(op Op, check string) error {
	r := &Rejection{Op: op, Check: check}
	err := errors.WithData(ErrRejected, rejectionKey, r)
	return errors.Wrap(err, r.String())
}

// RejectionOf extracts the Rejection carried by err, if any.
func RejectionOf(err error) (*Rejection, bool) {
	if errors.Root(err) != ErrRejected {
		return nil, false
	}
	r, ok := errors.Data(err)[rejectionKey].(*Rejection)
	return r, ok
}

// Check is one named precondition.
type Check struct {
	Name  string
	Holds func() bool
}

// all evaluates checks in order and stops at the first that does not hold.
func all(op Op, checks ...Check) error {
	for _, c := range checks {
		if !c.Holds() {
			return reject(op, c.Name)
		}
	}
	return nil
}
