package coordination

import (
	orderedmap "github.com/elliotchance/orderedmap/v2"

	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// Lock is the master-side authority for one mutual-exclusion lock (spec
// §4.7.2). At most one holder at a time (I5); waiters are served strictly
// FIFO (lock-fairness testable property, spec §8).
//
// Release does not verify that the caller is the current holder — kept as
// specified (spec §9 "do not guess intent"; see DESIGN.md).
type Lock struct {
	id      types.PrimitiveID
	held    bool
	holder  types.WorkerID
	waiters *orderedmap.OrderedMap[uint64, types.WorkerID]
	seq     uint64
}

// NewLock builds an unheld lock authority.
func NewLock(id types.PrimitiveID) *Lock {
	return &Lock{id: id, waiters: orderedmap.NewOrderedMap[uint64, types.WorkerID]()}
}

// Held reports whether the lock is currently held, and by whom.
func (l *Lock) Held() (bool, types.WorkerID) { return l.held, l.holder }

// Acquire handles one LCA request from requester. If the lock is free it
// is granted immediately and the requester is unparked via a RELEASE
// push; otherwise requester joins the FIFO waiter list (spec §4.7.2).
func (l *Lock) Acquire(push Pusher, requester types.WorkerID) error {
	if !l.held {
		l.held = true
		l.holder = requester
		return push.Push(requester, protocol.KindReleaseWaiter, protocol.Body{protocol.FieldID: int(l.id)})
	}
	l.seq++
	l.waiters.Set(l.seq, requester)
	return nil
}

// Release handles one LCU request: pop the next waiter and unpark it, or
// mark the lock unheld if no one is waiting (spec §4.7.2).
func (l *Lock) Release(push Pusher) error {
	if el := l.waiters.Front(); el != nil {
		next := el.Value
		l.waiters.Delete(el.Key)
		l.holder = next
		return push.Push(next, protocol.KindReleaseWaiter, protocol.Body{protocol.FieldID: int(l.id)})
	}
	l.held = false
	l.holder = 0
	return nil
}
