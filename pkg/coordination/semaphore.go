package coordination

import (
	orderedmap "github.com/elliotchance/orderedmap/v2"

	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// Semaphore is the master-side authority for one counting semaphore (spec
// §4.7.3). Its initial value is fixed at registration; this reimplements
// the REDESIGN FLAG / §9 guidance of starting the authority with the full
// initial value already set, instead of the original's "drain local
// mirror to zero, then backfill via RELEASE" priming dance (see
// DESIGN.md, SPEC_FULL.md "Semaphore priming").
type Semaphore struct {
	id      types.PrimitiveID
	value   int
	waiters *orderedmap.OrderedMap[uint64, types.WorkerID]
	seq     uint64
}

// NewSemaphore builds a semaphore authority starting at initial.
func NewSemaphore(id types.PrimitiveID, initial int) *Semaphore {
	return &Semaphore{id: id, value: initial, waiters: orderedmap.NewOrderedMap[uint64, types.WorkerID]()}
}

// Value returns the current outstanding-permit count.
func (s *Semaphore) Value() int { return s.value }

// Acquire handles one SEA request: grant immediately if permits remain,
// else queue requester FIFO (spec §4.7.3).
func (s *Semaphore) Acquire(push Pusher, requester types.WorkerID) error {
	if s.value > 0 {
		s.value--
		return push.Push(requester, protocol.KindReleaseWaiter, protocol.Body{protocol.FieldID: int(s.id)})
	}
	s.seq++
	s.waiters.Set(s.seq, requester)
	return nil
}

// Release handles one SEU request: hand the freed permit straight to the
// next waiter, or increment value if no one is waiting (spec §4.7.3).
func (s *Semaphore) Release(push Pusher) error {
	if el := s.waiters.Front(); el != nil {
		next := el.Value
		s.waiters.Delete(el.Key)
		return push.Push(next, protocol.KindReleaseWaiter, protocol.Body{protocol.FieldID: int(s.id)})
	}
	s.value++
	return nil
}
