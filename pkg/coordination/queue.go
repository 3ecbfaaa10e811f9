package coordination

import (
	orderedmap "github.com/elliotchance/orderedmap/v2"

	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// Queue is the master-side authority for one FIFO queue (spec §4.7.4).
// Items and waiters are each kept in arrival order; distribute restores
// I6 ("if both are non-empty the dispatcher must have emptied one") after
// every Put or Get.
type Queue struct {
	id      types.PrimitiveID
	items   *orderedmap.OrderedMap[uint64, any]
	waiters *orderedmap.OrderedMap[uint64, types.WorkerID]
	itemSeq uint64
	waitSeq uint64
}

// NewQueue builds an empty queue authority.
func NewQueue(id types.PrimitiveID) *Queue {
	return &Queue{
		id:      id,
		items:   orderedmap.NewOrderedMap[uint64, any](),
		waiters: orderedmap.NewOrderedMap[uint64, types.WorkerID](),
	}
}

// Put appends item, then distributes (spec §4.7.4 "put").
func (q *Queue) Put(push Pusher, item any) error {
	q.itemSeq++
	q.items.Set(q.itemSeq, item)
	return q.distribute(push)
}

// Get registers requester as a waiter, then distributes (spec §4.7.4
// "get").
func (q *Queue) Get(push Pusher, requester types.WorkerID) error {
	q.waitSeq++
	q.waiters.Set(q.waitSeq, requester)
	return q.distribute(push)
}

// distribute delivers items to waiters in arrival order until one list is
// exhausted (spec §4.7.4 "distribute"). For a worker waiter the item
// travels as a PUT_ON_QUEUE push; for the master waiter (-1) the Pusher
// routes it straight into the master's local mirror.
func (q *Queue) distribute(push Pusher) error {
	for {
		itemEl := q.items.Front()
		waiterEl := q.waiters.Front()
		if itemEl == nil || waiterEl == nil {
			return nil
		}
		item := itemEl.Value
		waiter := waiterEl.Value
		q.waiters.Delete(waiterEl.Key)

		if err := push.Push(waiter, protocol.KindPutOnQueue, protocol.Body{
			protocol.FieldID:   int(q.id),
			protocol.FieldItem: item,
		}); err != nil {
			// waiter is dead; item stays queued for the next distribute.
			return err
		}
		q.items.Delete(itemEl.Key)
	}
}
