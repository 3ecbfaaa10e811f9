package coordination

import (
	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// Event is the master-side authority for one event primitive (spec
// §4.7.1). It is level-triggered: once Set, it stays set (I8) and every
// later Wait returns immediately.
type Event struct {
	id  types.PrimitiveID
	set bool
}

// NewEvent builds an unset event authority with the given id.
func NewEvent(id types.PrimitiveID) *Event {
	return &Event{id: id}
}

// IsSet reports the current state, for registration snapshots and tests.
func (e *Event) IsSet() bool { return e.set }

// Set fans SET_EVENT out to every worker in origins, then flips the
// master-side state so any local (master-loopback) waiter unparks too.
// Workers that fail to receive the push are returned so the caller can
// raise WORKER_DIED for each without aborting the fan-out (spec §4.7.1).
func (e *Event) Set(push Pusher, origins []types.WorkerID) []types.WorkerID {
	var dead []types.WorkerID
	for _, origin := range origins {
		if err := push.Push(origin, protocol.KindSetEvent, protocol.Body{protocol.FieldID: int(e.id)}); err != nil {
			dead = append(dead, origin)
		}
	}
	e.set = true
	if err := push.Push(types.MasterOrigin, protocol.KindSetEvent, protocol.Body{protocol.FieldID: int(e.id)}); err != nil {
		// The master's own mirror delivery never fails; this would only
		// happen if no mirror were registered, which the event's creation
		// handler prevents by calling MirrorSet.RegisterEvent.
		_ = err
	}
	return dead
}
