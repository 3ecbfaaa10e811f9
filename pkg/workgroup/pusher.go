package workgroup

import (
	"fmt"

	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/session"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// Push implements coordination.Pusher: deliver kind/body to origin,
// either over the network (a worker) or straight into the master's own
// MirrorSet (types.MasterOrigin), so a driver-program loopback waiter
// unparks exactly the way a worker-side task would (spec §9).
func (wg *Workgroup) Push(origin types.WorkerID, kind protocol.Kind, body protocol.Body) error {
	if origin == types.MasterOrigin {
		return wg.deliverLocal(kind, body)
	}
	sess, ok := wg.sessionFor(origin)
	if !ok {
		return &session.DeadWorkerError{WorkerID: origin, Cause: fmt.Errorf("workgroup: no session configured for worker %d", origin)}
	}
	return sess.SendRequest(kind, body)
}

func (wg *Workgroup) deliverLocal(kind protocol.Kind, body protocol.Body) error {
	switch kind {
	case protocol.KindSetEvent:
		id, _ := asInt(body[protocol.FieldID])
		return wg.mirrors.DeliverEvent(types.PrimitiveID(id))
	case protocol.KindReleaseWaiter:
		id, _ := asInt(body[protocol.FieldID])
		return wg.mirrors.DeliverRelease(types.PrimitiveID(id))
	case protocol.KindPutOnQueue:
		id, _ := asInt(body[protocol.FieldID])
		return wg.mirrors.DeliverQueueItem(types.PrimitiveID(id), body[protocol.FieldItem])
	case protocol.KindEventRegister, protocol.KindLockRegister, protocol.KindSemRegister,
		protocol.KindQueueRegister, protocol.KindRegisterNetClass:
		// The master's own authority and registry already reflect the
		// registration it is about to broadcast; there is nothing further
		// to deliver to itself.
		return nil
	default:
		return fmt.Errorf("workgroup: push of kind %s has no local-delivery mapping", kind)
	}
}
