package coordination

import (
	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// Pusher delivers a master-originated push message to origin: a worker id
// over the network, or types.MasterOrigin directly into the master
// process's own Mirror set. Authorities call this for every fan-out or
// unpark signal; they never touch a socket themselves (spec §9 "runs on
// master vs runs on worker flag").
//
// A non-nil error from Push against a worker origin is always a
// *session.DeadWorkerError; callers translate that into a WORKER_DIED
// follow-up rather than aborting whatever loop they were in (spec §4.7.1
// "workers failing during the fan-out flip to dead but do not block the
// set").
type Pusher interface {
	Push(origin types.WorkerID, kind protocol.Kind, body protocol.Body) error
}
