package lifecycle

import (
	"fmt"

	"github.com/nidzo732/fleetwork/pkg/dispatch"
	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/session"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// RegisterHandlers installs the dispatcher handlers for the four task
// lifecycle forwards and terminate (spec §4.8): "the dispatcher looks up
// the executor, forwards a corresponding request to that worker, forwards
// the reply to the original caller". A session transport failure returns
// a *session.DeadWorkerError, which pkg/dispatch's loop already knows how
// to translate into a WORKER_DIED follow-up.
func (r *Registry) RegisterHandlers(d *dispatch.Dispatcher) {
	d.Handle(protocol.KindGetResult, r.handleForward(protocol.KindGetResult))
	d.Handle(protocol.KindTaskRunning, r.handleForward(protocol.KindTaskRunning))
	d.Handle(protocol.KindGetException, r.handleForward(protocol.KindGetException))
	d.Handle(protocol.KindExceptionRaised, r.handleForward(protocol.KindExceptionRaised))
	d.Handle(protocol.KindTerminateTask, r.handleTerminate)
}

// handleForward builds the handler shared by RSL/TRN/EXC/EXR: look up the
// task's worker, forward the same kind of request to it carrying only the
// task id, and pass the worker's reply straight back to the caller.
func (r *Registry) handleForward(kind protocol.Kind) dispatch.HandlerFunc {
	return func(d *dispatch.Dispatcher, req *protocol.Request) error {
		taskID, _, sess, err := r.resolve(req)
		if err != nil {
			return req.Reply(protocol.Fail(err))
		}

		resp, err := sess.SendRequestWithResponse(kind, protocol.Body{protocol.FieldTask: int(taskID)})
		if err != nil {
			return err
		}
		return req.Reply(resp)
	}
}

// handleTerminate forwards TRM fire-and-forget: spec §4.8 "terminate(id):
// forwarded to executor, fire-and-forget" — the caller gets an
// acknowledgement, not a result.
func (r *Registry) handleTerminate(d *dispatch.Dispatcher, req *protocol.Request) error {
	taskID, _, sess, err := r.resolve(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	if err := sess.SendRequest(protocol.KindTerminateTask, protocol.Body{protocol.FieldTask: int(taskID)}); err != nil {
		return err
	}
	return req.Reply(protocol.OK(nil))
}

// resolve extracts the task id from req, finds which worker it was placed
// on, and fetches that worker's session.
func (r *Registry) resolve(req *protocol.Request) (taskID types.TaskID, workerID types.WorkerID, sess *session.Session, err error) {
	raw, ok := req.Body[protocol.FieldTask]
	if !ok {
		return 0, 0, nil, fmt.Errorf("lifecycle: request missing %s field", protocol.FieldTask)
	}
	n, ok := asInt(raw)
	if !ok {
		return 0, 0, nil, fmt.Errorf("lifecycle: %s field is not an integer", protocol.FieldTask)
	}
	taskID = types.TaskID(n)

	workerID, ok = r.workerFor(taskID)
	if !ok {
		return 0, 0, nil, fmt.Errorf("lifecycle: unknown task %d", taskID)
	}

	sess, ok = r.sessionFor(workerID)
	if !ok {
		return 0, 0, nil, fmt.Errorf("lifecycle: no session for worker %d", workerID)
	}
	return taskID, workerID, sess, nil
}
