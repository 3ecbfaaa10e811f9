package worker

import (
	"fmt"

	"github.com/nidzo732/fleetwork/pkg/dispatch"
	"github.com/nidzo732/fleetwork/pkg/executor"
	"github.com/nidzo732/fleetwork/pkg/netobject"
	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// registerHandlers installs every handler a worker answers: task
// submission and the four status queries plus terminate (spec §4.4,
// §4.8), the coordination-primitive mirror installs and wakeups the
// master fans out (spec §4.7), and the net-object class broadcast (spec
// §4.7.6).
func (w *Worker) registerHandlers() {
	w.d.Handle(protocol.KindSubmitTask, w.handleSubmitTask)
	w.d.Handle(protocol.KindGetResult, w.handleGetResult)
	w.d.Handle(protocol.KindTaskRunning, w.handleTaskRunning)
	w.d.Handle(protocol.KindGetException, w.handleGetException)
	w.d.Handle(protocol.KindExceptionRaised, w.handleExceptionRaised)
	w.d.Handle(protocol.KindTerminateTask, w.handleTerminateTask)

	w.d.Handle(protocol.KindSetEvent, w.handleSetEvent)
	w.d.Handle(protocol.KindReleaseWaiter, w.handleReleaseWaiter)
	w.d.Handle(protocol.KindPutOnQueue, w.handlePutOnQueue)

	w.d.Handle(protocol.KindEventRegister, w.handleInstallEvent)
	w.d.Handle(protocol.KindLockRegister, w.handleInstallPermit)
	w.d.Handle(protocol.KindSemRegister, w.handleInstallPermit)
	w.d.Handle(protocol.KindQueueRegister, w.handleInstallQueue)

	w.d.Handle(protocol.KindRegisterNetClass, w.handleRegisterNetClass)
}

// --- Task lifecycle (spec §4.4, §4.8) --------------------------------------

func (w *Worker) handleSubmitTask(d *dispatch.Dispatcher, req *protocol.Request) error {
	taskID, err := bodyTaskID(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	target, _ := req.Body[protocol.FieldTarget].(string)
	args, _ := req.Body[protocol.FieldArgs].([]any)
	kwargs, _ := req.Body[protocol.FieldKwargs].(map[string]any)

	task := &types.Task{ID: taskID, Target: target, Args: args, Kwargs: kwargs}
	exec, err := executor.Start(task, w.relay)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}

	w.execsMu.Lock()
	w.execs[taskID] = exec
	w.execsMu.Unlock()

	return req.Reply(protocol.OK(nil))
}

func (w *Worker) handleGetResult(d *dispatch.Dispatcher, req *protocol.Request) error {
	exec, err := w.resolveExecution(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	<-exec.Wait()
	return req.Reply(protocol.OK(protocol.Body{protocol.FieldValue: exec.Result()}))
}

func (w *Worker) handleTaskRunning(d *dispatch.Dispatcher, req *protocol.Request) error {
	exec, err := w.resolveExecution(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	return req.Reply(protocol.OK(protocol.Body{protocol.FieldValue: exec.Running()}))
}

func (w *Worker) handleGetException(d *dispatch.Dispatcher, req *protocol.Request) error {
	exec, err := w.resolveExecution(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	<-exec.Wait()
	msg := fmt.Sprintf("%v", exec.Exception())
	return req.Reply(protocol.OK(protocol.Body{protocol.FieldMessage: msg}))
}

func (w *Worker) handleExceptionRaised(d *dispatch.Dispatcher, req *protocol.Request) error {
	exec, err := w.resolveExecution(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	<-exec.Wait()
	return req.Reply(protocol.OK(protocol.Body{protocol.FieldValue: exec.ExceptionRaised()}))
}

func (w *Worker) handleTerminateTask(d *dispatch.Dispatcher, req *protocol.Request) error {
	exec, err := w.resolveExecution(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	if err := exec.Terminate(); err != nil {
		return req.Reply(protocol.Fail(err))
	}
	return req.Reply(protocol.OK(nil))
}

func (w *Worker) resolveExecution(req *protocol.Request) (*executor.Execution, error) {
	taskID, err := bodyTaskID(req)
	if err != nil {
		return nil, err
	}
	exec, ok := w.execution(taskID)
	if !ok {
		return nil, fmt.Errorf("worker: unknown task %d", taskID)
	}
	return exec, nil
}

func bodyTaskID(req *protocol.Request) (types.TaskID, error) {
	raw, ok := req.Body[protocol.FieldTask]
	if !ok {
		return 0, fmt.Errorf("worker: request missing %s field", protocol.FieldTask)
	}
	n, ok := asInt(raw)
	if !ok {
		return 0, fmt.Errorf("worker: %s field is not an integer", protocol.FieldTask)
	}
	return types.TaskID(n), nil
}

// --- Coordination-primitive wakeups (spec §4.7, §9 "worker-local mirror") --

func (w *Worker) handleSetEvent(d *dispatch.Dispatcher, req *protocol.Request) error {
	id, err := bodyPrimitiveID(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	if err := w.mirrors.DeliverEvent(id); err != nil {
		return req.Reply(protocol.Fail(err))
	}
	return req.Reply(protocol.OK(nil))
}

func (w *Worker) handleReleaseWaiter(d *dispatch.Dispatcher, req *protocol.Request) error {
	id, err := bodyPrimitiveID(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	if err := w.mirrors.DeliverRelease(id); err != nil {
		return req.Reply(protocol.Fail(err))
	}
	return req.Reply(protocol.OK(nil))
}

func (w *Worker) handlePutOnQueue(d *dispatch.Dispatcher, req *protocol.Request) error {
	id, err := bodyPrimitiveID(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	if err := w.mirrors.DeliverQueueItem(id, req.Body[protocol.FieldItem]); err != nil {
		return req.Reply(protocol.Fail(err))
	}
	return req.Reply(protocol.OK(nil))
}

// --- Coordination-primitive mirror installs ---------------------------------
//
// EVR/LCR/SER/QUR double as both the loopback-only "create" kind the
// master's own dispatcher answers and, pushed out here, the instruction
// to install a fresh local mirror (spec §4.7.1 fan-out: "registered on
// every worker currently live"). A worker never originates one of these;
// it only installs what the master pushes.

func (w *Worker) handleInstallEvent(d *dispatch.Dispatcher, req *protocol.Request) error {
	id, err := bodyPrimitiveID(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	w.mirrors.RegisterEvent(id)
	return req.Reply(protocol.OK(nil))
}

func (w *Worker) handleInstallPermit(d *dispatch.Dispatcher, req *protocol.Request) error {
	id, err := bodyPrimitiveID(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	w.mirrors.RegisterPermit(id)
	return req.Reply(protocol.OK(nil))
}

func (w *Worker) handleInstallQueue(d *dispatch.Dispatcher, req *protocol.Request) error {
	id, err := bodyPrimitiveID(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	w.mirrors.RegisterQueue(id)
	return req.Reply(protocol.OK(nil))
}

func bodyPrimitiveID(req *protocol.Request) (types.PrimitiveID, error) {
	raw, ok := req.Body[protocol.FieldID]
	if !ok {
		return 0, fmt.Errorf("worker: request missing %s field", protocol.FieldID)
	}
	n, ok := asInt(raw)
	if !ok {
		return 0, fmt.Errorf("worker: %s field is not an integer", protocol.FieldID)
	}
	return types.PrimitiveID(n), nil
}

// --- Net-object -------------------------------------------------------------

func (w *Worker) handleRegisterNetClass(d *dispatch.Dispatcher, req *protocol.Request) error {
	classID, _ := req.Body[protocol.FieldClass].(string)
	methods := toStringMap(req.Body[protocol.FieldMethods])
	static := toStringMap(req.Body[protocol.FieldStatic])
	w.netRegistry.Register(netobject.ClassBundle{ClassID: classID, Methods: methods, StaticMethods: static})
	return req.Reply(protocol.OK(nil))
}

func toStringMap(v any) map[string]string {
	raw, ok := v.(map[string]any)
	if !ok {
		if m, ok := v.(map[string]string); ok {
			return m
		}
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}
