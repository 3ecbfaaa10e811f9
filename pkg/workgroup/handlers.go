package workgroup

import (
	"fmt"
	"sync/atomic"

	"github.com/nidzo732/fleetwork/pkg/coordination"
	"github.com/nidzo732/fleetwork/pkg/dispatch"
	"github.com/nidzo732/fleetwork/pkg/log"
	"github.com/nidzo732/fleetwork/pkg/metrics"
	"github.com/nidzo732/fleetwork/pkg/netobject"
	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// registerHandlers installs every dispatcher handler the master needs:
// the five coordination-primitive families, net-object registration, the
// task lifecycle forwards, and the WORKER_DIED cascade (spec §4.5, §4.7,
// §4.8).
func (wg *Workgroup) registerHandlers() {
	wg.d.Handle(protocol.KindEventRegister, wg.handleEventRegister)
	wg.d.Handle(protocol.KindEventSet, wg.handleEventSet)

	wg.d.Handle(protocol.KindLockRegister, wg.handleLockRegister)
	wg.d.Handle(protocol.KindLockAcquire, wg.handleLockAcquire)
	wg.d.Handle(protocol.KindLockRelease, wg.handleLockRelease)

	wg.d.Handle(protocol.KindSemRegister, wg.handleSemRegister)
	wg.d.Handle(protocol.KindSemAcquire, wg.handleSemAcquire)
	wg.d.Handle(protocol.KindSemRelease, wg.handleSemRelease)

	wg.d.Handle(protocol.KindQueueRegister, wg.handleQueueRegister)
	wg.d.Handle(protocol.KindQueuePut, wg.handleQueuePut)
	wg.d.Handle(protocol.KindQueueGet, wg.handleQueueGet)

	wg.d.Handle(protocol.KindMapCreate, wg.handleMapCreate)
	wg.d.Handle(protocol.KindMapSet, wg.handleMapSet)
	wg.d.Handle(protocol.KindMapGet, wg.handleMapGet)
	wg.d.Handle(protocol.KindMapKeys, wg.handleMapKeys)
	wg.d.Handle(protocol.KindMapContains, wg.handleMapContains)
	wg.d.Handle(protocol.KindMapLength, wg.handleMapLength)

	wg.d.Handle(protocol.KindNetObjectRegister, wg.handleNetObjectRegister)
	wg.d.Handle(protocol.KindNetPrint, wg.handleNetPrint)

	wg.d.Handle(protocol.KindWorkerDied, wg.handleWorkerDied)

	wg.Lifecycle.RegisterHandlers(wg.d)
}

// --- Event -----------------------------------------------------------

func (wg *Workgroup) handleEventRegister(d *dispatch.Dispatcher, req *protocol.Request) error {
	id := wg.nextID()
	wg.events[id] = coordination.NewEvent(id)
	wg.mirrors.RegisterEvent(id)
	metrics.PrimitivesRegistered.WithLabelValues("event").Inc()

	for _, dead := range wg.broadcastRegister(protocol.KindEventRegister, id, nil) {
		wg.queueWorkerDied(dead)
	}
	return req.Reply(protocol.OK(protocol.Body{protocol.FieldID: int(id)}))
}

func (wg *Workgroup) handleEventSet(d *dispatch.Dispatcher, req *protocol.Request) error {
	id, err := wg.bodyID(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	ev, ok := wg.events[id]
	if !ok {
		return req.Reply(protocol.Fail(fmt.Errorf("workgroup: no event registered for id %d", id)))
	}
	for _, dead := range ev.Set(wg, wg.liveWorkerIDs()) {
		wg.queueWorkerDied(dead)
	}
	return req.Reply(protocol.OK(nil))
}

// --- Lock --------------------------------------------------------------

func (wg *Workgroup) handleLockRegister(d *dispatch.Dispatcher, req *protocol.Request) error {
	id := wg.nextID()
	wg.locks[id] = coordination.NewLock(id)
	wg.mirrors.RegisterPermit(id)
	metrics.PrimitivesRegistered.WithLabelValues("lock").Inc()

	for _, dead := range wg.broadcastRegister(protocol.KindLockRegister, id, nil) {
		wg.queueWorkerDied(dead)
	}
	return req.Reply(protocol.OK(protocol.Body{protocol.FieldID: int(id)}))
}

func (wg *Workgroup) handleLockAcquire(d *dispatch.Dispatcher, req *protocol.Request) error {
	id, err := wg.bodyID(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	lock, ok := wg.locks[id]
	if !ok {
		return req.Reply(protocol.Fail(fmt.Errorf("workgroup: no lock registered for id %d", id)))
	}
	if err := lock.Acquire(wg, req.Origin); err != nil {
		return err
	}
	return req.Reply(protocol.OK(nil))
}

func (wg *Workgroup) handleLockRelease(d *dispatch.Dispatcher, req *protocol.Request) error {
	id, err := wg.bodyID(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	lock, ok := wg.locks[id]
	if !ok {
		return req.Reply(protocol.Fail(fmt.Errorf("workgroup: no lock registered for id %d", id)))
	}
	if err := lock.Release(wg); err != nil {
		return err
	}
	return req.Reply(protocol.OK(nil))
}

// --- Semaphore -----------------------------------------------------------

func (wg *Workgroup) handleSemRegister(d *dispatch.Dispatcher, req *protocol.Request) error {
	initial, _ := asInt(req.Body[protocol.FieldValue])
	id := wg.nextID()
	wg.sems[id] = coordination.NewSemaphore(id, initial)
	wg.mirrors.RegisterPermit(id)
	metrics.PrimitivesRegistered.WithLabelValues("semaphore").Inc()

	for _, dead := range wg.broadcastRegister(protocol.KindSemRegister, id, nil) {
		wg.queueWorkerDied(dead)
	}
	return req.Reply(protocol.OK(protocol.Body{protocol.FieldID: int(id)}))
}

func (wg *Workgroup) handleSemAcquire(d *dispatch.Dispatcher, req *protocol.Request) error {
	id, err := wg.bodyID(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	sem, ok := wg.sems[id]
	if !ok {
		return req.Reply(protocol.Fail(fmt.Errorf("workgroup: no semaphore registered for id %d", id)))
	}
	if err := sem.Acquire(wg, req.Origin); err != nil {
		return err
	}
	return req.Reply(protocol.OK(nil))
}

func (wg *Workgroup) handleSemRelease(d *dispatch.Dispatcher, req *protocol.Request) error {
	id, err := wg.bodyID(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	sem, ok := wg.sems[id]
	if !ok {
		return req.Reply(protocol.Fail(fmt.Errorf("workgroup: no semaphore registered for id %d", id)))
	}
	if err := sem.Release(wg); err != nil {
		return err
	}
	return req.Reply(protocol.OK(nil))
}

// --- Queue ---------------------------------------------------------------

func (wg *Workgroup) handleQueueRegister(d *dispatch.Dispatcher, req *protocol.Request) error {
	id := wg.nextID()
	wg.queues[id] = coordination.NewQueue(id)
	wg.mirrors.RegisterQueue(id)
	metrics.PrimitivesRegistered.WithLabelValues("queue").Inc()

	for _, dead := range wg.broadcastRegister(protocol.KindQueueRegister, id, nil) {
		wg.queueWorkerDied(dead)
	}
	return req.Reply(protocol.OK(protocol.Body{protocol.FieldID: int(id)}))
}

func (wg *Workgroup) handleQueuePut(d *dispatch.Dispatcher, req *protocol.Request) error {
	id, err := wg.bodyID(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	q, ok := wg.queues[id]
	if !ok {
		return req.Reply(protocol.Fail(fmt.Errorf("workgroup: no queue registered for id %d", id)))
	}
	if err := q.Put(wg, req.Body[protocol.FieldItem]); err != nil {
		return err
	}
	return req.Reply(protocol.OK(nil))
}

func (wg *Workgroup) handleQueueGet(d *dispatch.Dispatcher, req *protocol.Request) error {
	id, err := wg.bodyID(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	q, ok := wg.queues[id]
	if !ok {
		return req.Reply(protocol.Fail(fmt.Errorf("workgroup: no queue registered for id %d", id)))
	}
	if err := q.Get(wg, req.Origin); err != nil {
		return err
	}
	return req.Reply(protocol.OK(nil))
}

// --- Shared map ------------------------------------------------------------
//
// A shared map has no worker-local mirror (spec §4.7.5): every operation is
// a synchronous request/reply against master state, so creation never
// needs to fan anything out to a worker.

func (wg *Workgroup) handleMapCreate(d *dispatch.Dispatcher, req *protocol.Request) error {
	id := wg.nextID()
	wg.maps[id] = coordination.NewSharedMap(id)
	metrics.PrimitivesRegistered.WithLabelValues("map").Inc()
	return req.Reply(protocol.OK(protocol.Body{protocol.FieldID: int(id)}))
}

func (wg *Workgroup) handleMapSet(d *dispatch.Dispatcher, req *protocol.Request) error {
	m, err := wg.sharedMap(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	key, _ := req.Body[protocol.FieldKey].(string)
	m.Set(key, req.Body[protocol.FieldValue])
	return req.Reply(protocol.OK(nil))
}

func (wg *Workgroup) handleMapGet(d *dispatch.Dispatcher, req *protocol.Request) error {
	m, err := wg.sharedMap(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	key, _ := req.Body[protocol.FieldKey].(string)
	value, ok := m.Get(key)
	if !ok {
		return req.Reply(protocol.OK(protocol.Body{protocol.FieldValue: protocol.KeyErrorSentinel}))
	}
	return req.Reply(protocol.OK(protocol.Body{protocol.FieldValue: value}))
}

func (wg *Workgroup) handleMapKeys(d *dispatch.Dispatcher, req *protocol.Request) error {
	m, err := wg.sharedMap(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	return req.Reply(protocol.OK(protocol.Body{protocol.FieldData: m.Keys()}))
}

func (wg *Workgroup) handleMapContains(d *dispatch.Dispatcher, req *protocol.Request) error {
	m, err := wg.sharedMap(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	key, _ := req.Body[protocol.FieldKey].(string)
	return req.Reply(protocol.OK(protocol.Body{protocol.FieldValue: m.Contains(key)}))
}

func (wg *Workgroup) handleMapLength(d *dispatch.Dispatcher, req *protocol.Request) error {
	m, err := wg.sharedMap(req)
	if err != nil {
		return req.Reply(protocol.Fail(err))
	}
	return req.Reply(protocol.OK(protocol.Body{protocol.FieldValue: m.Length()}))
}

func (wg *Workgroup) sharedMap(req *protocol.Request) (*coordination.SharedMap, error) {
	id, err := wg.bodyID(req)
	if err != nil {
		return nil, err
	}
	m, ok := wg.maps[id]
	if !ok {
		return nil, fmt.Errorf("workgroup: no shared map registered for id %d", id)
	}
	return m, nil
}

// --- Net-object + net-print -------------------------------------------------

func (wg *Workgroup) handleNetObjectRegister(d *dispatch.Dispatcher, req *protocol.Request) error {
	classID, _ := req.Body[protocol.FieldClass].(string)
	methods := toStringMap(req.Body[protocol.FieldMethods])
	static := toStringMap(req.Body[protocol.FieldStatic])
	bundle := netobject.ClassBundle{ClassID: classID, Methods: methods, StaticMethods: static}
	wg.netRegistry.Register(bundle)

	for _, id := range wg.liveWorkerIDs() {
		if err := wg.Push(id, protocol.KindRegisterNetClass, req.Body); err != nil {
			wg.queueWorkerDied(id)
		}
	}
	return req.Reply(protocol.OK(nil))
}

// handleNetPrint forwards a task's print output to the master's own log,
// the Go-native equivalent of the original's worker-to-master stdout
// relay (spec §4.7.6 area, supplemented feature).
func (wg *Workgroup) handleNetPrint(d *dispatch.Dispatcher, req *protocol.Request) error {
	msg, _ := req.Body[protocol.FieldMessage].(string)
	log.WithWorkerID(int(req.Origin)).Info().Msg(msg)
	return req.Reply(protocol.OK(nil))
}

// --- Worker-death cascade ---------------------------------------------------

func (wg *Workgroup) handleWorkerDied(d *dispatch.Dispatcher, req *protocol.Request) error {
	id, _ := asInt(req.Body[protocol.FieldWorker])
	workerID := types.WorkerID(id)

	wg.workersMu.Lock()
	w, ok := wg.workers[workerID]
	alreadyDead := !ok || !w.Live
	if ok && w.Live {
		w.Live = false
	}
	wg.workersMu.Unlock()

	if alreadyDead {
		return req.Reply(protocol.OK(nil))
	}

	metrics.WorkerDeathsTotal.Inc()
	remaining := atomic.AddInt64(&wg.liveCount, -1)
	metrics.WorkersTotal.WithLabelValues("live").Set(float64(remaining))
	metrics.WorkersTotal.WithLabelValues("dead").Set(float64(len(wg.workers)) - float64(remaining))
	log.WithWorkerID(id).Warn().Msg("worker marked dead")

	if remaining <= 0 {
		d.Fatal(types.ErrNoLiveWorkers)
	}
	return req.Reply(protocol.OK(nil))
}

// --- shared helpers ----------------------------------------------------

func (wg *Workgroup) bodyID(req *protocol.Request) (types.PrimitiveID, error) {
	raw, ok := req.Body[protocol.FieldID]
	if !ok {
		return 0, fmt.Errorf("workgroup: request missing %s field", protocol.FieldID)
	}
	n, ok := asInt(raw)
	if !ok {
		return 0, fmt.Errorf("workgroup: %s field is not an integer", protocol.FieldID)
	}
	return types.PrimitiveID(n), nil
}

// broadcastRegister pushes kind/id (plus any extra fields) to every
// currently live worker, returning those that failed to receive it so the
// caller can raise WORKER_DIED for each (spec §4.7.1 fan-out semantics).
func (wg *Workgroup) broadcastRegister(kind protocol.Kind, id types.PrimitiveID, extra protocol.Body) []types.WorkerID {
	body := protocol.Body{protocol.FieldID: int(id)}
	for k, v := range extra {
		body[k] = v
	}
	var dead []types.WorkerID
	for _, w := range wg.liveWorkerIDs() {
		if err := wg.Push(w, kind, body); err != nil {
			dead = append(dead, w)
		}
	}
	return dead
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
