package workgroup

import (
	"context"
	"fmt"

	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// loopback enqueues a Future-backed Request for kind/body, originating
// from the master itself, and blocks for its Response (spec §9's
// "request with deferred response" idiom). Every driver-facing
// coordination method below is built on this.
func (wg *Workgroup) loopback(ctx context.Context, kind protocol.Kind, body protocol.Body) (*protocol.Response, error) {
	future := protocol.NewFuture()
	wg.d.Enqueue(&protocol.Request{
		Kind:        kind,
		Body:        body,
		Origin:      types.MasterOrigin,
		FutureReply: future,
	})
	resp, err := future.Await(ctx)
	if err != nil {
		return nil, err
	}
	if !resp.Ok {
		return nil, fmt.Errorf("workgroup: %s: %s", kind, resp.Error)
	}
	return resp, nil
}

// --- Task lifecycle (spec §4.8; delegates straight to pkg/lifecycle) -------

// Submit places target(args, kwargs) on the next live worker in round-robin
// order (spec §4.8, I4).
func (wg *Workgroup) Submit(target string, args []any, kwargs map[string]any) (*types.Task, error) {
	return wg.Lifecycle.Submit(target, args, kwargs)
}

func (wg *Workgroup) taskLoopback(ctx context.Context, kind protocol.Kind, taskID types.TaskID) (*protocol.Response, error) {
	return wg.loopback(ctx, kind, protocol.Body{protocol.FieldTask: int(taskID)})
}

// Result blocks until task's result is available and returns it.
func (wg *Workgroup) Result(ctx context.Context, taskID types.TaskID) (any, error) {
	resp, err := wg.taskLoopback(ctx, protocol.KindGetResult, taskID)
	if err != nil {
		return nil, err
	}
	return resp.Body[protocol.FieldValue], nil
}

// Running reports whether task is still executing.
func (wg *Workgroup) Running(ctx context.Context, taskID types.TaskID) (bool, error) {
	resp, err := wg.taskLoopback(ctx, protocol.KindTaskRunning, taskID)
	if err != nil {
		return false, err
	}
	running, _ := resp.Body[protocol.FieldValue].(bool)
	return running, nil
}

// Exception blocks until task finishes and returns its exception text, if
// any raised.
func (wg *Workgroup) Exception(ctx context.Context, taskID types.TaskID) (string, error) {
	resp, err := wg.taskLoopback(ctx, protocol.KindGetException, taskID)
	if err != nil {
		return "", err
	}
	msg, _ := resp.Body[protocol.FieldMessage].(string)
	return msg, nil
}

// ExceptionRaised reports whether task ended by raising an exception.
func (wg *Workgroup) ExceptionRaised(ctx context.Context, taskID types.TaskID) (bool, error) {
	resp, err := wg.taskLoopback(ctx, protocol.KindExceptionRaised, taskID)
	if err != nil {
		return false, err
	}
	raised, _ := resp.Body[protocol.FieldValue].(bool)
	return raised, nil
}

// Terminate kills task's process on its assigned worker.
func (wg *Workgroup) Terminate(ctx context.Context, taskID types.TaskID) error {
	_, err := wg.taskLoopback(ctx, protocol.KindTerminateTask, taskID)
	return err
}

// --- Event (spec §4.7.1) ----------------------------------------------

// CreateEvent registers a new, unset event and returns its id.
func (wg *Workgroup) CreateEvent(ctx context.Context) (types.PrimitiveID, error) {
	resp, err := wg.loopback(ctx, protocol.KindEventRegister, nil)
	if err != nil {
		return 0, err
	}
	n, _ := asInt(resp.Body[protocol.FieldID])
	return types.PrimitiveID(n), nil
}

// SetEvent flips id to set, waking every current and future waiter (I8).
func (wg *Workgroup) SetEvent(ctx context.Context, id types.PrimitiveID) error {
	_, err := wg.loopback(ctx, protocol.KindEventSet, protocol.Body{protocol.FieldID: int(id)})
	return err
}

// WaitEvent blocks until id has been set. It sends no request: it waits on
// the master's own event mirror, which Event.Set delivers to directly, and
// that mirror stays set once set, so a Set that lands first is not missed.
func (wg *Workgroup) WaitEvent(ctx context.Context, id types.PrimitiveID) error {
	mirror, err := wg.mirrors.Event(id)
	if err != nil {
		return err
	}
	return mirror.Wait(ctx)
}

// --- Lock (spec §4.7.2) -------------------------------------------------

// CreateLock registers a new, unheld lock and returns its id.
func (wg *Workgroup) CreateLock(ctx context.Context) (types.PrimitiveID, error) {
	resp, err := wg.loopback(ctx, protocol.KindLockRegister, nil)
	if err != nil {
		return 0, err
	}
	n, _ := asInt(resp.Body[protocol.FieldID])
	return types.PrimitiveID(n), nil
}

// AcquireLock blocks until id is granted to the master/driver.
func (wg *Workgroup) AcquireLock(ctx context.Context, id types.PrimitiveID) error {
	return wg.acquirePermit(ctx, id, protocol.KindLockAcquire)
}

// ReleaseLock releases id, handing it straight to the next FIFO waiter if
// one is queued.
func (wg *Workgroup) ReleaseLock(ctx context.Context, id types.PrimitiveID) error {
	_, err := wg.loopback(ctx, protocol.KindLockRelease, protocol.Body{protocol.FieldID: int(id)})
	return err
}

// --- Semaphore (spec §4.7.3) --------------------------------------------

// CreateSemaphore registers a new semaphore starting at initial permits.
func (wg *Workgroup) CreateSemaphore(ctx context.Context, initial int) (types.PrimitiveID, error) {
	resp, err := wg.loopback(ctx, protocol.KindSemRegister, protocol.Body{protocol.FieldValue: initial})
	if err != nil {
		return 0, err
	}
	n, _ := asInt(resp.Body[protocol.FieldID])
	return types.PrimitiveID(n), nil
}

// AcquireSemaphore blocks until a permit of id is granted.
func (wg *Workgroup) AcquireSemaphore(ctx context.Context, id types.PrimitiveID) error {
	return wg.acquirePermit(ctx, id, protocol.KindSemAcquire)
}

// ReleaseSemaphore returns a permit of id, handing it straight to the next
// waiter if one is queued.
func (wg *Workgroup) ReleaseSemaphore(ctx context.Context, id types.PrimitiveID) error {
	_, err := wg.loopback(ctx, protocol.KindSemRelease, protocol.Body{protocol.FieldID: int(id)})
	return err
}

// acquirePermit implements the shared lock/semaphore wait discipline: the
// local permit mirror is enqueued before the request is sent, so a RELEASE
// delivered synchronously by the master's own loopback Push (the grant
// path, when the primitive is immediately free) can never race ahead of
// the Enqueue call.
func (wg *Workgroup) acquirePermit(ctx context.Context, id types.PrimitiveID, kind protocol.Kind) error {
	mirror, err := wg.mirrors.Permit(id)
	if err != nil {
		return err
	}
	wait := mirror.Enqueue()
	if _, err := wg.loopback(ctx, kind, protocol.Body{protocol.FieldID: int(id)}); err != nil {
		return err
	}
	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- Queue (spec §4.7.4) -------------------------------------------------

// CreateQueue registers a new, empty queue and returns its id.
func (wg *Workgroup) CreateQueue(ctx context.Context) (types.PrimitiveID, error) {
	resp, err := wg.loopback(ctx, protocol.KindQueueRegister, nil)
	if err != nil {
		return 0, err
	}
	n, _ := asInt(resp.Body[protocol.FieldID])
	return types.PrimitiveID(n), nil
}

// PutQueue appends item to id.
func (wg *Workgroup) PutQueue(ctx context.Context, id types.PrimitiveID, item any) error {
	_, err := wg.loopback(ctx, protocol.KindQueuePut, protocol.Body{
		protocol.FieldID:   int(id),
		protocol.FieldItem: item,
	})
	return err
}

// GetQueue blocks until an item is available on id and returns it. The
// local queue mirror is enqueued before the GET request is sent, matching
// the lock/semaphore race-safety discipline above.
func (wg *Workgroup) GetQueue(ctx context.Context, id types.PrimitiveID) (any, error) {
	mirror, err := wg.mirrors.Queue(id)
	if err != nil {
		return nil, err
	}
	if _, err := wg.loopback(ctx, protocol.KindQueueGet, protocol.Body{protocol.FieldID: int(id)}); err != nil {
		return nil, err
	}
	return mirror.Take(ctx)
}

// --- Shared map (spec §4.7.5) --------------------------------------------

// CreateSharedMap registers a new, empty shared map and returns its id.
func (wg *Workgroup) CreateSharedMap(ctx context.Context) (types.PrimitiveID, error) {
	resp, err := wg.loopback(ctx, protocol.KindMapCreate, nil)
	if err != nil {
		return 0, err
	}
	n, _ := asInt(resp.Body[protocol.FieldID])
	return types.PrimitiveID(n), nil
}

// MapSet stores value under key in the shared map id.
func (wg *Workgroup) MapSet(ctx context.Context, id types.PrimitiveID, key string, value any) error {
	_, err := wg.loopback(ctx, protocol.KindMapSet, protocol.Body{
		protocol.FieldID:    int(id),
		protocol.FieldKey:   key,
		protocol.FieldValue: value,
	})
	return err
}

// MapGet returns the value under key in id, or types.ErrKeyAbsent if not
// present (spec §6/§7's KERR sentinel, translated here).
func (wg *Workgroup) MapGet(ctx context.Context, id types.PrimitiveID, key string) (any, error) {
	resp, err := wg.loopback(ctx, protocol.KindMapGet, protocol.Body{
		protocol.FieldID:  int(id),
		protocol.FieldKey: key,
	})
	if err != nil {
		return nil, err
	}
	if s, ok := resp.Body[protocol.FieldValue].(string); ok && s == protocol.KeyErrorSentinel {
		return nil, types.ErrKeyAbsent
	}
	return resp.Body[protocol.FieldValue], nil
}

// MapContains reports whether key is set in the shared map id.
func (wg *Workgroup) MapContains(ctx context.Context, id types.PrimitiveID, key string) (bool, error) {
	resp, err := wg.loopback(ctx, protocol.KindMapContains, protocol.Body{
		protocol.FieldID:  int(id),
		protocol.FieldKey: key,
	})
	if err != nil {
		return false, err
	}
	ok, _ := resp.Body[protocol.FieldValue].(bool)
	return ok, nil
}

// MapLength returns the number of keys set in the shared map id.
func (wg *Workgroup) MapLength(ctx context.Context, id types.PrimitiveID) (int, error) {
	resp, err := wg.loopback(ctx, protocol.KindMapLength, protocol.Body{protocol.FieldID: int(id)})
	if err != nil {
		return 0, err
	}
	n, _ := asInt(resp.Body[protocol.FieldValue])
	return n, nil
}

// MapKeys returns every key set in the shared map id, in insertion order.
func (wg *Workgroup) MapKeys(ctx context.Context, id types.PrimitiveID) ([]string, error) {
	resp, err := wg.loopback(ctx, protocol.KindMapKeys, protocol.Body{protocol.FieldID: int(id)})
	if err != nil {
		return nil, err
	}
	raw, _ := resp.Body[protocol.FieldData].([]string)
	return raw, nil
}

// --- Net-object (spec §4.7.6) --------------------------------------------

// RegisterNetClass broadcasts a class bundle to every live worker before
// any instance of it can be shipped inside a task's arguments.
func (wg *Workgroup) RegisterNetClass(ctx context.Context, classID string, methods, static map[string]string) error {
	_, err := wg.loopback(ctx, protocol.KindNetObjectRegister, protocol.Body{
		protocol.FieldClass:   classID,
		protocol.FieldMethods: methods,
		protocol.FieldStatic:  static,
	})
	return err
}
