package worker

import (
	"context"
	"fmt"

	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// primitiveRelay implements executor.PrimitiveClient by forwarding every
// call to the master over the worker's own session, exactly mirroring
// pkg/workgroup/api.go's driver-facing methods — the difference is that a
// loopback Future becomes a real wire round trip, and the Workgroup's own
// mirrors become this worker's mirrors, installed by the EVR/LCR/SER/QUR
// registration pushes the master already fans out to every live worker
// (spec §4.7's "behave, to running tasks, as if they lived in one address
// space").
//
// Object creation is deliberately absent here too (see
// executor.PrimitiveClient's doc comment): a task's Func never registers
// a new primitive, only operates on ids it was handed.
type primitiveRelay struct {
	w *Worker
}

func (r *primitiveRelay) call(kind protocol.Kind, body protocol.Body) (*protocol.Response, error) {
	resp, err := r.w.masterSession.SendRequestWithResponse(kind, body)
	if err != nil {
		return nil, err
	}
	if !resp.Ok {
		return nil, fmt.Errorf("worker: %s: %s", kind, resp.Error)
	}
	return resp, nil
}

func (r *primitiveRelay) WaitEvent(id types.PrimitiveID) error {
	mirror, err := r.w.mirrors.Event(id)
	if err != nil {
		return err
	}
	return mirror.Wait(context.Background())
}

func (r *primitiveRelay) SetEvent(id types.PrimitiveID) error {
	_, err := r.call(protocol.KindEventSet, protocol.Body{protocol.FieldID: int(id)})
	return err
}

func (r *primitiveRelay) AcquireLock(id types.PrimitiveID) error {
	return r.acquirePermit(id, protocol.KindLockAcquire)
}

func (r *primitiveRelay) ReleaseLock(id types.PrimitiveID) error {
	_, err := r.call(protocol.KindLockRelease, protocol.Body{protocol.FieldID: int(id)})
	return err
}

func (r *primitiveRelay) AcquireSemaphore(id types.PrimitiveID) error {
	return r.acquirePermit(id, protocol.KindSemAcquire)
}

func (r *primitiveRelay) ReleaseSemaphore(id types.PrimitiveID) error {
	_, err := r.call(protocol.KindSemRelease, protocol.Body{protocol.FieldID: int(id)})
	return err
}

// acquirePermit mirrors wg.acquirePermit's race-safety discipline: enqueue
// the local wait before sending the wire request, so a grant that the
// master pushes back before the request round trip even returns can never
// be missed.
func (r *primitiveRelay) acquirePermit(id types.PrimitiveID, kind protocol.Kind) error {
	mirror, err := r.w.mirrors.Permit(id)
	if err != nil {
		return err
	}
	wait := mirror.Enqueue()
	if _, err := r.call(kind, protocol.Body{protocol.FieldID: int(id)}); err != nil {
		return err
	}
	<-wait
	return nil
}

func (r *primitiveRelay) PutQueue(id types.PrimitiveID, item any) error {
	_, err := r.call(protocol.KindQueuePut, protocol.Body{
		protocol.FieldID:   int(id),
		protocol.FieldItem: item,
	})
	return err
}

func (r *primitiveRelay) GetQueue(id types.PrimitiveID) (any, error) {
	mirror, err := r.w.mirrors.Queue(id)
	if err != nil {
		return nil, err
	}
	if _, err := r.call(protocol.KindQueueGet, protocol.Body{protocol.FieldID: int(id)}); err != nil {
		return nil, err
	}
	return mirror.Take(context.Background())
}

func (r *primitiveRelay) MapSet(id types.PrimitiveID, key string, value any) error {
	_, err := r.call(protocol.KindMapSet, protocol.Body{
		protocol.FieldID:    int(id),
		protocol.FieldKey:   key,
		protocol.FieldValue: value,
	})
	return err
}

func (r *primitiveRelay) MapGet(id types.PrimitiveID, key string) (any, error) {
	resp, err := r.call(protocol.KindMapGet, protocol.Body{
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

func (r *primitiveRelay) MapContains(id types.PrimitiveID, key string) (bool, error) {
	resp, err := r.call(protocol.KindMapContains, protocol.Body{
		protocol.FieldID:  int(id),
		protocol.FieldKey: key,
	})
	if err != nil {
		return false, err
	}
	ok, _ := resp.Body[protocol.FieldValue].(bool)
	return ok, nil
}

func (r *primitiveRelay) MapLength(id types.PrimitiveID) (int, error) {
	resp, err := r.call(protocol.KindMapLength, protocol.Body{protocol.FieldID: int(id)})
	if err != nil {
		return 0, err
	}
	n, _ := asInt(resp.Body[protocol.FieldValue])
	return n, nil
}

func (r *primitiveRelay) MapKeys(id types.PrimitiveID) ([]string, error) {
	resp, err := r.call(protocol.KindMapKeys, protocol.Body{protocol.FieldID: int(id)})
	if err != nil {
		return nil, err
	}
	switch raw := resp.Body[protocol.FieldData].(type) {
	case []string:
		return raw, nil
	case []any:
		keys := make([]string, 0, len(raw))
		for _, k := range raw {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys, nil
	}
	return nil, nil
}

// asInt coerces a Body value the same way every other package's local
// copy does — see e.g. pkg/workgroup's asInt for why the tolerance is
// necessary (msgpack round trips decode integers as int64/uint64/float64
// depending on sign).
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
