package executor

import (
	"fmt"
	"io"
	"sync"

	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
	"github.com/nidzo732/fleetwork/pkg/wire"
)

// PrimitiveClient is the coordination-primitive surface available to a
// running task (spec §4.7: primitives "behave, to running tasks, as if
// they lived in one address space but are in fact mediated by the
// master"). A task's Func receives one bound to the specific task's
// child process; every call crosses back over the same pipe the task
// request arrived on, and the worker process on the other end relays it
// to the master exactly as a driver-initiated call would (see
// pkg/worker's implementation).
//
// Object creation (Create*) is deliberately absent: spec I7 reserves
// registering a new primitive id to the master/driver, never to a task.
type PrimitiveClient interface {
	WaitEvent(id types.PrimitiveID) error
	SetEvent(id types.PrimitiveID) error

	AcquireLock(id types.PrimitiveID) error
	ReleaseLock(id types.PrimitiveID) error

	AcquireSemaphore(id types.PrimitiveID) error
	ReleaseSemaphore(id types.PrimitiveID) error

	PutQueue(id types.PrimitiveID, item any) error
	GetQueue(id types.PrimitiveID) (any, error)

	MapSet(id types.PrimitiveID, key string, value any) error
	MapGet(id types.PrimitiveID, key string) (any, error)
	MapContains(id types.PrimitiveID, key string) (bool, error)
	MapLength(id types.PrimitiveID) (int, error)
	MapKeys(id types.PrimitiveID) ([]string, error)
}

// op tags which PrimitiveClient method an ipcCall frame invokes. These
// never reach the network; they exist only between a worker process and
// the child process it spawned for one task.
type op string

const (
	opWaitEvent        op = "WaitEvent"
	opSetEvent         op = "SetEvent"
	opAcquireLock      op = "AcquireLock"
	opReleaseLock      op = "ReleaseLock"
	opAcquireSemaphore op = "AcquireSemaphore"
	opReleaseSemaphore op = "ReleaseSemaphore"
	opPutQueue         op = "PutQueue"
	opGetQueue         op = "GetQueue"
	opMapSet           op = "MapSet"
	opMapGet           op = "MapGet"
	opMapContains      op = "MapContains"
	opMapLength        op = "MapLength"
	opMapKeys          op = "MapKeys"
)

// ipcKind tags which of the four frame shapes an envelope carries.
type ipcKind string

const (
	ipcTask  ipcKind = "task"  // parent -> child, exactly once, first frame
	ipcCall  ipcKind = "call"  // child -> parent, one primitive operation
	ipcReply ipcKind = "reply" // parent -> child, answers the most recent call
	ipcDone  ipcKind = "done"  // child -> parent, final result, ends the exchange
)

// envelope is the single message shape multiplexed over the task pipe in
// both directions; which fields are populated depends on Kind.
type envelope struct {
	Kind  ipcKind
	Task  *childRequest
	Call  *callFrame
	Reply *protocol.Response
	Done  *childResponse
}

type callFrame struct {
	Op   op
	Body protocol.Body
}

func sendEnvelope(w io.Writer, e envelope) error {
	payload, err := protocol.Encode(e)
	if err != nil {
		return fmt.Errorf("executor: encode ipc envelope: %w", err)
	}
	return wire.WriteFrame(w, payload)
}

func recvEnvelope(r io.Reader) (envelope, error) {
	var e envelope
	raw, err := wire.ReadFrame(r)
	if err != nil {
		return e, err
	}
	if err := protocol.Decode(raw, &e); err != nil {
		return e, fmt.Errorf("executor: decode ipc envelope: %w", err)
	}
	return e, nil
}

// pipeClient is the child-side PrimitiveClient: every method sends one
// ipcCall frame to the parent over stdout and blocks reading stdin for
// the matching ipcReply, serialized by mu since a task Func could in
// principle call it from more than one goroutine.
type pipeClient struct {
	mu  sync.Mutex
	in  io.Reader
	out io.Writer
}

func (c *pipeClient) call(o op, body protocol.Body) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := sendEnvelope(c.out, envelope{Kind: ipcCall, Call: &callFrame{Op: o, Body: body}}); err != nil {
		return nil, err
	}
	e, err := recvEnvelope(c.in)
	if err != nil {
		return nil, fmt.Errorf("executor: reading primitive reply: %w", err)
	}
	if e.Kind != ipcReply || e.Reply == nil {
		return nil, fmt.Errorf("executor: expected primitive reply, got %q", e.Kind)
	}
	if !e.Reply.Ok {
		return nil, fmt.Errorf("executor: primitive call failed: %s", e.Reply.Error)
	}
	return e.Reply, nil
}

func (c *pipeClient) WaitEvent(id types.PrimitiveID) error {
	_, err := c.call(opWaitEvent, protocol.Body{protocol.FieldID: int(id)})
	return err
}

func (c *pipeClient) SetEvent(id types.PrimitiveID) error {
	_, err := c.call(opSetEvent, protocol.Body{protocol.FieldID: int(id)})
	return err
}

func (c *pipeClient) AcquireLock(id types.PrimitiveID) error {
	_, err := c.call(opAcquireLock, protocol.Body{protocol.FieldID: int(id)})
	return err
}

func (c *pipeClient) ReleaseLock(id types.PrimitiveID) error {
	_, err := c.call(opReleaseLock, protocol.Body{protocol.FieldID: int(id)})
	return err
}

func (c *pipeClient) AcquireSemaphore(id types.PrimitiveID) error {
	_, err := c.call(opAcquireSemaphore, protocol.Body{protocol.FieldID: int(id)})
	return err
}

func (c *pipeClient) ReleaseSemaphore(id types.PrimitiveID) error {
	_, err := c.call(opReleaseSemaphore, protocol.Body{protocol.FieldID: int(id)})
	return err
}

func (c *pipeClient) PutQueue(id types.PrimitiveID, item any) error {
	_, err := c.call(opPutQueue, protocol.Body{protocol.FieldID: int(id), protocol.FieldItem: item})
	return err
}

func (c *pipeClient) GetQueue(id types.PrimitiveID) (any, error) {
	resp, err := c.call(opGetQueue, protocol.Body{protocol.FieldID: int(id)})
	if err != nil {
		return nil, err
	}
	return resp.Body[protocol.FieldItem], nil
}

func (c *pipeClient) MapSet(id types.PrimitiveID, key string, value any) error {
	_, err := c.call(opMapSet, protocol.Body{protocol.FieldID: int(id), protocol.FieldKey: key, protocol.FieldValue: value})
	return err
}

func (c *pipeClient) MapGet(id types.PrimitiveID, key string) (any, error) {
	resp, err := c.call(opMapGet, protocol.Body{protocol.FieldID: int(id), protocol.FieldKey: key})
	if err != nil {
		return nil, err
	}
	return resp.Body[protocol.FieldValue], nil
}

func (c *pipeClient) MapContains(id types.PrimitiveID, key string) (bool, error) {
	resp, err := c.call(opMapContains, protocol.Body{protocol.FieldID: int(id), protocol.FieldKey: key})
	if err != nil {
		return false, err
	}
	ok, _ := resp.Body[protocol.FieldValue].(bool)
	return ok, nil
}

func (c *pipeClient) MapLength(id types.PrimitiveID) (int, error) {
	resp, err := c.call(opMapLength, protocol.Body{protocol.FieldID: int(id)})
	if err != nil {
		return 0, err
	}
	n, _ := asInt(resp.Body[protocol.FieldValue])
	return n, nil
}

func (c *pipeClient) MapKeys(id types.PrimitiveID) ([]string, error) {
	resp, err := c.call(opMapKeys, protocol.Body{protocol.FieldID: int(id)})
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

// dispatchCall runs one child-issued primitive call against relay,
// translating the result back into the Response shape the pipeClient on
// the other end expects.
func dispatchCall(relay PrimitiveClient, call *callFrame) *protocol.Response {
	if relay == nil {
		return protocol.Fail(fmt.Errorf("executor: worker has no primitive relay configured"))
	}
	id := primitiveIDOf(call.Body)

	switch call.Op {
	case opWaitEvent:
		return replyErr(relay.WaitEvent(id))
	case opSetEvent:
		return replyErr(relay.SetEvent(id))
	case opAcquireLock:
		return replyErr(relay.AcquireLock(id))
	case opReleaseLock:
		return replyErr(relay.ReleaseLock(id))
	case opAcquireSemaphore:
		return replyErr(relay.AcquireSemaphore(id))
	case opReleaseSemaphore:
		return replyErr(relay.ReleaseSemaphore(id))
	case opPutQueue:
		return replyErr(relay.PutQueue(id, call.Body[protocol.FieldItem]))
	case opGetQueue:
		item, err := relay.GetQueue(id)
		if err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK(protocol.Body{protocol.FieldItem: item})
	case opMapSet:
		key, _ := call.Body[protocol.FieldKey].(string)
		return replyErr(relay.MapSet(id, key, call.Body[protocol.FieldValue]))
	case opMapGet:
		key, _ := call.Body[protocol.FieldKey].(string)
		value, err := relay.MapGet(id, key)
		if err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK(protocol.Body{protocol.FieldValue: value})
	case opMapContains:
		key, _ := call.Body[protocol.FieldKey].(string)
		ok, err := relay.MapContains(id, key)
		if err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK(protocol.Body{protocol.FieldValue: ok})
	case opMapLength:
		n, err := relay.MapLength(id)
		if err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK(protocol.Body{protocol.FieldValue: n})
	case opMapKeys:
		keys, err := relay.MapKeys(id)
		if err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK(protocol.Body{protocol.FieldData: keys})
	default:
		return protocol.Fail(fmt.Errorf("executor: unknown primitive op %q", call.Op))
	}
}

func replyErr(err error) *protocol.Response {
	if err != nil {
		return protocol.Fail(err)
	}
	return protocol.OK(nil)
}

func primitiveIDOf(body protocol.Body) types.PrimitiveID {
	n, _ := asInt(body[protocol.FieldID])
	return types.PrimitiveID(n)
}

// asInt coerces a Body value the way every other package's local copy
// does (native int from a same-process call; int64/uint64/float64 from a
// msgpack decode) — this one decodes the parent/child pipe's own msgpack
// stream, so it needs the same tolerance.
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
