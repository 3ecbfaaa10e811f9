package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nidzo732/fleetwork/pkg/dispatch"
	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/session"
	"github.com/nidzo732/fleetwork/pkg/types"
	"github.com/nidzo732/fleetwork/pkg/wire"
)

func awaitLoopback(t *testing.T, d *dispatch.Dispatcher, kind protocol.Kind, body protocol.Body) *protocol.Response {
	t.Helper()
	f := protocol.NewFuture()
	d.Enqueue(&protocol.Request{Kind: kind, Body: body, Origin: types.MasterOrigin, FutureReply: f})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := f.Await(ctx)
	require.NoError(t, err)
	return resp
}

func TestHandleForwardRoutesToPlacedWorker(t *testing.T) {
	w0 := newFakeWorker(t)
	workers := []types.Worker{{ID: 0, Addr: w0.addr(), Live: true}}
	r := newTestRegistry(t, workers, map[types.WorkerID]*fakeWorker{0: w0})

	task, err := r.Submit("pkg.fn", nil, nil)
	require.NoError(t, err)

	d := dispatch.New(4)
	r.RegisterHandlers(d)
	d.StartServing()
	defer d.StopServing()

	resp := awaitLoopback(t, d, protocol.KindGetResult, protocol.Body{protocol.FieldTask: int(task.ID)})
	require.True(t, resp.Ok)
	require.Equal(t, "ok", resp.Body[protocol.FieldValue])
	require.Equal(t, protocol.KindGetResult, w0.lastKind())
}

func TestHandleTerminateFireAndForget(t *testing.T) {
	w0 := newFakeWorker(t)
	workers := []types.Worker{{ID: 0, Addr: w0.addr(), Live: true}}
	r := newTestRegistry(t, workers, map[types.WorkerID]*fakeWorker{0: w0})

	task, err := r.Submit("pkg.fn", nil, nil)
	require.NoError(t, err)

	d := dispatch.New(4)
	r.RegisterHandlers(d)
	d.StartServing()
	defer d.StopServing()

	resp := awaitLoopback(t, d, protocol.KindTerminateTask, protocol.Body{protocol.FieldTask: int(task.ID)})
	require.True(t, resp.Ok)
	require.Equal(t, protocol.KindTerminateTask, w0.lastKind())
}

func TestHandleForwardUnknownTaskFails(t *testing.T) {
	r := newTestRegistry(t, nil, map[types.WorkerID]*fakeWorker{})

	d := dispatch.New(4)
	r.RegisterHandlers(d)
	d.StartServing()
	defer d.StopServing()

	resp := awaitLoopback(t, d, protocol.KindGetResult, protocol.Body{protocol.FieldTask: 999})
	require.False(t, resp.Ok)
}

func TestHandleForwardDeadWorkerQueuesWorkerDied(t *testing.T) {
	wireCfg := &wire.Config{Variant: wire.VariantPlain}
	sessionFor := func(id types.WorkerID) (*session.Session, bool) {
		return session.New(id, "127.0.0.1:1", wireCfg), true
	}
	listWorkers := func() []types.Worker { return nil }
	r := New(sessionFor, listWorkers, nil, nil)
	// Force a placement without going through Submit's network call, since
	// the address here is deliberately unreachable.
	r.mu.Lock()
	r.placements[7] = 0
	r.mu.Unlock()

	diedCh := make(chan types.WorkerID, 1)
	d := dispatch.New(4)
	r.RegisterHandlers(d)
	d.Handle(protocol.KindWorkerDied, func(d *dispatch.Dispatcher, req *protocol.Request) error {
		raw := req.Body[protocol.FieldWorker]
		id, _ := asInt(raw)
		diedCh <- types.WorkerID(id)
		return req.Reply(protocol.OK(nil))
	})
	d.StartServing()
	defer d.StopServing()

	resp := awaitLoopback(t, d, protocol.KindGetResult, protocol.Body{protocol.FieldTask: 7})
	require.False(t, resp.Ok)

	select {
	case id := <-diedCh:
		require.Equal(t, types.WorkerID(0), id)
	case <-time.After(2 * time.Second):
		t.Fatal("expected WORKER_DIED to be queued")
	}
}
