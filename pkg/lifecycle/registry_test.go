package lifecycle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/session"
	"github.com/nidzo732/fleetwork/pkg/types"
	"github.com/nidzo732/fleetwork/pkg/wire"
)

// fakeWorker is a minimal wire server recording every request it
// receives and replying OK, standing in for a worker's listener in tests
// that only exercise the master-side lifecycle registry.
type fakeWorker struct {
	ln *wire.Listener

	mu       sync.Mutex
	received []protocol.Kind
	bodies   []protocol.Body
}

func newFakeWorker(t *testing.T) *fakeWorker {
	t.Helper()
	ln, err := wire.Listen("127.0.0.1:0", &wire.Config{Variant: wire.VariantPlain})
	require.NoError(t, err)

	fw := &fakeWorker{ln: ln}
	go fw.serve()
	t.Cleanup(func() { ln.Close() })
	return fw
}

func (fw *fakeWorker) serve() {
	for {
		conn, err := fw.ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			raw, err := conn.Receive()
			if err != nil {
				return
			}
			kind, body, err := protocol.DecodeMessage(raw)
			if err != nil {
				return
			}
			fw.mu.Lock()
			fw.received = append(fw.received, kind)
			fw.bodies = append(fw.bodies, body)
			fw.mu.Unlock()

			resp, _ := protocol.EncodeResponse(protocol.OK(protocol.Body{protocol.FieldValue: "ok"}))
			_ = conn.Send(resp)
		}()
	}
}

func (fw *fakeWorker) addr() string { return fw.ln.Addr().String() }

func (fw *fakeWorker) lastKind() protocol.Kind {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if len(fw.received) == 0 {
		return ""
	}
	return fw.received[len(fw.received)-1]
}

func (fw *fakeWorker) count() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.received)
}

func newTestRegistry(t *testing.T, workers []types.Worker, servers map[types.WorkerID]*fakeWorker) *Registry {
	t.Helper()
	wireCfg := &wire.Config{Variant: wire.VariantPlain}

	sessionFor := func(id types.WorkerID) (*session.Session, bool) {
		w, ok := servers[id]
		if !ok {
			return nil, false
		}
		return session.New(id, w.addr(), wireCfg), true
	}
	listWorkers := func() []types.Worker { return workers }

	return New(sessionFor, listWorkers, nil, nil)
}

func TestSubmitRoundRobinSkipsDeadWorkers(t *testing.T) {
	w0 := newFakeWorker(t)
	w2 := newFakeWorker(t)

	workers := []types.Worker{
		{ID: 0, Addr: w0.addr(), Live: true},
		{ID: 1, Addr: "unused", Live: false},
		{ID: 2, Addr: w2.addr(), Live: true},
	}
	servers := map[types.WorkerID]*fakeWorker{0: w0, 2: w2}
	r := newTestRegistry(t, workers, servers)

	first, err := r.Submit("pkg.fn", nil, nil)
	require.NoError(t, err)
	require.Equal(t, types.WorkerID(0), first.Worker)

	second, err := r.Submit("pkg.fn", nil, nil)
	require.NoError(t, err)
	require.Equal(t, types.WorkerID(2), second.Worker)

	third, err := r.Submit("pkg.fn", nil, nil)
	require.NoError(t, err)
	require.Equal(t, types.WorkerID(0), third.Worker, "cursor should wrap back to worker 0, skipping dead worker 1")

	require.Equal(t, protocol.KindSubmitTask, w0.lastKind())
	require.Equal(t, protocol.KindSubmitTask, w2.lastKind())
}

func TestSubmitRecordsPlacementBeforeReturning(t *testing.T) {
	w0 := newFakeWorker(t)
	workers := []types.Worker{{ID: 0, Addr: w0.addr(), Live: true}}
	r := newTestRegistry(t, workers, map[types.WorkerID]*fakeWorker{0: w0})

	task, err := r.Submit("pkg.fn", []any{1}, map[string]any{"k": "v"})
	require.NoError(t, err)

	placed, ok := r.workerFor(task.ID)
	require.True(t, ok)
	require.Equal(t, types.WorkerID(0), placed)
}

func TestSubmitNoLiveWorkersReturnsErrNoLiveWorkers(t *testing.T) {
	workers := []types.Worker{{ID: 0, Live: false}}
	r := newTestRegistry(t, workers, map[types.WorkerID]*fakeWorker{})

	_, err := r.Submit("pkg.fn", nil, nil)
	require.ErrorIs(t, err, types.ErrNoLiveWorkers)
}

func TestSubmitEmptyWorkerTableReturnsErrNoLiveWorkers(t *testing.T) {
	r := newTestRegistry(t, nil, map[types.WorkerID]*fakeWorker{})

	_, err := r.Submit("pkg.fn", nil, nil)
	require.ErrorIs(t, err, types.ErrNoLiveWorkers)
}

func TestSubmitUnreachableWorkerReportsDead(t *testing.T) {
	wireCfg := &wire.Config{Variant: wire.VariantPlain}
	workers := []types.Worker{{ID: 0, Addr: "127.0.0.1:1", Live: true}}

	sessionFor := func(id types.WorkerID) (*session.Session, bool) {
		return session.New(id, "127.0.0.1:1", wireCfg), true
	}
	listWorkers := func() []types.Worker { return workers }

	var deadMu sync.Mutex
	var dead []types.WorkerID
	onDead := func(id types.WorkerID, _ error) {
		deadMu.Lock()
		dead = append(dead, id)
		deadMu.Unlock()
	}

	r := New(sessionFor, listWorkers, onDead, nil)
	_, err := r.Submit("pkg.fn", nil, nil)
	require.Error(t, err)

	deadMu.Lock()
	defer deadMu.Unlock()
	require.Equal(t, []types.WorkerID{0}, dead)
}

func TestForgetRemovesPlacement(t *testing.T) {
	w0 := newFakeWorker(t)
	workers := []types.Worker{{ID: 0, Addr: w0.addr(), Live: true}}
	r := newTestRegistry(t, workers, map[types.WorkerID]*fakeWorker{0: w0})

	task, err := r.Submit("pkg.fn", nil, nil)
	require.NoError(t, err)

	r.Forget(task.ID)
	_, ok := r.workerFor(task.ID)
	require.False(t, ok)
}

func TestNoSalvageNeverSalvages(t *testing.T) {
	r := New(nil, nil, nil, nil)
	require.False(t, r.TaskForSalvage(&types.Task{ID: 1}))
}
