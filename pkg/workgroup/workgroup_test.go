package workgroup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
	"github.com/nidzo732/fleetwork/pkg/wire"
)

// fakeWorker is the same minimal wire server pkg/lifecycle's tests use: it
// records every request and answers OK, standing in for a real worker
// process in tests that only exercise the master side.
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

			resp, _ := protocol.EncodeResponse(protocol.OK(nil))
			_ = conn.Send(resp)
		}()
	}
}

func (fw *fakeWorker) addr() string { return fw.ln.Addr().String() }

func (fw *fakeWorker) count() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.received)
}

func newTestWorkgroup(t *testing.T, workers ...*fakeWorker) *Workgroup {
	t.Helper()
	specs := make([]WorkerSpec, len(workers))
	for i, fw := range workers {
		specs[i] = WorkerSpec{ID: types.WorkerID(i), Addr: fw.addr()}
	}
	wg, err := New(Config{
		ListenAddr: "127.0.0.1:0",
		Workers:    specs,
		WireConfig: &wire.Config{Variant: wire.VariantPlain},
	})
	require.NoError(t, err)
	go wg.Serve()
	t.Cleanup(wg.Stop)
	return wg
}

func TestEventRegisterSetWaitRoundTrip(t *testing.T) {
	w0 := newFakeWorker(t)
	wg := newTestWorkgroup(t, w0)
	ctx := context.Background()

	id, err := wg.CreateEvent(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- wg.WaitEvent(ctx, id) }()

	require.NoError(t, wg.SetEvent(ctx, id))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitEvent did not unblock after SetEvent")
	}
}

func TestLockAcquireReleaseGrantsNextWaiter(t *testing.T) {
	w0 := newFakeWorker(t)
	wg := newTestWorkgroup(t, w0)
	ctx := context.Background()

	id, err := wg.CreateLock(ctx)
	require.NoError(t, err)

	require.NoError(t, wg.AcquireLock(ctx, id))

	acquired := make(chan error, 1)
	go func() { acquired <- wg.AcquireLock(ctx, id) }()

	require.NoError(t, wg.ReleaseLock(ctx, id))

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second AcquireLock did not unblock after ReleaseLock")
	}
}

func TestSemaphoreAcquireReleaseRoundTrip(t *testing.T) {
	w0 := newFakeWorker(t)
	wg := newTestWorkgroup(t, w0)
	ctx := context.Background()

	id, err := wg.CreateSemaphore(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, wg.AcquireSemaphore(ctx, id))

	acquired := make(chan error, 1)
	go func() { acquired <- wg.AcquireSemaphore(ctx, id) }()

	require.NoError(t, wg.ReleaseSemaphore(ctx, id))

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second AcquireSemaphore did not unblock after ReleaseSemaphore")
	}
}

func TestQueuePutGetRoundTrip(t *testing.T) {
	w0 := newFakeWorker(t)
	wg := newTestWorkgroup(t, w0)
	ctx := context.Background()

	id, err := wg.CreateQueue(ctx)
	require.NoError(t, err)

	got := make(chan any, 1)
	errc := make(chan error, 1)
	go func() {
		v, err := wg.GetQueue(ctx, id)
		errc <- err
		got <- v
	}()

	require.NoError(t, wg.PutQueue(ctx, id, "item-1"))

	require.NoError(t, <-errc)
	require.Equal(t, "item-1", <-got)
}

func TestSharedMapLifecycle(t *testing.T) {
	w0 := newFakeWorker(t)
	wg := newTestWorkgroup(t, w0)
	ctx := context.Background()

	id, err := wg.CreateSharedMap(ctx)
	require.NoError(t, err)

	require.NoError(t, wg.MapSet(ctx, id, "k", "v"))

	value, err := wg.MapGet(ctx, id, "k")
	require.NoError(t, err)
	require.Equal(t, "v", value)

	ok, err := wg.MapContains(ctx, id, "k")
	require.NoError(t, err)
	require.True(t, ok)

	n, err := wg.MapLength(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	keys, err := wg.MapKeys(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []string{"k"}, keys)

	_, err = wg.MapGet(ctx, id, "missing")
	require.ErrorIs(t, err, types.ErrKeyAbsent)
}

func TestRegisterNetClassPushesToLiveWorkers(t *testing.T) {
	w0 := newFakeWorker(t)
	wg := newTestWorkgroup(t, w0)
	ctx := context.Background()

	require.NoError(t, wg.RegisterNetClass(ctx, "pkg.Widget", map[string]string{"spin": "pkg.Widget.spin"}, nil))
	// w0 has received New's startup ALV and then the RNC push.
	require.Equal(t, 2, w0.count())
}

func TestWorkerDiedCascadeGoesFatalWhenLastWorkerDies(t *testing.T) {
	w0 := newFakeWorker(t)
	wg := newTestWorkgroup(t, w0)

	wg.queueWorkerDied(types.WorkerID(0))

	require.Eventually(t, func() bool { return wg.Err() != nil }, time.Second, 10*time.Millisecond)
	require.ErrorIs(t, wg.Err(), types.ErrNoLiveWorkers)
}

func TestDialLivenessCheckMarksUnreachableWorkerDead(t *testing.T) {
	wg, err := New(Config{
		ListenAddr: "127.0.0.1:0",
		Workers:    []WorkerSpec{{ID: 0, Addr: "127.0.0.1:1"}},
		WireConfig: &wire.Config{Variant: wire.VariantPlain},
	})
	require.NoError(t, err)
	t.Cleanup(wg.Stop)

	require.False(t, wg.liveWorkerSnapshot()[0].Live)
}
