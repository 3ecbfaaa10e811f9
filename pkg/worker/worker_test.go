package worker

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nidzo732/fleetwork/pkg/executor"
	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
	"github.com/nidzo732/fleetwork/pkg/wire"
)

// TestMain lets this test binary double as the task-runner child process
// executor.Start re-execs, exactly as pkg/executor's own tests do — a
// worker spawns one OS process per task, and that process is this same
// binary running with ChildEnvVar set.
func TestMain(m *testing.M) {
	if os.Getenv(executor.ChildEnvVar) == "1" {
		registerTestFuncs()
		if err := executor.RunChild(os.Stdin, os.Stdout); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	registerTestFuncs()
	os.Exit(m.Run())
}

func registerTestFuncs() {
	executor.Register("test.echo", func(args []any, kwargs map[string]any, _ executor.PrimitiveClient) (any, error) {
		return args[0], nil
	})
}

func newTestWorker(t *testing.T, masterAddr string) *Worker {
	t.Helper()
	w, err := New(Config{
		ListenAddr: "127.0.0.1:0",
		MasterAddr: masterAddr,
		WireConfig: &wire.Config{Variant: wire.VariantPlain},
	})
	require.NoError(t, err)
	go w.Serve()
	t.Cleanup(w.Stop)
	return w
}

func dialAndCall(t *testing.T, addr string, kind protocol.Kind, body protocol.Body) *protocol.Response {
	t.Helper()
	conn, err := wire.Dial(addr, &wire.Config{Variant: wire.VariantPlain})
	require.NoError(t, err)
	defer conn.Close()

	payload, err := protocol.EncodeMessage(kind, body)
	require.NoError(t, err)
	require.NoError(t, conn.Send(payload))

	raw, err := conn.Receive()
	require.NoError(t, err)
	resp, err := protocol.DecodeResponse(raw)
	require.NoError(t, err)
	return resp
}

func TestWorkerSubmitAndGetResult(t *testing.T) {
	w := newTestWorker(t, "127.0.0.1:1") // master never dialed by this test

	submit := dialAndCall(t, w.wl.Addr().String(), protocol.KindSubmitTask, protocol.Body{
		protocol.FieldTask:   1,
		protocol.FieldTarget: "test.echo",
		protocol.FieldArgs:   []any{"hello"},
	})
	require.True(t, submit.Ok)

	result := dialAndCall(t, w.wl.Addr().String(), protocol.KindGetResult, protocol.Body{protocol.FieldTask: 1})
	require.True(t, result.Ok)
	require.Equal(t, "hello", result.Body[protocol.FieldValue])
}

func TestWorkerTaskRunningAndTerminate(t *testing.T) {
	w := newTestWorker(t, "127.0.0.1:1")

	submit := dialAndCall(t, w.wl.Addr().String(), protocol.KindSubmitTask, protocol.Body{
		protocol.FieldTask:   2,
		protocol.FieldTarget: "test.echo",
		protocol.FieldArgs:   []any{"ignored"},
	})
	require.True(t, submit.Ok)

	running := dialAndCall(t, w.wl.Addr().String(), protocol.KindTaskRunning, protocol.Body{protocol.FieldTask: 2})
	require.True(t, running.Ok)

	term := dialAndCall(t, w.wl.Addr().String(), protocol.KindTerminateTask, protocol.Body{protocol.FieldTask: 2})
	require.True(t, term.Ok)
}

func TestWorkerGetResultUnknownTask(t *testing.T) {
	w := newTestWorker(t, "127.0.0.1:1")

	resp := dialAndCall(t, w.wl.Addr().String(), protocol.KindGetResult, protocol.Body{protocol.FieldTask: 999})
	require.False(t, resp.Ok)
}

func TestWorkerInstallAndDeliverEventMirror(t *testing.T) {
	w := newTestWorker(t, "127.0.0.1:1")

	install := dialAndCall(t, w.wl.Addr().String(), protocol.KindEventRegister, protocol.Body{protocol.FieldID: 5})
	require.True(t, install.Ok)

	relay := &primitiveRelay{w: w}
	errc := make(chan error, 1)
	go func() { errc <- relay.WaitEvent(types.PrimitiveID(5)) }()

	deliver := dialAndCall(t, w.wl.Addr().String(), protocol.KindSetEvent, protocol.Body{protocol.FieldID: 5})
	require.True(t, deliver.Ok)

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitEvent did not unblock after SEV delivery")
	}
}

func TestWorkerAttributeRejectsUnknownAddr(t *testing.T) {
	w := newTestWorker(t, "127.0.0.1:9999")
	_, ok := w.attribute("10.0.0.1:4444")
	require.False(t, ok)
}

func TestPrimitiveRelayMapGetCallsMaster(t *testing.T) {
	ln, err := wire.Listen("127.0.0.1:0", &wire.Config{Variant: wire.VariantPlain})
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		raw, err := conn.Receive()
		require.NoError(t, err)
		kind, body, err := protocol.DecodeMessage(raw)
		require.NoError(t, err)
		require.Equal(t, protocol.KindMapGet, kind)
		require.EqualValues(t, 3, body[protocol.FieldID])
		require.Equal(t, "foo", body[protocol.FieldKey])

		resp, err := protocol.EncodeResponse(protocol.OK(protocol.Body{protocol.FieldValue: "bar"}))
		require.NoError(t, err)
		require.NoError(t, conn.Send(resp))
	}()

	w := newTestWorker(t, ln.Addr().String())
	relay := &primitiveRelay{w: w}

	value, err := relay.MapGet(types.PrimitiveID(3), "foo")
	require.NoError(t, err)
	require.Equal(t, "bar", value)
}
