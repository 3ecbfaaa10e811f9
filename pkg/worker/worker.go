package worker

import (
	"fmt"
	"sync"

	"github.com/nidzo732/fleetwork/pkg/coordination"
	"github.com/nidzo732/fleetwork/pkg/dispatch"
	"github.com/nidzo732/fleetwork/pkg/executor"
	"github.com/nidzo732/fleetwork/pkg/listener"
	"github.com/nidzo732/fleetwork/pkg/netobject"
	"github.com/nidzo732/fleetwork/pkg/session"
	"github.com/nidzo732/fleetwork/pkg/types"
	"github.com/nidzo732/fleetwork/pkg/wire"
)

// Config configures a Worker.
type Config struct {
	ListenAddr    string
	MasterAddr    string
	WireConfig    *wire.Config
	QueueCapacity int
}

// Worker is one worker process's running state (spec §4, component C6/C4
// combined on the worker side): the dispatcher answering the master's
// pushes and queries, the coordination mirrors those pushes populate, and
// the set of task executions currently in flight.
type Worker struct {
	cfg Config
	wl  *wire.Listener
	ln  *listener.Listener
	d   *dispatch.Dispatcher

	masterSession *session.Session
	mirrors       *coordination.MirrorSet
	netRegistry   *netobject.Registry
	relay         executor.PrimitiveClient

	execsMu sync.Mutex
	execs   map[types.TaskID]*executor.Execution
}

// New builds a Worker listening on cfg.ListenAddr and addressed at
// cfg.MasterAddr for every primitive call its tasks make. It does not
// start serving; call Serve.
func New(cfg Config) (*Worker, error) {
	if cfg.WireConfig == nil {
		cfg.WireConfig = &wire.Config{Variant: wire.VariantPlain}
	}

	wl, err := wire.Listen(cfg.ListenAddr, cfg.WireConfig)
	if err != nil {
		return nil, fmt.Errorf("worker: listen %s: %w", cfg.ListenAddr, err)
	}

	w := &Worker{
		cfg:           cfg,
		wl:            wl,
		d:             dispatch.New(cfg.QueueCapacity),
		masterSession: session.New(types.MasterOrigin, cfg.MasterAddr, cfg.WireConfig),
		mirrors:       coordination.NewMirrorSet(),
		netRegistry:   netobject.NewRegistry(),
		execs:         make(map[types.TaskID]*executor.Execution),
	}
	w.relay = &primitiveRelay{w: w}

	w.registerHandlers()

	w.ln = listener.New(wl, w.attribute, w.d.Handles, w.d.Enqueue,
		listener.WithComponent("worker-listener"), listener.WithInlineAlive())

	return w, nil
}

// Serve starts the dispatcher loop and the accept loop. It blocks until
// the listener stops.
func (w *Worker) Serve() error {
	w.d.StartServing()
	return w.ln.Serve()
}

// Stop stops the dispatcher and closes the listening socket; in-flight
// requests already queued are drained first.
func (w *Worker) Stop() {
	w.d.StopServing()
	_ = w.wl.Close()
}

// Done returns a channel closed once the dispatcher loop has terminated.
func (w *Worker) Done() <-chan struct{} {
	return w.d.Done()
}

// attribute accepts only the master's own address (spec §4.6: a worker's
// listener only ever expects sessions from the one master it answers to).
func (w *Worker) attribute(remoteAddr string) (types.WorkerID, bool) {
	if hostOf(remoteAddr) != hostOf(w.cfg.MasterAddr) {
		return 0, false
	}
	return types.MasterOrigin, true
}

func (w *Worker) execution(id types.TaskID) (*executor.Execution, bool) {
	w.execsMu.Lock()
	defer w.execsMu.Unlock()
	e, ok := w.execs[id]
	return e, ok
}
