package workgroup

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nidzo732/fleetwork/pkg/coordination"
	"github.com/nidzo732/fleetwork/pkg/dispatch"
	"github.com/nidzo732/fleetwork/pkg/lifecycle"
	"github.com/nidzo732/fleetwork/pkg/listener"
	"github.com/nidzo732/fleetwork/pkg/log"
	"github.com/nidzo732/fleetwork/pkg/metrics"
	"github.com/nidzo732/fleetwork/pkg/netobject"
	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/session"
	"github.com/nidzo732/fleetwork/pkg/types"
	"github.com/nidzo732/fleetwork/pkg/wire"
)

// WorkerSpec is one statically configured worker the master dials at
// startup (spec §4 "workers are configured, not discovered" absent an
// explicit discovery handshake; see pkg/discovery for the best-effort
// auto-discovery supplement).
type WorkerSpec struct {
	ID   types.WorkerID
	Addr string
}

// Config configures a Workgroup.
type Config struct {
	ListenAddr    string
	Workers       []WorkerSpec
	WireConfig    *wire.Config
	QueueCapacity int
	Salvage       lifecycle.SalvagePolicy
}

// Workgroup is the master's running state (spec §4): the dispatcher, the
// worker table, every coordination-primitive authority, and the task
// lifecycle registry.
type Workgroup struct {
	cfg Config
	wl  *wire.Listener
	ln  *listener.Listener
	d   *dispatch.Dispatcher

	workersMu sync.RWMutex
	workers   map[types.WorkerID]*types.Worker
	sessions  map[types.WorkerID]*session.Session

	liveCount int64 // atomic

	mirrors     *coordination.MirrorSet
	netRegistry *netobject.Registry

	events map[types.PrimitiveID]*coordination.Event
	locks  map[types.PrimitiveID]*coordination.Lock
	sems   map[types.PrimitiveID]*coordination.Semaphore
	queues map[types.PrimitiveID]*coordination.Queue
	maps   map[types.PrimitiveID]*coordination.SharedMap

	nextPrimitiveID int64 // atomic

	Lifecycle *lifecycle.Registry

	fatalErr atomic.Value // error
}

// New builds a Workgroup, dials every configured worker once to establish
// initial liveness (spec module map note: "workgroup.New dials each
// worker"), and wires every dispatcher handler. It does not start serving;
// call Serve.
func New(cfg Config) (*Workgroup, error) {
	if cfg.WireConfig == nil {
		cfg.WireConfig = &wire.Config{Variant: wire.VariantPlain}
	}

	wl, err := wire.Listen(cfg.ListenAddr, cfg.WireConfig)
	if err != nil {
		return nil, fmt.Errorf("workgroup: listen %s: %w", cfg.ListenAddr, err)
	}

	wg := &Workgroup{
		cfg:         cfg,
		wl:          wl,
		d:           dispatch.New(cfg.QueueCapacity),
		workers:     make(map[types.WorkerID]*types.Worker),
		sessions:    make(map[types.WorkerID]*session.Session),
		mirrors:     coordination.NewMirrorSet(),
		netRegistry: netobject.NewRegistry(),
		events:      make(map[types.PrimitiveID]*coordination.Event),
		locks:       make(map[types.PrimitiveID]*coordination.Lock),
		sems:        make(map[types.PrimitiveID]*coordination.Semaphore),
		queues:      make(map[types.PrimitiveID]*coordination.Queue),
		maps:        make(map[types.PrimitiveID]*coordination.SharedMap),
	}

	for _, spec := range cfg.Workers {
		wg.workers[spec.ID] = &types.Worker{ID: spec.ID, Addr: spec.Addr, Live: true}
		wg.sessions[spec.ID] = session.New(spec.ID, spec.Addr, cfg.WireConfig)
	}
	wg.dialLivenessCheck()

	wg.Lifecycle = lifecycle.New(wg.sessionFor, wg.liveWorkerSnapshot, wg.reportDeadAsync, cfg.Salvage)
	wg.registerHandlers()
	wg.d.OnFatal(wg.onFatal)

	wg.ln = listener.New(wl, wg.attribute, wg.d.Handles, wg.d.Enqueue,
		listener.WithComponent("master-listener"), listener.WithInlineAlive())

	return wg, nil
}

// dialLivenessCheck pings every configured worker once at construction,
// marking any that do not answer ALV as dead before the workgroup ever
// serves a request (spec §7's worker-death cascade applies from the
// first moment, not only after the first submitted task).
func (wg *Workgroup) dialLivenessCheck() {
	for id, sess := range wg.sessions {
		logger := log.WithWorkerID(int(id))
		if err := sess.SendRequest(protocol.KindAlive, protocol.Body{protocol.FieldWorker: int(id)}); err != nil {
			logger.Warn().Err(err).Msg("worker unreachable at startup, marking dead")
			wg.workers[id].Live = false
			continue
		}
		atomic.AddInt64(&wg.liveCount, 1)
	}
	metrics.WorkersTotal.WithLabelValues("live").Set(float64(atomic.LoadInt64(&wg.liveCount)))
	metrics.WorkersTotal.WithLabelValues("dead").Set(float64(len(wg.workers)) - float64(atomic.LoadInt64(&wg.liveCount)))
}

// Serve starts the dispatcher loop and the accept loop. It blocks until
// the listener stops (e.g. Close is called on the underlying wire
// listener) or the workgroup goes fatal.
func (wg *Workgroup) Serve() error {
	wg.d.StartServing()
	return wg.ln.Serve()
}

// Stop stops the dispatcher; in-flight requests already queued are
// drained first (spec §4.5 "HALT sentinel").
func (wg *Workgroup) Stop() {
	wg.d.StopServing()
	_ = wg.wl.Close()
}

// Done returns a channel closed once the dispatcher loop has terminated.
func (wg *Workgroup) Done() <-chan struct{} {
	return wg.d.Done()
}

// Err returns the fatal error that stopped the workgroup, if any (spec §7
// "no live workers remain").
func (wg *Workgroup) Err() error {
	if v := wg.fatalErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (wg *Workgroup) onFatal(err error) {
	wg.fatalErr.Store(err)
	log.WithComponent("workgroup").Error().Err(err).Msg("workgroup fatal: no live workers remain")
}

// sessionFor resolves worker id's session, used both by pkg/lifecycle and
// by Workgroup's own Push implementation.
func (wg *Workgroup) sessionFor(id types.WorkerID) (*session.Session, bool) {
	wg.workersMu.RLock()
	defer wg.workersMu.RUnlock()
	s, ok := wg.sessions[id]
	return s, ok
}

// liveWorkerSnapshot returns a stable-ordered, deep-copied snapshot of the
// worker table for pkg/lifecycle's round-robin placement.
func (wg *Workgroup) liveWorkerSnapshot() []types.Worker {
	wg.workersMu.RLock()
	defer wg.workersMu.RUnlock()
	out := make([]types.Worker, 0, len(wg.workers))
	for _, w := range wg.workers {
		out = append(out, *w.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// liveWorkerIDs returns the ids of every currently-live worker, in stable
// order, for fan-out pushes (spec I7 "registered on every worker
// currently live").
func (wg *Workgroup) liveWorkerIDs() []types.WorkerID {
	snapshot := wg.liveWorkerSnapshot()
	out := make([]types.WorkerID, 0, len(snapshot))
	for _, w := range snapshot {
		if w.Live {
			out = append(out, w.ID)
		}
	}
	return out
}

// reportDeadAsync is pkg/lifecycle's DeadWorkerNotifier: Submit observed a
// dead worker directly on the caller's goroutine, so run the same
// WORKER_DIED cascade the dispatcher runs for every other outbound
// failure, without blocking the caller on the dispatcher queue.
func (wg *Workgroup) reportDeadAsync(id types.WorkerID, err error) {
	log.WithWorkerID(int(id)).Warn().Err(err).Msg("submit failed, queuing WORKER_DIED")
	wg.d.Enqueue(&protocol.Request{
		Kind:   protocol.KindWorkerDied,
		Body:   protocol.Body{protocol.FieldWorker: int(id)},
		Origin: types.MasterOrigin,
	})
}

// attribute is the listener's Attributor: only a configured worker's
// address may open a session with the master (spec §4.6).
func (wg *Workgroup) attribute(remoteAddr string) (types.WorkerID, bool) {
	wg.workersMu.RLock()
	defer wg.workersMu.RUnlock()
	host := hostOf(remoteAddr)
	for id, w := range wg.workers {
		if hostOf(w.Addr) == host {
			return id, true
		}
	}
	return 0, false
}

func (wg *Workgroup) nextID() types.PrimitiveID {
	return types.PrimitiveID(atomic.AddInt64(&wg.nextPrimitiveID, 1) - 1)
}

// queueWorkerDied enqueues an internal WORKER_DIED follow-up for id, used
// by handlers that fan a push out to several workers at once (spec
// §4.7.1: "workers failing during the fan-out flip to dead but do not
// block" — each failure needs its own follow-up, not just the single one
// pkg/dispatch's generic per-handler translation gives a handler that
// returns one error).
func (wg *Workgroup) queueWorkerDied(id types.WorkerID) {
	wg.d.Enqueue(&protocol.Request{
		Kind:   protocol.KindWorkerDied,
		Body:   protocol.Body{protocol.FieldWorker: int(id)},
		Origin: types.MasterOrigin,
	})
}

// asInt coerces a Body value (native int from a loopback call, or
// int64/uint64/float64 from a msgpack-decoded wire request) into an int.
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
