package lifecycle

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/session"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// SessionLookup resolves the session handle for a worker id, as owned by
// pkg/workgroup's session pool.
type SessionLookup func(types.WorkerID) (*session.Session, bool)

// WorkerLister snapshots the current worker table for round-robin
// placement. The snapshot may already be a few milliseconds stale by the
// time Submit acts on it; spec §9 accepts that as the cost of keeping
// placement off the dispatcher goroutine, at worst skipping a worker that
// just died or, rarely, picking one.
type WorkerLister func() []types.Worker

// DeadWorkerNotifier is invoked when Submit itself observes a dead
// worker, so the caller (pkg/workgroup) can run the same WORKER_DIED
// cascade the dispatcher runs for every other outbound failure.
type DeadWorkerNotifier func(types.WorkerID, error)

// Registry is the task lifecycle's handle-side state (spec §4.8,
// component C8): the round-robin cursor, the task→worker placement table,
// and task id allocation.
//
// Submit runs directly on the calling goroutine rather than through the
// dispatcher (spec §9, "Round-robin cursor": submit is "called from a
// user thread that is not itself the dispatcher"). Result, Running,
// Exception, ExceptionRaised and Terminate instead run as dispatcher
// handlers registered by RegisterHandlers, because spec §4.8 describes
// them as the dispatcher looking up the executor and forwarding a
// request — the same Future-loopback path every other master-originated
// call takes.
type Registry struct {
	sessionFor  SessionLookup
	listWorkers WorkerLister
	onDead      DeadWorkerNotifier
	salvage     SalvagePolicy

	mu         sync.Mutex
	cursor     int
	placements map[types.TaskID]types.WorkerID

	nextID int64 // atomic, next task id to hand out
}

// New builds a Registry. salvage may be nil, which disables salvage
// entirely (NoSalvage, spec §9 "disabled by default").
func New(sessionFor SessionLookup, listWorkers WorkerLister, onDead DeadWorkerNotifier, salvage SalvagePolicy) *Registry {
	if salvage == nil {
		salvage = NoSalvage{}
	}
	return &Registry{
		sessionFor:  sessionFor,
		listWorkers: listWorkers,
		onDead:      onDead,
		salvage:     salvage,
		placements:  make(map[types.TaskID]types.WorkerID),
	}
}

// Submit chooses the next alive worker by round robin, allocates a dense
// task id, records the placement before dispatching (I4), and sends
// SUBMIT_TASK to the chosen worker (spec §4.8 "submit").
func (r *Registry) Submit(target string, args []any, kwargs map[string]any) (*types.Task, error) {
	worker, err := r.pickWorker()
	if err != nil {
		return nil, err
	}

	id := types.TaskID(atomic.AddInt64(&r.nextID, 1) - 1)
	task := &types.Task{
		ID:        id,
		Target:    target,
		Args:      args,
		Kwargs:    kwargs,
		Worker:    worker.ID,
		Submitted: time.Now(),
	}

	r.mu.Lock()
	r.placements[id] = worker.ID
	r.mu.Unlock()

	sess, ok := r.sessionFor(worker.ID)
	if !ok {
		return task, fmt.Errorf("lifecycle: no session for worker %d", worker.ID)
	}

	body := protocol.Body{
		protocol.FieldTask:   int(id),
		protocol.FieldTarget: target,
		protocol.FieldArgs:   args,
		protocol.FieldKwargs: kwargs,
	}
	if err := sess.SendRequest(protocol.KindSubmitTask, body); err != nil {
		r.reportDead(worker.ID, err)
		return task, err
	}

	return task, nil
}

// pickWorker scans the current worker snapshot starting at the cursor,
// skipping dead workers, and advances the cursor past whichever worker it
// picks (spec §4.8 "choose next alive worker by round robin").
func (r *Registry) pickWorker() (*types.Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	workers := r.listWorkers()
	if len(workers) == 0 {
		return nil, types.ErrNoLiveWorkers
	}
	for i := 0; i < len(workers); i++ {
		idx := (r.cursor + i) % len(workers)
		if workers[idx].Live {
			r.cursor = (idx + 1) % len(workers)
			w := workers[idx]
			return &w, nil
		}
	}
	return nil, types.ErrNoLiveWorkers
}

func (r *Registry) reportDead(id types.WorkerID, err error) {
	if r.onDead != nil {
		r.onDead(id, err)
	}
}

// workerFor returns the worker a task was placed on.
func (r *Registry) workerFor(id types.TaskID) (types.WorkerID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.placements[id]
	return w, ok
}

// Forget drops a task's placement record. Callers use this once a task's
// result has been retrieved and is not expected to be queried again, to
// keep the placement table from growing without bound over a long-lived
// workgroup.
func (r *Registry) Forget(id types.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.placements, id)
}

// TaskForSalvage reports whether a task placed on worker should be
// resubmitted under the configured SalvagePolicy, given the dead worker's
// last known task. The Workgroup's WORKER_DIED handler does not call it.
func (r *Registry) TaskForSalvage(task *types.Task) bool {
	return r.salvage.ShouldSalvage(task)
}

// asInt coerces a Body value that round-tripped through msgpack (which
// may decode integers as int64 or uint64 depending on sign) or arrived
// untouched via a loopback Future call (plain int) into an int.
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
