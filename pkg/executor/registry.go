package executor

import "sync"

// Func is a task callable resolved by a stable string id (spec §9). args
// and kwargs are exactly the positional/keyword payload types.Task
// carries; the return value becomes the task's result, and a non-nil
// error becomes its exception. primitives is the running task's handle
// onto the coordination primitives (spec §4.7: "behave, to running tasks,
// as if they lived in one address space"); a Func with no coordination
// needs simply ignores it.
type Func func(args []any, kwargs map[string]any, primitives PrimitiveClient) (result any, err error)

// Registry maps task-target and net-object method ids to Funcs. It must
// be populated identically by every worker process before any task
// naming those ids is submitted — there is no discovery protocol for
// function bodies themselves, only for net-object classes (pkg/netobject).
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry builds an empty function registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register installs fn under id, overwriting any previous registration.
func (r *Registry) Register(id string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[id] = fn
}

// Lookup returns the Func registered under id.
func (r *Registry) Lookup(id string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[id]
	return fn, ok
}

// Default is the process-wide registry task targets resolve against,
// mirroring the package-level default conveniences of encoding/gob and
// database/sql.
var Default = NewRegistry()

// Register installs fn under id in Default.
func Register(id string, fn Func) { Default.Register(id, fn) }
