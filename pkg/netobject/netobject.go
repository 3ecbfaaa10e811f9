package netobject

import (
	"fmt"
	"sync"
)

// ClassBundle is the net-object registration payload (spec §4.7.6): a
// class id plus its methods and static methods, kept as separate maps
// because instances are shipped repeatedly once a class is registered
// just once. Methods and StaticMethods map a method name to a function
// id resolvable in pkg/executor's registry.
type ClassBundle struct {
	ClassID       string
	Methods       map[string]string
	StaticMethods map[string]string
}

// Instance is a net-object value carried inside a task's arguments: a
// class id plus an attribute map, resolved against a registered
// ClassBundle on the worker that runs the task.
type Instance struct {
	ClassID string
	Attrs   map[string]any
}

// Registry holds every ClassBundle a worker has received via NCR, keyed
// by class id. It is safe for concurrent use: registration happens from
// the dispatcher goroutine (or loopback on the master) while lookups
// happen from task-executor processes and session handlers.
type Registry struct {
	mu      sync.RWMutex
	bundles map[string]ClassBundle
}

// NewRegistry builds an empty net-object registry.
func NewRegistry() *Registry {
	return &Registry{bundles: make(map[string]ClassBundle)}
}

// Register installs bundle, overwriting any prior bundle with the same
// ClassID (spec §4.7.6: classes are broadcast before first use; a
// re-broadcast to a reconnected worker is idempotent).
func (r *Registry) Register(bundle ClassBundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundles[bundle.ClassID] = bundle
}

// Lookup returns the bundle registered under classID.
func (r *Registry) Lookup(classID string) (ClassBundle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bundles[classID]
	return b, ok
}

// ResolveMethod returns the function id implementing method on classID,
// checking instance methods before static methods.
func (r *Registry) ResolveMethod(classID, method string) (string, error) {
	bundle, ok := r.Lookup(classID)
	if !ok {
		return "", fmt.Errorf("netobject: class %q is not registered", classID)
	}
	if fnID, ok := bundle.Methods[method]; ok {
		return fnID, nil
	}
	if fnID, ok := bundle.StaticMethods[method]; ok {
		return fnID, nil
	}
	return "", fmt.Errorf("netobject: class %q has no method %q", classID, method)
}
