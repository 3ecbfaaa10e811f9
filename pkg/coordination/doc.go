// Package coordination implements fleetwork's distributed synchronization
// primitives (spec §4.7, component C7): event, lock, semaphore, queue, and
// shared-map. Each primitive exists in two mirrored forms (spec §3 "Data
// model"):
//
//   - an Authority, the master-side single source of truth, owned and
//     mutated exclusively by the dispatcher goroutine (I1) — event.go,
//     lock.go, semaphore.go, queue.go, sharedmap.go;
//   - a Mirror, a local wake object used on whichever process is actually
//     blocking a task: the master process itself (when the driver program
//     calls a primitive with origin -1) or a worker process. mirror.go.
//
// Authorities never talk to a socket directly. They only call back through
// a Pusher, which pkg/workgroup implements once for "deliver to worker W"
// (over a session) and once for "deliver to the master's own mirrors"
// (in-process). This keeps every primitive transport-agnostic, matching
// spec §9's "single transport strategy chosen once per process" note.
package coordination
