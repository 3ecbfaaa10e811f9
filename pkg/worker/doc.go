// Package worker implements the worker-process side of fleetwork (spec
// §4, the "worker" process role): accept pushes from the master
// (SUBMIT_TASK, coordination-primitive registrations and wakeups,
// net-object class broadcasts), run each submitted task in its own OS
// process via pkg/executor, answer the master's synchronous task-status
// queries, and relay a running task's coordination-primitive calls back
// to the master over its own session.
//
// It mirrors pkg/workgroup's structure — a wire.Listener feeding a
// dispatch.Dispatcher, a coordination.MirrorSet, a netobject.Registry —
// but reactive rather than authoritative: a worker holds no primitive
// state of its own, only mirrors of what the master has granted it.
package worker
