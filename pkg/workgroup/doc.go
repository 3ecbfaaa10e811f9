// Package workgroup is the master orchestrator (spec §4, module map
// "master orchestration"): it wires the framed transport (pkg/wire), the
// request codec (pkg/protocol), worker sessions (pkg/session), the
// single-consumer dispatcher (pkg/dispatch), the accept loop
// (pkg/listener), the coordination-primitive authorities and mirrors
// (pkg/coordination), net-object registration (pkg/netobject), and the
// task lifecycle (pkg/lifecycle) into the one public Workgroup type a
// driver program embeds.
//
// Workgroup itself implements coordination.Pusher: a push to a worker
// origin opens a session and sends it out; a push to types.MasterOrigin
// delivers straight into the master's own MirrorSet, letting the driver
// program block on the exact same wake objects a worker-side task would.
//
// Creating a primitive (Create*) and mutating one (Set/Acquire/Release/
// Put/Get) both run as dispatcher handlers reached through the Future
// loopback described in pkg/protocol's Future doc comment — this is the
// single mutator discipline of spec §4.5/§5/I1 applied to every piece of
// coordination state. Submitting a task is the one documented exception
// (see pkg/lifecycle's doc comment): it runs directly on the calling
// goroutine because it only touches the round-robin cursor and the
// task placement table, not coordination state.
package workgroup
