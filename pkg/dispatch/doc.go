/*
Package dispatch implements the master's request dispatcher (spec §4.5,
component C5): a single queue of protocol.Request items drained by exactly
one goroutine, which is the sole mutator of master-side coordination state
(invariant I1). Every coordination, task-lifecycle, and admin handler in
pkg/workgroup and pkg/lifecycle is registered here by Kind and runs
strictly serialized with every other handler.

A handler may itself enqueue a follow-up Request (spec §4.5 "emit a
follow-up internal request back into the same queue") — this is how
WORKER_DIED events are raised: any handler whose outbound call to a worker
fails with *session.DeadWorkerError has that error translated into a
KindWorkerDied Request by the loop itself, so the original handler's own
return path stays simple and the loop never aborts mid-run.

StartServing/StopServing bookend the loop's lifetime; StopServing enqueues
the KindHalt sentinel, which the loop treats as "stop after everything
already queued ahead of it has run" rather than an immediate abort.
*/
package dispatch
