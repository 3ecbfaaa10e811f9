// Package lifecycle implements the task lifecycle's handle side (spec
// §4.8, component C8): submission, round-robin placement, and the
// result/exception/running/terminate forwards.
//
// Submit runs on the calling goroutine, not the dispatcher: it only
// touches the round-robin cursor and the task→worker placement map, both
// guarded by one small mutex, and then calls straight through
// pkg/session to the chosen worker (spec §9 "Round-robin cursor" notes
// submit is called "from a user thread that is not itself the
// dispatcher"). Result/Exception/Running/Terminate instead run as
// dispatcher handlers (registered with pkg/dispatch by pkg/workgroup),
// because spec §4.8 describes them as "the dispatcher looks up the
// executor, forwards a corresponding request to that worker" — i.e. they
// are driven through the same Future-based loopback every other
// master-originated coordination call uses.
package lifecycle
