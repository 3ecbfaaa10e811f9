// Package executor implements the worker-side task executor (spec §4.4,
// component C4): every task runs its callable in its own OS process.
//
// The source relies on a general-purpose runtime serializer to ship a
// task's callable across the wire. Go has no equivalent, so per spec
// §9's "cross-address-space callable transport" guidance, a task's
// Target is a stable string id resolved against a worker-side Registry
// of functions — populated once at process startup, the same idiom
// database/sql drivers and gob types use for out-of-band registration.
//
// Process isolation is achieved by re-executing the worker's own binary:
// Execution starts os.Executable() again with the ChildEnvVar set, writes
// the encoded (target, args, kwargs) to its stdin, and reads the encoded
// (result, exception, exceptionRaised) back from its stdout. The
// worker's main() checks ChildEnvVar before doing anything else and, if
// set, becomes RunChild instead of a long-running server — the same
// reexec pattern used by container runtimes to get a fresh process
// without a second binary on disk.
package executor
