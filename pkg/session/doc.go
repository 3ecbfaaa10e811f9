/*
Package session implements the master-side worker session (spec §4.3,
component C3).

A Session is a thin, stateless-per-call handle: every SendRequest or
SendRequestWithResponse dials a fresh socket to the worker's configured
address, sends one framed request (pkg/protocol over pkg/wire), and either
discards or decodes the reply before closing the socket. There is no
connection pooling and no retry — any transport-level failure surfaces as a
*DeadWorkerError carrying the worker id, which pkg/dispatch translates into
a WORKER_DIED follow-up request rather than aborting the caller's handler.
*/
package session
