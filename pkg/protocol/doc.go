/*
Package protocol implements the request codec of spec §4.2 (component C2).

Every message exchanged between a worker and the master — and every
loopback call the master makes to itself — is a Kind plus a Body. Kind is
one of the closed set of 3-byte tags enumerated in spec §6. Body is a
map[string]any encoded with msgpack (github.com/hashicorp/go-msgpack/v2),
chosen per §9's recommendation of a structured, portable codec over
language-native object pickling.

Request wraps a decoded Kind/Body with routing information: which worker it
came from (or types.MasterOrigin for the master's own calls) and how to
answer it — either a ReplyWriter over a live socket (pkg/listener) or a
Future for a loopback call blocked on Await (pkg/session's in-process
counterpart). Exactly one Reply call is honored per Request; see
Request.ReplySent for the cleanup hook spec §4.2 requires so a caller is
never left blocked by a handler that forgot to answer.
*/
package protocol
