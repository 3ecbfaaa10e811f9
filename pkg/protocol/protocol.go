// Package protocol implements fleetwork's request codec (spec §4.2, C2): a
// 3-byte request kind plus a structured body, encoded on the wire with
// msgpack, and the Request/Response envelopes the dispatcher and sessions
// pass around.
package protocol

import (
	"bytes"
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/nidzo732/fleetwork/pkg/types"
)

// Kind is one of the closed set of 3-byte request tags from spec §6.
type Kind string

const (
	KindAlive Kind = "ALV" // liveness ping -> IMALIVE

	KindSubmitTask        Kind = "TSK"
	KindTerminateTask     Kind = "TRM"
	KindGetResult         Kind = "RSL"
	KindTaskRunning       Kind = "TRN"
	KindGetException      Kind = "EXC"
	KindExceptionRaised   Kind = "EXR"

	KindEventSet      Kind = "EVS"
	KindEventRegister Kind = "EVR"

	KindQueueRegister Kind = "QUR"
	KindQueuePut      Kind = "QUP"
	KindQueueGet      Kind = "QUG"

	KindLockRegister Kind = "LCR"
	KindLockAcquire  Kind = "LCA"
	KindLockRelease  Kind = "LCU"

	KindSemRegister Kind = "SER"
	KindSemAcquire  Kind = "SEA"
	KindSemRelease  Kind = "SEU"

	KindMapSet      Kind = "MNS"
	KindMapGet      Kind = "MNG"
	KindMapKeys     Kind = "MNK"
	KindMapContains Kind = "CON"
	KindMapLength   Kind = "LGH"

	KindNetPrint Kind = "NPR"

	KindNetObjectRegister Kind = "NCR"

	KindHalt       Kind = "HLT" // dispatcher shutdown sentinel, never sent over the wire
	KindWorkerDied Kind = "DWR" // internal dispatcher follow-up, never sent over the wire
	KindMapCreate  Kind = "MNC" // master-only: allocate a shared-map id, never sent over the wire

	KindSetEvent     Kind = "SEV" // master -> worker push: flip the local event mirror
	KindReleaseWaiter Kind = "REL" // master -> worker/master-loopback push: unpark one mirror waiter
	KindPutOnQueue   Kind = "PUQ" // master -> worker push: deliver one queued item
	KindRegisterNetClass Kind = "RNC" // master -> worker push: broadcast a net-object class bundle
	KindImAlive      Kind = "IMALIVE"
)

// Body keys, the short literal strings spec §6 uses for request payloads.
const (
	FieldWorker  = "WORKER"
	FieldTask    = "TASK"
	FieldID      = "ID"
	FieldQueue   = "QUEUE"
	FieldData    = "DATA"
	FieldItem    = "ITEM"
	FieldValue   = "VALUE"
	FieldClass   = "CLS"
	FieldArgs    = "ARGS"
	FieldKwargs  = "KWARGS"
	FieldKey     = "KEY"
	FieldMessage = "MESSAGE"
	FieldTarget  = "TARGET"
	FieldMethods = "METHODS"
	FieldStatic  = "STATIC"
)

// KeyErrorSentinel is the reply value spec §6/§7 calls KERR: it denotes
// "key not present" for a shared-map Get, and is translated into
// types.ErrKeyAbsent at the caller.
const KeyErrorSentinel = "KERR"

// Body is the structured payload of a Request or Response. It is encoded on
// the wire as a msgpack map, matching spec §4.2's "general-purpose object
// serializer" note and §9's recommendation of a structured, portable codec.
type Body map[string]any

// Request is the envelope the dispatcher's queue carries (spec glossary
// "Request"): a kind, a body, and the bookkeeping needed to route a reply
// back to whoever issued it. Origin, SocketReply and FutureReply are not
// part of the wire encoding; they are populated by the listener or by a loopback caller.
type Request struct {
	Kind   Kind
	Body   Body
	Origin types.WorkerID // the worker that sent this, or types.MasterOrigin

	// Reply is how the dispatcher answers this request. Exactly one of
	// SocketReply (wire-originated) or FutureReply (loopback-originated)
	// is set.
	SocketReply ReplyWriter
	FutureReply *Future

	// responseSent guards against double-answering and lets cleanup code
	// supply a default reply (spec §4.2 "response-sent flag").
	responseSent bool
}

// ReplyWriter abstracts "write one framed Response back to whoever asked".
// pkg/listener's per-connection handler implements it over a wire.Conn.
type ReplyWriter interface {
	WriteResponse(resp *Response) error
	Close() error
}

// Reply sends resp back to the request's originator exactly once. A second
// call is a no-op, matching the "only answer once" discipline of spec §4.2.
func (r *Request) Reply(resp *Response) error {
	if r.responseSent {
		return nil
	}
	r.responseSent = true
	if r.FutureReply != nil {
		r.FutureReply.fulfill(resp)
		return nil
	}
	if r.SocketReply != nil {
		return r.SocketReply.WriteResponse(resp)
	}
	return nil
}

// ReplySent reports whether Reply has already been called, so cleanup code
// can supply a default OK response instead of leaving the caller blocked
// forever (spec §4.2).
func (r *Request) ReplySent() bool {
	return r.responseSent
}

// Response is the reply to a Request. Ok is false when the handler could
// not be completed normally (e.g. a worker died mid-forward); Error then
// carries a human-readable description and Body may be empty.
type Response struct {
	Kind  Kind
	Body  Body
	Ok    bool
	Error string
}

// OK builds a successful Response.
func OK(body Body) *Response {
	if body == nil {
		body = Body{}
	}
	return &Response{Ok: true, Body: body}
}

// Fail builds a failed Response carrying err's message.
func Fail(err error) *Response {
	return &Response{Ok: false, Error: err.Error()}
}

var mh = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	return h
}()

// Encode serializes v (a Body, Response, or any msgpack-compatible value)
// to msgpack bytes.
func Encode(v any) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	enc := codec.NewEncoder(buf, mh)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("protocol: msgpack encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes msgpack bytes into v.
func Decode(data []byte, v any) error {
	dec := codec.NewDecoder(bytes.NewReader(data), mh)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("protocol: msgpack decode: %w", err)
	}
	return nil
}

// wireMessage is the on-the-wire shape of one framed payload: a fixed
// 3-byte kind tag followed by the body map. Keeping this as its own type
// (rather than encoding Request directly) keeps the wire format stable
// regardless of how Request grows with runtime-only fields.
type wireMessage struct {
	Kind Kind
	Body Body
}

// EncodeMessage serializes a kind+body pair into the bytes pkg/wire frames
// and sends over the socket.
func EncodeMessage(kind Kind, body Body) ([]byte, error) {
	return Encode(wireMessage{Kind: kind, Body: body})
}

// DecodeMessage parses framed payload bytes back into a kind+body pair.
func DecodeMessage(data []byte) (Kind, Body, error) {
	var msg wireMessage
	if err := Decode(data, &msg); err != nil {
		return "", nil, err
	}
	if msg.Body == nil {
		msg.Body = Body{}
	}
	return msg.Kind, msg.Body, nil
}

// EncodeResponse serializes a Response for the wire.
func EncodeResponse(resp *Response) ([]byte, error) {
	return Encode(resp)
}

// DecodeResponse parses a framed Response payload.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := Decode(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
