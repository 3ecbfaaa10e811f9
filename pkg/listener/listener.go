// Package listener implements the accept loop shared by the master and the
// worker (spec §4.6, component C6): accept a connection, frame exactly one
// request, attribute it to a worker (or the master) by peer address, reject
// unrecognized kinds, and enqueue a Request for the dispatcher to answer.
package listener

import (
	"github.com/nidzo732/fleetwork/pkg/log"
	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
	"github.com/nidzo732/fleetwork/pkg/wire"
)

// Attributor maps an inbound connection's remote address to the worker id
// that owns it. ok is false for an address the listener does not
// recognize, in which case the session is dropped silently (spec §4.6:
// "the master rejects sessions from unknown addresses by silently dropping
// them").
type Attributor func(remoteAddr string) (origin types.WorkerID, ok bool)

// KindAllowed reports whether kind has a registered handler. Kinds outside
// the handler table are protocol failures (spec §7) and are dropped before
// ever reaching the dispatcher.
type KindAllowed func(kind protocol.Kind) bool

// Enqueuer hands a fully attributed Request to the dispatcher.
type Enqueuer func(req *protocol.Request)

// Listener is an accept loop over one wire.Listener.
type Listener struct {
	wl          *wire.Listener
	attribute   Attributor
	allowed     KindAllowed
	enqueue     Enqueuer
	inlineAlive bool // worker-side listener answers ALV without enqueueing (spec §4.6)
	component   string
}

// Option customizes a Listener at construction.
type Option func(*Listener)

// WithInlineAlive makes the listener answer a KindAlive ping directly,
// without enqueueing a Request — the worker-side behavior of spec §4.6:
// "a special ALV (are-you-alive) ping is handled inline before anything
// else".
func WithInlineAlive() Option {
	return func(l *Listener) { l.inlineAlive = true }
}

// WithComponent tags this listener's log lines (e.g. "master-listener" or
// "worker-listener").
func WithComponent(name string) Option {
	return func(l *Listener) { l.component = name }
}

// New builds a Listener over wl. attribute decides which worker (or the
// master, types.MasterOrigin) an inbound connection belongs to; allowed
// decides which kinds are recognized; enqueue hands accepted requests to
// the dispatcher.
func New(wl *wire.Listener, attribute Attributor, allowed KindAllowed, enqueue Enqueuer, opts ...Option) *Listener {
	l := &Listener{wl: wl, attribute: attribute, allowed: allowed, enqueue: enqueue, component: "listener"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Serve runs the accept loop until the underlying wire.Listener is closed.
// Each accepted connection is handled on its own short-lived goroutine
// (spec §4.6, §5 "Scheduling model").
func (l *Listener) Serve() error {
	logger := log.WithComponent(l.component)
	for {
		conn, err := l.wl.Accept()
		if err != nil {
			logger.Debug().Err(err).Msg("accept loop stopping")
			return err
		}
		go l.handle(conn)
	}
}

func (l *Listener) handle(conn *wire.Conn) {
	logger := log.WithComponent(l.component)

	origin, ok := l.attribute(conn.RemoteAddr())
	if !ok {
		logger.Debug().Str("addr", conn.RemoteAddr()).Msg("dropping session from unrecognized address")
		_ = conn.Close()
		return
	}

	raw, err := conn.Receive()
	if err != nil {
		logger.Debug().Err(err).Msg("dropping connection: frame read failed")
		_ = conn.Close()
		return
	}
	kind, body, err := protocol.DecodeMessage(raw)
	if err != nil {
		logger.Debug().Err(err).Msg("dropping connection: malformed request")
		_ = conn.Close()
		return
	}

	if l.inlineAlive && kind == protocol.KindAlive {
		resp, err := protocol.EncodeResponse(protocol.OK(protocol.Body{protocol.FieldMessage: string(protocol.KindImAlive)}))
		if err == nil {
			_ = conn.Send(resp)
		}
		_ = conn.Close()
		return
	}

	if !l.allowed(kind) {
		logger.Debug().Str("kind", string(kind)).Msg("dropping connection: unrecognized kind")
		_ = conn.Close()
		return
	}

	l.enqueue(&protocol.Request{
		Kind:        kind,
		Body:        body,
		Origin:      origin,
		SocketReply: &connReply{conn: conn},
	})
}

// connReply implements protocol.ReplyWriter over one accepted wire.Conn.
// The connection is closed once a reply has been written, matching spec
// §4.6: "The connection is closed by the dispatcher once the request is
// retired."
type connReply struct {
	conn *wire.Conn
}

func (c *connReply) WriteResponse(resp *protocol.Response) error {
	defer c.conn.Close()
	raw, err := protocol.EncodeResponse(resp)
	if err != nil {
		return err
	}
	return c.conn.Send(raw)
}

func (c *connReply) Close() error {
	return c.conn.Close()
}
