// Package dispatch implements the master's single-consumer request queue
// (spec §4.5, component C5): the sole mutator of master-side coordination
// state, so no locks are needed anywhere else in that state (spec §5).
package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nidzo732/fleetwork/pkg/log"
	"github.com/nidzo732/fleetwork/pkg/metrics"
	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/session"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// HandlerFunc processes one Request. It runs on the dispatcher's single
// goroutine and must not block on anything but the outbound calls it
// itself makes (spec §4.5 "Serialization").
//
// A non-nil error that wraps *session.DeadWorkerError is translated by the
// loop into a follow-up WORKER_DIED request; the handler itself does not
// need to do that translation, and the loop continues regardless (spec
// §4.5 "Dead-worker containment").
type HandlerFunc func(d *Dispatcher, req *protocol.Request) error

// ErrNoHandler is returned (and logged) when a Request arrives tagged with
// a kind that has no registered handler.
var ErrNoHandler = errors.New("dispatch: no handler registered for kind")

// FatalFunc is invoked once, from the dispatcher goroutine, when the
// live-worker count reaches zero (spec §4.5, §7 "Worker-death cascade").
// It must not block.
type FatalFunc func(err error)

// Dispatcher owns the single queue of Request items and the handler table
// invoked for each kind (spec §4.5).
type Dispatcher struct {
	queue    chan *protocol.Request
	handlers map[protocol.Kind]HandlerFunc
	onFatal  FatalFunc

	depth int64 // atomic: approximate queue depth for metrics

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// New builds a Dispatcher with the given queue capacity (0 means
// unbuffered, which still works since Enqueue is called from many
// goroutines and the single consumer drains continuously).
func New(queueCapacity int) *Dispatcher {
	return &Dispatcher{
		queue:    make(chan *protocol.Request, queueCapacity),
		handlers: make(map[protocol.Kind]HandlerFunc),
		done:     make(chan struct{}),
	}
}

// Handle registers fn as the handler for kind. Registration must complete
// before StartServing is called; the handler table is read without locking
// once the loop starts.
func (d *Dispatcher) Handle(kind protocol.Kind, fn HandlerFunc) {
	d.handlers[kind] = fn
}

// OnFatal registers the callback invoked when the live-worker count reaches
// zero.
func (d *Dispatcher) OnFatal(fn FatalFunc) {
	d.onFatal = fn
}

// Handles reports whether kind has a registered handler, for use as a
// listener's KindAllowed predicate.
func (d *Dispatcher) Handles(kind protocol.Kind) bool {
	_, ok := d.handlers[kind]
	return ok
}

// Enqueue pushes req onto the queue. Safe to call from any goroutine,
// including from within a handler (spec §4.5 "emit a follow-up internal
// request back into the same queue").
func (d *Dispatcher) Enqueue(req *protocol.Request) {
	atomic.AddInt64(&d.depth, 1)
	select {
	case d.queue <- req:
	default:
		// The queue is full, or unbuffered with no receiver ready (always
		// the case when the caller is a handler on the dispatcher goroutine
		// itself, or the loop has not started): hand the send to its own
		// goroutine instead of blocking the caller.
		go func() { d.queue <- req }()
	}
	metrics.DispatchQueueDepth.Set(float64(atomic.LoadInt64(&d.depth)))
}

// StartServing starts the dispatcher's loop goroutine (spec §4.5 "the
// dispatcher starts when startServing is invoked").
func (d *Dispatcher) StartServing() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// StopServing enqueues the HALT sentinel. The loop drains everything
// already queued ahead of it, then terminates (spec §4.5).
func (d *Dispatcher) StopServing() {
	d.stopOnce.Do(func() {
		d.Enqueue(&protocol.Request{Kind: protocol.KindHalt, Origin: types.MasterOrigin})
	})
}

// Done returns a channel closed once the loop has terminated.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) run() {
	logger := log.WithComponent("dispatch")
	defer close(d.done)

	for req := range d.queue {
		atomic.AddInt64(&d.depth, -1)
		metrics.DispatchQueueDepth.Set(float64(atomic.LoadInt64(&d.depth)))

		if req.Kind == protocol.KindHalt {
			logger.Debug().Msg("halt sentinel received, stopping dispatcher loop")
			return
		}

		d.handle(req)
	}
}

func (d *Dispatcher) handle(req *protocol.Request) {
	timer := metrics.NewTimer()
	handler, ok := d.handlers[req.Kind]
	if !ok {
		log.WithComponent("dispatch").Warn().Str("kind", string(req.Kind)).Msg("no handler for kind")
		_ = req.Reply(protocol.Fail(fmt.Errorf("%w: %s", ErrNoHandler, req.Kind)))
		return
	}

	err := handler(d, req)
	timer.ObserveDurationVec(metrics.DispatchHandlerDuration, string(req.Kind))

	if !req.ReplySent() {
		// spec §4.2: every request not explicitly answered still gets a
		// default reply so the caller is never left blocked forever.
		if err != nil {
			_ = req.Reply(protocol.Fail(err))
		} else {
			_ = req.Reply(protocol.OK(nil))
		}
	}

	if err == nil {
		return
	}

	var deadErr *session.DeadWorkerError
	if errors.As(err, &deadErr) {
		log.WithWorkerID(int(deadErr.WorkerID)).Warn().Err(err).Msg("outbound request failed, queuing WORKER_DIED")
		d.Enqueue(&protocol.Request{
			Kind:   protocol.KindWorkerDied,
			Body:   protocol.Body{protocol.FieldWorker: int(deadErr.WorkerID)},
			Origin: types.MasterOrigin,
		})
		return
	}

	log.WithComponent("dispatch").Error().Err(err).Str("kind", string(req.Kind)).Msg("handler returned error")
}

// Fatal is called by the WORKER_DIED handler once the live-worker count
// reaches zero (spec §4.5, §7).
func (d *Dispatcher) Fatal(err error) {
	if d.onFatal != nil {
		d.onFatal(err)
	}
}
