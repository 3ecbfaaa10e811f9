package protocol

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Future is the cross-thread RPC idiom spec §9 calls "request with deferred
// response": a caller that is not the dispatcher goroutine enqueues a
// Request carrying a Future, then blocks reading Await until the dispatcher
// posts a Response into it. This is how a master-initiated call (the master
// calling WaitEvent, AcquireLock, etc. on its own behalf, origin
// types.MasterOrigin) gets an answer without the dispatcher itself blocking.
type Future struct {
	id   string
	done chan *Response
}

// NewFuture allocates a Future tagged with a fresh correlation id, used for
// logging/tracing a loopback request end to end.
func NewFuture() *Future {
	return &Future{
		id:   uuid.New().String(),
		done: make(chan *Response, 1),
	}
}

// ID returns the future's correlation id.
func (f *Future) ID() string {
	return f.id
}

func (f *Future) fulfill(resp *Response) {
	select {
	case f.done <- resp:
	default:
		// already fulfilled; Reply()'s responseSent guard should prevent this
	}
}

// Await blocks until the dispatcher answers, or ctx is done.
func (f *Future) Await(ctx context.Context) (*Response, error) {
	select {
	case resp := <-f.done:
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("protocol: future %s: %w", f.id, ctx.Err())
	}
}
