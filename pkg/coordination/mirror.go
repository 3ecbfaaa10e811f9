package coordination

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/nidzo732/fleetwork/pkg/types"
)

// EventMirror is the local wake object for one event (spec §9
// "worker-local mirror of a primitive"). Closing a channel exactly once
// is a natural level-triggered broadcast: every Wait call sees the close,
// whether it arrived before or after Set (I8).
type EventMirror struct {
	once sync.Once
	ch   chan struct{}
}

// NewEventMirror builds an unset event mirror.
func NewEventMirror() *EventMirror {
	return &EventMirror{ch: make(chan struct{})}
}

// Set flips the mirror to set, waking every current and future Wait call.
func (m *EventMirror) Set() {
	m.once.Do(func() { close(m.ch) })
}

// Wait blocks until Set has been called, or ctx is done.
func (m *EventMirror) Wait(ctx context.Context) error {
	select {
	case <-m.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PermitMirror is the local wake object shared by lock and semaphore
// mirrors: both reduce to "block until the master sends me exactly one
// RELEASE". A local FIFO of per-call channels means concurrently blocked
// local tasks are woken in the order they started waiting, independent of
// how the master orders them against other workers.
type PermitMirror struct {
	mu      sync.Mutex
	pending *list.List // of chan struct{}
}

// NewPermitMirror builds an empty permit mirror.
func NewPermitMirror() *PermitMirror {
	return &PermitMirror{pending: list.New()}
}

// Enqueue registers one pending local waiter and returns the channel it
// should block on. Call this before issuing the LCA/SEA request so a
// RELEASE that arrives (even synchronously, from the master's own
// in-process Pusher) can never be missed.
func (m *PermitMirror) Enqueue() <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	el := m.pending.PushBack(ch)
	m.mu.Unlock()
	_ = el
	return ch
}

// Release wakes the oldest pending local waiter. It is called by the
// inbound RELEASE handler (worker listener, or the master's own Pusher).
func (m *PermitMirror) Release() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	front := m.pending.Front()
	if front == nil {
		return false
	}
	m.pending.Remove(front)
	front.Value.(chan struct{}) <- struct{}{}
	return true
}

// QueueMirror is the local wake object for one FIFO queue. An item that
// arrives with no local Take call yet waiting is buffered; a Take call
// that arrives with an item already buffered is satisfied immediately.
type QueueMirror struct {
	mu      sync.Mutex
	items   *list.List // of any, buffered items not yet claimed
	pending *list.List // of chan any, local Take calls awaiting delivery
}

// NewQueueMirror builds an empty queue mirror.
func NewQueueMirror() *QueueMirror {
	return &QueueMirror{items: list.New(), pending: list.New()}
}

// Take blocks until an item is available locally, either already buffered
// or delivered by a subsequent PUT_ON_QUEUE push.
func (m *QueueMirror) Take(ctx context.Context) (any, error) {
	m.mu.Lock()
	if front := m.items.Front(); front != nil {
		m.items.Remove(front)
		m.mu.Unlock()
		return front.Value, nil
	}
	ch := make(chan any, 1)
	m.pending.PushBack(ch)
	m.mu.Unlock()

	select {
	case item := <-ch:
		return item, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deliver hands item to the oldest pending local Take call, or buffers it
// if none is currently waiting.
func (m *QueueMirror) Deliver(item any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if front := m.pending.Front(); front != nil {
		m.pending.Remove(front)
		front.Value.(chan any) <- item
		return
	}
	m.items.PushBack(item)
}

// MirrorSet is the per-process registry of local mirrors, keyed by
// primitive id, with one map per mirror kind: events, permits (lock and
// semaphore share one), and queues. Shared-map has no mirror.
type MirrorSet struct {
	mu      sync.RWMutex
	events  map[types.PrimitiveID]*EventMirror
	permits map[types.PrimitiveID]*PermitMirror
	queues  map[types.PrimitiveID]*QueueMirror
}

// NewMirrorSet builds an empty mirror registry.
func NewMirrorSet() *MirrorSet {
	return &MirrorSet{
		events:  make(map[types.PrimitiveID]*EventMirror),
		permits: make(map[types.PrimitiveID]*PermitMirror),
		queues:  make(map[types.PrimitiveID]*QueueMirror),
	}
}

// RegisterEvent installs a fresh, unset event mirror under id. A mirror
// already registered under id is replaced, and waiters parked on the
// replaced mirror are not carried over to the new one.
func (s *MirrorSet) RegisterEvent(id types.PrimitiveID) *EventMirror {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := NewEventMirror()
	s.events[id] = m
	return m
}

// Event returns the event mirror for id.
func (s *MirrorSet) Event(id types.PrimitiveID) (*EventMirror, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("coordination: no event mirror registered for id %d", id)
	}
	return m, nil
}

// RegisterPermit installs a fresh permit mirror under id (used by both
// lock and semaphore registration).
func (s *MirrorSet) RegisterPermit(id types.PrimitiveID) *PermitMirror {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := NewPermitMirror()
	s.permits[id] = m
	return m
}

// Permit returns the permit mirror for id.
func (s *MirrorSet) Permit(id types.PrimitiveID) (*PermitMirror, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.permits[id]
	if !ok {
		return nil, fmt.Errorf("coordination: no lock/semaphore mirror registered for id %d", id)
	}
	return m, nil
}

// RegisterQueue installs a fresh queue mirror under id.
func (s *MirrorSet) RegisterQueue(id types.PrimitiveID) *QueueMirror {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := NewQueueMirror()
	s.queues[id] = m
	return m
}

// Queue returns the queue mirror for id.
func (s *MirrorSet) Queue(id types.PrimitiveID) (*QueueMirror, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.queues[id]
	if !ok {
		return nil, fmt.Errorf("coordination: no queue mirror registered for id %d", id)
	}
	return m, nil
}

// DeliverEvent routes one inbound SEV push to id's event mirror;
// DeliverRelease and DeliverQueueItem below do the same for REL and PUQ.
// Callers (the worker's dispatch handlers and the master's own Push) pick
// the method by kind.
func (s *MirrorSet) DeliverEvent(id types.PrimitiveID) error {
	m, err := s.Event(id)
	if err != nil {
		return err
	}
	m.Set()
	return nil
}

func (s *MirrorSet) DeliverRelease(id types.PrimitiveID) error {
	m, err := s.Permit(id)
	if err != nil {
		return err
	}
	m.Release()
	return nil
}

func (s *MirrorSet) DeliverQueueItem(id types.PrimitiveID, item any) error {
	m, err := s.Queue(id)
	if err != nil {
		return err
	}
	m.Deliver(item)
	return nil
}
