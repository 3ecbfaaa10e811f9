package coordination

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// recordingPusher is an in-memory Pusher for unit-testing authorities
// without any real transport, mirroring the teacher's preference for
// exercising real behavior with lightweight fakes at the unit level.
type recordingPusher struct {
	pushes []pushed
	fail   map[types.WorkerID]bool
}

type pushed struct {
	origin types.WorkerID
	kind   protocol.Kind
	body   protocol.Body
}

func (p *recordingPusher) Push(origin types.WorkerID, kind protocol.Kind, body protocol.Body) error {
	if p.fail[origin] {
		return &deadWorkerStub{origin: origin}
	}
	p.pushes = append(p.pushes, pushed{origin: origin, kind: kind, body: body})
	return nil
}

type deadWorkerStub struct{ origin types.WorkerID }

func (e *deadWorkerStub) Error() string { return "dead worker" }

func TestLockGrantsImmediatelyWhenFree(t *testing.T) {
	l := NewLock(1)
	p := &recordingPusher{}

	require.NoError(t, l.Acquire(p, 0))
	held, holder := l.Held()
	require.True(t, held)
	require.Equal(t, types.WorkerID(0), holder)
	require.Len(t, p.pushes, 1)
	require.Equal(t, protocol.KindReleaseWaiter, p.pushes[0].kind)
	require.Equal(t, types.WorkerID(0), p.pushes[0].origin)
}

func TestLockFairnessServesWaitersInOrder(t *testing.T) {
	l := NewLock(1)
	p := &recordingPusher{}

	require.NoError(t, l.Acquire(p, 1)) // A1 granted immediately
	require.NoError(t, l.Acquire(p, 2)) // A2 queued
	require.NoError(t, l.Acquire(p, 3)) // A3 queued

	require.NoError(t, l.Release(p)) // unparks A2
	require.NoError(t, l.Release(p)) // unparks A3

	require.Len(t, p.pushes, 3)
	require.Equal(t, types.WorkerID(1), p.pushes[0].origin)
	require.Equal(t, types.WorkerID(2), p.pushes[1].origin)
	require.Equal(t, types.WorkerID(3), p.pushes[2].origin)

	held, holder := l.Held()
	require.True(t, held)
	require.Equal(t, types.WorkerID(3), holder)
}

func TestLockReleaseWithNoWaitersUnholds(t *testing.T) {
	l := NewLock(1)
	p := &recordingPusher{}
	require.NoError(t, l.Acquire(p, 1))
	require.NoError(t, l.Release(p))
	held, _ := l.Held()
	require.False(t, held)
}

func TestSemaphoreCapacityLimitsConcurrency(t *testing.T) {
	s := NewSemaphore(2, 2)
	p := &recordingPusher{}

	require.NoError(t, s.Acquire(p, 1))
	require.NoError(t, s.Acquire(p, 2))
	require.Equal(t, 0, s.Value())

	require.NoError(t, s.Acquire(p, 3)) // queued, no permit left
	require.Len(t, p.pushes, 2)

	require.NoError(t, s.Release(p)) // hands the freed permit straight to waiter 3
	require.Len(t, p.pushes, 3)
	require.Equal(t, types.WorkerID(3), p.pushes[2].origin)
	require.Equal(t, 0, s.Value())
}

func TestSemaphoreReleaseWithNoWaitersIncrementsValue(t *testing.T) {
	s := NewSemaphore(2, 1)
	p := &recordingPusher{}
	require.NoError(t, s.Acquire(p, 1))
	require.NoError(t, s.Release(p))
	require.Equal(t, 1, s.Value())
}

func TestQueueFIFODelivery(t *testing.T) {
	q := NewQueue(3)
	p := &recordingPusher{}

	require.NoError(t, q.Put(p, "x1"))
	require.NoError(t, q.Put(p, "x2"))
	require.Empty(t, p.pushes) // no waiters yet

	require.NoError(t, q.Get(p, 10))
	require.NoError(t, q.Get(p, 11))

	require.Len(t, p.pushes, 2)
	require.Equal(t, "x1", p.pushes[0].body[protocol.FieldItem])
	require.Equal(t, types.WorkerID(10), p.pushes[0].origin)
	require.Equal(t, "x2", p.pushes[1].body[protocol.FieldItem])
	require.Equal(t, types.WorkerID(11), p.pushes[1].origin)
}

func TestQueueGetBeforePutBlocksThenDelivers(t *testing.T) {
	q := NewQueue(3)
	p := &recordingPusher{}

	require.NoError(t, q.Get(p, 10))
	require.Empty(t, p.pushes)

	require.NoError(t, q.Put(p, "late"))
	require.Len(t, p.pushes, 1)
	require.Equal(t, "late", p.pushes[0].body[protocol.FieldItem])
}

func TestQueueDeadWaiterLeavesItemQueued(t *testing.T) {
	q := NewQueue(3)
	p := &recordingPusher{fail: map[types.WorkerID]bool{10: true}}

	require.NoError(t, q.Get(p, 10))
	err := q.Put(p, "x1")
	require.Error(t, err)

	// item was not consumed; a fresh waiter still gets it.
	p2 := &recordingPusher{}
	require.NoError(t, q.Get(p2, 11))
	require.Len(t, p2.pushes, 1)
	require.Equal(t, "x1", p2.pushes[0].body[protocol.FieldItem])
}

func TestEventSetIsMonotonicAndBroadcast(t *testing.T) {
	e := NewEvent(5)
	p := &recordingPusher{}
	require.False(t, e.IsSet())

	dead := e.Set(p, []types.WorkerID{1, 2, 3})
	require.Empty(t, dead)
	require.True(t, e.IsSet())
	require.Len(t, p.pushes, 4) // 3 workers + the master's own mirror
}

func TestEventSetReportsDeadWorkersWithoutAborting(t *testing.T) {
	e := NewEvent(5)
	p := &recordingPusher{fail: map[types.WorkerID]bool{2: true}}

	dead := e.Set(p, []types.WorkerID{1, 2, 3})
	require.Equal(t, []types.WorkerID{2}, dead)
	require.True(t, e.IsSet()) // still flips even though one worker failed
}

func TestSharedMapAbsentKey(t *testing.T) {
	m := NewSharedMap(7)
	_, ok := m.Get("n")
	require.False(t, ok)

	m.Set("n", 0)
	v, ok := m.Get("n")
	require.True(t, ok)
	require.Equal(t, 0, v)

	m.Set("n", 1)
	v, ok = m.Get("n")
	require.True(t, ok)
	require.Equal(t, 1, v)

	require.True(t, m.Contains("n"))
	require.Equal(t, 1, m.Length())
	require.Equal(t, []string{"n"}, m.Keys())
}
