package h2out

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlowControlExhaustsStreamWindow(t *testing.T) {
	c, _ := newTestConn(t, ConnOpts{InitialWindow: 1})

	s := c.NewStream(1, 0, 1)
	s.sendWindow = 0

	require.False(t, c.flowControl(s))
	require.True(t, s.exhausted)
	require.False(t, s.waiting)
}

func TestFlowControlParksOnConnectionWindow(t *testing.T) {
	c, _ := newTestConn(t, ConnOpts{})
	c.sendWindow = 0

	s := c.NewStream(1, 0, 1)

	require.False(t, c.flowControl(s))
	require.True(t, s.waiting)
	require.False(t, s.exhausted)
	require.Equal(t, s, c.waitingHead)
}

func TestFlowControlOK(t *testing.T) {
	c, _ := newTestConn(t, ConnOpts{})

	s := c.NewStream(1, 0, 1)

	require.True(t, c.flowControl(s))
	require.False(t, s.waiting)
	require.False(t, s.exhausted)
}

func TestWaitingQueueOrder(t *testing.T) {
	c, _ := newTestConn(t, ConnOpts{})

	s1 := c.NewStream(1, 1, 1.0)
	s2 := c.NewStream(3, 2, 1.0)
	s3 := c.NewStream(5, 1, 0.5)
	s4 := c.NewStream(7, 1, 2.0)

	c.waitingQueue(s1)
	c.waitingQueue(s2)
	c.waitingQueue(s3)
	c.waitingQueue(s4)

	// rank ascending, then weight descending, arrival order for ties
	want := []*Stream{s4, s1, s3, s2}

	for _, s := range want {
		got := c.waitingPop()
		require.Equal(t, s.id, got.id)
		require.False(t, got.waiting)
	}

	require.Nil(t, c.waitingPop())
	require.Nil(t, c.waitingTail)
}

func TestWaitingQueueStableForEqualPriority(t *testing.T) {
	c, _ := newTestConn(t, ConnOpts{})

	s1 := c.NewStream(1, 1, 1.0)
	s2 := c.NewStream(3, 1, 1.0)
	s3 := c.NewStream(5, 1, 1.0)

	c.waitingQueue(s1)
	c.waitingQueue(s2)
	c.waitingQueue(s3)

	require.Equal(t, uint32(1), c.waitingPop().id)
	require.Equal(t, uint32(3), c.waitingPop().id)
	require.Equal(t, uint32(5), c.waitingPop().id)
}

func TestWaitingQueueReinsertIsNoop(t *testing.T) {
	c, _ := newTestConn(t, ConnOpts{})

	s := c.NewStream(1, 1, 1.0)

	c.waitingQueue(s)
	c.waitingQueue(s)

	require.Equal(t, s, c.waitingPop())
	require.Nil(t, c.waitingPop())
}

func TestWaitingRemoveMiddle(t *testing.T) {
	c, _ := newTestConn(t, ConnOpts{})

	s1 := c.NewStream(1, 1, 3.0)
	s2 := c.NewStream(3, 1, 2.0)
	s3 := c.NewStream(5, 1, 1.0)

	c.waitingQueue(s1)
	c.waitingQueue(s2)
	c.waitingQueue(s3)

	s2.waiting = false
	c.waitingRemove(s2)

	require.Equal(t, s1, c.waitingPop())
	require.Equal(t, s3, c.waitingPop())
	require.Nil(t, c.waitingPop())
}

func TestConnWindowUpdateWakesAllInOrder(t *testing.T) {
	c, _ := newTestConn(t, ConnOpts{})
	c.sendWindow = 0

	s1 := c.NewStream(1, 1, 2.0)
	s2 := c.NewStream(3, 1, 1.0)

	require.False(t, c.flowControl(s1))
	require.False(t, c.flowControl(s2))

	var order []uint32

	s1.wev.Handler = func() { order = append(order, s1.id) }
	s2.wev.Handler = func() { order = append(order, s2.id) }

	c.WindowUpdate(100)

	require.Equal(t, 100, c.sendWindow)
	require.False(t, s1.waiting)
	require.False(t, s2.waiting)
	require.True(t, s1.wev.Ready)

	c.RunPostedEvents()
	require.Equal(t, []uint32{1, 3}, order)
}

func TestStreamWindowUpdateClearsExhausted(t *testing.T) {
	c, _ := newTestConn(t, ConnOpts{InitialWindow: 1})

	s := c.NewStream(1, 0, 1)
	s.sendWindow = 0

	require.False(t, c.flowControl(s))
	require.True(t, s.exhausted)

	// credit that keeps the window at or below zero leaves the latch
	s.sendWindow = -5
	s.WindowUpdate(3)
	require.True(t, s.exhausted)

	s.WindowUpdate(10)
	require.False(t, s.exhausted)
	require.True(t, s.wev.Ready)
}

func TestHandleStreamGating(t *testing.T) {
	c, _ := newTestConn(t, ConnOpts{})

	s := c.NewStream(1, 0, 1)

	s.blocked = true
	c.handleStream(s)
	require.False(t, s.wev.Ready)
	require.Empty(t, c.posted)

	s.blocked = false
	s.exhausted = true
	c.handleStream(s)
	require.False(t, s.wev.Ready)

	// an errored stream wakes up even while exhausted, for teardown
	s.errored = true
	c.handleStream(s)
	require.True(t, s.wev.Ready)
	require.Len(t, c.posted, 1)
}
