package server

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel records writes. It is writable unless blocked.
type fakeChannel struct {
	id ChannelID

	mu      sync.Mutex
	blocked bool
	failing bool
	written []string
	closed  bool
	closes  int
}

func newFakeChannel(name string) *fakeChannel {
	return &fakeChannel{id: ChannelID(name)}
}

func (f *fakeChannel) ID() ChannelID      { return f.id }
func (f *fakeChannel) RemoteAddr() string { return "fake:" + string(f.id) }
func (f *fakeChannel) Transport() string  { return "fake" }

func (f *fakeChannel) Writable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.blocked && !f.closed
}

func (f *fakeChannel) Write(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("broken pipe")
	}
	if f.closed {
		return errChannelClosed
	}
	f.written = append(f.written, text)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closes++
	return nil
}

func (f *fakeChannel) setBlocked(b bool) {
	f.mu.Lock()
	f.blocked = b
	f.mu.Unlock()
}

func (f *fakeChannel) Written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func (f *fakeChannel) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeClock is a settable time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(grace time.Duration) (*ConnManager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	cm := NewConnManager(grace)
	cm.now = clock.Now
	return cm, clock
}

func pendingFor(cm *ConnManager, id ChannelID) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.pendingLocked(id)
}

func register(cm *ConnManager, names ...string) []*fakeChannel {
	var out []*fakeChannel
	for _, n := range names {
		ch := newFakeChannel(n)
		cm.Register(ch, nil, nil)
		out = append(out, ch)
	}
	return out
}

func TestDrainOnceDeliversAtMostOne(t *testing.T) {
	cm, _ := newTestManager(time.Second)
	a := register(cm, "a")[0]
	for i := 1; i <= 3; i++ {
		cm.EnqueueOutbound(a.ID(), fmt.Sprintf("m%d", i))
	}

	st := cm.DrainOnce()
	assert.Equal(t, 1, st.Delivered)
	assert.Equal(t, []string{"m1"}, a.Written())
	assert.Equal(t, 2, pendingFor(cm, a.ID()))

	cm.DrainOnce()
	cm.DrainOnce()
	assert.Equal(t, []string{"m1", "m2", "m3"}, a.Written())
	assert.True(t, cm.DrainOnce().Idle())
}

func TestDrainOnceBlockedChannelDoesNotStarveOthers(t *testing.T) {
	cm, _ := newTestManager(time.Second)
	chs := register(cm, "a", "b")
	a, b := chs[0], chs[1]
	a.setBlocked(true)

	cm.EnqueueOutbound(a.ID(), "a1")
	cm.EnqueueOutbound(b.ID(), "b1")
	cm.EnqueueOutbound(a.ID(), "a2")
	cm.EnqueueOutbound(b.ID(), "b2")

	cm.DrainOnce()
	cm.DrainOnce()
	assert.Equal(t, []string{"b1", "b2"}, b.Written())
	assert.Empty(t, a.Written())
	assert.True(t, cm.DrainOnce().Idle(), "blocked entries stay queued")
	assert.Equal(t, 2, pendingFor(cm, a.ID()))

	a.setBlocked(false)
	cm.DrainOnce()
	cm.DrainOnce()
	assert.Equal(t, []string{"a1", "a2"}, a.Written())
}

func TestDrainOnceDropsUnregistered(t *testing.T) {
	cm, _ := newTestManager(time.Second)
	a := register(cm, "a")[0]
	cm.EnqueueOutbound("ghost", "boo")
	cm.EnqueueOutbound(a.ID(), "hi")

	st := cm.DrainOnce()
	assert.Equal(t, 1, st.Dropped)
	assert.Equal(t, 1, st.Delivered)
	assert.Equal(t, []string{"hi"}, a.Written())
	out, _ := cm.QueueDepth()
	assert.Zero(t, out)
}

func TestDrainOnceWriteFailureDiscards(t *testing.T) {
	cm, _ := newTestManager(time.Second)
	a := register(cm, "a")[0]
	a.failing = true
	cm.EnqueueOutbound(a.ID(), "lost")

	st := cm.DrainOnce()
	assert.Equal(t, 1, st.Failed)
	assert.Zero(t, st.Delivered)
	assert.Zero(t, pendingFor(cm, a.ID()))
}

func TestCloseWaitsForQueuedOutput(t *testing.T) {
	cm, _ := newTestManager(5 * time.Second)
	a := register(cm, "a")[0]
	a.setBlocked(true)
	cm.EnqueueOutbound(a.ID(), "Goodbye!")
	cm.EnqueueClose(a.ID())

	st := cm.DrainOnce()
	assert.Zero(t, st.Closed)
	assert.False(t, a.IsClosed())

	a.setBlocked(false)
	st = cm.DrainOnce()
	assert.Equal(t, 1, st.Delivered)
	assert.Equal(t, 1, st.Closed)
	assert.Zero(t, st.Forced)
	assert.Equal(t, []string{"Goodbye!"}, a.Written())
	assert.True(t, a.IsClosed())
}

func TestCloseForcedAfterGrace(t *testing.T) {
	cm, clock := newTestManager(5 * time.Second)
	a := register(cm, "a")[0]
	a.setBlocked(true)
	cm.EnqueueOutbound(a.ID(), "one")
	cm.EnqueueOutbound(a.ID(), "two")
	cm.EnqueueClose(a.ID())

	clock.Advance(4 * time.Second)
	assert.Zero(t, cm.DrainOnce().Closed)

	clock.Advance(2 * time.Second)
	st := cm.DrainOnce()
	assert.Equal(t, 1, st.Closed)
	assert.Equal(t, 1, st.Forced)
	assert.Equal(t, 2, st.Dropped)
	assert.True(t, a.IsClosed())
	assert.Zero(t, pendingFor(cm, a.ID()))
	assert.Empty(t, a.Written())
}

func TestDrainOnceClosesAtMostOne(t *testing.T) {
	cm, _ := newTestManager(time.Second)
	chs := register(cm, "a", "b")
	cm.EnqueueClose(chs[0].ID())
	cm.EnqueueClose(chs[1].ID())

	assert.Equal(t, 1, cm.DrainOnce().Closed)
	assert.True(t, chs[0].IsClosed())
	assert.False(t, chs[1].IsClosed())

	assert.Equal(t, 1, cm.DrainOnce().Closed)
	assert.True(t, chs[1].IsClosed())
}

func TestEnqueueCloseCollapsesRepeats(t *testing.T) {
	cm, _ := newTestManager(time.Second)
	a := register(cm, "a")[0]
	cm.EnqueueClose(a.ID())
	cm.EnqueueClose(a.ID())

	_, closes := cm.QueueDepth()
	assert.Equal(t, 1, closes)
	cm.DrainOnce()
	cm.DrainOnce()
	assert.Equal(t, 1, a.closes)
}

func TestUnregisterPurgesQueues(t *testing.T) {
	cm, _ := newTestManager(time.Second)
	chs := register(cm, "a", "b")
	cm.EnqueueOutbound(chs[0].ID(), "x")
	cm.EnqueueOutbound(chs[1].ID(), "y")
	cm.EnqueueClose(chs[0].ID())

	_, ok := cm.Unregister(chs[0].ID())
	require.True(t, ok)
	_, ok = cm.Unregister(chs[0].ID())
	assert.False(t, ok)

	out, closes := cm.QueueDepth()
	assert.Equal(t, 1, out)
	assert.Zero(t, closes)
	assert.Equal(t, 1, cm.Count())
}

func TestBroadcastExcept(t *testing.T) {
	cm, _ := newTestManager(time.Second)
	chs := register(cm, "a", "b", "c")
	cm.BroadcastExcept(chs[1].ID(), "hello")
	for i := 0; i < 3; i++ {
		cm.DrainOnce()
	}
	assert.Equal(t, []string{"hello"}, chs[0].Written())
	assert.Empty(t, chs[1].Written())
	assert.Equal(t, []string{"hello"}, chs[2].Written())

	cm.Broadcast("all")
	for i := 0; i < 3; i++ {
		cm.DrainOnce()
	}
	assert.Equal(t, []string{"all"}, chs[1].Written())
}

func TestLookupAndContexts(t *testing.T) {
	cm, clock := newTestManager(time.Second)
	a := register(cm, "a")[0]
	cc, ok := cm.Lookup(a.ID())
	require.True(t, ok)
	assert.Equal(t, clock.Now(), cc.ConnTime)
	assert.Len(t, cm.Contexts(), 1)

	_, ok = cm.Lookup("nope")
	assert.False(t, ok)
}
