package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	mu        sync.Mutex
	got       []string
	shutdowns int
	gate      chan struct{}
	fail      bool
}

func (s *sink) send(text string) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("reset by peer")
	}
	s.got = append(s.got, text)
	return nil
}

func (s *sink) shutdown() error {
	s.mu.Lock()
	s.shutdowns++
	s.mu.Unlock()
	return nil
}

func (s *sink) snapshot() ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...), s.shutdowns
}

func TestBufferedChannelFlushesOnClose(t *testing.T) {
	s := &sink{}
	ch := newBufferedChannel("tcp", "127.0.0.1:1", 8, s.send, s.shutdown)
	assert.NotEmpty(t, ch.ID())
	assert.Equal(t, "tcp", ch.Transport())

	require.NoError(t, ch.Write("one"))
	require.NoError(t, ch.Write("two"))
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	<-ch.Done()

	got, shutdowns := s.snapshot()
	assert.Equal(t, []string{"one", "two"}, got)
	assert.Equal(t, 1, shutdowns)
	assert.False(t, ch.Writable())
	assert.ErrorIs(t, ch.Write("three"), errChannelClosed)
}

func TestBufferedChannelBackpressure(t *testing.T) {
	s := &sink{gate: make(chan struct{})}
	ch := newBufferedChannel("tcp", "x", 1, s.send, s.shutdown)

	require.NoError(t, ch.Write("a"))
	// The writer takes "a" and blocks in send, freeing the buffer slot.
	require.Eventually(t, ch.Writable, time.Second, time.Millisecond)
	require.NoError(t, ch.Write("b"))
	assert.False(t, ch.Writable())
	assert.ErrorIs(t, ch.Write("c"), errChannelFull)

	close(s.gate)
	ch.Close()
	<-ch.Done()
	got, _ := s.snapshot()
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestBufferedChannelSendFailureShutsDown(t *testing.T) {
	s := &sink{fail: true}
	ch := newBufferedChannel("websocket", "x", 4, s.send, s.shutdown)
	require.NoError(t, ch.Write("a"))
	require.Eventually(t, func() bool {
		_, n := s.snapshot()
		return n == 1
	}, time.Second, time.Millisecond)

	ch.Close()
	<-ch.Done()
	_, shutdowns := s.snapshot()
	assert.Equal(t, 1, shutdowns)
}

func TestNewChannelIDUnique(t *testing.T) {
	seen := make(map[ChannelID]bool)
	for i := 0; i < 100; i++ {
		id := NewChannelID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
