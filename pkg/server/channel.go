package server

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ChannelID identifies a connection for its whole lifetime.
type ChannelID string

// NewChannelID returns a fresh random channel id.
func NewChannelID() ChannelID {
	return ChannelID(uuid.NewString())
}

// Channel is the transport side of a connection as seen by ConnManager.
// Writable and Write must not block.
type Channel interface {
	ID() ChannelID
	RemoteAddr() string
	Transport() string
	Writable() bool
	Write(text string) error
	Close() error
}

var (
	errChannelClosed = errors.New("channel closed")
	errChannelFull   = errors.New("channel output buffer full")
)

// bufferedChannel hands text to a writer goroutine through a bounded
// buffer. It is writable while the buffer has room. Close lets the writer
// flush what is buffered, then shuts the transport down.
type bufferedChannel struct {
	id        ChannelID
	addr      string
	transport string

	send     func(text string) error
	shutdown func() error

	mu     sync.Mutex
	out    chan string
	closed bool
	done   chan struct{}
}

func newBufferedChannel(transport, addr string, size int, send func(string) error, shutdown func() error) *bufferedChannel {
	if size < 1 {
		size = 1
	}
	c := &bufferedChannel{
		id:        NewChannelID(),
		addr:      addr,
		transport: transport,
		send:      send,
		shutdown:  shutdown,
		out:       make(chan string, size),
		done:      make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *bufferedChannel) ID() ChannelID      { return c.id }
func (c *bufferedChannel) RemoteAddr() string { return c.addr }
func (c *bufferedChannel) Transport() string  { return c.transport }

func (c *bufferedChannel) Writable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && len(c.out) < cap(c.out)
}

func (c *bufferedChannel) Write(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errChannelClosed
	}
	select {
	case c.out <- text:
		return nil
	default:
		return errChannelFull
	}
}

// Close stops accepting text. It does not wait for the flush; use Done.
func (c *bufferedChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
	return nil
}

// Done is closed once the writer has flushed and shut the transport down.
func (c *bufferedChannel) Done() <-chan struct{} { return c.done }

func (c *bufferedChannel) writeLoop() {
	defer close(c.done)
	var failed bool
	for text := range c.out {
		if failed {
			continue
		}
		if err := c.send(text); err != nil {
			failed = true
			c.shutdown()
		}
	}
	if !failed {
		c.shutdown()
	}
}
