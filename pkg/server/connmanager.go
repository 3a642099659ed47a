package server

import (
	"log"
	"sync"
	"time"

	"github.com/crystal-mush/kmud/pkg/command"
	"github.com/crystal-mush/kmud/pkg/gamedb"
	"golang.org/x/time/rate"
)

// ConnContext ties a channel to its session and interpreter.
type ConnContext struct {
	Channel  Channel
	Session  *gamedb.Session
	Interp   *command.Interpreter
	Limiter  *rate.Limiter
	ConnTime time.Time

	// mu guards the session state and everything below. The connection's own
	// goroutine holds it while its interpreter runs; readers on other
	// goroutines take it to snapshot the session.
	mu      sync.Mutex
	notices []string
	feed    *accountFeed
}

// ID returns the channel id.
func (cc *ConnContext) ID() ChannelID { return cc.Channel.ID() }

type outboundEntry struct {
	id     ChannelID
	text   string
	queued time.Time
}

type closeEntry struct {
	id     ChannelID
	queued time.Time
}

// DrainStats reports what one or more DrainOnce calls did.
type DrainStats struct {
	Delivered int // Entries written to a channel
	Failed    int // Entries whose write failed (discarded)
	Dropped   int // Entries discarded without a write
	Closed    int // Channels closed
	Forced    int // Closes that gave up waiting for queued output
}

// Idle reports whether nothing happened.
func (s DrainStats) Idle() bool {
	return s.Delivered+s.Failed+s.Dropped+s.Closed == 0
}

func (s *DrainStats) add(o DrainStats) {
	s.Delivered += o.Delivered
	s.Failed += o.Failed
	s.Dropped += o.Dropped
	s.Closed += o.Closed
	s.Forced += o.Forced
}

// ConnManager maps channels to their contexts and owns the outbound and
// close queues. One mutex guards the map and both queues; channel writes
// happen after it is released.
type ConnManager struct {
	mu     sync.Mutex
	conns  map[ChannelID]*ConnContext
	out    []outboundEntry
	closes []closeEntry

	closeGrace time.Duration
	now        func() time.Time
}

// NewConnManager creates a manager. A queued close waits up to closeGrace
// for the channel's pending output before it is forced.
func NewConnManager(closeGrace time.Duration) *ConnManager {
	return &ConnManager{
		conns:      make(map[ChannelID]*ConnContext),
		closeGrace: closeGrace,
		now:        time.Now,
	}
}

// Register adds a channel with its session and interpreter.
func (cm *ConnManager) Register(ch Channel, sess *gamedb.Session, interp *command.Interpreter) *ConnContext {
	cc := &ConnContext{
		Channel:  ch,
		Session:  sess,
		Interp:   interp,
		ConnTime: cm.now(),
	}
	cm.mu.Lock()
	cm.conns[ch.ID()] = cc
	cm.mu.Unlock()
	return cc
}

// Unregister removes a channel and discards anything still queued for it.
func (cm *ConnManager) Unregister(id ChannelID) (*ConnContext, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cc, ok := cm.conns[id]
	if !ok {
		return nil, false
	}
	delete(cm.conns, id)
	cm.purgeLocked(id)
	cm.closes = removeClose(cm.closes, id)
	return cc, true
}

// Lookup returns the context of a channel.
func (cm *ConnManager) Lookup(id ChannelID) (*ConnContext, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cc, ok := cm.conns[id]
	return cc, ok
}

// LookupSession returns the context holding sess.
func (cm *ConnManager) LookupSession(sess *gamedb.Session) (*ConnContext, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, cc := range cm.conns {
		if cc.Session == sess {
			return cc, true
		}
	}
	return nil, false
}

// EnqueueOutbound queues text for delivery to a channel.
func (cm *ConnManager) EnqueueOutbound(id ChannelID, text string) {
	cm.mu.Lock()
	cm.out = append(cm.out, outboundEntry{id: id, text: text, queued: cm.now()})
	cm.mu.Unlock()
}

// EnqueueClose queues a close request. Repeated requests collapse.
func (cm *ConnManager) EnqueueClose(id ChannelID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, c := range cm.closes {
		if c.id == id {
			return
		}
	}
	cm.closes = append(cm.closes, closeEntry{id: id, queued: cm.now()})
}

// Broadcast queues text for every registered channel.
func (cm *ConnManager) Broadcast(text string) {
	cm.BroadcastExcept("", text)
}

// BroadcastExcept queues text for every registered channel but one.
func (cm *ConnManager) BroadcastExcept(except ChannelID, text string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	now := cm.now()
	for id := range cm.conns {
		if id != except {
			cm.out = append(cm.out, outboundEntry{id: id, text: text, queued: now})
		}
	}
}

// DrainOnce performs at most one delivery and at most one close.
//
// Delivery takes the oldest entry whose channel is writable and has no
// older entry still queued, so each channel sees its messages in order
// and a blocked channel does not hold up the others. Entries for channels
// that are no longer registered are dropped.
//
// A close runs once its channel has no queued output. If the close has
// waited longer than the grace period it runs anyway and the channel's
// remaining output is dropped.
func (cm *ConnManager) DrainOnce() DrainStats {
	var (
		st        DrainStats
		deliverTo Channel
		text      string
		closing   Channel
	)

	cm.mu.Lock()
	blocked := make(map[ChannelID]bool)
	for i := 0; i < len(cm.out); {
		e := cm.out[i]
		cc, ok := cm.conns[e.id]
		if !ok {
			cm.out = append(cm.out[:i], cm.out[i+1:]...)
			st.Dropped++
			continue
		}
		if blocked[e.id] {
			i++
			continue
		}
		if !cc.Channel.Writable() {
			blocked[e.id] = true
			i++
			continue
		}
		cm.out = append(cm.out[:i], cm.out[i+1:]...)
		deliverTo, text = cc.Channel, e.text
		break
	}

	now := cm.now()
	for i := 0; i < len(cm.closes); i++ {
		c := cm.closes[i]
		cc, ok := cm.conns[c.id]
		if !ok {
			cm.closes = append(cm.closes[:i], cm.closes[i+1:]...)
			i--
			continue
		}
		pending := cm.pendingLocked(c.id)
		if pending > 0 && now.Sub(c.queued) < cm.closeGrace {
			continue
		}
		if pending > 0 {
			cm.purgeLocked(c.id)
			st.Dropped += pending
			st.Forced++
		}
		cm.closes = append(cm.closes[:i], cm.closes[i+1:]...)
		closing = cc.Channel
		break
	}
	cm.mu.Unlock()

	if deliverTo != nil {
		if err := deliverTo.Write(text); err != nil {
			log.Printf("[%s] write failed, message discarded: %v", deliverTo.ID(), err)
			st.Failed++
		} else {
			st.Delivered++
		}
	}
	if closing != nil {
		if err := closing.Close(); err != nil {
			log.Printf("[%s] close: %v", closing.ID(), err)
		}
		st.Closed++
	}
	return st
}

// QueueDepth returns the lengths of the outbound and close queues.
func (cm *ConnManager) QueueDepth() (outbound, closes int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.out), len(cm.closes)
}

// Count returns the number of registered channels.
func (cm *ConnManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.conns)
}

// Contexts returns a snapshot of all registered contexts.
func (cm *ConnManager) Contexts() []*ConnContext {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	out := make([]*ConnContext, 0, len(cm.conns))
	for _, cc := range cm.conns {
		out = append(out, cc)
	}
	return out
}

func (cm *ConnManager) pendingLocked(id ChannelID) int {
	n := 0
	for _, e := range cm.out {
		if e.id == id {
			n++
		}
	}
	return n
}

func (cm *ConnManager) purgeLocked(id ChannelID) {
	kept := cm.out[:0]
	for _, e := range cm.out {
		if e.id != id {
			kept = append(kept, e)
		}
	}
	cm.out = kept
}

func removeClose(closes []closeEntry, id ChannelID) []closeEntry {
	kept := closes[:0]
	for _, c := range closes {
		if c.id != id {
			kept = append(kept, c)
		}
	}
	return kept
}
