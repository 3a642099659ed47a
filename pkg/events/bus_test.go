package events

import (
	"sync"
	"testing"

	"github.com/crystal-mush/kmud/pkg/gamedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects the events it receives.
type recorder struct {
	mu     sync.Mutex
	got    []Event
	closed bool
}

func (r *recorder) Receive(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, ev)
}

func (r *recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.got))
	for i, ev := range r.got {
		out[i] = ev.Type
	}
	return out
}

func TestBusAccountSubscriber(t *testing.T) {
	bus := NewBus()
	edwin, other := &recorder{}, &recorder{}
	bus.Subscribe(1, edwin)
	bus.Subscribe(2, other)

	bus.Emit(Event{Type: EvCharacter, Account: 1, Data: map[string]any{"created": "Harry"}})

	require.Len(t, edwin.got, 1)
	assert.Equal(t, "Harry", edwin.got[0].Data["created"])
	assert.Empty(t, other.got)
}

func TestBusGlobalSubscriber(t *testing.T) {
	bus := NewBus()
	global := &recorder{}
	bus.SubscribeGlobal(global)

	sess := gamedb.NewAnonymousSession()
	bus.Emit(Event{Type: EvConnect, Session: sess})
	bus.Emit(Event{Type: EvLogin, Account: 4, Session: sess})

	assert.Equal(t, []EventType{EvConnect, EvLogin}, global.types())
	assert.Same(t, sess, global.got[0].Session)
}

func TestBusAccountZeroOnlyGlobal(t *testing.T) {
	bus := NewBus()
	sub := &recorder{}
	bus.Subscribe(0, sub)

	bus.Emit(Event{Type: EvConnect})
	assert.Empty(t, sub.types(), "account 0 events only reach global subscribers")
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	first, second := &recorder{}, &recorder{}
	bus.Subscribe(1, first)
	bus.Subscribe(1, second)

	bus.Unsubscribe(1, first)
	bus.Emit(Event{Type: EvPuppet, Account: 1})
	assert.Empty(t, first.types())
	assert.Equal(t, []EventType{EvPuppet}, second.types())

	bus.Unsubscribe(1, second)
	bus.Unsubscribe(1, second)
	bus.Emit(Event{Type: EvPuppet, Account: 1})
	assert.Len(t, second.types(), 1)
}

func TestBusClosedSubscriberSkipped(t *testing.T) {
	bus := NewBus()
	sub := &recorder{closed: true}
	bus.Subscribe(1, sub)
	bus.SubscribeGlobal(sub)

	bus.Emit(Event{Type: EvLogin, Account: 1})
	assert.Empty(t, sub.types())
}

func TestBusSubscribeDuringEmit(t *testing.T) {
	bus := NewBus()
	late := &recorder{}
	bus.SubscribeGlobal(SubscriberFunc(func(ev Event) {
		if ev.Type == EvLogin {
			bus.Subscribe(ev.Account, late)
		}
	}))

	bus.Emit(Event{Type: EvLogin, Account: 3})
	assert.Empty(t, late.types(), "a subscriber added mid-emit misses that event")

	bus.Emit(Event{Type: EvCharacter, Account: 3})
	assert.Equal(t, []EventType{EvCharacter}, late.types())
}

func TestBusNilIsNoop(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Emit(Event{Type: EvConnect}) })
}

func TestSessionName(t *testing.T) {
	sess := gamedb.NewAnonymousSession()
	assert.Empty(t, Event{Session: sess}.SessionName())
	assert.Empty(t, Event{}.SessionName())

	sess.Account = &gamedb.Account{ID: 3, Login: "edwin"}
	assert.Equal(t, "edwin", Event{Session: sess}.SessionName())

	sess.Character = &gamedb.Character{ID: 9, Name: "Harry", OwnerID: 3}
	assert.Equal(t, "Harry", Event{Session: sess}.SessionName())
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		typ  EventType
		want string
	}{
		{EvConnect, "connect"},
		{EvDisconnect, "disconnect"},
		{EvLogin, "login"},
		{EvPuppet, "puppet"},
		{EvAccount, "account"},
		{EvCharacter, "character"},
		{EventType(999), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.typ.String())
	}
}
