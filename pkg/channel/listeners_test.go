package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// stubChannel routes On through a bare handler table.
type stubChannel struct {
	listeners *Listeners
}

func (s *stubChannel) UserID() string                              { return "me" }
func (s *stubChannel) Emit(Event) error                            { return nil }
func (s *stubChannel) On(name EventName, fn Handler) *Subscription { return s.listeners.Add(name, fn) }

func TestListeners_DispatchOrder(t *testing.T) {
	l := NewListeners()
	var order []int
	l.Add(EventNotify, func(Event) { order = append(order, 1) })
	l.Add(EventNotify, func(Event) { order = append(order, 2) })
	l.Add(EventChatMessage, func(Event) { order = append(order, 99) })

	l.Dispatch(Notify{ID: "n"})

	assert.Equal(t, []int{1, 2}, order)
}

func TestSubscription_OffIsIdempotent(t *testing.T) {
	l := NewListeners()
	calls := 0
	sub := l.Add(EventSignal, func(Event) { calls++ })
	other := l.Add(EventSignal, func(Event) {})

	sub.Off()
	sub.Off()

	assert.Equal(t, 1, l.Count(EventSignal))
	l.Dispatch(Signal{})
	assert.Equal(t, 0, calls)

	other.Off()
	assert.Equal(t, 0, l.Total())
}

func TestSubscription_SameHandlerTwice(t *testing.T) {
	l := NewListeners()
	calls := 0
	fn := func(Event) { calls++ }
	first := l.Add(EventNotify, fn)
	l.Add(EventNotify, fn)

	first.Off()
	l.Dispatch(Notify{})

	assert.Equal(t, 1, calls, "removing one registration must leave the other")
}

func TestListeners_PanicIsContained(t *testing.T) {
	l := NewListeners()
	ran := false
	l.Add(EventNotify, func(Event) { panic("boom") })
	l.Add(EventNotify, func(Event) { ran = true })

	assert.NotPanics(t, func() { l.Dispatch(Notify{}) })
	assert.True(t, ran)
}

func TestListeners_OffDuringDispatch(t *testing.T) {
	l := NewListeners()
	var sub *Subscription
	calls := 0
	sub = l.Add(EventNotify, func(Event) {
		calls++
		sub.Off()
	})

	l.Dispatch(Notify{})
	l.Dispatch(Notify{})

	assert.Equal(t, 1, calls)
}

func TestScope_CloseReleasesEverything(t *testing.T) {
	ch := &stubChannel{listeners: NewListeners()}
	scope := NewScope(ch)

	scope.On(EventIncomingCall, func(Event) {})
	scope.On(EventSignal, func(Event) {})
	scope.On(EventHangupCall, func(Event) {})
	assert.Equal(t, 3, scope.Len())
	assert.Equal(t, 3, ch.listeners.Total())

	scope.Close()
	scope.Close()

	assert.Equal(t, 0, scope.Len())
	assert.Equal(t, 0, ch.listeners.Total())
}

func TestScope_OnAfterClose(t *testing.T) {
	ch := &stubChannel{listeners: NewListeners()}
	scope := NewScope(ch)
	scope.Close()

	assert.Nil(t, scope.On(EventNotify, func(Event) {}))
	assert.Equal(t, 0, ch.listeners.Total())
}

func TestScope_RepeatedMountsDoNotAccumulate(t *testing.T) {
	ch := &stubChannel{listeners: NewListeners()}

	for i := 0; i < 5; i++ {
		scope := NewScope(ch)
		scope.On(EventChatMessage, func(Event) {})
		scope.Close()
	}

	assert.Equal(t, 0, ch.listeners.Count(EventChatMessage))
}
