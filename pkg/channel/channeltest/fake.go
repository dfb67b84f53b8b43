// Package channeltest provides an in-memory channel for tests.
package channeltest

import (
	"sync"

	"github.com/agora-social/agora-cli/pkg/channel"
)

// Fake is a channel.Channel that records emitted events and lets tests
// deliver inbound ones synchronously.
type Fake struct {
	userID    string
	listeners *channel.Listeners

	mu      sync.Mutex
	emitted []channel.Event
	emitErr error
}

// New returns a fake connected as userID.
func New(userID string) *Fake {
	return &Fake{userID: userID, listeners: channel.NewListeners()}
}

func (f *Fake) UserID() string { return f.userID }

func (f *Fake) On(name channel.EventName, fn channel.Handler) *channel.Subscription {
	return f.listeners.Add(name, fn)
}

func (f *Fake) Emit(ev channel.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, ev)
	return nil
}

// FailEmits makes every later Emit return err. Pass nil to restore.
func (f *Fake) FailEmits(err error) {
	f.mu.Lock()
	f.emitErr = err
	f.mu.Unlock()
}

// Deliver dispatches ev to the registered handlers on the calling goroutine.
func (f *Fake) Deliver(ev channel.Event) {
	f.listeners.Dispatch(ev)
}

// Emitted returns a copy of everything emitted so far.
func (f *Fake) Emitted() []channel.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]channel.Event, len(f.emitted))
	copy(out, f.emitted)
	return out
}

// EmittedNamed returns the emitted events with the given name.
func (f *Fake) EmittedNamed(name channel.EventName) []channel.Event {
	var out []channel.Event
	for _, ev := range f.Emitted() {
		if ev.Name() == name {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets the recorded events.
func (f *Fake) Reset() {
	f.mu.Lock()
	f.emitted = nil
	f.mu.Unlock()
}

// ListenerCount returns handlers registered for name.
func (f *Fake) ListenerCount(name channel.EventName) int {
	return f.listeners.Count(name)
}

// ListenerTotal returns handlers registered across all names.
func (f *Fake) ListenerTotal() int {
	return f.listeners.Total()
}
