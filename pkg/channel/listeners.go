package channel

import (
	"sync"

	"github.com/agora-social/agora-cli/pkg/logger"
)

// Handler receives one decoded event.
type Handler func(Event)

type listenerEntry struct {
	id uint64
	fn Handler
}

// Listeners is the handler table behind a channel. Handlers for one event
// name run in registration order.
type Listeners struct {
	mu     sync.RWMutex
	nextID uint64
	byName map[EventName][]listenerEntry
}

// NewListeners returns an empty handler table.
func NewListeners() *Listeners {
	return &Listeners{byName: make(map[EventName][]listenerEntry)}
}

// Add registers fn for name. The returned Subscription is the only way to
// remove it.
func (l *Listeners) Add(name EventName, fn Handler) *Subscription {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.byName[name] = append(l.byName[name], listenerEntry{id: id, fn: fn})
	l.mu.Unlock()

	return &Subscription{listeners: l, name: name, id: id}
}

func (l *Listeners) remove(name EventName, id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.byName[name]
	for i, e := range entries {
		if e.id == id {
			l.byName[name] = append(entries[:i:i], entries[i+1:]...)
			if len(l.byName[name]) == 0 {
				delete(l.byName, name)
			}
			return true
		}
	}
	return false
}

// Count returns how many handlers are registered for name.
func (l *Listeners) Count(name EventName) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byName[name])
}

// Total returns how many handlers are registered across all names.
func (l *Listeners) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, entries := range l.byName {
		n += len(entries)
	}
	return n
}

// Dispatch runs every handler registered for ev's name on the calling
// goroutine. A panicking handler is logged and does not stop the others.
func (l *Listeners) Dispatch(ev Event) {
	l.mu.RLock()
	entries := make([]listenerEntry, len(l.byName[ev.Name()]))
	copy(entries, l.byName[ev.Name()])
	l.mu.RUnlock()

	for _, e := range entries {
		runHandler(ev, e.fn)
	}
}

func runHandler(ev Event, fn Handler) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Channel handler panicked", "event", ev.Name(), "panic", r)
		}
	}()
	fn(ev)
}

// Subscription is one registered handler.
type Subscription struct {
	listeners *Listeners
	name      EventName
	id        uint64
	once      sync.Once
}

// Event returns the event name the handler listens to.
func (s *Subscription) Event() EventName {
	return s.name
}

// Off unregisters the handler. Calling it again is a no-op.
func (s *Subscription) Off() {
	s.once.Do(func() {
		s.listeners.remove(s.name, s.id)
	})
}

// Scope collects the subscriptions made during one view lifetime so they
// are released together.
type Scope struct {
	ch Channel

	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// NewScope binds a scope to ch.
func NewScope(ch Channel) *Scope {
	return &Scope{ch: ch}
}

// On registers fn on the scope's channel. Registering on a closed scope does
// nothing and returns nil.
func (s *Scope) On(name EventName, fn Handler) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		logger.Warn("Listener registered on closed scope", "event", name)
		return nil
	}
	sub := s.ch.On(name, fn)
	s.subs = append(s.subs, sub)
	return sub
}

// Len returns the number of live subscriptions held by the scope.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close unregisters every subscription made through the scope.
func (s *Scope) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.closed = true
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Off()
	}
}
