package session

import "sync"

// Event names a broadcast signal. Events carry no payload beyond "it
// happened now".
type Event string

const (
	// EventLoggedIn fires when a session becomes authenticated, through
	// interactive login or renewal.
	EventLoggedIn Event = "logged_in"

	// EventRenewed fires once per successful renewal.
	EventRenewed Event = "renewed"
)

type listener struct {
	fn   func()
	once bool
}

// Broadcaster keeps an explicit observer list per event. Registration
// returns a disposer; disposing twice is harmless.
type Broadcaster struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[Event]map[uint64]listener
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[Event]map[uint64]listener)}
}

// Subscribe registers fn for every future emission of event.
func (b *Broadcaster) Subscribe(event Event, fn func()) (dispose func()) {
	return b.add(event, listener{fn: fn})
}

// Once registers fn for the next emission of event only.
func (b *Broadcaster) Once(event Event, fn func()) (dispose func()) {
	return b.add(event, listener{fn: fn, once: true})
}

// Emit invokes every listener registered for event, synchronously, in the
// caller's goroutine.
func (b *Broadcaster) Emit(event Event) {
	for _, fn := range b.take(event) {
		fn()
	}
}

// Len returns the number of listeners registered for event.
func (b *Broadcaster) Len(event Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[event])
}

// take snapshots the listeners of event and drops the one-shot ones.
// Listeners registered after take returns do not see this emission.
func (b *Broadcaster) take(event Event) []func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	registered := b.listeners[event]
	fns := make([]func(), 0, len(registered))
	for id, l := range registered {
		fns = append(fns, l.fn)
		if l.once {
			delete(registered, id)
		}
	}
	return fns
}

func (b *Broadcaster) add(event Event, l listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.listeners[event] == nil {
		b.listeners[event] = make(map[uint64]listener)
	}
	b.listeners[event][id] = l

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners[event], id)
	}
}
