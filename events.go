package instantsearch

import "sync"

// EventType names a helper notification.
type EventType string

const (
	// EventChange fires after the search parameters changed.
	EventChange EventType = "change"
	// EventResult fires when a search completed successfully.
	EventResult EventType = "result"
	// EventError fires when a search failed.
	EventError EventType = "error"
	// EventSearchQueueEmpty fires when the last pending search completed.
	EventSearchQueueEmpty EventType = "searchQueueEmpty"
)

// Event is passed to listeners. Only the fields relevant to Type are set.
type Event struct {
	Type    EventType
	State   SearchParameters
	Results *ResultSet
	Err     error
}

// Listener receives helper notifications.
type Listener func(Event)

// ListenerID identifies a registered listener for RemoveListener.
type ListenerID uint64

type listener struct {
	id   ListenerID
	fn   Listener
	once bool
}

// emitter dispatches events to persistent and one-shot listeners. Listeners
// run on the emitting goroutine, outside the emitter lock, in registration
// order. A one-shot listener is detached before it runs, so it fires at most
// once even when events are emitted concurrently.
type emitter struct {
	mu        sync.Mutex
	nextID    ListenerID
	listeners map[EventType][]listener
}

func (e *emitter) add(t EventType, fn Listener, once bool) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[EventType][]listener)
	}
	e.nextID++
	e.listeners[t] = append(e.listeners[t], listener{id: e.nextID, fn: fn, once: once})
	return e.nextID
}

func (e *emitter) remove(t EventType, id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls := e.listeners[t]
	for i, l := range ls {
		if l.id == id {
			e.listeners[t] = append(ls[:i:i], ls[i+1:]...)
			return true
		}
	}
	return false
}

func (e *emitter) count(t EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[t])
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	ls := e.listeners[ev.Type]
	toCall := make([]Listener, 0, len(ls))
	kept := ls[:0:0]
	for _, l := range ls {
		toCall = append(toCall, l.fn)
		if !l.once {
			kept = append(kept, l)
		}
	}
	if len(kept) != len(ls) {
		e.listeners[ev.Type] = kept
	}
	e.mu.Unlock()

	for _, fn := range toCall {
		fn(ev)
	}
}
