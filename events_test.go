package instantsearch

import (
	"sync"
	"testing"
)

func TestEmitter_OnAndOnce(t *testing.T) {
	var e emitter
	var persistent, once int

	e.add(EventResult, func(Event) { persistent++ }, false)
	e.add(EventResult, func(Event) { once++ }, true)

	e.emit(Event{Type: EventResult})
	e.emit(Event{Type: EventResult})
	e.emit(Event{Type: EventError})

	if persistent != 2 {
		t.Errorf("Expected persistent listener called twice, got %d", persistent)
	}
	if once != 1 {
		t.Errorf("Expected one-shot listener called once, got %d", once)
	}
	if n := e.count(EventResult); n != 1 {
		t.Errorf("Expected one listener left, got %d", n)
	}
}

func TestEmitter_Remove(t *testing.T) {
	var e emitter
	called := false
	id := e.add(EventChange, func(Event) { called = true }, false)

	if !e.remove(EventChange, id) {
		t.Fatal("Expected listener to be removed")
	}
	if e.remove(EventChange, id) {
		t.Error("Expected second removal to report false")
	}

	e.emit(Event{Type: EventChange})
	if called {
		t.Error("Expected removed listener not to run")
	}
}

func TestEmitter_OrderAndReentrancy(t *testing.T) {
	var e emitter
	var order []int

	e.add(EventChange, func(Event) {
		order = append(order, 1)
		// listeners may register others while running
		e.add(EventChange, func(Event) { order = append(order, 3) }, true)
	}, true)
	e.add(EventChange, func(Event) { order = append(order, 2) }, true)

	e.emit(Event{Type: EventChange})
	e.emit(Event{Type: EventChange})

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("Expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, order)
		}
	}
}

func TestEmitter_OnceUnderConcurrency(t *testing.T) {
	var e emitter
	var mu sync.Mutex
	calls := 0
	e.add(EventSearchQueueEmpty, func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, true)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.emit(Event{Type: EventSearchQueueEmpty})
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("Expected one call, got %d", calls)
	}
}
