package simcore

import (
	"reflect"
	"sync"
)

// GameObjectRegistered is published after Register succeeded.
type GameObjectRegistered struct {
	ID       uint64
	Name     string
	Category string
}

// GameObjectDeleting is published once when a deferred deletion is requested.
// The object is still live while handlers run.
type GameObjectDeleting struct {
	ID uint64
}

// GameObjectDeleted is published after an object was torn down.
type GameObjectDeleted struct {
	ID       uint64
	Category string
}

// CategoryFreed is published when the last object of a category went away and
// its bit became reusable.
type CategoryFreed struct {
	Name string
	ID   uint32
}

// EventBus dispatches typed notifications to subscribers in subscription order.
// Handlers run synchronously on the publishing goroutine.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]any
}

// Subscribe registers handler for events of type T.
func Subscribe[T any](bus *EventBus, handler func(T)) {
	t := reflect.TypeFor[T]()
	bus.mu.Lock()
	if bus.handlers == nil {
		bus.handlers = make(map[reflect.Type][]any)
	}
	bus.handlers[t] = append(bus.handlers[t], handler)
	bus.mu.Unlock()
}

// Publish sends event to every handler subscribed to T.
func Publish[T any](bus *EventBus, event T) {
	t := reflect.TypeFor[T]()
	bus.mu.RLock()
	hs := bus.handlers[t]
	bus.mu.RUnlock()

	for _, h := range hs {
		h.(func(T))(event)
	}
}
