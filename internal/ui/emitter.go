// Package ui drives the task client: it binds event handlers for one signed-in
// session, runs each user action as mutation → refresh → render, and routes
// feedback to a transient or a persistent notification channel.
//
// The package is toolkit-agnostic. A Renderer draws; the CLI in cmd/tasks
// turns subcommands into Events.
package ui

import (
	"context"
	"errors"
	"sync"
)

// EventType names a user action.
type EventType string

const (
	EventTaskAdd     EventType = "task:add"
	EventTaskToggle  EventType = "task:toggle"
	EventTaskEdit    EventType = "task:edit"
	EventTaskDelete  EventType = "task:delete"
	EventTaskRefresh EventType = "task:refresh"
	EventAuthLogout  EventType = "auth:logout"
)

// Event is one user action. Fields that do not apply to Type are ignored.
type Event struct {
	Type        EventType
	TaskID      string
	Description string
	// Completed is the target state for task:toggle, or the list filter for
	// task:refresh. Nil means "flip" and "all" respectively.
	Completed *bool
}

// HandlerFunc handles one event.
type HandlerFunc func(ctx context.Context, ev Event) error

type listener struct {
	id uint64
	fn HandlerFunc
}

// Emitter is a synchronous event bus. Handlers run on the caller's
// goroutine, in subscription order.
type Emitter struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[EventType][]listener
}

func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[EventType][]listener)}
}

// On subscribes fn to events of type t.
func (e *Emitter) On(t EventType, fn HandlerFunc) *Subscription {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners[t] = append(e.listeners[t], listener{id: id, fn: fn})
	e.mu.Unlock()

	return &Subscription{eventType: t, release: func() { e.remove(t, id) }}
}

func (e *Emitter) remove(t EventType, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls := e.listeners[t]
	for i, l := range ls {
		if l.id == id {
			e.listeners[t] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(e.listeners[t]) == 0 {
		delete(e.listeners, t)
	}
}

// Emit calls every listener of ev.Type and joins their errors. The listener
// set is copied first, so a handler may release subscriptions (its own
// included) while the event is being dispatched.
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	e.mu.Lock()
	ls := append([]listener(nil), e.listeners[ev.Type]...)
	e.mu.Unlock()

	var errs []error
	for _, l := range ls {
		if err := l.fn(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListenerCount returns the number of live subscriptions for t.
func (e *Emitter) ListenerCount(t EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[t])
}

// Subscription is the handle returned by On.
type Subscription struct {
	eventType EventType
	once      sync.Once
	release   func()
}

// Type is the event type this subscription listens to.
func (s *Subscription) Type() EventType { return s.eventType }

// Release unsubscribes. Calling it more than once is a no-op.
func (s *Subscription) Release() {
	s.once.Do(s.release)
}
