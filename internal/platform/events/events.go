// Package events is a small in-process pub/sub used to decouple domain
// services: patient creation fans out to settings provisioning, issuance
// completion fans out to webhook delivery.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Action identifies what happened to a resource.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionCompleted Action = "completed"
	ActionFailed    Action = "failed"
)

// Event carries the resource type, the action, and an opaque payload owned
// by the publisher.
type Event struct {
	Resource string
	Action   Action
	Payload  any
}

// HandlerFunc processes one event. Handlers run on their own goroutine, off
// the publisher's request path.
type HandlerFunc func(ctx context.Context, ev Event)

// Dispatcher routes published events to subscribed handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]HandlerFunc
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]HandlerFunc),
		logger:   logger.With().Str("component", "events").Logger(),
	}
}

func key(resource string, action Action) string {
	return resource + "/" + string(action)
}

// Subscribe registers fn for events matching resource and action.
func (d *Dispatcher) Subscribe(resource string, action Action, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := key(resource, action)
	d.handlers[k] = append(d.handlers[k], fn)
}

// Publish delivers ev to every matching handler asynchronously. A panicking
// handler is logged and does not affect the others.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) {
	d.mu.RLock()
	fns := d.handlers[key(ev.Resource, ev.Action)]
	d.mu.RUnlock()

	for _, fn := range fns {
		fn := fn
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error().
						Str("resource", ev.Resource).
						Str("action", string(ev.Action)).
						Interface("panic", r).
						Msg("event handler panicked")
				}
			}()
			fn(ctx, ev)
		}()
	}
}

// Wait blocks until all in-flight handlers have returned. Used during
// shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
