// Package pipeline runs every inbound event through an ordered middleware
// chain before the handler: user resolution, rate limiting, authorization
// and analytics timing. Any stage may short-circuit with an error, in which
// case later stages and the handler never run.
package pipeline

import (
	"context"

	"github.com/nimbus-labs/nimbus-bot/internal/domain"
)

// Context carries per-event state through the chain. It is built once per
// event and never shared between events.
type Context struct {
	Event         domain.Event
	User          *domain.User
	CorrelationID string

	values map[string]any
}

// NewContext builds a pipeline context for one event.
func NewContext(event domain.Event) *Context {
	return &Context{Event: event}
}

// Set stores an arbitrary value for later stages.
func (c *Context) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

// Get returns a value stored by an earlier stage.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Handler terminates the chain for one event.
type Handler func(ctx context.Context, pc *Context) error

// Middleware wraps a handler with one pipeline stage.
type Middleware func(next Handler) Handler

// Chain applies middlewares so the first listed runs first.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
