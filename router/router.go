package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/freundallein/sqstransport/chassis/protocol"
)

// ErrNoHandler is reported when no handler is registered for a pattern.
var ErrNoHandler = errors.New("NO_EVENT_HANDLER")

// Handler processes one envelope payload. The returned value is adapted by
// response.Adapt: a single value, a channel of values or a *response.Stream.
type Handler func(ctx context.Context, data json.RawMessage) (interface{}, error)

type route struct {
	pattern protocol.Pattern
	handler Handler
}

// Registry maps canonical pattern keys to handlers.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]route
}

// NewRegistry ...
func NewRegistry() *Registry {
	return &Registry{routes: map[string]route{}}
}

// Register binds a handler to a pattern, replacing any previous binding.
func (r *Registry) Register(pattern protocol.Pattern, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[pattern.Key()] = route{pattern: pattern, handler: handler}
}

// Handle registers a handler for a plain string pattern.
func (r *Registry) Handle(pattern string, handler Handler) {
	r.Register(protocol.StringPattern(pattern), handler)
}

// Lookup ...
func (r *Registry) Lookup(key string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[key]
	return rt.handler, ok
}

// Route resolves the handler for an envelope or returns ErrNoHandler.
func (r *Registry) Route(envelope *protocol.Envelope) (Handler, error) {
	handler, ok := r.Lookup(envelope.Pattern.Key())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, envelope.Pattern.Key())
	}
	return handler, nil
}

// Patterns lists registered patterns ordered by key.
func (r *Registry) Patterns() []protocol.Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	patterns := make([]protocol.Pattern, 0, len(r.routes))
	for _, rt := range r.routes {
		patterns = append(patterns, rt.pattern)
	}
	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Key() < patterns[j].Key()
	})
	return patterns
}

// Len ...
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}
