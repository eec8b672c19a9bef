// Package registry maps opaque subscription identifiers to teardown actions.
//
// Callers on the far side of an RPC boundary can only hold serialisable
// identifiers, not live handles, so every live subscription is registered
// here and torn down later by id. Each owning context (a process, or one RPC
// connection) creates its own Registry and calls UnregisterAll when it shuts
// down.
//
// Every teardown action is invoked at most once. Unregistering an unknown or
// already removed id is a silent no-op.
package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/livetodo/internal/metrics"
)

// Teardown stops a subscription. It may block until the underlying source
// has stopped delivering callbacks.
type Teardown func(ctx context.Context) error

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Teardown
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Teardown)}
}

// Register stores teardown under a fresh random identifier and returns it.
func (r *Registry) Register(teardown Teardown) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.entries[id] = teardown
	r.mu.Unlock()

	metrics.SubscriptionsRegistered.Inc()
	metrics.SubscriptionsActive.Inc()
	return id
}

// Unregister removes id and runs its teardown, returning the teardown's
// error. The mapping is removed before the teardown runs, so duplicate or
// concurrent calls for the same id invoke it once. Unknown ids return nil.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	teardown, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return invoke(ctx, teardown)
}

// UnregisterAll removes every mapping and runs each teardown once. Errors
// from individual teardowns are joined; all teardowns run regardless.
func (r *Registry) UnregisterAll(ctx context.Context) error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]Teardown)
	r.mu.Unlock()

	var errs []error
	for _, teardown := range entries {
		if err := invoke(ctx, teardown); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

func invoke(ctx context.Context, teardown Teardown) error {
	metrics.SubscriptionsActive.Dec()
	metrics.SubscriptionsTornDown.Inc()
	if teardown == nil {
		return nil
	}
	return teardown(ctx)
}
