// Package client is the application-facing wrapper around a todo Source.
//
// It exposes get/add/toggle/update/delete and live subscriptions. Every
// subscription is recorded in the client's own registry so it can be torn
// down by id, and Close tears down whatever is left.
package client

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/livetodo/internal/logger"
	"github.com/mesh-intelligence/livetodo/internal/registry"
	"github.com/mesh-intelligence/livetodo/pkg/types"
)

// RenderFunc receives the full current result set of a subscription.
type RenderFunc func(rows []types.Row)

// TodoRenderFunc receives the full current todo list.
type TodoRenderFunc func(todos []types.Todo)

// Unsubscribe tears down one subscription. Calling it again is a no-op.
type Unsubscribe func(ctx context.Context) error

// Client wraps a Source with a subscription registry.
type Client struct {
	source   types.Source
	registry *registry.Registry
}

// New returns a client over source with an empty registry.
func New(source types.Source) *Client {
	return &Client{
		source:   source,
		registry: registry.New(),
	}
}

// Todos returns the current todo list.
func (c *Client) Todos(ctx context.Context) ([]types.Todo, error) {
	return c.source.Todos(ctx)
}

// Get returns one todo.
func (c *Client) Get(ctx context.Context, id int64) (types.Todo, error) {
	return c.source.Todo(ctx, id)
}

// Add creates a todo.
func (c *Client) Add(ctx context.Context, description string) (types.Todo, error) {
	return c.source.AddTodo(ctx, description)
}

// Toggle flips the completion flag of a todo.
func (c *Client) Toggle(ctx context.Context, id int64) (types.Todo, error) {
	return c.source.ToggleTodo(ctx, id)
}

// Update replaces the description of a todo.
func (c *Client) Update(ctx context.Context, id int64, description string) (types.Todo, error) {
	return c.source.UpdateTodo(ctx, id, description)
}

// Delete removes a todo.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.source.DeleteTodo(ctx, id)
}

// ClearCompleted removes completed todos.
func (c *Client) ClearCompleted(ctx context.Context) (int, error) {
	return c.source.ClearCompleted(ctx)
}

// Watch starts a live query and returns its registry id.
//
// render is called once with the initial rows before Watch returns, then
// once per change with the full current rows. A change racing with
// establishment is held back until the initial render has happened. If the
// source refuses the watch, the error is returned and nothing is registered.
func (c *Client) Watch(ctx context.Context, query string, params []any, render RenderFunc) (string, error) {
	if render == nil {
		return "", fmt.Errorf("watch: nil render callback")
	}

	ready := make(chan struct{})
	w, err := c.source.StartWatch(ctx, query, params, func(rows []types.Row) {
		<-ready
		render(rows)
	})
	if err != nil {
		return "", fmt.Errorf("watch: %w", err)
	}
	defer close(ready)

	// Registered before the initial render so a panicking renderer still
	// leaves the watch reachable from Close.
	id := c.registry.Register(registry.Teardown(w.Stop))
	logger.Debug("subscription registered", "subscription", id)

	render(w.InitialRows)
	return id, nil
}

// Subscribe is Watch for callers that hold a single subscription: it returns
// a closure that unregisters it.
func (c *Client) Subscribe(ctx context.Context, query string, params []any, render RenderFunc) (Unsubscribe, error) {
	id, err := c.Watch(ctx, query, params, render)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		return c.Unsubscribe(ctx, id)
	}, nil
}

// SubscribeTodos subscribes to the whole todo list. Rows that cannot be
// hydrated are logged and the render call for that result set is skipped.
func (c *Client) SubscribeTodos(ctx context.Context, render TodoRenderFunc) (Unsubscribe, error) {
	return c.Subscribe(ctx, types.TodosQuery, nil, func(rows []types.Row) {
		todos, err := types.TodosFromRows(rows)
		if err != nil {
			logger.Error("hydrating todo rows", "error", err)
			return
		}
		render(todos)
	})
}

// Unsubscribe tears down the subscription with the given id and waits for
// it to stop. Unknown ids are ignored.
func (c *Client) Unsubscribe(ctx context.Context, id string) error {
	if err := c.registry.Unregister(ctx, id); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", id, err)
	}
	return nil
}

// Subscriptions returns the number of live subscriptions.
func (c *Client) Subscriptions() int {
	return c.registry.Len()
}

// Close tears down every remaining subscription. The source itself is left
// open; its owner closes it.
func (c *Client) Close(ctx context.Context) error {
	if err := c.registry.UnregisterAll(ctx); err != nil {
		return fmt.Errorf("closing subscriptions: %w", err)
	}
	return nil
}
