package types

import "context"

// ChangeFunc receives the full current result set of a watched query.
type ChangeFunc func(rows []Row)

// StopFunc tears a watch down. After it returns without error no further
// ChangeFunc invocations are made for that watch.
type StopFunc func(ctx context.Context) error

// Watch is the result of establishing a live query.
type Watch struct {
	// InitialRows is the result set at establishment time. Never nil.
	InitialRows []Row
	// Stop ends the watch.
	Stop StopFunc
}

// DataSource is a store that notifies observers whenever the result of a
// query changes.
type DataSource interface {
	// StartWatch runs query with params, returns its current rows, and calls
	// onChange with the full new result set after every change to a table
	// the query reads. Calls for one watch never overlap and arrive in change
	// order.
	StartWatch(ctx context.Context, query string, params []any, onChange ChangeFunc) (*Watch, error)
}

// TodoStore provides CRUD operations over the todos table.
type TodoStore interface {
	// Todos returns every todo ordered by ID. Never nil.
	Todos(ctx context.Context) ([]Todo, error)

	// Todo returns a single todo. Returns ErrNotFound if it does not exist.
	Todo(ctx context.Context, id int64) (Todo, error)

	// AddTodo inserts a new, not completed, todo.
	AddTodo(ctx context.Context, description string) (Todo, error)

	// ToggleTodo flips the completion flag of a todo.
	ToggleTodo(ctx context.Context, id int64) (Todo, error)

	// UpdateTodo replaces the description of a todo.
	UpdateTodo(ctx context.Context, id int64, description string) (Todo, error)

	// DeleteTodo removes a todo. Returns ErrNotFound if it does not exist.
	DeleteTodo(ctx context.Context, id int64) error

	// ClearCompleted removes every completed todo and returns how many were
	// removed.
	ClearCompleted(ctx context.Context) (int, error)
}

// Source is everything a todo client needs from its backing store. It is
// implemented in-process by the SQLite backend and remotely by an RPC
// connection.
type Source interface {
	TodoStore
	DataSource
}

// Backend is a Source with an attach/detach lifecycle. Attach opens the
// store described by Config; Detach stops every watch and closes it.
// Operations on a detached backend return ErrDetached.
type Backend interface {
	Source
	Attach(config Config) error
	Detach() error
}
