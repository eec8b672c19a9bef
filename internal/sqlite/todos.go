package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/livetodo/pkg/types"
)

var todosTables = []string{types.TodosTable}

const selectTodo = "SELECT id, description, completed, created_at, updated_at FROM todos WHERE id = ?"

// Todos returns every todo ordered by ID. The result is never nil.
func (b *Backend) Todos(ctx context.Context) ([]types.Todo, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, types.TodosQuery)
	if err != nil {
		return nil, fmt.Errorf("listing todos: %w", err)
	}
	defer rows.Close()

	todos := []types.Todo{}
	for rows.Next() {
		t, err := hydrateTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating todo: %w", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating todos: %w", err)
	}
	return todos, nil
}

// Todo returns the todo with the given ID.
func (b *Backend) Todo(ctx context.Context, id int64) (types.Todo, error) {
	if id <= 0 {
		return types.Todo{}, types.ErrInvalidID
	}
	db, err := b.conn()
	if err != nil {
		return types.Todo{}, err
	}
	return getTodo(ctx, db, id)
}

// AddTodo inserts a new todo and returns it with its assigned ID.
func (b *Backend) AddTodo(ctx context.Context, description string) (types.Todo, error) {
	desc, err := types.NormalizeDescription(description)
	if err != nil {
		return types.Todo{}, err
	}

	var todo types.Todo
	err = b.write(ctx, todosTables, func(tx *sql.Tx) (bool, error) {
		ts := now()
		res, err := tx.ExecContext(ctx,
			"INSERT INTO todos (description, completed, created_at, updated_at) VALUES (?, 0, ?, ?)",
			desc, ts, ts,
		)
		if err != nil {
			return false, fmt.Errorf("inserting todo: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("reading todo ID: %w", err)
		}
		todo, err = getTodo(ctx, tx, id)
		return true, err
	})
	if err != nil {
		return types.Todo{}, err
	}
	return todo, nil
}

// ToggleTodo flips the completion flag of a todo and returns the result.
func (b *Backend) ToggleTodo(ctx context.Context, id int64) (types.Todo, error) {
	if id <= 0 {
		return types.Todo{}, types.ErrInvalidID
	}

	var todo types.Todo
	err := b.write(ctx, todosTables, func(tx *sql.Tx) (bool, error) {
		res, err := tx.ExecContext(ctx,
			"UPDATE todos SET completed = NOT completed, updated_at = ? WHERE id = ?",
			now(), id,
		)
		if err != nil {
			return false, fmt.Errorf("toggling todo %d: %w", id, err)
		}
		if err := requireAffected(res); err != nil {
			return false, err
		}
		todo, err = getTodo(ctx, tx, id)
		return true, err
	})
	if err != nil {
		return types.Todo{}, err
	}
	return todo, nil
}

// UpdateTodo replaces the description of a todo and returns the result.
func (b *Backend) UpdateTodo(ctx context.Context, id int64, description string) (types.Todo, error) {
	if id <= 0 {
		return types.Todo{}, types.ErrInvalidID
	}
	desc, err := types.NormalizeDescription(description)
	if err != nil {
		return types.Todo{}, err
	}

	var todo types.Todo
	err = b.write(ctx, todosTables, func(tx *sql.Tx) (bool, error) {
		res, err := tx.ExecContext(ctx,
			"UPDATE todos SET description = ?, updated_at = ? WHERE id = ?",
			desc, now(), id,
		)
		if err != nil {
			return false, fmt.Errorf("updating todo %d: %w", id, err)
		}
		if err := requireAffected(res); err != nil {
			return false, err
		}
		todo, err = getTodo(ctx, tx, id)
		return true, err
	})
	if err != nil {
		return types.Todo{}, err
	}
	return todo, nil
}

// DeleteTodo removes a todo. Returns ErrNotFound if it does not exist.
func (b *Backend) DeleteTodo(ctx context.Context, id int64) error {
	if id <= 0 {
		return types.ErrInvalidID
	}

	return b.write(ctx, todosTables, func(tx *sql.Tx) (bool, error) {
		res, err := tx.ExecContext(ctx, "DELETE FROM todos WHERE id = ?", id)
		if err != nil {
			return false, fmt.Errorf("deleting todo %d: %w", id, err)
		}
		if err := requireAffected(res); err != nil {
			return false, err
		}
		return true, nil
	})
}

// ClearCompleted removes every completed todo. Watchers are only notified
// when something was removed.
func (b *Backend) ClearCompleted(ctx context.Context) (int, error) {
	var n int64
	err := b.write(ctx, todosTables, func(tx *sql.Tx) (bool, error) {
		res, err := tx.ExecContext(ctx, "DELETE FROM todos WHERE completed = 1")
		if err != nil {
			return false, fmt.Errorf("clearing completed todos: %w", err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("counting cleared todos: %w", err)
		}
		return n > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTodo(ctx context.Context, q queryer, id int64) (types.Todo, error) {
	t, err := hydrateTodo(q.QueryRowContext(ctx, selectTodo, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Todo{}, types.ErrNotFound
		}
		return types.Todo{}, fmt.Errorf("getting todo %d: %w", id, err)
	}
	return t, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("counting affected rows: %w", err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// hydrateTodo converts one row of the todo column set into a types.Todo.
func hydrateTodo(s scanner) (types.Todo, error) {
	var t types.Todo
	var createdAt, updatedAt string
	if err := s.Scan(&t.ID, &t.Description, &t.Completed, &createdAt, &updatedAt); err != nil {
		return types.Todo{}, err
	}
	var err error
	t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return types.Todo{}, fmt.Errorf("parsing created_at: %w", err)
	}
	t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return types.Todo{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return t, nil
}
