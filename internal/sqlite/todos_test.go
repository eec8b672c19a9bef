package sqlite

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/livetodo/pkg/types"
)

func TestAddTodo(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	todo, err := b.AddTodo(ctx, "  buy milk ")
	require.NoError(t, err)
	assert.Positive(t, todo.ID)
	assert.Equal(t, "buy milk", todo.Description)
	assert.False(t, todo.Completed)
	assert.False(t, todo.CreatedAt.IsZero())

	got, err := b.Todo(ctx, todo.ID)
	require.NoError(t, err)
	assert.Equal(t, todo, got)
}

func TestAddTodoRejectsInvalidDescription(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	for _, desc := range []string{"", "   ", strings.Repeat("x", 256)} {
		_, err := b.AddTodo(ctx, desc)
		assert.ErrorIs(t, err, types.ErrInvalidDescription)
	}

	todos, err := b.Todos(ctx)
	require.NoError(t, err)
	assert.Empty(t, todos)
}

func TestIDsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	first, err := b.AddTodo(ctx, "one")
	require.NoError(t, err)
	second, err := b.AddTodo(ctx, "two")
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	// A deleted ID is never handed out again.
	require.NoError(t, b.DeleteTodo(ctx, second.ID))
	third, err := b.AddTodo(ctx, "three")
	require.NoError(t, err)
	assert.Greater(t, third.ID, second.ID)
}

func TestTodosOrderedAndNeverNil(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	todos, err := b.Todos(ctx)
	require.NoError(t, err)
	assert.NotNil(t, todos)
	assert.Empty(t, todos)

	for _, d := range []string{"a", "b", "c"} {
		_, err := b.AddTodo(ctx, d)
		require.NoError(t, err)
	}
	todos, err = b.Todos(ctx)
	require.NoError(t, err)
	require.Len(t, todos, 3)
	assert.Equal(t, "a", todos[0].Description)
	assert.Equal(t, "c", todos[2].Description)
}

func TestToggleTodo(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)
	todo, err := b.AddTodo(ctx, "toggle me")
	require.NoError(t, err)

	toggled, err := b.ToggleTodo(ctx, todo.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)

	toggled, err = b.ToggleTodo(ctx, todo.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Completed)
}

func TestUpdateTodo(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)
	todo, err := b.AddTodo(ctx, "draft")
	require.NoError(t, err)

	updated, err := b.UpdateTodo(ctx, todo.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Description)
	assert.Equal(t, todo.ID, updated.ID)

	_, err = b.UpdateTodo(ctx, todo.ID, "")
	assert.ErrorIs(t, err, types.ErrInvalidDescription)
}

func TestDeleteTodo(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)
	todo, err := b.AddTodo(ctx, "delete me")
	require.NoError(t, err)

	require.NoError(t, b.DeleteTodo(ctx, todo.ID))
	_, err = b.Todo(ctx, todo.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, b.DeleteTodo(ctx, todo.ID), types.ErrNotFound)
}

func TestMissingAndInvalidIDs(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	tests := []struct {
		name    string
		id      int64
		wantErr error
	}{
		{"zero", 0, types.ErrInvalidID},
		{"negative", -4, types.ErrInvalidID},
		{"missing", 999, types.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Todo(ctx, tt.id)
			assert.ErrorIs(t, err, tt.wantErr)
			_, err = b.ToggleTodo(ctx, tt.id)
			assert.ErrorIs(t, err, tt.wantErr)
			_, err = b.UpdateTodo(ctx, tt.id, "x")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, b.DeleteTodo(ctx, tt.id), tt.wantErr)
		})
	}
}

func TestClearCompleted(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	keep, err := b.AddTodo(ctx, "keep")
	require.NoError(t, err)
	for _, d := range []string{"done 1", "done 2"} {
		todo, err := b.AddTodo(ctx, d)
		require.NoError(t, err)
		_, err = b.ToggleTodo(ctx, todo.ID)
		require.NoError(t, err)
	}

	n, err := b.ClearCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	todos, err := b.Todos(ctx)
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Equal(t, keep.ID, todos[0].ID)

	n, err = b.ClearCompleted(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
