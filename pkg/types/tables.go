package types

// TodosTable is the only table owned by the application.
const TodosTable = "todos"

// TodosQuery is the live query behind every todo list view: the whole table,
// oldest first.
const TodosQuery = "SELECT id, description, completed, created_at, updated_at FROM todos ORDER BY id ASC"
