package sqlite

// Database file created inside the configured data directory.
const dbFileName = "todos.db"

// pragmas configure the single connection used by the backend.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// createTodos is the only schema statement. It is safe to run on every
// Attach. AUTOINCREMENT keeps IDs monotonic: a deleted ID is never handed out
// again.
const createTodos = `CREATE TABLE IF NOT EXISTS todos (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    description TEXT NOT NULL CHECK (length(description) BETWEEN 1 AND 255),
    completed INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`
