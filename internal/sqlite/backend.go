// Package sqlite implements the embedded todo store on top of SQLite.
//
// The Backend owns one database file in the configured data directory and
// serves both plain CRUD operations and live queries: every committed write
// re-runs the watched queries that read the touched table and pushes the full
// new result set to each watcher.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/livetodo/internal/logger"
	"github.com/mesh-intelligence/livetodo/pkg/types"
)

// Compile-time interface check: Backend must implement Source.
var _ types.Source = (*Backend)(nil)

// Backend implements types.Source with SQLite as the storage engine.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	path     string

	// writeMu serialises write transactions together with their change
	// notification, so watchers observe changes in commit order.
	writeMu sync.Mutex
	live    *liveHub
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{
		live: newLiveHub(),
	}
}

// Attach opens (or creates) the database in config.DataDir and runs the
// schema statement. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// SQLite has one writer; a single connection also keeps the pragmas
	// below in effect for every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	if _, err := db.Exec(createTodos); err != nil {
		db.Close()
		return fmt.Errorf("creating schema: %w", err)
	}

	b.db = db
	b.config = config
	b.path = dbPath
	b.attached = true

	logger.Debug("backend attached", "path", dbPath)
	return nil
}

// Detach stops every live watch and closes the database. After Detach all
// operations return ErrDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	b.live.closeAll()

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return fmt.Errorf("closing database: %w", err)
		}
		b.db = nil
	}

	b.attached = false
	logger.Debug("backend detached", "path", b.path)
	return nil
}

// Path returns the database file path of an attached backend.
func (b *Backend) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

// conn returns the open database or ErrDetached.
func (b *Backend) conn() (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrDetached
	}
	return b.db, nil
}

// Ping checks that the backend is attached and the database answers.
func (b *Backend) Ping(ctx context.Context) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// write runs fn in a transaction. When fn reports a change and the commit
// succeeds, watchers of the given tables are notified before write returns.
func (b *Backend) write(ctx context.Context, tables []string, fn func(tx *sql.Tx) (bool, error)) error {
	db, err := b.conn()
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	changed, err := fn(tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	if changed {
		// The write is durable; do not let a cancelled caller context stop
		// watchers from seeing it.
		b.live.notify(context.WithoutCancel(ctx), db, tables)
	}
	return nil
}

// now returns the timestamp stored in created_at/updated_at.
func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
