// Package sqlite is the public entry point to the embedded SQLite todo
// store. Programs embedding livetodo create a backend here and hand it to
// client.New or serve it over RPC.
package sqlite

import (
	"github.com/mesh-intelligence/livetodo/internal/sqlite"
	"github.com/mesh-intelligence/livetodo/pkg/types"
)

// NewBackend creates a new SQLite backend. It is not attached; call Attach
// with a Config before use.
//
// Example:
//
//	backend := sqlite.NewBackend()
//	err := backend.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: dir,
//	})
//	defer backend.Detach()
func NewBackend() types.Backend {
	return sqlite.NewBackend()
}
