package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/mesh-intelligence/livetodo/internal/logger"
	"github.com/mesh-intelligence/livetodo/internal/metrics"
	"github.com/mesh-intelligence/livetodo/internal/queue"
	"github.com/mesh-intelligence/livetodo/pkg/types"
)

// liveHub tracks live queries. Its mutex is held both while a watch takes its
// initial snapshot and while a write fans out, so a change is either included
// in the initial rows or delivered as a callback, never lost or doubled.
type liveHub struct {
	mu      sync.Mutex
	next    uint64
	watches map[uint64]*liveWatch
}

type liveWatch struct {
	id       uint64
	query    string
	params   []any
	tables   map[string]bool
	onChange types.ChangeFunc
	deliver  *queue.Serial
}

func newLiveHub() *liveHub {
	return &liveHub{watches: make(map[uint64]*liveWatch)}
}

// StartWatch establishes a live query. Only read-only statements are
// accepted. onChange runs on a dedicated goroutine per watch, once per
// committed change to a table the query reads.
func (b *Backend) StartWatch(ctx context.Context, query string, params []any, onChange types.ChangeFunc) (*types.Watch, error) {
	if onChange == nil {
		return nil, fmt.Errorf("starting watch: nil callback")
	}
	tables, err := watchedTables(query)
	if err != nil {
		return nil, err
	}
	db, err := b.conn()
	if err != nil {
		return nil, err
	}

	h := b.live
	h.mu.Lock()
	defer h.mu.Unlock()

	rows, err := queryRows(ctx, db, query, params)
	if err != nil {
		return nil, fmt.Errorf("starting watch: %w", err)
	}

	h.next++
	w := &liveWatch{
		id:       h.next,
		query:    query,
		params:   params,
		tables:   tables,
		onChange: onChange,
		deliver:  queue.NewSerial(fmt.Sprintf("watch-%d", h.next)),
	}
	h.watches[w.id] = w

	logger.Debug("watch started", "watch", w.id, "tables", strings.Join(sortedKeys(tables), ","))

	return &types.Watch{
		InitialRows: rows,
		Stop: func(ctx context.Context) error {
			return h.stop(ctx, w.id)
		},
	}, nil
}

// Watches returns the number of live queries.
func (b *Backend) Watches() int {
	b.live.mu.Lock()
	defer b.live.mu.Unlock()
	return len(b.live.watches)
}

// stop removes a watch, drops undelivered snapshots and waits for a running
// callback to return. Stopping an unknown watch is a no-op.
func (h *liveHub) stop(ctx context.Context, id uint64) error {
	h.mu.Lock()
	w, ok := h.watches[id]
	delete(h.watches, id)
	h.mu.Unlock()

	if !ok {
		return nil
	}
	w.deliver.Close()
	if err := w.deliver.Wait(ctx); err != nil {
		return err
	}
	logger.Debug("watch stopped", "watch", id)
	return nil
}

// notify re-runs every watch that reads one of tables and queues the new
// result set for delivery.
func (h *liveHub) notify(ctx context.Context, db *sql.DB, tables []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, w := range h.watches {
		if !w.reads(tables) {
			continue
		}
		rows, err := queryRows(ctx, db, w.query, w.params)
		if err != nil {
			logger.Error("re-running watched query", "watch", w.id, "error", err)
			continue
		}
		onChange := w.onChange
		w.deliver.Push(func() {
			onChange(rows)
			metrics.CallbacksDelivered.Inc()
		})
	}
}

// closeAll stops every watch without waiting for running callbacks.
func (h *liveHub) closeAll() {
	h.mu.Lock()
	watches := h.watches
	h.watches = make(map[uint64]*liveWatch)
	h.mu.Unlock()

	for _, w := range watches {
		w.deliver.Close()
	}
}

func (w *liveWatch) reads(tables []string) bool {
	for _, t := range tables {
		if w.tables[t] {
			return true
		}
	}
	return false
}

// queryRows runs query and returns every row keyed by column name. The result
// is never nil.
func queryRows(ctx context.Context, db *sql.DB, query string, params []any) ([]types.Row, error) {
	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	result := []types.Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(types.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}

var tableRef = regexp.MustCompile("(?i)\\b(?:from|join)\\s+[\"`\\[]?([a-z_][a-z0-9_]*)")

// watchedTables validates that query is a single read-only statement and
// returns the lower-cased names of the tables it reads.
func watchedTables(query string) (map[string]bool, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSuffix(q, ";")
	if strings.Contains(q, ";") {
		return nil, types.ErrInvalidQuery
	}
	lower := strings.ToLower(q)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return nil, types.ErrInvalidQuery
	}

	tables := make(map[string]bool)
	for _, m := range tableRef.FindAllStringSubmatch(q, -1) {
		tables[strings.ToLower(m[1])] = true
	}
	if len(tables) == 0 {
		return nil, types.ErrInvalidQuery
	}
	return tables, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
