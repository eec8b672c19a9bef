package sqlite

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mesh-intelligence/livetodo/internal/logger"
	"github.com/mesh-intelligence/livetodo/pkg/types"
)

// todoJSONLRecord is one line of an exported todo list.
type todoJSONLRecord struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ExportJSONL writes every todo to path, one JSON object per line, replacing
// the file atomically. Returns the number of todos written.
func (b *Backend) ExportJSONL(ctx context.Context, path string) (int, error) {
	todos, err := b.Todos(ctx)
	if err != nil {
		return 0, err
	}

	records := make([]json.RawMessage, 0, len(todos))
	for _, t := range todos {
		data, err := json.Marshal(todoJSONLRecord{
			ID:          t.ID,
			Description: t.Description,
			Completed:   t.Completed,
			CreatedAt:   t.CreatedAt.Format(time.RFC3339Nano),
			UpdatedAt:   t.UpdatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return 0, fmt.Errorf("marshaling todo %d: %w", t.ID, err)
		}
		records = append(records, data)
	}

	if err := writeJSONL(path, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// ImportJSONL loads todos from a file written by ExportJSONL. Records keep
// their IDs; an existing todo with the same ID is replaced. Malformed lines
// and records with an invalid description are skipped. Returns the number of
// todos imported.
func (b *Backend) ImportJSONL(ctx context.Context, path string) (int, error) {
	records, err := readJSONL(path)
	if err != nil {
		return 0, err
	}

	imported := 0
	err = b.write(ctx, todosTables, func(tx *sql.Tx) (bool, error) {
		for _, raw := range records {
			var rec todoJSONLRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				logger.Warn("skipping malformed todo record", "path", path, "error", err)
				continue
			}
			desc, err := types.NormalizeDescription(rec.Description)
			if err != nil || rec.ID <= 0 {
				logger.Warn("skipping invalid todo record", "path", path, "id", rec.ID)
				continue
			}
			created := rec.CreatedAt
			if created == "" {
				created = now()
			}
			updated := rec.UpdatedAt
			if updated == "" {
				updated = created
			}
			_, err = tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO todos (id, description, completed, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
				rec.ID, desc, rec.Completed, created, updated,
			)
			if err != nil {
				return false, fmt.Errorf("importing todo %d: %w", rec.ID, err)
			}
			imported++
		}
		return imported > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage. Malformed lines are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail(fmt.Errorf("writing record: %w", err))
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail(fmt.Errorf("writing newline: %w", err))
		}
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flushing buffer: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
