package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Row is one result row of a watched query, keyed by column name.
type Row map[string]any

// TodoFromRow hydrates a Todo from a row of TodosQuery. It accepts the value
// shapes produced by the SQLite driver (int64, string) and by JSON decoding
// (float64, json.Number, bool).
func TodoFromRow(r Row) (Todo, error) {
	var t Todo
	var err error
	if t.ID, err = asInt64(r["id"]); err != nil {
		return Todo{}, fmt.Errorf("column id: %w", err)
	}
	desc, ok := r["description"].(string)
	if !ok {
		return Todo{}, fmt.Errorf("column description: unexpected %T", r["description"])
	}
	t.Description = desc
	if t.Completed, err = asBool(r["completed"]); err != nil {
		return Todo{}, fmt.Errorf("column completed: %w", err)
	}
	if t.CreatedAt, err = asTime(r["created_at"]); err != nil {
		return Todo{}, fmt.Errorf("column created_at: %w", err)
	}
	if t.UpdatedAt, err = asTime(r["updated_at"]); err != nil {
		return Todo{}, fmt.Errorf("column updated_at: %w", err)
	}
	return t, nil
}

// TodosFromRows hydrates every row. The result is never nil.
func TodosFromRows(rows []Row) ([]Todo, error) {
	todos := make([]Todo, 0, len(rows))
	for i, r := range rows {
		t, err := TodoFromRow(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		todos = append(todos, t)
	}
	return todos, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}

func asBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case nil:
		return false, nil
	default:
		n, err := asInt64(v)
		if err != nil {
			return false, err
		}
		return n != 0, nil
	}
}

// asTime parses RFC 3339 text. Missing columns yield the zero time so that
// narrower projections of the todos table still hydrate.
func asTime(v any) (time.Time, error) {
	switch s := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return s, nil
	case string:
		return time.Parse(time.RFC3339Nano, s)
	default:
		return time.Time{}, fmt.Errorf("unexpected %T", v)
	}
}
