package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/mesh-intelligence/livetodo/pkg/types"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTodo writes one todo in the selected output mode.
func (a *app) printTodo(w io.Writer, verb string, t types.Todo) error {
	if a.flags.jsonMode {
		return printJSON(w, t)
	}
	box := "[ ]"
	if t.Completed {
		box = "[x]"
	}
	_, err := fmt.Fprintf(w, "%s %s %d %s\n", verb, box, t.ID, t.Description)
	return err
}

// parseID parses a todo id argument.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", types.ErrInvalidID, s)
	}
	return id, nil
}
