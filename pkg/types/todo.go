package types

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxDescriptionLen is the maximum length of a todo description in characters.
const MaxDescriptionLen = 255

// Todo is one item on the list. ID is assigned by the store on insert and
// never reused.
type Todo struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NormalizeDescription trims surrounding whitespace, converts the text to
// NFC and checks its length. Returns ErrInvalidDescription when the result is
// empty or longer than MaxDescriptionLen characters.
func NormalizeDescription(s string) (string, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	n := utf8.RuneCountInString(s)
	if n == 0 || n > MaxDescriptionLen {
		return "", ErrInvalidDescription
	}
	return s, nil
}

// Stats returns the number of completed todos and the total.
func Stats(todos []Todo) (done, total int) {
	for _, t := range todos {
		if t.Completed {
			done++
		}
	}
	return done, len(todos)
}
