package ui

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/livetodo/pkg/types"
)

type fakeActions struct {
	mu      sync.Mutex
	calls   []string
	failure error
}

func (f *fakeActions) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.failure
}

func (f *fakeActions) Add(_ context.Context, d string) (types.Todo, error) {
	return types.Todo{}, f.record("add " + d)
}

func (f *fakeActions) Toggle(_ context.Context, id int64) (types.Todo, error) {
	return types.Todo{}, f.record("toggle " + itoa(id))
}

func (f *fakeActions) Delete(_ context.Context, id int64) error {
	return f.record("delete " + itoa(id))
}

func (f *fakeActions) ClearCompleted(context.Context) (int, error) {
	return 0, f.record("clear")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds msg to m. Commands are not run; cursor blinking and the like
// would only slow the tests down.
func press(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

// write feeds msg to m, runs the write command it returns and feeds back the
// error message, if any.
func write(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	require.NotNil(t, cmd)
	if out := cmd(); out != nil {
		next, _ = m.Update(out)
		m = next.(Model)
	}
	return m
}

func loaded(t *testing.T, f *fakeActions) Model {
	t.Helper()
	m := NewModel(context.Background(), f)
	return press(t, m, TodosMsg{
		{ID: 1, Description: "buy milk"},
		{ID: 2, Description: "walk dog", Completed: true},
		{ID: 3, Description: "write tests"},
	})
}

func TestSnapshotReplacesList(t *testing.T) {
	m := NewModel(context.Background(), &fakeActions{})
	assert.Contains(t, m.View(), "loading")

	m = press(t, m, TodosMsg{{ID: 1, Description: "buy milk"}})
	assert.Len(t, m.Todos(), 1)
	assert.Contains(t, m.View(), "buy milk")

	m = press(t, m, TodosMsg{})
	assert.Empty(t, m.Todos())
	assert.Contains(t, m.View(), "nothing to do")
}

func TestNavigationClamps(t *testing.T) {
	m := loaded(t, &fakeActions{})

	m = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.Cursor())

	for i := 0; i < 5; i++ {
		m = press(t, m, runes("j"))
	}
	assert.Equal(t, 2, m.Cursor())

	m = press(t, m, TodosMsg{{ID: 1, Description: "only"}})
	assert.Equal(t, 0, m.Cursor())
}

func TestKeysIssueWrites(t *testing.T) {
	f := &fakeActions{}
	m := loaded(t, f)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = write(t, m, tea.KeyMsg{Type: tea.KeySpace})
	m = write(t, m, runes("d"))
	m = write(t, m, runes("c"))

	assert.Equal(t, []string{"toggle 2", "delete 2", "clear"}, f.calls)
	// The list only changes through snapshots.
	assert.Len(t, m.Todos(), 3)
}

func TestAddFlow(t *testing.T) {
	f := &fakeActions{}
	m := loaded(t, f)

	m = press(t, m, runes("a"))
	m = press(t, m, runes("feed cat"))
	assert.Contains(t, m.View(), "feed cat")

	m = write(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"add feed cat"}, f.calls)

	// Back in list mode: "d" deletes rather than typing.
	m = write(t, m, runes("d"))
	assert.Equal(t, []string{"add feed cat", "delete 1"}, f.calls)
}

func TestAddRejectsBlankDescription(t *testing.T) {
	f := &fakeActions{}
	m := loaded(t, f)

	m = press(t, m, runes("a"))
	m = press(t, m, runes("   "))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Empty(t, f.calls)
	assert.ErrorIs(t, m.Err(), types.ErrInvalidDescription)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	m = write(t, m, runes("c"))
	assert.Equal(t, []string{"clear"}, f.calls)
}

func TestWriteErrorIsShown(t *testing.T) {
	f := &fakeActions{failure: errors.New("backend gone")}
	m := loaded(t, f)

	m = write(t, m, tea.KeyMsg{Type: tea.KeySpace})
	require.Error(t, m.Err())
	assert.Contains(t, m.View(), "backend gone")
}

func TestQuit(t *testing.T) {
	m := loaded(t, &fakeActions{})
	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
