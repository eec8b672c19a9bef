// Package ui is the interactive terminal front end. The list shown is only
// ever replaced by subscription callbacks; key presses issue writes and wait
// for the resulting change to come back.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mesh-intelligence/livetodo/internal/client"
	"github.com/mesh-intelligence/livetodo/pkg/types"
)

// Actions are the writes the UI can issue. *client.Client implements it.
type Actions interface {
	Add(ctx context.Context, description string) (types.Todo, error)
	Toggle(ctx context.Context, id int64) (types.Todo, error)
	Delete(ctx context.Context, id int64) error
	ClearCompleted(ctx context.Context) (int, error)
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle    = lipgloss.NewStyle().Faint(true)
	doneStyle     = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	selectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	Delete key.Binding
	Add    key.Binding
	Clear  key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Toggle: key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space", "toggle")),
	Delete: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
	Add:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add")),
	Clear:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear done")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// TodosMsg carries a subscription snapshot into the program.
type TodosMsg []types.Todo

// errMsg reports a failed write.
type errMsg struct{ err error }

// Model is the bubbletea model of the todo list.
type Model struct {
	ctx     context.Context
	actions Actions

	todos  []types.Todo
	loaded bool
	cursor int

	adding bool
	input  textinput.Model

	err error
}

// NewModel returns a model that issues writes through actions.
func NewModel(ctx context.Context, actions Actions) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "What needs doing?"
	ti.CharLimit = types.MaxDescriptionLen

	return Model{
		ctx:     ctx,
		actions: actions,
		input:   ti,
	}
}

// Todos returns the snapshot the model is showing.
func (m Model) Todos() []types.Todo { return m.todos }

// Cursor returns the selected row.
func (m Model) Cursor() int { return m.cursor }

// Err returns the last write error, if any.
func (m Model) Err() error { return m.err }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case TodosMsg:
		m.todos = msg
		m.loaded = true
		m.clampCursor()
		return m, nil
	case errMsg:
		m.err = msg.err
		return m, nil
	case tea.KeyMsg:
		if m.adding {
			return m.updateAdding(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m Model) updateAdding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		desc := m.input.Value()
		if _, err := types.NormalizeDescription(desc); err != nil {
			m.err = err
			return m, nil
		}
		m.adding = false
		m.input.Reset()
		m.input.Blur()
		m.err = nil
		return m, m.run(func(ctx context.Context) error {
			_, err := m.actions.Add(ctx, desc)
			return err
		})
	case tea.KeyEsc:
		m.adding = false
		m.input.Reset()
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.todos)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Toggle):
		if t, ok := m.selected(); ok {
			return m, m.run(func(ctx context.Context) error {
				_, err := m.actions.Toggle(ctx, t.ID)
				return err
			})
		}
	case key.Matches(msg, keys.Delete):
		if t, ok := m.selected(); ok {
			return m, m.run(func(ctx context.Context) error {
				return m.actions.Delete(ctx, t.ID)
			})
		}
	case key.Matches(msg, keys.Clear):
		return m, m.run(func(ctx context.Context) error {
			_, err := m.actions.ClearCompleted(ctx)
			return err
		})
	case key.Matches(msg, keys.Add):
		m.adding = true
		m.err = nil
		return m, m.input.Focus()
	}
	return m, nil
}

// run turns a write into a command. Success produces no message; the change
// arrives through the subscription.
func (m Model) run(write func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		if err := write(ctx); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m Model) selected() (types.Todo, bool) {
	if m.cursor < 0 || m.cursor >= len(m.todos) {
		return types.Todo{}, false
	}
	return m.todos[m.cursor], true
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.todos) {
		m.cursor = len(m.todos) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	done, total := types.Stats(m.todos)
	fmt.Fprintf(&b, "%s   %s %d  %s %d\n\n",
		titleStyle.Render("Todos"),
		successStyle.Render("✔"), done,
		pendingStyle.Render("•"), total-done)

	switch {
	case !m.loaded:
		b.WriteString(mutedStyle.Render("  loading…") + "\n")
	case len(m.todos) == 0:
		b.WriteString(mutedStyle.Render("  nothing to do") + "\n")
	}
	for i, t := range m.todos {
		prefix := "  "
		if i == m.cursor {
			prefix = selectedStyle.Render(">") + " "
		}
		box, desc := mutedStyle.Render("☐"), t.Description
		if t.Completed {
			box, desc = successStyle.Render("☑"), doneStyle.Render(desc)
		}
		fmt.Fprintf(&b, "%s%s %s\n", prefix, box, desc)
	}

	if m.adding {
		b.WriteString("\n" + m.input.View() + "\n")
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("✖ "+m.err.Error()) + "\n")
	}

	b.WriteString("\n" + mutedStyle.Render(helpLine()) + "\n")
	return b.String()
}

func helpLine() string {
	bindings := []key.Binding{keys.Up, keys.Down, keys.Toggle, keys.Add, keys.Delete, keys.Clear, keys.Quit}
	parts := make([]string, 0, len(bindings))
	for _, k := range bindings {
		h := k.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

// Options configures Run.
type Options struct {
	Input     io.Reader
	Output    io.Writer
	AltScreen bool
}

// Run subscribes to the todo list through c and runs the program until the
// user quits or ctx ends. The subscription is torn down on return.
func Run(ctx context.Context, c *client.Client, opts Options) error {
	popts := []tea.ProgramOption{tea.WithContext(ctx)}
	if opts.Input != nil {
		popts = append(popts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		popts = append(popts, tea.WithOutput(opts.Output))
	}
	if opts.AltScreen {
		popts = append(popts, tea.WithAltScreen())
	}
	p := tea.NewProgram(NewModel(ctx, c), popts...)

	// Send blocks until the event loop is running, so start it first.
	errc := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errc <- err
	}()

	unsubscribe, err := c.SubscribeTodos(ctx, func(todos []types.Todo) {
		p.Send(TodosMsg(todos))
	})
	if err != nil {
		p.Quit()
		<-errc
		return fmt.Errorf("subscribing to todos: %w", err)
	}

	runErr := <-errc
	if err := unsubscribe(context.WithoutCancel(ctx)); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return runErr
}
