// Package render paints a todo list as plain terminal text. A Painter is
// meant to be used as a subscription callback: every call repaints the whole
// list.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/mesh-intelligence/livetodo/internal/logger"
	"github.com/mesh-intelligence/livetodo/pkg/types"
)

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\x1b[H\x1b[2J"

// Styles used by the painter. They are bound to the painter's renderer.
type styles struct {
	title   lipgloss.Style
	done    lipgloss.Style
	pending lipgloss.Style
	muted   lipgloss.Style
	id      lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true),
		done:    r.NewStyle().Faint(true).Strikethrough(true),
		pending: r.NewStyle().Foreground(lipgloss.Color("214")),
		muted:   r.NewStyle().Faint(true),
		id:      r.NewStyle().Foreground(lipgloss.Color("12")),
	}
}

// Painter writes the todo list to a writer.
type Painter struct {
	mu       sync.Mutex
	w        io.Writer
	renderer *lipgloss.Renderer
	styles   styles
	clear    bool
}

// Option configures a Painter.
type Option func(*Painter)

// WithClear clears the screen before every paint.
func WithClear() Option {
	return func(p *Painter) { p.clear = true }
}

// WithRenderer overrides the lipgloss renderer, e.g. to force a color
// profile.
func WithRenderer(r *lipgloss.Renderer) Option {
	return func(p *Painter) { p.renderer = r }
}

// New returns a painter writing to w.
func New(w io.Writer, opts ...Option) *Painter {
	p := &Painter{w: w}
	for _, opt := range opts {
		opt(p)
	}
	if p.renderer == nil {
		p.renderer = lipgloss.NewRenderer(w)
	}
	p.styles = newStyles(p.renderer)
	return p
}

// Renderer returns the lipgloss renderer the painter styles with.
func (p *Painter) Renderer() *lipgloss.Renderer {
	return p.renderer
}

// Paint repaints the list. It has the shape of a todo subscription callback.
func (p *Painter) Paint(todos []types.Todo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	if p.clear {
		b.WriteString(clearScreen)
	}
	b.WriteString(p.Format(todos))
	if _, err := io.WriteString(p.w, b.String()); err != nil {
		logger.Warn("painting todo list", "error", err)
	}
}

// Format renders the list without writing it.
func (p *Painter) Format(todos []types.Todo) string {
	var b strings.Builder
	done, total := types.Stats(todos)
	fmt.Fprintf(&b, "%s %s\n",
		p.styles.title.Render("Todos"),
		p.styles.muted.Render(fmt.Sprintf("(%d/%d done)", done, total)))

	if len(todos) == 0 {
		fmt.Fprintf(&b, "  %s\n", p.styles.muted.Render("nothing to do"))
		return b.String()
	}
	for _, t := range todos {
		b.WriteString(p.line(t))
		b.WriteByte('\n')
	}
	return b.String()
}

func (p *Painter) line(t types.Todo) string {
	desc := singleLine(t.Description)
	box := p.styles.pending.Render("[ ]")
	if t.Completed {
		box = p.styles.muted.Render("[x]")
		desc = p.styles.done.Render(desc)
	}
	return fmt.Sprintf("  %s %s %s", box, p.styles.id.Render(fmt.Sprint(t.ID)), desc)
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
