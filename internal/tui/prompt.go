package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	promptBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	promptLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("205")).
				Bold(true)
)

// promptKind says what a submitted prompt is for.
type promptKind int

const (
	promptNone promptKind = iota
	promptEdit
	promptAdd
)

// Prompt is the single-line text entry used to edit and add tasks.
type Prompt struct {
	input  textinput.Model
	kind   promptKind
	target string
	label  string
}

// NewPrompt creates an inactive prompt.
func NewPrompt() *Prompt {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 60
	return &Prompt{input: ti}
}

// Active reports whether the prompt has focus.
func (p *Prompt) Active() bool {
	return p.kind != promptNone
}

// Open focuses the prompt for kind, prefilled with value. target is the
// task id being edited, if any.
func (p *Prompt) Open(kind promptKind, label, target, value string) tea.Cmd {
	p.kind = kind
	p.label = label
	p.target = target
	p.input.SetValue(value)
	p.input.CursorEnd()
	return p.input.Focus()
}

// Close drops focus and clears the text.
func (p *Prompt) Close() {
	p.kind = promptNone
	p.target = ""
	p.input.Blur()
	p.input.SetValue("")
}

// Submit returns what was entered and closes the prompt.
func (p *Prompt) Submit() (kind promptKind, target, text string) {
	kind, target, text = p.kind, p.target, strings.TrimSpace(p.input.Value())
	p.Close()
	return kind, target, text
}

// Update forwards msg to the text input.
func (p *Prompt) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return cmd
}

// SetWidth sizes the input to the terminal.
func (p *Prompt) SetWidth(w int) {
	if w > 10 {
		p.input.Width = w - 10
	}
}

// View renders the prompt bar.
func (p *Prompt) View() string {
	if !p.Active() {
		return ""
	}
	return promptBarStyle.Render(promptLabelStyle.Render(p.label+": ") + p.input.View())
}
