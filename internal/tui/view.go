package tui

import (
	"fmt"
	"strings"

	"github.com/fentz26/morningtrio/internal/models"
	"github.com/fentz26/morningtrio/internal/planning"
)

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	account := offlineStyle.Render("○ local only")
	if a.opts.Account != "" {
		account = onlineStyle.Render("● " + a.opts.Account)
	}
	b.WriteString(titleStyle.Render("MorningTrio · "+listName(a.list)) + "  " + account + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 20)) + "\n")

	if !a.started {
		if a.message != "" {
			b.WriteString("\n  " + errorStyle.Render(a.message) + "\n")
		} else {
			b.WriteString("\n  " + a.spinner.View() + " Loading...\n")
		}
		return b.String()
	}

	switch a.view.step {
	case planning.StepWelcome:
		b.WriteString(a.renderWelcome())
	case planning.StepCarryover:
		b.WriteString(a.renderCarryover())
	case planning.StepTopThree:
		b.WriteString(a.renderTopThree())
	case planning.StepConfirmation:
		b.WriteString(a.renderConfirmation())
	default:
		b.WriteString(a.renderBoard())
	}

	if a.message != "" {
		style := messageStyle
		if a.isError {
			style = errorStyle
		}
		b.WriteString("\n" + style.Render(a.message))
	}
	b.WriteString("\n")
	if a.prompt.Active() {
		b.WriteString(a.prompt.View() + "\n")
	}
	b.WriteString(statusBarStyle.Width(max(a.width, 20)).Render(a.help()))
	return b.String()
}

func (a *App) renderWelcome() string {
	return fmt.Sprintf("\n  %s Good morning. Let's plan your %s day.\n",
		a.spinner.View(), strings.ToLower(listName(a.list)))
}

func (a *App) renderCarryover() string {
	var b strings.Builder
	b.WriteString("\n  " + sectionStyle.Render("From earlier days") + "\n\n")
	if len(a.view.items) == 0 {
		b.WriteString("  " + helpStyle.Render("All decided. Press enter to continue.") + "\n")
		return b.String()
	}
	for i, t := range a.view.items {
		label := fmt.Sprintf("%s  %s", t.Text, helpStyle.Render(t.CreatedDate))
		b.WriteString(a.renderLine(i, label) + "\n")
	}
	return b.String()
}

func (a *App) renderTopThree() string {
	var b strings.Builder
	b.WriteString("\n  " + sectionStyle.Render(
		fmt.Sprintf("Pick today's three (%d/%d)", len(a.view.selected), models.MustDoCap)) + "\n\n")
	if len(a.view.items) == 0 {
		b.WriteString("  " + helpStyle.Render("No open tasks. Press a to add one.") + "\n")
		return b.String()
	}
	for i, t := range a.view.items {
		mark := "[ ]"
		if a.view.selected[t.ID] {
			mark = chosenStyle.Render("[★]")
		}
		b.WriteString(a.renderLine(i, mark+" "+t.Text) + "\n")
	}
	return b.String()
}

func (a *App) renderConfirmation() string {
	var b strings.Builder
	b.WriteString("\n  " + sectionStyle.Render("Today's three") + "\n\n")
	if len(a.view.items) == 0 {
		b.WriteString("  " + helpStyle.Render("Nothing chosen. A light day.") + "\n")
	}
	for i, t := range a.view.items {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, t.Text))
	}
	return b.String()
}

func (a *App) renderBoard() string {
	board := a.view.board
	if board == nil {
		return "\n  " + a.spinner.View() + " Loading...\n"
	}

	var b strings.Builder
	idx := 0
	group := func(title string, ts []models.Task) {
		b.WriteString("\n  " + sectionStyle.Render(title) + "\n")
		if len(ts) == 0 {
			b.WriteString("  " + helpStyle.Render("  nothing here") + "\n")
		}
		for _, t := range ts {
			text := t.Text
			if t.Completed {
				text = "✓ " + doneStyle.Render(text)
			} else {
				text = "○ " + text
			}
			b.WriteString(a.renderLine(idx, text) + "\n")
			idx++
		}
	}
	group(fmt.Sprintf("Must do (%d/%d)", countOpen(board.MustDo), models.MustDoCap), board.MustDo)
	group("Other", board.Other)
	if len(board.Completed) > 0 {
		group("Completed", board.Completed)
	}
	return b.String()
}

func (a *App) renderLine(i int, text string) string {
	if i == a.cursor {
		return selectedStyle.Render("▶ " + text)
	}
	return taskItemStyle.Render("  " + text)
}

func (a *App) help() string {
	var keys []string
	switch a.view.step {
	case planning.StepWelcome:
		keys = []string{"enter:continue"}
	case planning.StepCarryover:
		keys = []string{"↑↓:nav", "y:keep", "d:dismiss", "e:edit", "c:continue", "s:skip"}
	case planning.StepTopThree:
		keys = []string{"↑↓:nav", "space:pick", "a:add", "enter:continue", "s:skip"}
	case planning.StepConfirmation:
		keys = []string{"enter:start the day"}
	default:
		keys = []string{"↑↓:nav", "space:done", "r:refresh", "q:quit"}
	}
	return " " + strings.Join(keys, " | ")
}

func listName(l models.TaskList) string {
	if l == models.TaskListWork {
		return "Work"
	}
	return "Personal"
}

func countOpen(ts []models.Task) int {
	n := 0
	for _, t := range ts {
		if !t.Completed {
			n++
		}
	}
	return n
}
