// Package tui provides the interactive planning screen for MorningTrio.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fentz26/morningtrio/internal/models"
	"github.com/fentz26/morningtrio/internal/planning"
	"github.com/fentz26/morningtrio/internal/tasks"
)

// Tasks is the task surface the screen works against.
type Tasks interface {
	planning.TaskOps
	Board(ctx context.Context, list models.TaskList) (*tasks.Board, error)
	ToggleComplete(ctx context.Context, id string) (*models.Task, error)
}

// Options configures the App.
type Options struct {
	// WelcomeDelay is how long the welcome step shows before advancing.
	WelcomeDelay time.Duration
	// Updates signals that tasks changed outside the screen, e.g. a pull.
	Updates <-chan struct{}
	// Account is shown in the header; empty means local-only.
	Account string
}

// snapshot is what the screen renders. It is rebuilt after every action so
// View never touches the ritual directly.
type snapshot struct {
	step     planning.Step
	canSkip  bool
	items    []models.Task
	selected map[string]bool
	board    *tasks.Board
}

// App is the planning screen model.
type App struct {
	ctx     context.Context
	tasks   Tasks
	tracker *planning.Tracker
	list    models.TaskList
	opts    Options

	ritual  *planning.Ritual
	view    snapshot
	started bool
	busy    bool
	cursor  int
	prompt  *Prompt
	spinner spinner.Model
	message string
	isError bool
	width   int
}

// New creates the planning screen for list.
func New(ctx context.Context, t Tasks, tracker *planning.Tracker, list models.TaskList, opts Options) *App {
	if opts.WelcomeDelay <= 0 {
		opts.WelcomeDelay = planning.DefaultWelcomeDelay
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = chosenStyle

	return &App{
		ctx:     ctx,
		tasks:   t,
		tracker: tracker,
		list:    list,
		opts:    opts,
		prompt:  NewPrompt(),
		spinner: sp,
		width:   80,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithContext(a.ctx))
	_, err := p.Run()
	return err
}

type startedMsg struct {
	ritual *planning.Ritual
	view   snapshot
}

type stateMsg struct {
	view snapshot
	note string
	err  error
}

type welcomeDoneMsg struct{}

type updatedMsg struct{}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	a.busy = true
	cmds := []tea.Cmd{a.spinner.Tick, a.start()}
	if a.opts.Updates != nil {
		cmds = append(cmds, a.waitForUpdate())
	}
	return tea.Batch(cmds...)
}

func (a *App) start() tea.Cmd {
	return func() tea.Msg {
		r, err := planning.Start(a.ctx, a.tasks, a.tracker, a.list)
		if err != nil {
			return stateMsg{err: err}
		}
		view, err := a.snapshot(r)
		if err != nil {
			return stateMsg{err: err}
		}
		return startedMsg{ritual: r, view: view}
	}
}

func (a *App) waitForUpdate() tea.Cmd {
	ch := a.opts.Updates
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return updatedMsg{}
	}
}

// do runs fn against the ritual off the UI loop and reports a fresh
// snapshot. Only one action runs at a time.
func (a *App) do(fn func(ctx context.Context, r *planning.Ritual) (string, error)) tea.Cmd {
	if a.busy || a.ritual == nil {
		return nil
	}
	a.busy = true
	r := a.ritual
	return func() tea.Msg {
		note, err := fn(a.ctx, r)
		view, serr := a.snapshot(r)
		if serr != nil && err == nil {
			err = serr
		}
		return stateMsg{view: view, note: note, err: err}
	}
}

func (a *App) snapshot(r *planning.Ritual) (snapshot, error) {
	v := snapshot{step: r.Step(), canSkip: r.CanSkip()}
	var err error
	switch v.step {
	case planning.StepCarryover:
		v.items = r.Pending()
	case planning.StepTopThree:
		v.items, err = r.Candidates(a.ctx)
		v.selected = make(map[string]bool)
		for _, id := range r.Selected() {
			v.selected[id] = true
		}
	case planning.StepConfirmation:
		v.items, err = r.TopThree(a.ctx)
	case planning.StepDone:
		v.board, err = a.tasks.Board(a.ctx, a.list)
		if err == nil {
			v.items = boardOrder(v.board)
		}
	}
	return v, err
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.prompt.SetWidth(msg.Width)
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case startedMsg:
		a.busy = false
		a.started = true
		a.ritual = msg.ritual
		a.apply(msg.view)
		if msg.view.step == planning.StepWelcome {
			return a, tea.Tick(a.opts.WelcomeDelay, func(time.Time) tea.Msg {
				return welcomeDoneMsg{}
			})
		}
		return a, nil

	case stateMsg:
		a.busy = false
		if a.ritual == nil && msg.err != nil {
			a.setError(msg.err)
			return a, tea.Quit
		}
		a.apply(msg.view)
		a.message, a.isError = msg.note, false
		if msg.err != nil {
			a.setError(msg.err)
		}
		return a, nil

	case welcomeDoneMsg:
		if a.view.step != planning.StepWelcome {
			return a, nil
		}
		return a, a.do(advance)

	case updatedMsg:
		cmds := []tea.Cmd{a.waitForUpdate()}
		if !a.prompt.Active() {
			cmds = append(cmds, a.do(noop))
		}
		return a, tea.Batch(cmds...)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.prompt.Active() {
			return a, a.handlePrompt(msg)
		}
		return a, a.handleKey(msg)
	}

	if a.prompt.Active() {
		return a, a.prompt.Update(msg)
	}
	return a, nil
}

func (a *App) apply(v snapshot) {
	a.view = v
	if a.cursor >= len(v.items) {
		a.cursor = max(0, len(v.items)-1)
	}
}

func (a *App) setError(err error) {
	a.message = "Error: " + describe(err)
	a.isError = true
}

func (a *App) handlePrompt(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		a.prompt.Close()
		return nil
	case "enter":
		kind, target, text := a.prompt.Submit()
		switch kind {
		case promptEdit:
			return a.do(func(ctx context.Context, r *planning.Ritual) (string, error) {
				return "✓ Updated and carried over", r.Edit(ctx, target, text)
			})
		case promptAdd:
			return a.do(func(ctx context.Context, r *planning.Ritual) (string, error) {
				t, err := r.AddTask(ctx, text, true)
				if err != nil {
					return "", err
				}
				if t.Section == models.SectionMustDo {
					return "✓ Added to today's three", nil
				}
				return "✓ Added to other tasks", nil
			})
		}
		return nil
	}
	return a.prompt.Update(msg)
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	switch key {
	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
		return nil
	case "down", "j":
		if a.cursor < len(a.view.items)-1 {
			a.cursor++
		}
		return nil
	case "q":
		if a.view.step == planning.StepDone || !a.started {
			return tea.Quit
		}
	case "s":
		if a.view.canSkip {
			return a.do(func(ctx context.Context, r *planning.Ritual) (string, error) {
				return "Skipped planning for today", r.Skip(ctx)
			})
		}
	}
	if a.busy {
		return nil
	}

	switch a.view.step {
	case planning.StepWelcome:
		if key == "enter" || key == " " {
			return a.do(advance)
		}

	case planning.StepCarryover:
		cur := a.current()
		switch key {
		case "enter", "y":
			if cur == nil {
				return a.do(func(ctx context.Context, r *planning.Ritual) (string, error) {
					return "", r.ContinueCarryover(ctx)
				})
			}
			return a.do(func(ctx context.Context, r *planning.Ritual) (string, error) {
				return "✓ Carried over", r.Keep(ctx, cur.ID)
			})
		case "d", "x":
			if cur != nil {
				return a.do(func(ctx context.Context, r *planning.Ritual) (string, error) {
					return "✓ Dismissed", r.Dismiss(ctx, cur.ID)
				})
			}
		case "e":
			if cur != nil {
				return a.prompt.Open(promptEdit, "Edit", cur.ID, cur.Text)
			}
		case "c":
			return a.do(func(ctx context.Context, r *planning.Ritual) (string, error) {
				return "", r.ContinueCarryover(ctx)
			})
		}

	case planning.StepTopThree:
		switch key {
		case " ", "x":
			if cur := a.current(); cur != nil {
				return a.do(func(ctx context.Context, r *planning.Ritual) (string, error) {
					return "", r.ToggleSelect(ctx, cur.ID)
				})
			}
		case "a":
			return a.prompt.Open(promptAdd, "New task", "", "")
		case "enter":
			return a.do(func(ctx context.Context, r *planning.Ritual) (string, error) {
				return "", r.ContinueTopThree()
			})
		}

	case planning.StepConfirmation:
		if key == "enter" {
			return a.do(func(ctx context.Context, r *planning.Ritual) (string, error) {
				return "✓ Today is planned", r.Confirm(ctx)
			})
		}

	case planning.StepDone:
		switch key {
		case " ", "x":
			if cur := a.current(); cur != nil {
				return a.do(func(ctx context.Context, r *planning.Ritual) (string, error) {
					_, err := a.tasks.ToggleComplete(ctx, cur.ID)
					return "", err
				})
			}
		case "r":
			return a.do(noop)
		}
	}
	return nil
}

func (a *App) current() *models.Task {
	if a.cursor < 0 || a.cursor >= len(a.view.items) {
		return nil
	}
	t := a.view.items[a.cursor]
	return &t
}

func advance(ctx context.Context, r *planning.Ritual) (string, error) {
	return "", r.Advance(ctx)
}

func noop(context.Context, *planning.Ritual) (string, error) {
	return "", nil
}

// boardOrder flattens a board in display order.
func boardOrder(b *tasks.Board) []models.Task {
	out := make([]models.Task, 0, len(b.MustDo)+len(b.Other)+len(b.Completed))
	out = append(out, b.MustDo...)
	out = append(out, b.Other...)
	return append(out, b.Completed...)
}

func describe(err error) string {
	switch {
	case errors.Is(err, planning.ErrUnresolved):
		return "decide on every carried-over task first"
	case errors.Is(err, planning.ErrSelectionFull):
		return fmt.Sprintf("you can only pick %d tasks", models.MustDoCap)
	case errors.Is(err, tasks.ErrMustDoFull):
		return fmt.Sprintf("must-do already has %d tasks", models.MustDoCap)
	case errors.Is(err, tasks.ErrEmptyText):
		return "task text cannot be empty"
	default:
		return err.Error()
	}
}
