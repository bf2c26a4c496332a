package tui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fentz26/morningtrio/internal/models"
	"github.com/fentz26/morningtrio/internal/planning"
	"github.com/fentz26/morningtrio/internal/store"
	"github.com/fentz26/morningtrio/internal/tasks"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	tasks   *tasks.Service
	tracker *planning.Tracker
	clock   *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	c := &clock{now: time.Date(2026, 10, 18, 8, 0, 0, 0, time.Local)}
	svc := tasks.NewService(st, nil, tasks.Options{AllowAnonymous: true, Now: c.Now})
	return &fixture{
		tasks:   svc,
		tracker: planning.NewTracker(st, svc.Owner, c.Now),
		clock:   c,
	}
}

func (f *fixture) app() *App {
	return New(context.Background(), f.tasks, f.tracker, models.TaskListPersonal, Options{WelcomeDelay: time.Millisecond})
}

// exec runs cmd and feeds the app's own result messages back into it.
// Spinner ticks and cursor blinks are dropped.
func exec(t *testing.T, a *App, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			exec(t, a, c)
		}
	case startedMsg, stateMsg, welcomeDoneMsg:
		_, next := a.Update(msg)
		exec(t, a, next)
	}
}

func press(t *testing.T, a *App, keys ...string) {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case " ":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		_, cmd := a.Update(msg)
		exec(t, a, cmd)
	}
}

func TestEmptyListGoesStraightToBoard(t *testing.T) {
	f := newFixture(t)
	a := f.app()
	exec(t, a, a.Init())

	if a.view.step != planning.StepDone {
		t.Fatalf("Expected done, got %s", a.view.step)
	}
	if a.view.board == nil {
		t.Fatal("Expected board loaded")
	}
	need, err := f.tracker.NeedsPlanning(context.Background(), models.TaskListPersonal)
	if err != nil {
		t.Fatalf("NeedsPlanning failed: %v", err)
	}
	if need {
		t.Error("Expected empty list marked planned")
	}
	if !strings.Contains(a.View(), "Must do") {
		t.Error("Expected board view")
	}
}

func TestPlanningFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old, err := f.tasks.AddTask(ctx, "Water plants", models.SectionOther, models.TaskListPersonal)
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	f.clock.now = f.clock.now.Add(24 * time.Hour)

	a := f.app()
	exec(t, a, a.Init())
	if a.view.step != planning.StepCarryover {
		t.Fatalf("Expected carryover after welcome, got %s", a.view.step)
	}
	if len(a.view.items) != 1 || a.view.items[0].ID != old.ID {
		t.Fatalf("Expected one pending task, got %+v", a.view.items)
	}

	press(t, a, "c")
	if a.view.step != planning.StepCarryover || !a.isError {
		t.Fatalf("Expected continue refused while undecided, step %s msg %q", a.view.step, a.message)
	}

	press(t, a, "y")
	if len(a.view.items) != 0 {
		t.Fatalf("Expected nothing pending after keep, got %+v", a.view.items)
	}
	kept, err := f.tasks.GetTask(ctx, old.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if kept.CreatedDate != f.tasks.Today() {
		t.Errorf("Expected kept task stamped today, got %s", kept.CreatedDate)
	}

	press(t, a, "enter")
	if a.view.step != planning.StepTopThree {
		t.Fatalf("Expected top three, got %s", a.view.step)
	}
	press(t, a, " ")
	if !a.view.selected[old.ID] {
		t.Fatal("Expected task picked")
	}

	press(t, a, "a")
	if !a.prompt.Active() {
		t.Fatal("Expected prompt open")
	}
	press(t, a, "Stretch", "enter")
	if a.prompt.Active() {
		t.Fatal("Expected prompt closed after submit")
	}
	if len(a.view.selected) != 2 {
		t.Fatalf("Expected new task picked too, got %v", a.view.selected)
	}

	press(t, a, "enter")
	if a.view.step != planning.StepConfirmation || len(a.view.items) != 2 {
		t.Fatalf("Expected confirmation with two tasks, got %s %+v", a.view.step, a.view.items)
	}
	press(t, a, "enter")
	if a.view.step != planning.StepDone {
		t.Fatalf("Expected done, got %s", a.view.step)
	}
	if len(a.view.board.MustDo) != 2 {
		t.Errorf("Expected two must-do tasks, got %+v", a.view.board.MustDo)
	}

	need, err := f.tracker.NeedsPlanning(ctx, models.TaskListPersonal)
	if err != nil {
		t.Fatalf("NeedsPlanning failed: %v", err)
	}
	if need {
		t.Error("Expected list planned after confirm")
	}
}

func TestBoardTogglesCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.tracker.Complete(ctx, models.TaskListPersonal); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	task, err := f.tasks.AddTask(ctx, "Run", models.SectionMustDo, models.TaskListPersonal)
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	a := f.app()
	exec(t, a, a.Init())
	if a.view.step != planning.StepDone {
		t.Fatalf("Expected board, got %s", a.view.step)
	}
	press(t, a, " ")

	got, err := f.tasks.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if !got.Completed {
		t.Error("Expected task completed")
	}
}

func TestSkipOnlyDuringChoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.tasks.AddTask(ctx, "Read", models.SectionOther, models.TaskListPersonal); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	a := New(ctx, f.tasks, f.tracker, models.TaskListPersonal, Options{WelcomeDelay: time.Hour})
	a.Update(startedFor(t, a))
	if a.view.step != planning.StepWelcome {
		t.Fatalf("Expected welcome, got %s", a.view.step)
	}
	press(t, a, "s")
	if a.view.step != planning.StepWelcome {
		t.Fatal("Skip should not apply on welcome")
	}

	press(t, a, "enter")
	if a.view.step != planning.StepTopThree {
		t.Fatalf("Expected top three without carryover, got %s", a.view.step)
	}
	press(t, a, "s")
	if a.view.step != planning.StepDone {
		t.Fatalf("Expected done after skip, got %s", a.view.step)
	}
	state, err := f.tracker.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	p := state.List(models.TaskListPersonal)
	if !p.IsPlanningComplete || p.LastPlanningDate != nil {
		t.Errorf("Expected skipped without a planning date, got %+v", p)
	}
}

// startedFor runs the start command directly so the welcome tick is not
// awaited.
func startedFor(t *testing.T, a *App) tea.Msg {
	t.Helper()
	msg := a.start()()
	if _, ok := msg.(startedMsg); !ok {
		t.Fatalf("Expected startedMsg, got %#v", msg)
	}
	return msg
}
