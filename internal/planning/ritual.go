package planning

import (
	"context"
	"time"

	"github.com/fentz26/morningtrio/internal/models"
)

// DefaultWelcomeDelay is how long the welcome step shows before advancing.
const DefaultWelcomeDelay = 2 * time.Second

// Step is a stage of the planning ritual.
type Step int

const (
	// StepDone means no planning is needed, or the ritual has finished.
	StepDone Step = iota
	StepWelcome
	StepCarryover
	StepTopThree
	StepConfirmation
)

func (s Step) String() string {
	switch s {
	case StepWelcome:
		return "welcome"
	case StepCarryover:
		return "carryover"
	case StepTopThree:
		return "top-three"
	case StepConfirmation:
		return "confirmation"
	default:
		return "done"
	}
}

// TaskOps is the task surface the ritual drives.
type TaskOps interface {
	ListTasks(ctx context.Context, list models.TaskList) ([]models.Task, error)
	CarryoverTasks(ctx context.Context, list models.TaskList) ([]models.Task, error)
	AddTask(ctx context.Context, text string, section models.Section, list models.TaskList) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, patch models.Patch) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	MoveToSection(ctx context.Context, id string, section models.Section) (*models.Task, error)
	Today() string
}

// Ritual walks one task list through welcome, carry-over review, top-three
// selection, and confirmation.
type Ritual struct {
	ops     TaskOps
	tracker *Tracker
	list    models.TaskList

	step      Step
	carryover []models.Task
	resolved  map[string]bool
	selected  []string
}

// Start begins a ritual for list. If the list needs no planning the
// ritual starts in StepDone. A list with no tasks at all is marked
// planned straight away.
func Start(ctx context.Context, ops TaskOps, tracker *Tracker, list models.TaskList) (*Ritual, error) {
	r := &Ritual{
		ops:      ops,
		tracker:  tracker,
		list:     list,
		resolved: make(map[string]bool),
	}

	need, err := tracker.NeedsPlanning(ctx, list)
	if err != nil || !need {
		return r, err
	}

	all, err := ops.ListTasks(ctx, list)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return r, tracker.Complete(ctx, list)
	}

	if r.carryover, err = ops.CarryoverTasks(ctx, list); err != nil {
		return nil, err
	}
	r.step = StepWelcome
	return r, nil
}

// Step returns the current step.
func (r *Ritual) Step() Step { return r.step }

// List returns the task list being planned.
func (r *Ritual) List() models.TaskList { return r.list }

// HasCarryover reports whether the ritual includes the carry-over step.
func (r *Ritual) HasCarryover() bool { return len(r.carryover) > 0 }

// Pending returns carry-over tasks that still need a decision.
func (r *Ritual) Pending() []models.Task {
	var out []models.Task
	for _, t := range r.carryover {
		if !r.resolved[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

// Selected returns the ids chosen as today's must-do tasks, in order.
func (r *Ritual) Selected() []string {
	return append([]string(nil), r.selected...)
}

// Advance leaves the welcome step.
func (r *Ritual) Advance(ctx context.Context) error {
	if r.step != StepWelcome {
		return ErrInvalidStep
	}
	if r.HasCarryover() {
		r.step = StepCarryover
		return nil
	}
	return r.enterTopThree(ctx)
}

// Keep carries a task into today.
func (r *Ritual) Keep(ctx context.Context, id string) error {
	return r.resolve(id, func() error {
		today := r.ops.Today()
		_, err := r.ops.UpdateTask(ctx, id, models.Patch{CreatedDate: &today})
		return err
	})
}

// Dismiss deletes a carried-over task.
func (r *Ritual) Dismiss(ctx context.Context, id string) error {
	return r.resolve(id, func() error {
		return r.ops.DeleteTask(ctx, id)
	})
}

// Edit rewrites a carried-over task and carries it into today.
func (r *Ritual) Edit(ctx context.Context, id, text string) error {
	return r.resolve(id, func() error {
		today := r.ops.Today()
		_, err := r.ops.UpdateTask(ctx, id, models.Patch{Text: &text, CreatedDate: &today})
		return err
	})
}

func (r *Ritual) resolve(id string, apply func() error) error {
	if r.step != StepCarryover {
		return ErrInvalidStep
	}
	found := false
	for _, t := range r.carryover {
		if t.ID == id {
			found = true
			break
		}
	}
	if !found || r.resolved[id] {
		return ErrNotPending
	}
	if err := apply(); err != nil {
		return err
	}
	r.resolved[id] = true
	return nil
}

// ContinueCarryover moves on once every carried-over task is decided.
func (r *Ritual) ContinueCarryover(ctx context.Context) error {
	if r.step != StepCarryover {
		return ErrInvalidStep
	}
	if len(r.Pending()) > 0 {
		return ErrUnresolved
	}
	return r.enterTopThree(ctx)
}

// enterTopThree starts selection with the list's open must-do tasks
// already chosen.
func (r *Ritual) enterTopThree(ctx context.Context) error {
	all, err := r.ops.ListTasks(ctx, r.list)
	if err != nil {
		return err
	}
	r.selected = r.selected[:0]
	for _, t := range all {
		if t.Section == models.SectionMustDo && !t.Completed {
			r.selected = append(r.selected, t.ID)
		}
	}
	r.step = StepTopThree
	return nil
}

// Candidates returns the open tasks that can be chosen.
func (r *Ritual) Candidates(ctx context.Context) ([]models.Task, error) {
	all, err := r.ops.ListTasks(ctx, r.list)
	if err != nil {
		return nil, err
	}
	var out []models.Task
	for _, t := range all {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out, nil
}

// IsSelected reports whether id is among today's chosen tasks.
func (r *Ritual) IsSelected(id string) bool {
	for _, s := range r.selected {
		if s == id {
			return true
		}
	}
	return false
}

// ToggleSelect chooses or un-chooses a task, moving it between the
// must-do and other sections.
func (r *Ritual) ToggleSelect(ctx context.Context, id string) error {
	if r.step != StepTopThree {
		return ErrInvalidStep
	}
	if r.IsSelected(id) {
		if _, err := r.ops.MoveToSection(ctx, id, models.SectionOther); err != nil {
			return err
		}
		kept := r.selected[:0]
		for _, s := range r.selected {
			if s != id {
				kept = append(kept, s)
			}
		}
		r.selected = kept
		return nil
	}

	if len(r.selected) >= models.MustDoCap {
		return ErrSelectionFull
	}
	cands, err := r.Candidates(ctx)
	if err != nil {
		return err
	}
	ok := false
	for _, t := range cands {
		if t.ID == id {
			ok = true
			break
		}
	}
	if !ok {
		return ErrNotInSelection
	}
	if _, err := r.ops.MoveToSection(ctx, id, models.SectionMustDo); err != nil {
		return err
	}
	r.selected = append(r.selected, id)
	return nil
}

// AddTask creates a task during selection. With choose set and room left
// it goes straight into today's must-do tasks; otherwise into other.
func (r *Ritual) AddTask(ctx context.Context, text string, choose bool) (*models.Task, error) {
	if r.step != StepTopThree {
		return nil, ErrInvalidStep
	}
	section := models.SectionOther
	if choose && len(r.selected) < models.MustDoCap {
		section = models.SectionMustDo
	}
	task, err := r.ops.AddTask(ctx, text, section, r.list)
	if err != nil {
		return nil, err
	}
	if section == models.SectionMustDo {
		r.selected = append(r.selected, task.ID)
	}
	return task, nil
}

// ContinueTopThree moves to confirmation. Zero selections are allowed.
func (r *Ritual) ContinueTopThree() error {
	if r.step != StepTopThree {
		return ErrInvalidStep
	}
	r.step = StepConfirmation
	return nil
}

// TopThree returns today's must-do tasks for the confirmation step.
func (r *Ritual) TopThree(ctx context.Context) ([]models.Task, error) {
	all, err := r.ops.ListTasks(ctx, r.list)
	if err != nil {
		return nil, err
	}
	var out []models.Task
	for _, t := range all {
		if t.Section == models.SectionMustDo && !t.Completed {
			out = append(out, t)
		}
	}
	return out, nil
}

// Confirm finishes the ritual and records today's planning date.
func (r *Ritual) Confirm(ctx context.Context) error {
	if r.step != StepConfirmation {
		return ErrInvalidStep
	}
	if err := r.tracker.Complete(ctx, r.list); err != nil {
		return err
	}
	r.step = StepDone
	return nil
}

// CanSkip reports whether Skip is available at the current step.
func (r *Ritual) CanSkip() bool {
	return r.step == StepCarryover || r.step == StepTopThree
}

// Skip ends the ritual for today without recording a planning date.
func (r *Ritual) Skip(ctx context.Context) error {
	if !r.CanSkip() {
		return ErrInvalidStep
	}
	if err := r.tracker.Skip(ctx, r.list); err != nil {
		return err
	}
	r.step = StepDone
	return nil
}
