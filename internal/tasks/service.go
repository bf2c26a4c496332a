// Package tasks implements the task operations the UI calls: creation,
// edits, completion, section and list moves, reordering, and clearing.
// Every write goes through a Mutator so the sync layer can mirror it.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fentz26/morningtrio/internal/models"
	"github.com/fentz26/morningtrio/internal/store"
)

// Mutator runs a local write inside a transaction and propagates the
// changes fn reports once the transaction commits.
type Mutator interface {
	Mutate(ctx context.Context, op string, fn func(tx *store.Tx) ([]models.Change, error)) error
}

// LocalMutator commits writes to the store and nothing else. It backs
// local-only mode.
type LocalMutator struct {
	Store *store.Store
}

// Mutate implements Mutator.
func (m LocalMutator) Mutate(ctx context.Context, op string, fn func(tx *store.Tx) ([]models.Change, error)) error {
	return m.Store.InTx(ctx, func(tx *store.Tx) error {
		_, err := fn(tx)
		return err
	})
}

// Options configures a Service.
type Options struct {
	// Owner returns the signed-in user id, or "" when signed out.
	Owner func() string
	// AllowAnonymous lets signed-out callers work under the local owner.
	AllowAnonymous bool
	// Now is the clock used for date stamps. Defaults to time.Now.
	Now func() time.Time
}

// Service provides the task operations.
type Service struct {
	store          *store.Store
	mut            Mutator
	owner          func() string
	allowAnonymous bool
	now            func() time.Time
}

// NewService creates a task service. A nil mutator writes locally only.
func NewService(st *store.Store, mut Mutator, opts Options) *Service {
	if mut == nil {
		mut = LocalMutator{Store: st}
	}
	if opts.Owner == nil {
		opts.Owner = func() string { return "" }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:          st,
		mut:            mut,
		owner:          opts.Owner,
		allowAnonymous: opts.AllowAnonymous,
		now:            opts.Now,
	}
}

// Owner returns the id new and visible tasks belong to.
func (s *Service) Owner() (string, error) {
	if id := s.owner(); id != "" {
		return id, nil
	}
	if s.allowAnonymous {
		return models.LocalOwner, nil
	}
	return "", ErrUnauthenticated
}

// Today returns the current local date.
func (s *Service) Today() string {
	return models.FormatDate(s.now())
}

// --- Reads ---

// Board is one task list split the way it is displayed.
type Board struct {
	MustDo    []models.Task
	Other     []models.Task
	Completed []models.Task
}

// ListTasks returns every task the owner has in list, ordered by position.
func (s *Service) ListTasks(ctx context.Context, list models.TaskList) ([]models.Task, error) {
	owner, err := s.Owner()
	if err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, store.TaskFilter{UserID: owner, TaskList: &list})
}

// GetTask returns one of the owner's tasks.
func (s *Service) GetTask(ctx context.Context, id string) (*models.Task, error) {
	owner, err := s.Owner()
	if err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && task.UserID != owner) {
		return nil, ErrNotFound
	}
	return task, err
}

// Board splits list into its must-do, other and completed groups. Tasks
// completed today stay in must-do so the day's three remain visible.
func (s *Service) Board(ctx context.Context, list models.TaskList) (*Board, error) {
	all, err := s.ListTasks(ctx, list)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	b := &Board{}
	for _, t := range all {
		switch {
		case t.Section == models.SectionMustDo && countsTowardCap(t, today):
			b.MustDo = append(b.MustDo, t)
		case t.Completed:
			b.Completed = append(b.Completed, t)
		default:
			b.Other = append(b.Other, t)
		}
	}
	return b, nil
}

// GetIncompleteTasks returns the owner's open tasks across every list.
func (s *Service) GetIncompleteTasks(ctx context.Context) ([]models.Task, error) {
	owner, err := s.Owner()
	if err != nil {
		return nil, err
	}
	open := false
	return s.store.ListTasks(ctx, store.TaskFilter{UserID: owner, Completed: &open})
}

// CarryoverTasks returns open tasks in list created before today.
func (s *Service) CarryoverTasks(ctx context.Context, list models.TaskList) ([]models.Task, error) {
	owner, err := s.Owner()
	if err != nil {
		return nil, err
	}
	open := false
	all, err := s.store.ListTasks(ctx, store.TaskFilter{UserID: owner, TaskList: &list, Completed: &open})
	if err != nil {
		return nil, err
	}
	today := s.Today()
	var out []models.Task
	for _, t := range all {
		if t.CreatedDate < today {
			out = append(out, t)
		}
	}
	return out, nil
}

// MustDoCount returns how many must-do slots of list are taken.
func (s *Service) MustDoCount(ctx context.Context, list models.TaskList) (int, error) {
	owner, err := s.Owner()
	if err != nil {
		return 0, err
	}
	return countMustDo(ctx, s.store, owner, list, "", s.Today())
}

// --- Writes ---

// AddTask appends a new task to the end of its section.
func (s *Service) AddTask(ctx context.Context, text string, section models.Section, list models.TaskList) (*models.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if !section.Valid() {
		return nil, ErrInvalidSection
	}
	if !list.Valid() {
		return nil, ErrInvalidList
	}
	owner, err := s.Owner()
	if err != nil {
		return nil, err
	}
	today := s.Today()

	var created models.Task
	err = s.mut.Mutate(ctx, "add", func(tx *store.Tx) ([]models.Change, error) {
		if section == models.SectionMustDo {
			n, err := countMustDo(ctx, tx, owner, list, "", today)
			if err != nil {
				return nil, err
			}
			if n >= models.MustDoCap {
				return nil, ErrMustDoFull
			}
		}
		max, err := tx.MaxOrderIndex(ctx, owner, list, section)
		if err != nil {
			return nil, err
		}
		created = models.Task{
			ID:          uuid.NewString(),
			UserID:      owner,
			Text:        text,
			Section:     section,
			TaskList:    list,
			OrderIndex:  max + 1,
			CreatedDate: today,
		}
		if err := tx.InsertTask(ctx, created); err != nil {
			return nil, err
		}
		after := created
		return []models.Change{{After: &after}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTask applies a partial update. Setting completed without a date
// stamps today's date; clearing completed clears it. A task that changes
// section or list moves to the end of its new section unless the patch
// places it explicitly.
func (s *Service) UpdateTask(ctx context.Context, id string, patch models.Patch) (*models.Task, error) {
	if patch.Text != nil {
		text := strings.TrimSpace(*patch.Text)
		if text == "" {
			return nil, ErrEmptyText
		}
		patch.Text = &text
	}
	if patch.Section != nil && !patch.Section.Valid() {
		return nil, ErrInvalidSection
	}
	if patch.TaskList != nil && !patch.TaskList.Valid() {
		return nil, ErrInvalidList
	}
	return s.update(ctx, "update", id, func(models.Task) models.Patch { return patch })
}

// ToggleComplete flips a task's completion.
func (s *Service) ToggleComplete(ctx context.Context, id string) (*models.Task, error) {
	return s.update(ctx, "toggle", id, func(cur models.Task) models.Patch {
		done := !cur.Completed
		return models.Patch{Completed: &done}
	})
}

// MoveToSection moves a task to the end of section within its list.
func (s *Service) MoveToSection(ctx context.Context, id string, section models.Section) (*models.Task, error) {
	if !section.Valid() {
		return nil, ErrInvalidSection
	}
	return s.update(ctx, "move", id, func(models.Task) models.Patch {
		return models.Patch{Section: &section}
	})
}

// SwitchTaskList moves a task to the end of the same section in list.
func (s *Service) SwitchTaskList(ctx context.Context, id string, list models.TaskList) (*models.Task, error) {
	if !list.Valid() {
		return nil, ErrInvalidList
	}
	return s.update(ctx, "switch", id, func(models.Task) models.Patch {
		return models.Patch{TaskList: &list}
	})
}

func (s *Service) update(ctx context.Context, op, id string, build func(models.Task) models.Patch) (*models.Task, error) {
	owner, err := s.Owner()
	if err != nil {
		return nil, err
	}
	today := s.Today()

	var result models.Task
	err = s.mut.Mutate(ctx, op, func(tx *store.Tx) ([]models.Change, error) {
		before, err := ownedTask(ctx, tx, owner, id)
		if err != nil {
			return nil, err
		}
		patch := stampCompletion(build(*before), *before, today)
		after := patch.Apply(*before)

		moved := after.Section != before.Section || after.TaskList != before.TaskList
		if moved && patch.OrderIndex == nil {
			max, err := tx.MaxOrderIndex(ctx, owner, after.TaskList, after.Section)
			if err != nil {
				return nil, err
			}
			after.OrderIndex = max + 1
		}

		if takesSlot(*before, after, today) {
			n, err := countMustDo(ctx, tx, owner, after.TaskList, id, today)
			if err != nil {
				return nil, err
			}
			if n >= models.MustDoCap {
				return nil, ErrMustDoFull
			}
		}

		result = after
		if after.Equal(*before) {
			return nil, nil
		}
		updated, err := tx.UpdateTask(ctx, id, models.Diff(*before, after))
		if err != nil {
			return nil, err
		}
		result = *updated
		return []models.Change{{Before: before, After: updated}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	owner, err := s.Owner()
	if err != nil {
		return err
	}
	return s.mut.Mutate(ctx, "delete", func(tx *store.Tx) ([]models.Change, error) {
		before, err := ownedTask(ctx, tx, owner, id)
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteTask(ctx, id); err != nil {
			return nil, err
		}
		return []models.Change{{Before: before}}, nil
	})
}

// ReorderTasks renumbers a section so ids take positions 0..n-1 in the
// order given. Ids outside the (list, section) partition are ignored.
func (s *Service) ReorderTasks(ctx context.Context, list models.TaskList, section models.Section, ids []string) error {
	if !section.Valid() {
		return ErrInvalidSection
	}
	if !list.Valid() {
		return ErrInvalidList
	}
	owner, err := s.Owner()
	if err != nil {
		return err
	}
	return s.mut.Mutate(ctx, "reorder", func(tx *store.Tx) ([]models.Change, error) {
		current, err := tx.ListTasks(ctx, store.TaskFilter{UserID: owner, TaskList: &list, Section: &section})
		if err != nil {
			return nil, err
		}
		byID := make(map[string]models.Task, len(current))
		for _, t := range current {
			byID[t.ID] = t
		}

		var changes []models.Change
		for i, id := range ids {
			before, ok := byID[id]
			if !ok || before.OrderIndex == i {
				continue
			}
			if _, err := tx.SetOrderIndex(ctx, owner, list, section, id, i); err != nil {
				return nil, err
			}
			after := before
			after.OrderIndex = i
			b := before
			changes = append(changes, models.Change{Before: &b, After: &after})
		}
		return changes, nil
	})
}

// ClearCompleted deletes every completed task in list and reports how many
// were removed.
func (s *Service) ClearCompleted(ctx context.Context, list models.TaskList) (int, error) {
	if !list.Valid() {
		return 0, ErrInvalidList
	}
	owner, err := s.Owner()
	if err != nil {
		return 0, err
	}
	var removed int
	err = s.mut.Mutate(ctx, "clear", func(tx *store.Tx) ([]models.Change, error) {
		done := true
		completed, err := tx.ListTasks(ctx, store.TaskFilter{UserID: owner, TaskList: &list, Completed: &done})
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(completed))
		changes := make([]models.Change, len(completed))
		for i := range completed {
			ids[i] = completed[i].ID
			changes[i] = models.Change{Before: &completed[i]}
		}
		n, err := tx.DeleteTasks(ctx, ids)
		if err != nil {
			return nil, err
		}
		removed = int(n)
		return changes, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// --- helpers ---

type taskReader interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]models.Task, error)
}

func ownedTask(ctx context.Context, r taskReader, owner, id string) (*models.Task, error) {
	task, err := r.GetTask(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if task.UserID != owner {
		return nil, ErrNotFound
	}
	return task, nil
}

// countsTowardCap reports whether a must-do task occupies a slot today.
func countsTowardCap(t models.Task, today string) bool {
	return !t.Completed || t.CompletedOn(today)
}

// takesSlot reports whether the update newly occupies a must-do slot in
// after's list.
func takesSlot(before, after models.Task, today string) bool {
	if after.Section != models.SectionMustDo || !countsTowardCap(after, today) {
		return false
	}
	heldBefore := before.Section == models.SectionMustDo &&
		before.TaskList == after.TaskList &&
		countsTowardCap(before, today)
	return !heldBefore
}

func countMustDo(ctx context.Context, r taskReader, owner string, list models.TaskList, exclude, today string) (int, error) {
	section := models.SectionMustDo
	tasks, err := r.ListTasks(ctx, store.TaskFilter{UserID: owner, TaskList: &list, Section: &section})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range tasks {
		if t.ID != exclude && countsTowardCap(t, today) {
			n++
		}
	}
	return n, nil
}

// stampCompletion fills in completedDate when the patch changes completion
// without naming a date.
func stampCompletion(p models.Patch, cur models.Task, today string) models.Patch {
	if p.Completed == nil || p.CompletedDate != nil || p.ClearCompletedDate {
		return p
	}
	switch {
	case *p.Completed && !cur.Completed:
		p.CompletedDate = &today
	case !*p.Completed:
		p.ClearCompletedDate = true
	}
	return p
}
