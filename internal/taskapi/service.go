// Package taskapi provides the HTTP API and service layer of the
// authoritative MorningTrio task service. Every operation is scoped to
// the authenticated user.
package taskapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/morningtrio/internal/audit"
	"github.com/fentz26/morningtrio/internal/models"
	"github.com/fentz26/morningtrio/internal/store"
)

// Service provides the task service business logic.
type Service struct {
	store *store.Store
	audit *audit.Writer
	now   func() time.Time
}

// NewService creates a new task service. aw may be nil.
func NewService(s *store.Store, aw *audit.Writer) *Service {
	return &Service{
		store: s,
		audit: aw,
		now:   time.Now,
	}
}

// CreateRequest is the body of POST /tasks. Missing optional fields take
// defaults: section other, list personal, created today, appended last.
type CreateRequest struct {
	ID            string          `json:"id"`
	Text          string          `json:"text"`
	Completed     bool            `json:"completed"`
	CompletedDate *string         `json:"completedDate"`
	Section       models.Section  `json:"section"`
	TaskList      models.TaskList `json:"taskList"`
	OrderIndex    *int            `json:"orderIndex"`
	CreatedDate   string          `json:"createdDate"`
}

// Ping checks the backing database.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) today() string {
	return models.FormatDate(s.now())
}

// ListTasks returns every task userID owns.
func (s *Service) ListTasks(ctx context.Context, userID string) ([]models.Task, error) {
	return s.store.ListTasks(ctx, store.TaskFilter{UserID: userID})
}

// CreateTask stores a new task under the caller-chosen id. An id the
// caller already owns is ErrConflict; one owned by another user is
// ErrNotFound.
func (s *Service) CreateTask(ctx context.Context, userID string, req CreateRequest) (*models.Task, error) {
	task, err := s.buildTask(userID, req)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx *store.Tx) error {
		if req.OrderIndex == nil {
			max, err := tx.MaxOrderIndex(ctx, userID, task.TaskList, task.Section)
			if err != nil {
				return err
			}
			task.OrderIndex = max + 1
		}
		err := tx.InsertTask(ctx, task)
		if !errors.Is(err, store.ErrExists) {
			return err
		}
		// Another user's id must look like any unknown id.
		if _, err := owned(ctx, tx, userID, task.ID); err != nil {
			return err
		}
		return ErrConflict
	})
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		s.audit.Record(ctx, userID, "task.create", req, audit.OutcomeError, task.ID, err.Error())
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, userID, "task.create", req, audit.OutcomeSuccess, task.ID, "")
	return &task, nil
}

// UpdateTask merges a partial update into an owned task. Setting completed
// without a date stamps today; clearing completed clears the date.
func (s *Service) UpdateTask(ctx context.Context, userID, id string, patch models.Patch) (*models.Task, error) {
	if err := validatePatch(&patch); err != nil {
		return nil, err
	}

	var updated models.Task
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		cur, err := owned(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if patch.Completed != nil && patch.CompletedDate == nil && !patch.ClearCompletedDate {
			if *patch.Completed && !cur.Completed {
				today := s.today()
				patch.CompletedDate = &today
			} else if !*patch.Completed {
				patch.ClearCompletedDate = true
			}
		}
		next, err := tx.UpdateTask(ctx, id, patch)
		if err != nil {
			return err
		}
		updated = *next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, userID, "task.update", patch, audit.OutcomeSuccess, id, "")
	return &updated, nil
}

// DeleteTask removes an owned task.
func (s *Service) DeleteTask(ctx context.Context, userID, id string) error {
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := owned(ctx, tx, userID, id); err != nil {
			return err
		}
		return tx.DeleteTask(ctx, id)
	})
	if err != nil {
		return err
	}
	s.audit.Record(ctx, userID, "task.delete", map[string]string{"id": id}, audit.OutcomeSuccess, id, "")
	return nil
}

// SyncTasks upserts or deletes each item and returns per-item outcomes plus
// the caller's full task set afterwards. Invalid items and items owned by
// someone else are reported as errors without failing the batch.
func (s *Service) SyncTasks(ctx context.Context, userID string, items []models.SyncItem) (*models.SyncResult, error) {
	res := &models.SyncResult{Results: make([]models.SyncItemResult, 0, len(items))}

	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		for _, item := range items {
			action, err := s.syncItem(ctx, tx, userID, item)
			if err != nil && !isClientError(err) {
				return err
			}
			if err != nil {
				action = models.SyncActionError
			}
			res.Results = append(res.Results, models.SyncItemResult{ID: item.ID, Action: action})
		}
		tasks, err := tx.ListTasks(ctx, store.TaskFilter{UserID: userID})
		if err != nil {
			return err
		}
		res.Tasks = tasks
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Tasks == nil {
		res.Tasks = []models.Task{}
	}

	s.audit.Record(ctx, userID, "task.sync", items, audit.OutcomeSuccess, "", fmt.Sprintf("%d items", len(items)))
	return res, nil
}

func (s *Service) syncItem(ctx context.Context, tx *store.Tx, userID string, item models.SyncItem) (string, error) {
	if strings.TrimSpace(item.ID) == "" {
		return "", fmt.Errorf("%w: id is required", ErrBadRequest)
	}

	existing, err := tx.GetTask(ctx, item.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		existing = nil
	case err != nil:
		return "", err
	case existing.UserID != userID:
		return "", ErrNotFound
	}

	if item.Deleted {
		if existing != nil {
			if err := tx.DeleteTask(ctx, item.ID); err != nil {
				return "", err
			}
		}
		return models.SyncActionDeleted, nil
	}

	task, err := s.buildTask(userID, CreateRequest{
		ID:            item.ID,
		Text:          item.Text,
		Completed:     item.Completed,
		CompletedDate: item.CompletedDate,
		Section:       item.Section,
		TaskList:      item.TaskList,
		OrderIndex:    &item.OrderIndex,
		CreatedDate:   item.CreatedDate,
	})
	if err != nil {
		return "", err
	}
	if err := tx.PutTask(ctx, task); err != nil {
		return "", err
	}
	return models.SyncActionSynced, nil
}

// buildTask validates a create request and fills defaults.
func (s *Service) buildTask(userID string, req CreateRequest) (models.Task, error) {
	id := strings.TrimSpace(req.ID)
	text := strings.TrimSpace(req.Text)
	if id == "" {
		return models.Task{}, fmt.Errorf("%w: id is required", ErrBadRequest)
	}
	if text == "" {
		return models.Task{}, fmt.Errorf("%w: text is required", ErrBadRequest)
	}

	task := models.Task{
		ID:          id,
		UserID:      userID,
		Text:        text,
		Completed:   req.Completed,
		Section:     req.Section,
		TaskList:    req.TaskList,
		CreatedDate: req.CreatedDate,
	}
	if task.Section == "" {
		task.Section = models.SectionOther
	}
	if task.TaskList == "" {
		task.TaskList = models.TaskListPersonal
	}
	if !task.Section.Valid() {
		return models.Task{}, fmt.Errorf("%w: unknown section %q", ErrBadRequest, task.Section)
	}
	if !task.TaskList.Valid() {
		return models.Task{}, fmt.Errorf("%w: unknown task list %q", ErrBadRequest, task.TaskList)
	}
	if task.CreatedDate == "" {
		task.CreatedDate = s.today()
	}
	if req.OrderIndex != nil {
		task.OrderIndex = *req.OrderIndex
	}
	if task.Completed {
		if req.CompletedDate != nil {
			d := *req.CompletedDate
			task.CompletedDate = &d
		} else {
			task.CompletedDate = models.StringPtr(s.today())
		}
	}
	return task, nil
}

func validatePatch(p *models.Patch) error {
	if p.Empty() {
		return fmt.Errorf("%w: no fields to update", ErrBadRequest)
	}
	if p.Text != nil {
		text := strings.TrimSpace(*p.Text)
		if text == "" {
			return fmt.Errorf("%w: text is empty", ErrBadRequest)
		}
		p.Text = &text
	}
	if p.Section != nil && !p.Section.Valid() {
		return fmt.Errorf("%w: unknown section %q", ErrBadRequest, *p.Section)
	}
	if p.TaskList != nil && !p.TaskList.Valid() {
		return fmt.Errorf("%w: unknown task list %q", ErrBadRequest, *p.TaskList)
	}
	return nil
}

func owned(ctx context.Context, tx *store.Tx, userID, id string) (*models.Task, error) {
	task, err := tx.GetTask(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, ErrNotFound
	}
	return task, nil
}

func isClientError(err error) bool {
	return errors.Is(err, ErrBadRequest) || errors.Is(err, ErrNotFound)
}
