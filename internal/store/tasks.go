package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/fentz26/morningtrio/internal/models"
)

// TaskFilter narrows a task query. Nil fields match everything.
type TaskFilter struct {
	UserID    string
	TaskList  *models.TaskList
	Section   *models.Section
	Completed *bool
}

// taskTable implements task operations against either the database or an
// open transaction.
type taskTable struct {
	q sqlx.ExtContext
}

const taskColumns = `id, user_id, text, completed, completed_date, section, task_list, order_index, created_date`

// GetTask retrieves a task by id.
func (t taskTable) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	err := sqlx.GetContext(ctx, t.q, &task, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query task %s: %w", id, err)
	}
	return &task, nil
}

// InsertTask inserts a new task. It returns ErrExists if the id is taken.
func (t taskTable) InsertTask(ctx context.Context, task models.Task) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.UserID, task.Text, task.Completed, task.CompletedDate,
		task.Section, task.TaskList, task.OrderIndex, task.CreatedDate,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "unique constraint") {
			return ErrExists
		}
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}
	return nil
}

// PutTask inserts or replaces a task.
func (t taskTable) PutTask(ctx context.Context, task models.Task) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT OR REPLACE INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.UserID, task.Text, task.Completed, task.CompletedDate,
		task.Section, task.TaskList, task.OrderIndex, task.CreatedDate,
	)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", task.ID, err)
	}
	return nil
}

// UpdateTask applies a partial patch to a task and returns the new row.
func (t taskTable) UpdateTask(ctx context.Context, id string, patch models.Patch) (*models.Task, error) {
	current, err := t.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	next := patch.Apply(*current)

	_, err = t.q.ExecContext(ctx, `
		UPDATE tasks SET
			text = ?, completed = ?, completed_date = ?, section = ?,
			task_list = ?, order_index = ?, created_date = ?
		WHERE id = ?`,
		next.Text, next.Completed, next.CompletedDate, next.Section,
		next.TaskList, next.OrderIndex, next.CreatedDate,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	return &next, nil
}

// DeleteTask removes a task by id.
func (t taskTable) DeleteTask(ctx context.Context, id string) error {
	result, err := t.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTasks removes every task whose id is listed and reports how many went.
func (t taskTable) DeleteTasks(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM tasks WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("build bulk delete: %w", err)
	}
	result, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk delete tasks: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// ListTasks returns tasks matching the filter ordered by order_index. Ties
// keep insertion order.
func (t taskTable) ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	var conditions []string
	var args []interface{}

	conditions = append(conditions, "user_id = ?")
	args = append(args, filter.UserID)

	if filter.TaskList != nil {
		conditions = append(conditions, "task_list = ?")
		args = append(args, *filter.TaskList)
	}
	if filter.Section != nil {
		conditions = append(conditions, "section = ?")
		args = append(args, *filter.Section)
	}
	if filter.Completed != nil {
		conditions = append(conditions, "completed = ?")
		args = append(args, *filter.Completed)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY order_index ASC, rowid ASC`

	var tasks []models.Task
	if err := sqlx.SelectContext(ctx, t.q, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	return tasks, nil
}

// MaxOrderIndex returns the highest order_index in a (list, section)
// partition, or -1 when the partition is empty.
func (t taskTable) MaxOrderIndex(ctx context.Context, userID string, list models.TaskList, section models.Section) (int, error) {
	var max sql.NullInt64
	err := sqlx.GetContext(ctx, t.q, &max,
		`SELECT MAX(order_index) FROM tasks WHERE user_id = ? AND task_list = ? AND section = ?`,
		userID, list, section,
	)
	if err != nil {
		return 0, fmt.Errorf("query max order_index: %w", err)
	}
	if !max.Valid {
		return -1, nil
	}
	return int(max.Int64), nil
}

// SetOrderIndex sets order_index for id only if it belongs to the given
// partition. It reports whether a row was changed.
func (t taskTable) SetOrderIndex(ctx context.Context, userID string, list models.TaskList, section models.Section, id string, index int) (bool, error) {
	result, err := t.q.ExecContext(ctx,
		`UPDATE tasks SET order_index = ? WHERE id = ? AND user_id = ? AND task_list = ? AND section = ?`,
		index, id, userID, list, section,
	)
	if err != nil {
		return false, fmt.Errorf("reorder task %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ReassignOwner moves every task owned by from to to.
func (t taskTable) ReassignOwner(ctx context.Context, from, to string) (int64, error) {
	result, err := t.q.ExecContext(ctx, `UPDATE tasks SET user_id = ? WHERE user_id = ?`, to, from)
	if err != nil {
		return 0, fmt.Errorf("reassign tasks from %s: %w", from, err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// CountTasks returns how many tasks an owner has.
func (t taskTable) CountTasks(ctx context.Context, userID string) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, t.q, &n, `SELECT COUNT(*) FROM tasks WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}
