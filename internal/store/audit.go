package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// auditTimeLayout is fixed-width so timestamps sort lexically.
const auditTimeLayout = "2006-01-02T15:04:05.000000000Z"

// AuditEntry is one recorded task mutation on the server.
type AuditEntry struct {
	ID         string `db:"id"`
	UserID     string `db:"user_id"`
	Action     string `db:"action"`
	InputsHash string `db:"inputs_hash"`
	Outcome    string `db:"outcome"`
	TaskID     string `db:"task_id"`
	Details    string `db:"details"`
	Timestamp  string `db:"timestamp"`
}

// WriteAudit appends an audit entry.
func (s *Store) WriteAudit(ctx context.Context, userID, action, inputsHash, outcome, taskID, details string) (*AuditEntry, error) {
	e := &AuditEntry{
		ID:         uuid.NewString(),
		UserID:     userID,
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		TaskID:     taskID,
		Details:    details,
		Timestamp:  time.Now().UTC().Format(auditTimeLayout),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, user_id, action, inputs_hash, outcome, task_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Action, e.InputsHash, e.Outcome, e.TaskID, e.Details, e.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}
	return e, nil
}

// ListAudit returns the newest audit entries for a user.
func (s *Store) ListAudit(ctx context.Context, userID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []AuditEntry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT id, user_id, action, inputs_hash, outcome, COALESCE(task_id, '') AS task_id, COALESCE(details, '') AS details, timestamp
		 FROM audit_log WHERE user_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	return entries, nil
}
