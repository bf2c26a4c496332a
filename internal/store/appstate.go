package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// StateRecord is a versioned planning-state blob for one owner.
type StateRecord struct {
	Owner   string `db:"owner"`
	Version int    `db:"version"`
	Data    string `db:"data"`
}

type stateTable struct {
	q sqlx.ExtContext
}

// GetAppState returns the stored planning-state blob for owner.
func (t stateTable) GetAppState(ctx context.Context, owner string) (*StateRecord, error) {
	var rec StateRecord
	err := sqlx.GetContext(ctx, t.q, &rec, `SELECT owner, version, data FROM app_state WHERE owner = ?`, owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query app state %s: %w", owner, err)
	}
	return &rec, nil
}

// PutAppState writes the planning-state blob for owner.
func (t stateTable) PutAppState(ctx context.Context, rec StateRecord) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT OR REPLACE INTO app_state (owner, version, data) VALUES (?, ?, ?)`,
		rec.Owner, rec.Version, rec.Data,
	)
	if err != nil {
		return fmt.Errorf("write app state %s: %w", rec.Owner, err)
	}
	return nil
}
