package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fentz26/morningtrio/internal/models"
	"github.com/fentz26/morningtrio/internal/store"
)

// Pull replaces the signed-in user's local rows with the server's set.
// Local rows the server does not have are deleted. On a fetch error the
// local store is left untouched. Queued pushes are flushed first so a pull
// never discards a write still on its way up.
func (e *Engine) Pull(ctx context.Context) error {
	sess := e.Session()
	if sess == nil {
		return ErrNoSession
	}

	e.pushes.wait()

	remoteTasks, err := e.remote.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("fetch tasks: %w", err)
	}

	var changes []models.Change
	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		local, err := tx.ListTasks(ctx, store.TaskFilter{UserID: sess.UserID})
		if err != nil {
			return err
		}
		onServer := make(map[string]bool, len(remoteTasks))
		for _, t := range remoteTasks {
			onServer[t.ID] = true
		}

		var gone []string
		for i := range local {
			if !onServer[local[i].ID] {
				gone = append(gone, local[i].ID)
				changes = append(changes, models.Change{Before: &local[i]})
			}
		}
		if _, err := tx.DeleteTasks(ctx, gone); err != nil {
			return err
		}

		for _, t := range remoteTasks {
			t = normalize(t, sess.UserID)
			if err := tx.PutTask(ctx, t); err != nil {
				return err
			}
			after := t
			changes = append(changes, models.Change{After: &after})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply pulled tasks: %w", err)
	}

	e.mu.Lock()
	if e.session != nil && e.session.ID == sess.ID {
		e.pulledFor = sess.ID
		e.stale = false
	}
	e.mu.Unlock()

	e.hub.Publish(Event{Op: "pull", Changes: changes})
	return nil
}

// Refresh forces a pull regardless of whether this session already pulled.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.Pull(ctx)
}

// PullOnAuthenticate pulls once per session id. Later calls for the same
// session are no-ops unless a failed push left local state stale.
func (e *Engine) PullOnAuthenticate(ctx context.Context) error {
	e.mu.Lock()
	need := e.session != nil && (e.pulledFor != e.session.ID || e.stale)
	e.mu.Unlock()
	if !need {
		return nil
	}
	return e.Pull(ctx)
}

// Start runs a background refresh every interval until Close.
// A non-positive interval disables it.
func (e *Engine) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}
	e.loops.Add(1)
	go func() {
		defer e.loops.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.ctx.Done():
				return
			case <-ticker.C:
				if e.Session() == nil {
					continue
				}
				ctx, cancel := context.WithTimeout(e.ctx, e.pushTimeout)
				if err := e.Pull(ctx); err != nil {
					log.Printf("sync: periodic refresh failed: %v", err)
				}
				cancel()
			}
		}
	}()
}

// normalize fills defaults for rows an older server may send without
// taskList or section, and forces ownership to the session user.
func normalize(t models.Task, userID string) models.Task {
	t.UserID = userID
	if !t.Section.Valid() {
		t.Section = models.SectionOther
	}
	if !t.TaskList.Valid() {
		t.TaskList = models.TaskListPersonal
	}
	if !t.Completed {
		t.CompletedDate = nil
	}
	return t
}
