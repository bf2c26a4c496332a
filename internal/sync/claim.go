package sync

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/fentz26/morningtrio/internal/models"
	"github.com/fentz26/morningtrio/internal/store"
)

// Decision is the user's answer to the claim prompt.
type Decision int

const (
	// DecisionClaim adopts locally created tasks into the account.
	DecisionClaim Decision = iota + 1
	// DecisionDiscard deletes them.
	DecisionDiscard
)

// ErrClaimUndecided is returned when local tasks are waiting to be claimed
// and no decider was supplied.
var ErrClaimUndecided = errors.New("local tasks need a claim decision")

// ClaimDecider asks the user what to do with tasks created while signed
// out. It is called at most once per Authenticate.
type ClaimDecider func(ctx context.Context, pending []models.Task) (Decision, error)

// Authenticate installs sess, resolves any pending claim, and pulls if this
// session has not pulled yet. A failed claim is reverted locally so the
// question comes back on the next sign-in; the pull still runs.
func (e *Engine) Authenticate(ctx context.Context, sess Session, decide ClaimDecider) error {
	e.SetSession(&sess)

	pending, err := e.PendingClaim(ctx)
	if err != nil {
		return err
	}

	var claimErr error
	if len(pending) > 0 {
		if decide == nil {
			return ErrClaimUndecided
		}
		d, err := decide(ctx, pending)
		if err != nil {
			return fmt.Errorf("claim prompt: %w", err)
		}
		switch d {
		case DecisionClaim:
			_, claimErr = e.Claim(ctx)
		case DecisionDiscard:
			_, claimErr = e.Discard(ctx)
		default:
			return ErrClaimUndecided
		}
	}

	if err := e.PullOnAuthenticate(ctx); err != nil {
		return errors.Join(claimErr, err)
	}
	return claimErr
}

// PendingClaim returns the tasks created while signed out.
func (e *Engine) PendingClaim(ctx context.Context) ([]models.Task, error) {
	return e.store.ListTasks(ctx, store.TaskFilter{UserID: models.LocalOwner})
}

// Claim moves every locally owned task to the signed-in user in one
// transaction and uploads them in one bulk sync. If the upload fails the
// ownership change is reverted. Items the server rejects individually are
// returned to local ownership. It reports how many tasks were adopted.
func (e *Engine) Claim(ctx context.Context) (int, error) {
	sess := e.Session()
	if sess == nil {
		return 0, ErrNoSession
	}

	var claimed []models.Task
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		local, err := tx.ListTasks(ctx, store.TaskFilter{UserID: models.LocalOwner})
		if err != nil || len(local) == 0 {
			return err
		}
		if _, err := tx.ReassignOwner(ctx, models.LocalOwner, sess.UserID); err != nil {
			return err
		}
		if err := adoptPlanningState(ctx, tx, sess.UserID); err != nil {
			return err
		}
		for i := range local {
			local[i].UserID = sess.UserID
		}
		claimed = local
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("claim local tasks: %w", err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	items := make([]models.SyncItem, len(claimed))
	for i, t := range claimed {
		items[i] = models.SyncItem{Task: t}
	}

	res, err := e.remote.SyncTasks(ctx, items)
	if err != nil {
		ids := make([]string, len(claimed))
		for i, t := range claimed {
			ids[i] = t.ID
		}
		if rerr := e.release(ctx, sess.UserID, ids); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return 0, fmt.Errorf("upload claimed tasks: %w", err)
	}

	var rejected []string
	for _, r := range res.Results {
		if r.Action == models.SyncActionError {
			rejected = append(rejected, r.ID)
		}
	}
	if len(rejected) > 0 {
		log.Printf("sync: server rejected %d claimed tasks, keeping them local", len(rejected))
		if err := e.release(ctx, sess.UserID, rejected); err != nil {
			return 0, fmt.Errorf("release rejected tasks: %w", err)
		}
	}

	changes := make([]models.Change, 0, len(claimed))
	for i := range claimed {
		changes = append(changes, models.Change{After: &claimed[i]})
	}
	e.hub.Publish(Event{Op: "claim", Changes: changes})
	return len(claimed) - len(rejected), nil
}

// Discard deletes every locally owned task and reports how many went.
func (e *Engine) Discard(ctx context.Context) (int, error) {
	var changes []models.Change
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		local, err := tx.ListTasks(ctx, store.TaskFilter{UserID: models.LocalOwner})
		if err != nil {
			return err
		}
		ids := make([]string, len(local))
		for i := range local {
			ids[i] = local[i].ID
			changes = append(changes, models.Change{Before: &local[i]})
		}
		_, err = tx.DeleteTasks(ctx, ids)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("discard local tasks: %w", err)
	}
	if len(changes) > 0 {
		e.hub.Publish(Event{Op: "discard", Changes: changes})
	}
	return len(changes), nil
}

// release hands ids owned by userID back to the local owner.
func (e *Engine) release(ctx context.Context, userID string, ids []string) error {
	return e.store.InTx(ctx, func(tx *store.Tx) error {
		for _, id := range ids {
			t, err := tx.GetTask(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if t.UserID != userID {
				continue
			}
			t.UserID = models.LocalOwner
			if err := tx.PutTask(ctx, *t); err != nil {
				return err
			}
		}
		return nil
	})
}

// adoptPlanningState gives userID the device's signed-out planning record
// so a day already planned is not planned again. A record userID already
// has is kept.
func adoptPlanningState(ctx context.Context, tx *store.Tx, userID string) error {
	if _, err := tx.GetAppState(ctx, userID); !errors.Is(err, store.ErrNotFound) {
		return err
	}
	rec, err := tx.GetAppState(ctx, models.LocalOwner)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	rec.Owner = userID
	return tx.PutAppState(ctx, *rec)
}
