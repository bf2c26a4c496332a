// Package sync keeps the local task store and the remote task service in
// step. Local writes commit first and are mirrored to the server in the
// background; the server's view is pulled down once per sign-in session.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	gosync "sync"
	"time"

	"github.com/fentz26/morningtrio/internal/models"
	"github.com/fentz26/morningtrio/internal/remote"
	"github.com/fentz26/morningtrio/internal/store"
)

// DefaultPushTimeout bounds a single background push.
const DefaultPushTimeout = 15 * time.Second

// ErrNoSession is returned by operations that need a signed-in user.
var ErrNoSession = errors.New("no active session")

// Remote is the subset of the task service the engine talks to.
type Remote interface {
	ListTasks(ctx context.Context) ([]models.Task, error)
	CreateTask(ctx context.Context, task models.Task) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, patch models.Patch) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	SyncTasks(ctx context.Context, items []models.SyncItem) (*models.SyncResult, error)
}

// Policy decides what happens locally when a background push fails.
type Policy string

const (
	// PolicyRollback restores the pre-mutation snapshot, unless a later
	// local write already replaced the row.
	PolicyRollback Policy = "rollback"
	// PolicyRepull keeps the local write and schedules a full re-pull.
	PolicyRepull Policy = "repull"
)

// ParsePolicy validates a policy name. An empty name selects repull, which
// keeps offline writes on the device.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyRepull:
		return PolicyRepull, nil
	case PolicyRollback:
		return PolicyRollback, nil
	}
	return "", fmt.Errorf("unknown failure policy %q (want rollback or repull)", s)
}

// Session identifies one sign-in.
type Session struct {
	ID     string
	UserID string
}

// Options configures an Engine.
type Options struct {
	Policy      Policy
	PushTimeout time.Duration
}

type pushJob struct {
	op     string
	change models.Change
}

// Engine mirrors local task writes to the remote service.
type Engine struct {
	store       *store.Store
	remote      Remote
	policy      Policy
	pushTimeout time.Duration
	hub         Hub

	mu        gosync.Mutex
	session   *Session
	pulledFor string
	stale     bool
	repulling bool

	qmu      gosync.Mutex
	queue    []pushJob
	draining bool

	pushes     *counter
	background *counter
	loops      gosync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates a sync engine over st and rem.
func NewEngine(st *store.Store, rem Remote, opts Options) *Engine {
	if opts.Policy == "" {
		opts.Policy = PolicyRepull
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = DefaultPushTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:       st,
		remote:      rem,
		policy:      opts.Policy,
		pushTimeout: opts.PushTimeout,
		pushes:      newCounter(),
		background:  newCounter(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetSession installs the active session. Nil signs out; local rows stay on
// disk but are no longer pushed.
func (e *Engine) SetSession(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s == nil {
		e.session = nil
		return
	}
	cp := *s
	e.session = &cp
}

// Session returns a copy of the active session, or nil.
func (e *Engine) Session() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	cp := *e.session
	return &cp
}

// UserID returns the signed-in user id, or "" when signed out.
func (e *Engine) UserID() string {
	if s := e.Session(); s != nil {
		return s.UserID
	}
	return ""
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (e *Engine) Subscribe(fn func(Event)) func() {
	return e.hub.Subscribe(fn)
}

// Mutate runs fn in a local transaction, notifies subscribers, and queues
// each reported change for a background push. It returns once the local
// write has committed; the push outcome is never reported to the caller.
func (e *Engine) Mutate(ctx context.Context, op string, fn func(tx *store.Tx) ([]models.Change, error)) error {
	var changes []models.Change
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		changes, err = fn(tx)
		return err
	})
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	e.hub.Publish(Event{Op: op, Changes: changes})

	sess := e.Session()
	if sess == nil {
		return nil
	}
	for _, ch := range changes {
		if ch.Owner() != sess.UserID {
			continue
		}
		e.enqueue(pushJob{op: op, change: ch})
	}
	return nil
}

// Wait blocks until queued pushes and any scheduled re-pull have finished.
func (e *Engine) Wait() {
	e.pushes.wait()
	e.background.wait()
}

// Drain is Wait bounded by ctx.
func (e *Engine) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels in-flight background work and stops the refresh loop.
func (e *Engine) Close() {
	e.cancel()
	e.loops.Wait()
}

// enqueue adds a job to the push queue. Jobs are sent one at a time in
// the order their local writes committed.
func (e *Engine) enqueue(j pushJob) {
	e.pushes.add()
	e.qmu.Lock()
	e.queue = append(e.queue, j)
	start := !e.draining
	e.draining = true
	e.qmu.Unlock()

	if start {
		go e.drain()
	}
}

func (e *Engine) drain() {
	for {
		e.qmu.Lock()
		if len(e.queue) == 0 {
			e.draining = false
			e.qmu.Unlock()
			return
		}
		j := e.queue[0]
		e.queue = e.queue[1:]
		e.qmu.Unlock()

		e.run(j)
		e.pushes.done()
	}
}

func (e *Engine) run(j pushJob) {
	ctx, cancel := context.WithTimeout(e.ctx, e.pushTimeout)
	defer cancel()

	err := e.push(ctx, j.change)
	if err == nil {
		return
	}
	log.Printf("sync: push %s %s failed: %v", j.op, j.change.ID(), err)

	switch e.policy {
	case PolicyRollback:
		e.rollback(j)
	default:
		e.scheduleRepull()
	}
}

// push sends one change. A create the server already knows is retried as
// a full update; a delete of an unknown id counts as done.
func (e *Engine) push(ctx context.Context, ch models.Change) error {
	switch {
	case ch.Before == nil:
		_, err := e.remote.CreateTask(ctx, *ch.After)
		if errors.Is(err, remote.ErrConflict) {
			_, err = e.remote.UpdateTask(ctx, ch.After.ID, overwrite(*ch.After))
		}
		return err
	case ch.After == nil:
		err := e.remote.DeleteTask(ctx, ch.Before.ID)
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		return err
	default:
		patch := models.Diff(*ch.Before, *ch.After)
		if patch.Empty() {
			return nil
		}
		_, err := e.remote.UpdateTask(ctx, ch.After.ID, patch)
		return err
	}
}

// rollback restores the pre-mutation snapshot if the row still holds the
// state the failed push tried to send.
func (e *Engine) rollback(j pushJob) {
	ch := j.change
	id := ch.ID()
	ctx, cancel := context.WithTimeout(context.Background(), e.pushTimeout)
	defer cancel()

	restored := false
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		cur, err := tx.GetTask(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			cur = nil
		} else if err != nil {
			return err
		}
		if !sameRow(cur, ch.After) {
			return nil
		}
		restored = true
		if ch.Before == nil {
			return tx.DeleteTask(ctx, id)
		}
		return tx.PutTask(ctx, *ch.Before)
	})
	if err != nil {
		log.Printf("sync: rollback %s %s failed: %v", j.op, id, err)
		e.markStale()
		return
	}
	if !restored {
		log.Printf("sync: rollback %s %s skipped, row changed since", j.op, id)
		e.markStale()
		return
	}
	e.hub.Publish(Event{Op: "rollback", Changes: []models.Change{{Before: ch.After, After: ch.Before}}})
}

func (e *Engine) markStale() {
	e.mu.Lock()
	e.stale = true
	e.mu.Unlock()
}

// scheduleRepull starts a background pull unless one is already running.
// If it fails the session stays stale and the next authenticate pulls.
func (e *Engine) scheduleRepull() {
	e.mu.Lock()
	e.stale = true
	if e.repulling {
		e.mu.Unlock()
		return
	}
	e.repulling = true
	e.mu.Unlock()

	e.background.add()
	go func() {
		defer e.background.done()
		defer func() {
			e.mu.Lock()
			e.repulling = false
			e.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(e.ctx, e.pushTimeout)
		defer cancel()
		if err := e.Pull(ctx); err != nil {
			log.Printf("sync: re-pull failed: %v", err)
		}
	}()
}

func sameRow(cur, want *models.Task) bool {
	if cur == nil || want == nil {
		return cur == nil && want == nil
	}
	return cur.Equal(*want)
}

// overwrite builds a patch that sets every mutable field of t.
func overwrite(t models.Task) models.Patch {
	p := models.Patch{
		Text:        &t.Text,
		Completed:   &t.Completed,
		Section:     &t.Section,
		TaskList:    &t.TaskList,
		OrderIndex:  &t.OrderIndex,
		CreatedDate: &t.CreatedDate,
	}
	if t.CompletedDate == nil {
		p.ClearCompletedDate = true
	} else {
		p.CompletedDate = t.CompletedDate
	}
	return p
}
