// Package planning tracks whether each task list has been planned today
// and drives the morning planning ritual.
package planning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/morningtrio/internal/models"
	"github.com/fentz26/morningtrio/internal/store"
)

// CurrentVersion is the planning-state envelope version this build writes.
const CurrentVersion = 2

// StateStore persists versioned planning-state blobs.
type StateStore interface {
	GetAppState(ctx context.Context, owner string) (*store.StateRecord, error)
	PutAppState(ctx context.Context, rec store.StateRecord) error
}

// v1State is the single-list shape written before task lists existed.
type v1State struct {
	CurrentDate        string  `json:"currentDate"`
	LastPlanningDate   *string `json:"lastPlanningDate"`
	IsPlanningComplete bool    `json:"isPlanningComplete"`
}

// upgrades maps a version to the function that rewrites its data to the
// next version.
var upgrades = map[int]func([]byte) ([]byte, error){
	1: upgradeV1,
}

// upgradeV1 carries the single-list status over to the personal list.
// The work list starts unplanned.
func upgradeV1(data []byte) ([]byte, error) {
	var old v1State
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, err
	}
	next := models.AppState{
		CurrentDate: old.CurrentDate,
		Lists: map[models.TaskList]models.ListPlanning{
			models.TaskListPersonal: {
				LastPlanningDate:   old.LastPlanningDate,
				IsPlanningComplete: old.IsPlanningComplete,
			},
			models.TaskListWork: {},
		},
	}
	return json.Marshal(next)
}

// Decode migrates rec forward to the current version and parses it.
// Version 0 is read as the unversioned v1 shape.
func Decode(rec store.StateRecord) (models.AppState, error) {
	v := rec.Version
	if v < 1 {
		v = 1
	}
	if v > CurrentVersion {
		return models.AppState{}, fmt.Errorf("%w: v%d", ErrFutureVersion, v)
	}

	data := []byte(rec.Data)
	for v < CurrentVersion {
		up, ok := upgrades[v]
		if !ok {
			return models.AppState{}, fmt.Errorf("no upgrade from planning state v%d", v)
		}
		var err error
		if data, err = up(data); err != nil {
			return models.AppState{}, fmt.Errorf("upgrade planning state v%d: %w", v, err)
		}
		v++
	}

	var state models.AppState
	if err := json.Unmarshal(data, &state); err != nil {
		return models.AppState{}, fmt.Errorf("parse planning state: %w", err)
	}
	if state.Lists == nil {
		state.Lists = make(map[models.TaskList]models.ListPlanning)
	}
	return state, nil
}

// Encode wraps state in a current-version record for owner.
func Encode(owner string, state models.AppState) (store.StateRecord, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return store.StateRecord{}, fmt.Errorf("encode planning state: %w", err)
	}
	return store.StateRecord{Owner: owner, Version: CurrentVersion, Data: string(data)}, nil
}

// Initial is the state of an owner who has never planned.
func Initial(today string) models.AppState {
	return models.AppState{
		CurrentDate: today,
		Lists:       make(map[models.TaskList]models.ListPlanning),
	}
}

// Rollover moves state to today. Every list becomes unplanned while its
// last planning date is kept. It reports whether anything changed.
func Rollover(state models.AppState, today string) (models.AppState, bool) {
	if state.CurrentDate == today {
		return state, false
	}
	lists := make(map[models.TaskList]models.ListPlanning, len(state.Lists))
	for l, p := range state.Lists {
		p.IsPlanningComplete = false
		lists[l] = p
	}
	return models.AppState{CurrentDate: today, Lists: lists}, true
}

// NeedsPlanning reports whether list should run the ritual today.
func NeedsPlanning(state models.AppState, list models.TaskList, today string) bool {
	p := state.List(list)
	newDay := p.LastPlanningDate == nil || *p.LastPlanningDate != today
	return newDay && !p.IsPlanningComplete
}

// Tracker loads and updates one owner's planning state.
type Tracker struct {
	store StateStore
	owner func() (string, error)
	now   func() time.Time
}

// NewTracker creates a tracker. owner resolves whose state to use; now
// defaults to time.Now.
func NewTracker(st StateStore, owner func() (string, error), now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{store: st, owner: owner, now: now}
}

func (t *Tracker) today() string {
	return models.FormatDate(t.now())
}

// Load returns the owner's state rolled over to today. A rollover is
// persisted immediately.
func (t *Tracker) Load(ctx context.Context) (models.AppState, error) {
	owner, err := t.owner()
	if err != nil {
		return models.AppState{}, err
	}
	today := t.today()

	rec, err := t.store.GetAppState(ctx, owner)
	if errors.Is(err, store.ErrNotFound) {
		return Initial(today), nil
	}
	if err != nil {
		return models.AppState{}, err
	}

	state, err := Decode(*rec)
	if err != nil {
		return models.AppState{}, err
	}
	state, rolled := Rollover(state, today)
	if rolled || rec.Version != CurrentVersion {
		if err := t.save(ctx, owner, state); err != nil {
			return models.AppState{}, err
		}
	}
	return state, nil
}

// NeedsPlanning reports whether list should run the ritual today.
func (t *Tracker) NeedsPlanning(ctx context.Context, list models.TaskList) (bool, error) {
	state, err := t.Load(ctx)
	if err != nil {
		return false, err
	}
	return NeedsPlanning(state, list, t.today()), nil
}

// Complete records that list was planned today.
func (t *Tracker) Complete(ctx context.Context, list models.TaskList) error {
	today := t.today()
	return t.update(ctx, list, func(p *models.ListPlanning) {
		p.LastPlanningDate = &today
		p.IsPlanningComplete = true
	})
}

// Skip marks list done for today without recording a planning date.
func (t *Tracker) Skip(ctx context.Context, list models.TaskList) error {
	return t.update(ctx, list, func(p *models.ListPlanning) {
		p.IsPlanningComplete = true
	})
}

// Reset makes list unplanned again so the ritual runs once more today.
func (t *Tracker) Reset(ctx context.Context, list models.TaskList) error {
	return t.update(ctx, list, func(p *models.ListPlanning) {
		p.LastPlanningDate = nil
		p.IsPlanningComplete = false
	})
}

func (t *Tracker) update(ctx context.Context, list models.TaskList, fn func(*models.ListPlanning)) error {
	state, err := t.Load(ctx)
	if err != nil {
		return err
	}
	owner, err := t.owner()
	if err != nil {
		return err
	}
	p := state.Lists[list]
	fn(&p)
	state.Lists[list] = p
	return t.save(ctx, owner, state)
}

func (t *Tracker) save(ctx context.Context, owner string, state models.AppState) error {
	rec, err := Encode(owner, state)
	if err != nil {
		return err
	}
	return t.store.PutAppState(ctx, rec)
}
