package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fentz26/morningtrio/internal/auth"
	"github.com/fentz26/morningtrio/internal/models"
	"github.com/fentz26/morningtrio/internal/planning"
	"github.com/fentz26/morningtrio/internal/remote"
	"github.com/fentz26/morningtrio/internal/store"
	"github.com/fentz26/morningtrio/internal/sync"
	"github.com/fentz26/morningtrio/internal/tasks"
)

// app is the on-device wiring shared by the client commands.
type app struct {
	store   *store.Store
	auth    *auth.Manager
	remote  *remote.Client
	engine  *sync.Engine
	tasks   *tasks.Service
	tracker *planning.Tracker
}

func openApp() (*app, error) {
	policy, err := sync.ParsePolicy(cfg.Client.FailurePolicy)
	if err != nil {
		return nil, err
	}

	st, err := store.New(cfg.Client.DB)
	if err != nil {
		return nil, err
	}

	ring, err := auth.OpenKeyring(cfg.Client.KeyringDir)
	if err != nil {
		st.Close()
		return nil, err
	}
	mgr, err := auth.NewManager(ring)
	if err != nil {
		st.Close()
		return nil, err
	}

	client := remote.NewClient(cfg.Client.API, mgr.Token, cfg.Client.RequestTimeout)
	engine := sync.NewEngine(st, client, sync.Options{
		Policy:      policy,
		PushTimeout: cfg.Client.PushTimeout,
	})
	if s := mgr.Current(); s != nil {
		engine.SetSession(&sync.Session{ID: s.ID, UserID: s.UserID})
	}

	svc := tasks.NewService(st, engine, tasks.Options{
		Owner:          engine.UserID,
		AllowAnonymous: cfg.Client.AllowAnonymous,
	})

	return &app{
		store:   st,
		auth:    mgr,
		remote:  client,
		engine:  engine,
		tasks:   svc,
		tracker: planning.NewTracker(st, svc.Owner, nil),
	}, nil
}

// Close lets queued pushes land, bounded by the push timeout, then shuts
// everything down.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Client.PushTimeout)
	defer cancel()
	if err := a.engine.Drain(ctx); err != nil {
		log.Printf("Pending sync did not finish: %v", err)
	}
	a.engine.Close()
	if err := a.store.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}
}

// resolveID finds the task whose id starts with prefix.
func (a *app) resolveID(ctx context.Context, prefix string) (string, error) {
	var matches []string
	for _, l := range models.TaskLists {
		ts, err := a.tasks.ListTasks(ctx, l)
		if err != nil {
			return "", err
		}
		for _, t := range ts {
			if t.ID == prefix {
				return t.ID, nil
			}
			if strings.HasPrefix(t.ID, prefix) {
				matches = append(matches, t.ID)
			}
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no task matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q matches %d tasks; use more characters", prefix, len(matches))
	}
}

func parseList(s string) (models.TaskList, error) {
	l := models.TaskList(strings.ToLower(s))
	if !l.Valid() {
		return "", fmt.Errorf("unknown list %q (personal or work)", s)
	}
	return l, nil
}

func parseSection(s string) (models.Section, error) {
	switch strings.ToLower(s) {
	case "must", "mustdo", "must-do":
		return models.SectionMustDo, nil
	case "other":
		return models.SectionOther, nil
	}
	return "", fmt.Errorf("unknown section %q (must or other)", s)
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
