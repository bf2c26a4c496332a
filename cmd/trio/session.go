package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/fentz26/morningtrio/internal/models"
	"github.com/fentz26/morningtrio/internal/remote"
	"github.com/fentz26/morningtrio/internal/sync"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and sync this device",
	Long: `Signs in with an access token. Tasks created while signed out can be
added to the account or discarded; then the account's tasks are pulled.`,
	RunE: withApp(runLogin),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out of this device",
	RunE:  withApp(runLogout),
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replace local tasks with the account's tasks",
	RunE:  withApp(runSync),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sign-in and service status",
	RunE:  withApp(runStatus),
}

var (
	loginToken   string
	loginClaim   bool
	loginDiscard bool
)

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Access token (required)")
	loginCmd.Flags().BoolVar(&loginClaim, "claim", false, "Add signed-out tasks to the account without asking")
	loginCmd.Flags().BoolVar(&loginDiscard, "discard", false, "Discard signed-out tasks without asking")
	loginCmd.MarkFlagRequired("token")
	loginCmd.MarkFlagsMutuallyExclusive("claim", "discard")
}

func runLogin(ctx context.Context, a *app, args []string) error {
	probe := remote.NewClient(cfg.Client.API, func() string { return loginToken }, cfg.Client.RequestTimeout)
	userID, err := probe.Me(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrUnauthenticated) {
			return fmt.Errorf("token rejected by %s", cfg.Client.API)
		}
		return fmt.Errorf("failed to reach %s: %w", cfg.Client.API, err)
	}

	s, err := a.auth.Login(loginToken, userID)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s\n", userID)

	decide := promptClaim
	switch {
	case loginClaim:
		decide = fixedDecision(sync.DecisionClaim)
	case loginDiscard:
		decide = fixedDecision(sync.DecisionDiscard)
	}

	err = a.engine.Authenticate(ctx, sync.Session{ID: s.ID, UserID: s.UserID}, decide)
	if err != nil {
		return fmt.Errorf("signed in, but sync did not finish: %w", err)
	}

	n, err := countTasks(ctx, a)
	if err != nil {
		return err
	}
	fmt.Printf("Synced %d task(s)\n", n)
	return nil
}

func promptClaim(ctx context.Context, pending []models.Task) (sync.Decision, error) {
	claim := true
	err := huh.NewConfirm().
		Title(fmt.Sprintf("You have %d task(s) created while signed out.", len(pending))).
		Description("Add them to your account, or discard them?").
		Affirmative("Add to account").
		Negative("Discard").
		Value(&claim).
		Run()
	if err != nil {
		return 0, err
	}
	if claim {
		return sync.DecisionClaim, nil
	}
	return sync.DecisionDiscard, nil
}

func fixedDecision(d sync.Decision) sync.ClaimDecider {
	return func(context.Context, []models.Task) (sync.Decision, error) {
		return d, nil
	}
}

func runLogout(ctx context.Context, a *app, args []string) error {
	cur := a.auth.Current()
	if cur == nil {
		fmt.Println("Not signed in")
		return nil
	}
	// Let anything already queued reach the account first.
	if err := a.engine.Drain(ctx); err != nil {
		return err
	}
	if err := a.auth.Logout(); err != nil {
		return err
	}
	a.engine.SetSession(nil)
	fmt.Printf("✓ Signed out from %s\n", cur.UserID)
	return nil
}

func runSync(ctx context.Context, a *app, args []string) error {
	if !a.auth.IsAuthenticated() {
		return fmt.Errorf("not signed in; use 'trio login'")
	}
	if err := a.engine.Refresh(ctx); err != nil {
		return err
	}
	n, err := countTasks(ctx, a)
	if err != nil {
		return err
	}
	fmt.Printf("Synced %d task(s)\n", n)
	return nil
}

func runStatus(ctx context.Context, a *app, args []string) error {
	fmt.Printf("Service:  %s ", cfg.Client.API)
	if h, err := a.remote.Health(ctx); err != nil {
		fmt.Printf("(unreachable: %v)\n", err)
	} else {
		fmt.Printf("(db %s, version %s)\n", h.DB, h.Version)
	}

	if cur := a.auth.Current(); cur != nil {
		fmt.Printf("Account:  %s (session %s)\n", cur.UserID, truncateID(cur.ID))
	} else {
		fmt.Println("Account:  not signed in")
	}
	fmt.Printf("Policy:   %s on failed sync\n", cfg.Client.FailurePolicy)

	pending, err := a.engine.PendingClaim(ctx)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		fmt.Printf("Local:    %d task(s) not yet in an account\n", len(pending))
	}

	for _, l := range models.TaskLists {
		need, err := a.tracker.NeedsPlanning(ctx, l)
		if err != nil {
			return err
		}
		state := "planned"
		if need {
			state = "not planned yet"
		}
		fmt.Printf("%-9s %s today\n", string(l)+":", state)
	}
	return nil
}

func countTasks(ctx context.Context, a *app) (int, error) {
	owner, err := a.tasks.Owner()
	if err != nil {
		return 0, err
	}
	return a.store.CountTasks(ctx, owner)
}
