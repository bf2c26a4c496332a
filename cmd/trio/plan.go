package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fentz26/morningtrio/internal/config"
	"github.com/fentz26/morningtrio/internal/sync"
	"github.com/fentz26/morningtrio/internal/tui"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan today's three tasks",
	Long:  `Opens the morning planning screen for a list, then shows its board.`,
	RunE:  runPlan,
}

var (
	planList  string
	planAgain bool
)

func init() {
	planCmd.Flags().StringVarP(&planList, "list", "l", "personal", "Task list (personal or work)")
	planCmd.Flags().BoolVar(&planAgain, "again", false, "Run planning again even if today is planned")
}

func runPlan(cmd *cobra.Command, args []string) error {
	list, err := parseList(planList)
	if err != nil {
		return err
	}

	// Logs would draw over the screen.
	logFile, err := os.OpenFile(filepath.Join(config.Dir(), "trio.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err == nil {
		log.SetOutput(logFile)
		defer logFile.Close()
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	account := ""
	if cur := a.auth.Current(); cur != nil {
		account = cur.UserID
		pullCtx, pullCancel := context.WithTimeout(ctx, cfg.Client.RequestTimeout)
		if err := a.engine.PullOnAuthenticate(pullCtx); err != nil {
			log.Printf("Pull failed, planning with local tasks: %v", err)
		}
		pullCancel()
		a.engine.Start(cfg.Client.RefreshInterval)
	}

	if planAgain {
		if err := a.tracker.Reset(ctx, list); err != nil {
			return err
		}
	}

	updates := make(chan struct{}, 1)
	unsubscribe := a.engine.Subscribe(func(ev sync.Event) {
		if ev.Op != "pull" && ev.Op != "rollback" {
			return
		}
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	screen := tui.New(ctx, a.tasks, a.tracker, list, tui.Options{
		WelcomeDelay: cfg.Planning.WelcomeDelay,
		Updates:      updates,
		Account:      account,
	})
	if err := screen.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
