package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/morningtrio/internal/audit"
	"github.com/fentz26/morningtrio/internal/store"
	"github.com/fentz26/morningtrio/internal/taskapi"
)

var (
	listenAddr string
	serverDB   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MorningTrio task service",
	Long:  `Starts the HTTP task service that signed-in devices sync with.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides server.listen)")
	serveCmd.Flags().StringVar(&serverDB, "db", "", "Path to SQLite database (overrides server.db)")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := cfg.Server.Listen
	if listenAddr != "" {
		addr = listenAddr
	}
	dbPath := cfg.Server.DB
	if serverDB != "" {
		dbPath = serverDB
	}
	tokens := cfg.Server.TokenMap()
	if len(tokens) == 0 {
		return fmt.Errorf("no server.tokens configured; add at least one {token, user} entry")
	}

	log.Println("Starting MorningTrio task service...")

	s, err := store.New(dbPath)
	if err != nil {
		return err
	}

	service := taskapi.NewService(s, audit.NewWriter(s))
	server := taskapi.NewServer(service, taskapi.TokenMap(tokens), addr)
	log.Printf("Serving %d user token(s) from %s", len(tokens), dbPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Closing database connection...")
	if err := s.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}
