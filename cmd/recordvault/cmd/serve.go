package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/recordvault/recordvault/internal/api"
	"github.com/recordvault/recordvault/internal/importer"
	"github.com/recordvault/recordvault/internal/scheduler"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run recordvault as a daemon with the HTTP API and watch scans",
	Long: `Run recordvault as a long-running daemon.

The daemon serves the HTTP API on the configured port (default: 8080)
and scans watch directories for new export archives on their cron
schedules. Everything stays on this machine; the API binds to
localhost unless configured otherwise.

Configure watches in config.toml:
  [[watch]]
  dir = "/evidence/drops/smith"
  case = "smith-2020"
  schedule = "*/15 * * * *"   # every 15 minutes (cron format)
  enabled = true

Cron format: minute hour day-of-month month day-of-week
  Examples:
    0 2 * * *     = 2:00 AM daily
    */15 * * * *  = Every 15 minutes
    0 0 * * 0     = Midnight on Sundays

Use Ctrl+C to stop the daemon gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Refuse to start on a non-localhost bind without an API key.
	if err := cfg.API.ValidateSecure(); err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	engine, err := newEngine(s, "")
	if err != nil {
		return err
	}
	defer engine.Close()

	// No CLI progress in daemon mode; imports log through the logger.
	imp := importer.New(s, nil, logger)

	scanner := scheduler.NewScanner(s, imp, cfg.AttachmentsDir(), logger)
	sched := scheduler.New(scanner.Scan).WithLogger(logger)

	watchCount, errs := sched.AddWatchesFromConfig(cfg)
	for _, err := range errs {
		logger.Error("failed to schedule watch", "error", err)
	}
	if watchCount > 0 {
		sched.Start()
	}

	apiServer := api.NewServer(cfg, s, engine, imp, sched, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bindAddr := cfg.API.BindAddress
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("recordvault daemon started\n")
	fmt.Printf("  API server: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.API.Port)))
	fmt.Printf("  Watch directories: %d\n", watchCount)
	fmt.Printf("  Data directory: %s\n", cfg.Storage.DataDir)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	if watchCount > 0 {
		fmt.Println()
		for _, status := range sched.Status() {
			fmt.Printf("  %s: case %s, next scan at %s\n",
				status.Dir, status.Case, status.NextRun.Local().Format("2006-01-02 15:04:05"))
		}
	}
	fmt.Println()

	// The root command installs signal handling, so the context ends on
	// SIGINT or SIGTERM.
	select {
	case <-cmd.Context().Done():
		fmt.Println("\nShutting down...")
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		fmt.Printf("\nAPI server error: %v\n", err)
	}

	fmt.Println("Shutting down API server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	if watchCount > 0 {
		fmt.Println("Waiting for running scans to complete...")
	}
	schedCtx := sched.Stop()
	select {
	case <-schedCtx.Done():
		fmt.Println("Shutdown complete.")
	case <-time.After(30 * time.Second):
		fmt.Println("Shutdown timed out after 30 seconds.")
	}

	return nil
}
