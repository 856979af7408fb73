/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

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

	cfg "github.com/webkeep/webkeep/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the archive worker pool, and the cleanup scheduler",
	Long: `serve runs the HTTP API described in spec §6, the archive worker pool, and the
local-copy cleanup scheduler. Under service_role=full it also drains the summarization
notifier and logs what it sees; under service_role=archiver-worker (spec §7) that drain
is skipped, on the assumption that a separate full-role process or external consumer is
watching summarization requests instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return fmt.Errorf("webkeep: failed to load settings: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, settings)
		if err != nil {
			return err
		}
		defer a.close()

		if settings.EnableLocalCleanup {
			a.cleanupSched.Start(ctx, 5*time.Minute)
			defer a.cleanupSched.Stop()
		}

		if settings.ServiceRole == cfg.RoleFull {
			go drainSummarizationRequests(ctx, a)
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", settings.HTTPHost, settings.HTTPPort),
			Handler: a.newHTTPServer().Routes(),
		}

		serveErr := make(chan error, 1)
		go func() {
			log.Printf("webkeep: serving on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serveErr <- err
			}
		}()

		select {
		case <-ctx.Done():
			log.Println("webkeep: shutting down")
		case err := <-serveErr:
			return fmt.Errorf("webkeep: http server failed: %w", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// drainSummarizationRequests stands in for the external summarization consumer (spec §1
// Non-goals): it just logs what would have been dispatched, so a full-role process never
// silently fills the notifier's backlog.
func drainSummarizationRequests(ctx context.Context, a *app) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-a.notifier.Requests():
			log.Printf("webkeep: summarization requested for artifact %d (archived_url %d, reason=%s)",
				req.ArtifactID, req.ArchivedURLID, req.Reason)
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
