/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/

// The archive command submits a single URL through the Archival Orchestrator from the
// command line, without standing up the HTTP API — useful for one-off archiving and for
// exercising a freshly configured archiver binary/browser path.
//
// Example usage:
//
//	webkeep archive --url=https://example.com/article --id=article-1 --archiver=monolith
//	webkeep archive --url=https://example.com/article --id=article-1 --archiver=all --name="Example Article"
package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/webkeep/webkeep/internal/archival/orchestrator"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive a single URL through the orchestrator from the command line",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runArchive(cmd)
	},
}

func runArchive(cmd *cobra.Command) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return fmt.Errorf("webkeep: failed to load settings: %w", err)
	}

	url, err := cmd.Flags().GetString("url")
	if err != nil {
		return fmt.Errorf("failed to read --url: %w", err)
	}
	if url == "" {
		return fmt.Errorf("--url is required")
	}
	id, err := cmd.Flags().GetString("id")
	if err != nil {
		return fmt.Errorf("failed to read --id: %w", err)
	}
	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return fmt.Errorf("failed to read --name: %w", err)
	}
	archiverName, err := cmd.Flags().GetString("archiver")
	if err != nil {
		return fmt.Errorf("failed to read --archiver: %w", err)
	}

	ctx := context.Background()

	a, err := buildApp(ctx, settings)
	if err != nil {
		return err
	}
	defer a.close()

	if id == "" {
		id = uuid.NewString()
	}
	item := orchestrator.Item{ItemID: id, URL: url, Name: name}

	results, err := a.orchestrator.Submit(ctx, item, archiverName)
	if err != nil {
		return fmt.Errorf("archive failed: %w", err)
	}

	var failures int
	for _, r := range results {
		if r.Status != "success" {
			failures++
		}
		log.Printf("%s: status=%s exit_code=%v saved_path=%s", r.Archiver, r.Status, r.ExitCode, r.SavedPath)
	}
	if failures > 0 {
		return fmt.Errorf("archiving finished with %d failure(s)", failures)
	}

	log.Println("Archiving finished successfully.")
	return nil
}

func init() {
	rootCmd.AddCommand(archiveCmd)

	archiveCmd.Flags().String("url", "", "URL to archive")
	archiveCmd.Flags().String("id", "", "Caller-assigned item id (defaults to a generated one if empty)")
	archiveCmd.Flags().String("name", "", "Optional human-readable name for the archived URL")
	archiveCmd.Flags().String("archiver", "all", `Archiver to run, or "all" to run every configured archiver`)
}
