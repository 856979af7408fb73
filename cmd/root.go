/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	cfg "github.com/webkeep/webkeep/internal/config"

	"github.com/webkeep/webkeep/internal/archival/archiver"
	"github.com/webkeep/webkeep/internal/archival/cleanup"
	"github.com/webkeep/webkeep/internal/archival/command"
	"github.com/webkeep/webkeep/internal/archival/dedup"
	"github.com/webkeep/webkeep/internal/archival/notify"
	"github.com/webkeep/webkeep/internal/archival/orchestrator"
	"github.com/webkeep/webkeep/internal/httpapi"
	"github.com/webkeep/webkeep/internal/storage/db"
	"github.com/webkeep/webkeep/internal/storage/file"
)

// rootCmd is the base command. Subcommands (serve, archive) each start a different subset
// of the collaborators buildApp wires up; serve further branches on Settings.ServiceRole.
var rootCmd = &cobra.Command{
	Use:   "webkeep",
	Short: "A page archival orchestration kernel",
	Long: `webkeep coordinates a handful of archiving strategies (full-page HTML, screenshot,
PDF, readability extraction) against a catalog of submitted URLs, fanning successful
artifacts out to one or more file storage providers and tracking per-artifact outcomes.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cfg.BindFlags(rootCmd.PersistentFlags())
}

func loadSettings(cmd *cobra.Command) (cfg.Settings, error) {
	return cfg.Load(cmd.Flags())
}

// app bundles every collaborator the composition root wires together, so serve and
// archive can each start the pieces they need and stop them cleanly on shutdown.
type app struct {
	settings     cfg.Settings
	database     db.Provider
	relational   *db.Relational
	providers    []file.Provider
	runner       *command.Runner
	registry     *archiver.Registry
	dedupChecker *dedup.Checker
	notifier     *notify.SummarizationNotifier
	cleanupSched *cleanup.Scheduler
	orchestrator *orchestrator.Orchestrator
}

// buildApp wires every collaborator from Settings. It is the one place in the whole
// program that touches concrete provider constructors (spec §9: no hidden process-wide
// state — everything flows in through explicit fields from here).
func buildApp(ctx context.Context, settings cfg.Settings) (*app, error) {
	relational, err := db.NewRelational(settings.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("webkeep: failed to open relational catalog: %w", err)
	}
	if err := relational.Migrate(); err != nil {
		return nil, fmt.Errorf("webkeep: failed to migrate relational catalog: %w", err)
	}

	// The relational catalog is always present, even under dual persistence, because it
	// is the only backend that implements command.Logger (spec §4.1's subprocess log is a
	// relational-only concern; document replicas never carry it).
	var database db.Provider = relational
	if settings.EnableDualPersistence {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("webkeep: failed to load AWS config for dual persistence: %w", err)
		}
		replica := db.NewDocument(dynamodb.NewFromConfig(awsCfg), settings.DynamoDBTable)
		database = db.NewDual(relational, replica, db.FailureMode(settings.DualWriteFailureMode))
	}

	providers, err := buildProviders(ctx, settings)
	if err != nil {
		return nil, err
	}

	runner := command.NewRunner(relational)
	registry := archiver.NewRegistry(buildArchivers(settings, runner)...)
	dedupChecker := dedup.NewChecker(database, settings.SkipExistingSaves)
	notifier := notify.NewSummarizationNotifier(settings.QueueCapacity)
	cleanupScheduler := cleanup.NewScheduler(settings.DataDir, database)

	orch := orchestrator.New(orchestrator.Options{
		Registry:         registry,
		DB:               database,
		Dedup:            dedupChecker,
		Providers:        providers,
		Notifier:         notifier,
		Cleanup:          cleanupScheduler,
		DataDir:          settings.DataDir,
		Compress:         true,
		CleanupEnabled:   settings.EnableLocalCleanup,
		CleanupRetention: settings.LocalWorkspaceRetention,
		QueueCapacity:    settings.QueueCapacity,
		WorkerCount:      settings.WorkerCount,
		RetryUnreachable: settings.RetryUnreachable,
	})

	return &app{
		settings:     settings,
		database:     database,
		relational:   relational,
		providers:    providers,
		runner:       runner,
		registry:     registry,
		dedupChecker: dedupChecker,
		notifier:     notifier,
		cleanupSched: cleanupScheduler,
		orchestrator: orch,
	}, nil
}

func buildProviders(ctx context.Context, settings cfg.Settings) ([]file.Provider, error) {
	providers := make([]file.Provider, 0, len(settings.StorageProviders))
	for _, name := range settings.StorageProviders {
		switch name {
		case "local":
			local, err := file.NewLocal(settings.DataDir)
			if err != nil {
				return nil, fmt.Errorf("webkeep: failed to initialize local storage provider: %w", err)
			}
			providers = append(providers, local)
		case "gcs":
			client, err := storage.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("webkeep: failed to initialize GCS client: %w", err)
			}
			providers = append(providers, file.NewGCS(client, settings.GCSBucket))
		default:
			return nil, fmt.Errorf("webkeep: unknown storage provider %q", name)
		}
	}
	return providers, nil
}

func buildArchivers(settings cfg.Settings, runner *command.Runner) []archiver.Archiver {
	base := archiver.Base{DataDir: settings.DataDir}
	session := archiver.BrowserSession{
		ChromePath:  settings.ChromePath,
		UserDataDir: settings.BrowserUserDataDir,
		Headless:    true,
	}

	byName := map[string]archiver.Archiver{
		"monolith": &archiver.Monolith{
			Base: base, Runner: runner, Bin: settings.MonolithBin, Timeout: settings.ArchiveTimeout,
		},
		"singlefile": &archiver.SingleFile{
			Base: base, Runner: runner, Bin: settings.SingleFileBin, Timeout: settings.ArchiveTimeout,
		},
		"screenshot": &archiver.Screenshot{
			Base: base, Session: session, Timeout: settings.ArchiveTimeout,
		},
		"pdf": &archiver.PDF{
			Base: base, Session: session, Timeout: settings.ArchiveTimeout,
		},
		"readability": &archiver.Readability{
			Base: base, Session: session, Timeout: settings.ArchiveTimeout,
		},
	}

	out := make([]archiver.Archiver, 0, len(settings.Archivers))
	for _, name := range settings.Archivers {
		a, ok := byName[name]
		if !ok {
			log.Printf("webkeep: ignoring unknown configured archiver %q", name)
			continue
		}
		out = append(out, a)
	}
	return out
}

// httpCommandRunner returns a.runner only when the configured database actually
// implements command.Logger — only *db.Relational does. httpapi degrades the
// command-log replay endpoint to 501 when this is nil rather than asserting blindly.
func (a *app) httpCommandRunner() *command.Runner {
	if _, ok := a.database.(command.Logger); ok {
		return a.runner
	}
	return nil
}

func (a *app) newHTTPServer() *httpapi.Server {
	return httpapi.NewServer(a.orchestrator, a.database, a.providers, a.httpCommandRunner(), a.notifier, a.settings.DataDir)
}

func (a *app) close() {
	a.orchestrator.Close()
	if err := a.relational.Close(); err != nil {
		log.Printf("webkeep: failed to close relational catalog: %v", err)
	}
}
