// Package config loads webkeep's layered configuration (flags > environment > config
// file > defaults) into a single explicit Settings value.
//
// This replaces the "global settings singleton" pattern flagged for redesign: nothing
// outside this package reads viper or an environment variable directly. The composition
// root builds one Settings and passes it down to every collaborator that needs it.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServiceRole controls which bootstrap work a process performs at startup.
type ServiceRole string

const (
	// RoleFull runs the HTTP API, the worker pool, and summarization bootstrap.
	RoleFull ServiceRole = "full"
	// RoleArchiverWorker runs the HTTP API and the worker pool, skipping summarization
	// bootstrap.
	RoleArchiverWorker ServiceRole = "archiver-worker"
)

// DualWriteFailureMode governs how the "dual" database storage provider reacts when its
// replica write fails.
type DualWriteFailureMode string

const (
	// FailureModeStrict propagates a replica write failure to the caller.
	FailureModeStrict DualWriteFailureMode = "strict"
	// FailureModeBestEffort logs and swallows a replica write failure.
	FailureModeBestEffort DualWriteFailureMode = "best_effort"
)

// Settings is the fully-resolved configuration for one webkeep process.
type Settings struct {
	// DataDir is the root of local artifact storage.
	DataDir string
	// DatabasePath is the sqlite catalog file path.
	DatabasePath string

	// Archivers is the ordered list of enabled archiver names.
	Archivers []string
	// StorageProviders is the ordered list of file storage providers among {local, gcs}.
	StorageProviders []string

	// EnableLocalCleanup controls whether successfully-uploaded local artifacts are
	// deleted after LocalWorkspaceRetention.
	EnableLocalCleanup bool
	// LocalWorkspaceRetention is how long a locally-produced, fully-uploaded artifact is
	// kept before the cleanup scheduler deletes it.
	LocalWorkspaceRetention time.Duration

	// SkipExistingSaves governs dedup at submission time.
	SkipExistingSaves bool
	// RetryUnreachable controls whether a 404 pre-flight result is eligible for a later
	// retry (Open Question #1, resolved in DESIGN.md: defaults to false).
	RetryUnreachable bool

	// EnableDualPersistence turns on the "dual" database storage provider.
	EnableDualPersistence bool
	// DualWriteFailureMode governs replica-write failure handling when dual persistence
	// is enabled.
	DualWriteFailureMode DualWriteFailureMode

	// ServiceRole controls summarization bootstrap.
	ServiceRole ServiceRole

	// ChromePath optionally overrides the Chrome/Chromium executable used by
	// browser-backed archivers.
	ChromePath string
	// BrowserUserDataDir is the shared (but lock-guarded) profile directory for
	// browser-backed archivers.
	BrowserUserDataDir string

	// MonolithBin and SingleFileBin are the external CLI paths used by the subprocess
	// archivers.
	MonolithBin   string
	SingleFileBin string

	// ArchiveTimeout bounds a single archiver invocation.
	ArchiveTimeout time.Duration
	// CommandTimeout bounds a single Command Runner invocation.
	CommandTimeout time.Duration

	// WorkerCount is the size of the task-queue worker pool.
	WorkerCount int
	// QueueCapacity bounds the number of in-flight BatchTasks.
	QueueCapacity int

	// GCSBucket names the bucket used by the gcs file storage provider.
	GCSBucket string
	// DynamoDBTable names the table used by the document database storage provider.
	DynamoDBTable string

	// HTTPHost and HTTPPort bind the HTTP API.
	HTTPHost string
	HTTPPort int
}

// Load resolves Settings from bound flags, environment variables (prefixed WEBKEEP_), an
// optional config file, and defaults, in that precedence order.
func Load(flags *pflag.FlagSet) (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("webkeep")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if cfgFile, _ := flags.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Settings{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setDefaults(v)
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Settings{}, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	s := Settings{
		DataDir:                 v.GetString("data-dir"),
		DatabasePath:            v.GetString("db"),
		Archivers:               v.GetStringSlice("archivers"),
		StorageProviders:        v.GetStringSlice("storage-providers"),
		EnableLocalCleanup:      v.GetBool("enable-local-cleanup"),
		LocalWorkspaceRetention: v.GetDuration("local-workspace-retention"),
		SkipExistingSaves:       v.GetBool("skip-existing-saves"),
		RetryUnreachable:        v.GetBool("retry-unreachable"),
		EnableDualPersistence:   v.GetBool("enable-dual-persistence"),
		DualWriteFailureMode:    DualWriteFailureMode(v.GetString("dual-write-failure-mode")),
		ServiceRole:             ServiceRole(v.GetString("service-role")),
		ChromePath:              v.GetString("chrome-path"),
		BrowserUserDataDir:      v.GetString("browser-user-data-dir"),
		MonolithBin:             v.GetString("monolith-bin"),
		SingleFileBin:           v.GetString("singlefile-bin"),
		ArchiveTimeout:          v.GetDuration("archive-timeout"),
		CommandTimeout:          v.GetDuration("command-timeout"),
		WorkerCount:             v.GetInt("workers"),
		QueueCapacity:           v.GetInt("queue-capacity"),
		GCSBucket:               v.GetString("gcs-bucket"),
		DynamoDBTable:           v.GetString("dynamodb-table"),
		HTTPHost:                v.GetString("host"),
		HTTPPort:                v.GetInt("port"),
	}

	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data-dir", "./data")
	v.SetDefault("db", "webkeep.db")
	v.SetDefault("archivers", []string{"monolith", "readability", "screenshot", "pdf", "singlefile"})
	v.SetDefault("storage-providers", []string{"local"})
	v.SetDefault("enable-local-cleanup", true)
	v.SetDefault("local-workspace-retention", 24*time.Hour)
	v.SetDefault("skip-existing-saves", true)
	v.SetDefault("retry-unreachable", false)
	v.SetDefault("enable-dual-persistence", false)
	v.SetDefault("dual-write-failure-mode", string(FailureModeBestEffort))
	v.SetDefault("service-role", string(RoleFull))
	v.SetDefault("chrome-path", "")
	v.SetDefault("browser-user-data-dir", "./data/.browser-profile")
	v.SetDefault("monolith-bin", "monolith")
	v.SetDefault("singlefile-bin", "single-file")
	v.SetDefault("archive-timeout", 40*time.Second)
	v.SetDefault("command-timeout", 40*time.Second)
	v.SetDefault("workers", 2)
	v.SetDefault("queue-capacity", 256)
	v.SetDefault("gcs-bucket", "")
	v.SetDefault("dynamodb-table", "webkeep-articles")
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 8080)
}

func (s Settings) validate() error {
	if len(s.Archivers) == 0 {
		return fmt.Errorf("config: at least one archiver must be enabled")
	}
	if len(s.StorageProviders) == 0 {
		return fmt.Errorf("config: at least one storage provider must be enabled")
	}
	for _, p := range s.StorageProviders {
		if p != "local" && p != "gcs" {
			return fmt.Errorf("config: unknown storage provider %q", p)
		}
		if p == "gcs" && s.GCSBucket == "" {
			return fmt.Errorf("config: gcs storage provider requires gcs-bucket")
		}
	}
	switch s.DualWriteFailureMode {
	case FailureModeStrict, FailureModeBestEffort:
	default:
		return fmt.Errorf("config: unknown dual-write-failure-mode %q", s.DualWriteFailureMode)
	}
	switch s.ServiceRole {
	case RoleFull, RoleArchiverWorker:
	default:
		return fmt.Errorf("config: unknown service-role %q", s.ServiceRole)
	}
	if s.WorkerCount < 1 {
		return fmt.Errorf("config: workers must be >= 1")
	}
	return nil
}

// BindFlags registers the flags Load understands onto a FlagSet, with the same defaults
// as setDefaults so `--help` output is self-describing even before a config file is read.
func BindFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to a YAML config file")
	flags.String("data-dir", "./data", "Root directory for local artifacts")
	flags.String("db", "webkeep.db", "Path to the sqlite catalog file")
	flags.StringSlice("archivers", []string{"monolith", "readability", "screenshot", "pdf", "singlefile"}, "Enabled archivers, in order")
	flags.StringSlice("storage-providers", []string{"local"}, "Enabled file storage providers, in order")
	flags.Bool("enable-local-cleanup", true, "Delete local artifacts after all uploads succeed")
	flags.Duration("local-workspace-retention", 24*time.Hour, "How long to retain a fully-uploaded local artifact before cleanup")
	flags.Bool("skip-existing-saves", true, "Skip archiving when a successful artifact already exists")
	flags.Bool("retry-unreachable", false, "Allow a 404 pre-flight result to be retried later")
	flags.Bool("enable-dual-persistence", false, "Write through to both relational and document catalogs")
	flags.String("dual-write-failure-mode", string(FailureModeBestEffort), "strict|best_effort")
	flags.String("service-role", string(RoleFull), "full|archiver-worker")
	flags.String("chrome-path", "", "Path to Chrome/Chromium executable")
	flags.String("browser-user-data-dir", "./data/.browser-profile", "Shared browser profile directory")
	flags.String("monolith-bin", "monolith", "Path to the monolith CLI")
	flags.String("singlefile-bin", "single-file", "Path to the single-file CLI")
	flags.Duration("archive-timeout", 40*time.Second, "Per-archiver timeout")
	flags.Duration("command-timeout", 40*time.Second, "Per-subprocess timeout")
	flags.Int("workers", 2, "Number of archive workers")
	flags.Int("queue-capacity", 256, "Bounded task queue capacity")
	flags.String("gcs-bucket", "", "GCS bucket name for the gcs storage provider")
	flags.String("dynamodb-table", "webkeep-articles", "DynamoDB table name for the document storage provider")
	flags.String("host", "localhost", "HTTP bind host")
	flags.Int("port", 8080, "HTTP bind port")
}
