// Package archiver implements the Archiver contract (spec §4.2): five strategies for
// turning a URL into a single artifact file, sharing a uniform pre/post lifecycle and a
// construction-time registry that the worker pool looks up by name.
package archiver

import (
	"context"
	"fmt"
	"time"

	"github.com/webkeep/webkeep/internal/storage/file"
)

// Result is the outcome of one Archive call, before storage fan-out.
type Result struct {
	Success   bool
	ExitCode  *int
	SavedPath string
	Metadata  *Metadata
}

// Metadata is the structured extraction the readability archiver produces; other
// archivers leave it nil.
type Metadata struct {
	Title              string
	Byline             string
	Text               string
	WordCount          int
	ReadingTimeMinutes float64
}

// Archiver is the uniform contract every variant implements.
type Archiver interface {
	Name() string
	OutputExtension() string
	Archive(ctx context.Context, url, itemID string) (Result, error)
}

// Notifier is the single-method collaborator the readability archiver calls on success.
// Declared narrowly here (rather than importing the notify package) so archiver has no
// dependency on summarization; any type with this method satisfies it structurally.
type Notifier interface {
	Schedule(ctx context.Context, artifactID, archivedURLID int64, reason string)
}

// CleanupRegistrar is the single-method collaborator ArchiveWithStorage notifies once an
// artifact is fully promoted, so its local copy becomes eligible for deferred deletion.
type CleanupRegistrar interface {
	Register(localPath string, artifactID int64, retention time.Duration)
}

func exitCode(n int) *int { return &n }

// Registry is the construction-time immutable name→instance mapping (spec §9 redesign
// flag: replace dynamic iteration-built lookup with an explicit map built once at
// startup). An unknown name is the UnknownArchiver error case, not a panic.
type Registry struct {
	byName map[string]Archiver
	order  []string
}

// ErrUnknownArchiver is returned by Get for a name with no registered Archiver.
var ErrUnknownArchiver = fmt.Errorf("archiver: unknown archiver")

// NewRegistry builds an immutable registry from archivers, preserving their order (used
// by the "all" pipeline to process archivers in registration order).
func NewRegistry(archivers ...Archiver) *Registry {
	r := &Registry{byName: make(map[string]Archiver, len(archivers))}
	for _, a := range archivers {
		r.byName[a.Name()] = a
		r.order = append(r.order, a.Name())
	}
	return r
}

// Get looks up an archiver by name.
func (r *Registry) Get(name string) (Archiver, error) {
	a, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownArchiver, name)
	}
	return a, nil
}

// Names returns the registered archiver names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// StorageResult is what ArchiveWithStorage returns: the archive Result plus the fan-out
// outcome.
type StorageResult struct {
	Result
	Uploads             []file.UploadResult
	AllUploadsSucceeded bool
}
