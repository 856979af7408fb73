// Package cleanup implements the Cleanup Scheduler (spec §4.7): a background coordinator
// that tracks locally-produced artifacts eligible for deferred deletion once every
// configured File Storage Provider has a confirmed copy, and periodically walks the list
// once their retention window has elapsed.
package cleanup

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/webkeep/webkeep/internal/archival/archiver"
	"github.com/webkeep/webkeep/internal/storage/db"
)

// entry is one (local_path, artifact_id, eligible_at) tuple.
type entry struct {
	localPath  string
	artifactID int64
	eligibleAt time.Time
}

// Scheduler satisfies archiver.CleanupRegistrar structurally (a single Register method),
// per spec §9's redesign flag, so archiver never imports this package.
type Scheduler struct {
	mu      sync.Mutex
	entries map[int64]entry

	dataDir string
	db      db.Provider
	ticker  *time.Ticker
	done    chan struct{}
}

var _ archiver.CleanupRegistrar = (*Scheduler)(nil)

// NewScheduler constructs a Scheduler. dataDir bounds how far up the directory tree
// pruning of now-empty parent directories is allowed to walk.
func NewScheduler(dataDir string, database db.Provider) *Scheduler {
	return &Scheduler{
		entries: make(map[int64]entry),
		dataDir: dataDir,
		db:      database,
	}
}

// Register records localPath as eligible for deletion once retention has elapsed. Called
// by ArchiveWithStorage only after every configured File Storage Provider upload for this
// artifact has succeeded (spec §4.7's "all_uploads_succeeded=true" eligibility gate).
func (s *Scheduler) Register(localPath string, artifactID int64, retention time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[artifactID] = entry{
		localPath:  localPath,
		artifactID: artifactID,
		eligibleAt: time.Now().Add(retention),
	}
}

// Start launches the periodic scan goroutine. Calling Start more than once is a no-op
// after the first call takes effect.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	if s.ticker != nil {
		s.mu.Unlock()
		return
	}
	s.ticker = time.NewTicker(interval)
	s.done = make(chan struct{})
	ticker := s.ticker
	done := s.done
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				s.Scan(ctx)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the periodic scan goroutine started by Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Stop()
		close(s.done)
		s.ticker = nil
	}
}

// Scan walks every tracked entry once, deleting those whose retention window has elapsed.
// A delete failure is logged and retried on the next scan; the entry is never dropped
// until the delete (and the catalog update) both succeed, per spec §4.7's failure
// semantics.
func (s *Scheduler) Scan(ctx context.Context) {
	s.mu.Lock()
	due := make([]entry, 0, len(s.entries))
	now := time.Now()
	for _, e := range s.entries {
		if !now.Before(e.eligibleAt) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		if err := s.cleanOne(ctx, e); err != nil {
			log.Printf("cleanup: failed to delete %s for artifact %d: %v", e.localPath, e.artifactID, err)
			continue
		}
		s.mu.Lock()
		delete(s.entries, e.artifactID)
		s.mu.Unlock()
	}
}

func (s *Scheduler) cleanOne(ctx context.Context, e entry) error {
	if err := os.Remove(e.localPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	s.pruneEmptyParents(filepath.Dir(e.localPath))

	if err := s.db.MarkLocalFileDeleted(ctx, e.artifactID); err != nil {
		return err
	}
	return nil
}

// pruneEmptyParents removes now-empty directories walking upward from dir, stopping at
// (and never above) s.dataDir.
func (s *Scheduler) pruneEmptyParents(dir string) {
	root := filepath.Clean(s.dataDir)
	for {
		dir = filepath.Clean(dir)
		if dir == root || dir == "." || dir == string(filepath.Separator) || len(dir) < len(root) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
