package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webkeep/webkeep/internal/storage/db"
)

type fakeDB struct {
	db.Provider

	mu      sync.Mutex
	deleted []int64
	fail    bool
}

func (f *fakeDB) MarkLocalFileDeleted(ctx context.Context, artifactID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	f.deleted = append(f.deleted, artifactID)
	return nil
}

func (f *fakeDB) deletedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.deleted))
	copy(out, f.deleted)
	return out
}

func TestScheduler_Scan_DeletesEligibleFile(t *testing.T) {
	dataDir := t.TempDir()
	itemDir := filepath.Join(dataDir, "item-1", "monolith")
	require.NoError(t, os.MkdirAll(itemDir, 0o755))
	path := filepath.Join(itemDir, "output.html")
	require.NoError(t, os.WriteFile(path, []byte("<html></html>"), 0o644))

	database := &fakeDB{}
	s := NewScheduler(dataDir, database)
	s.Register(path, 42, 0)

	s.Scan(context.Background())

	require.Equal(t, []int64{42}, database.deletedIDs())
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	_, err = os.Stat(itemDir)
	require.True(t, os.IsNotExist(err), "expected empty parent directory to be pruned")
}

func TestScheduler_Scan_NotYetEligible(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, "item-1", "monolith", "output.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	database := &fakeDB{}
	s := NewScheduler(dataDir, database)
	s.Register(path, 42, time.Hour)

	s.Scan(context.Background())

	require.Empty(t, database.deletedIDs())
	_, err := os.Stat(path)
	require.NoError(t, err, "file should still exist before retention elapses")
}

func TestScheduler_Scan_RetriesOnFailureWithoutDroppingRecord(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, "item-1", "monolith", "output.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	database := &fakeDB{fail: true}
	s := NewScheduler(dataDir, database)
	s.Register(path, 42, 0)

	s.Scan(context.Background())
	require.Empty(t, database.deletedIDs())

	database.mu.Lock()
	database.fail = false
	database.mu.Unlock()

	s.Scan(context.Background())
	require.Equal(t, []int64{42}, database.deletedIDs())
}

func TestScheduler_PruneEmptyParents_StopsAtDataDir(t *testing.T) {
	dataDir := t.TempDir()
	itemDir := filepath.Join(dataDir, "item-1", "monolith")
	require.NoError(t, os.MkdirAll(itemDir, 0o755))

	s := NewScheduler(dataDir, &fakeDB{})
	s.pruneEmptyParents(itemDir)

	_, err := os.Stat(dataDir)
	require.NoError(t, err, "data_dir itself must never be pruned")
	_, err = os.Stat(itemDir)
	require.True(t, os.IsNotExist(err))
}

func TestScheduler_StartStop(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, "item-1", "monolith", "output.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	database := &fakeDB{}
	s := NewScheduler(dataDir, database)
	s.Register(path, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, 10*time.Millisecond)
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(database.deletedIDs()) == 1
	}, time.Second, 10*time.Millisecond)
}
