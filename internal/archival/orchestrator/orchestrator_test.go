package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webkeep/webkeep/internal/archival/archiver"
	"github.com/webkeep/webkeep/internal/archival/dedup"
	"github.com/webkeep/webkeep/internal/storage/db"
)

// newReachableServer starts a local server every test URL points at, so
// PrecheckReachability never makes a real outbound network call.
func newReachableServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fakeArchiver struct {
	name   string
	ext    string
	result archiver.Result
	err    error
	calls  int
	mu     sync.Mutex
}

func (f *fakeArchiver) Name() string            { return f.name }
func (f *fakeArchiver) OutputExtension() string { return f.ext }
func (f *fakeArchiver) Archive(ctx context.Context, url, itemID string) (archiver.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeArchiver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDB struct {
	db.Provider

	mu        sync.Mutex
	articles  map[string]db.ArchivedURL
	artifacts map[string]db.ArchiveArtifact
	nextID    int64
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		articles:  make(map[string]db.ArchivedURL),
		artifacts: make(map[string]db.ArchiveArtifact),
	}
}

func (f *fakeDB) CreateArticle(ctx context.Context, article db.ArchivedURL) (db.ArchivedURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.articles[article.ItemID]; ok {
		return existing, nil
	}
	f.nextID++
	article.ID = f.nextID
	f.articles[article.ItemID] = article
	return article, nil
}

func (f *fakeDB) GetArticleByURL(ctx context.Context, url string) (db.ArchivedURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.articles {
		if a.URL == url {
			return a, nil
		}
	}
	return db.ArchivedURL{}, db.ErrNotFound
}

func (f *fakeDB) key(archivedURLID int64, archiverName string) string {
	for itemID, a := range f.articles {
		if a.ID == archivedURLID {
			return itemID + "/" + archiverName
		}
	}
	return ""
}

func (f *fakeDB) GetArtifact(ctx context.Context, itemID, archiverName string) (db.ArchiveArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.artifacts[itemID+"/"+archiverName]
	if !ok {
		return db.ArchiveArtifact{}, db.ErrNotFound
	}
	return a, nil
}

func (f *fakeDB) UpsertPendingArtifact(ctx context.Context, archivedURLID int64, archiverName, taskID string) (db.ArchiveArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.key(archivedURLID, archiverName)
	if existing, ok := f.artifacts[key]; ok {
		return existing, nil
	}
	f.nextID++
	artifact := db.ArchiveArtifact{ID: f.nextID, ArchivedURLID: archivedURLID, Archiver: archiverName, Status: db.StatusPending, TaskID: taskID}
	f.artifacts[key] = artifact
	return artifact, nil
}

func (f *fakeDB) UpdateArtifactStatus(ctx context.Context, update db.ArtifactStatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, a := range f.artifacts {
		if a.ID == update.ArtifactID {
			a.Status = update.Status
			a.Success = update.Success
			a.ExitCode = update.ExitCode
			a.SavedPath = update.SavedPath
			if update.UploadedToStorage != nil {
				a.UploadedToStorage = *update.UploadedToStorage
			}
			f.artifacts[key] = a
			return nil
		}
	}
	return db.ErrNotFound
}

func (f *fakeDB) RecordStorageUploads(ctx context.Context, artifactID int64, uploads []db.StorageUploadRecord) error {
	return nil
}

func (f *fakeDB) UpdateArticleMetadata(ctx context.Context, meta db.URLMetadata) error {
	return nil
}

func newOrchestrator(database *fakeDB, a archiver.Archiver) *Orchestrator {
	registry := archiver.NewRegistry(a)
	return New(Options{
		Registry:      registry,
		DB:            database,
		Dedup:         dedup.NewChecker(database, true),
		QueueCapacity: 8,
		WorkerCount:   2,
	})
}

func TestOrchestrator_Submit_Success(t *testing.T) {
	srv := newReachableServer(t)
	zero := 0
	a := &fakeArchiver{name: "monolith", ext: "html", result: archiver.Result{Success: true, ExitCode: &zero, SavedPath: "/data/a/monolith/output.html"}}
	o := newOrchestrator(newFakeDB(), a)

	results, err := o.Submit(context.Background(), Item{ItemID: "a", URL: srv.URL}, "monolith")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, db.StatusSuccess, results[0].Status)
	require.Equal(t, "/data/a/monolith/output.html", results[0].SavedPath)
}

func TestOrchestrator_Submit_UnknownArchiver(t *testing.T) {
	a := &fakeArchiver{name: "monolith", ext: "html"}
	o := newOrchestrator(newFakeDB(), a)

	_, err := o.Submit(context.Background(), Item{ItemID: "a", URL: "https://example.org"}, "bogus")
	require.Error(t, err)
}

func TestOrchestrator_SubmitBatch_AggregatesTaskStatus(t *testing.T) {
	srv := newReachableServer(t)
	zero := 0
	a := &fakeArchiver{name: "monolith", ext: "html", result: archiver.Result{Success: true, ExitCode: &zero, SavedPath: "/out.html"}}
	o := newOrchestrator(newFakeDB(), a)

	taskID, count, err := o.SubmitBatch(context.Background(), []Item{
		{ItemID: "a", URL: srv.URL + "/a"},
		{ItemID: "b", URL: srv.URL + "/b"},
	}, "monolith")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	require.Eventually(t, func() bool {
		overall, items, ok := o.TaskStatus(taskID)
		return ok && overall == db.StatusSuccess && len(items) == 2
	}, time.Second, 10*time.Millisecond)

	o.Close()
}

func TestOrchestrator_Submit_DedupSkipsArchiverCall(t *testing.T) {
	srv := newReachableServer(t)
	zero := 0
	a := &fakeArchiver{name: "monolith", ext: "html", result: archiver.Result{Success: true, ExitCode: &zero, SavedPath: "/out.html"}}
	database := newFakeDB()
	o := newOrchestrator(database, a)

	_, err := o.Submit(context.Background(), Item{ItemID: "a", URL: srv.URL}, "monolith")
	require.NoError(t, err)
	require.Equal(t, 1, a.callCount())

	_, err = o.Submit(context.Background(), Item{ItemID: "a", URL: srv.URL}, "monolith")
	require.NoError(t, err)
	require.Equal(t, 1, a.callCount(), "dedup should prevent a second archiver invocation")
}

func TestOrchestrator_ProcessItem_RecoversFromPanic(t *testing.T) {
	srv := newReachableServer(t)
	a := &panicArchiver{}
	database := newFakeDB()
	o := newOrchestrator(database, a)

	results, err := o.Submit(context.Background(), Item{ItemID: "a", URL: srv.URL}, "boom")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, db.StatusFailed, results[0].Status)
	require.NotNil(t, results[0].ExitCode)
	require.Equal(t, db.ExitCodeInternalError, *results[0].ExitCode)
}

type panicArchiver struct{}

func (p *panicArchiver) Name() string            { return "boom" }
func (p *panicArchiver) OutputExtension() string { return "html" }
func (p *panicArchiver) Archive(ctx context.Context, url, itemID string) (archiver.Result, error) {
	panic("boom")
}

func TestOrchestrator_TaskStatus_UnknownTask(t *testing.T) {
	a := &fakeArchiver{name: "monolith", ext: "html"}
	o := newOrchestrator(newFakeDB(), a)

	_, _, ok := o.TaskStatus("does-not-exist")
	require.False(t, ok)
}
