// Package orchestrator implements the Archival Orchestrator (spec §4.6, §4.7): the
// central coordinator that turns an HTTP submission into pending catalog rows and queued
// work, and runs each queued item through dedup, archiving, storage fan-out, and catalog
// promotion. It is the composition point every other archival package is wired into; the
// HTTP layer is a thin adapter onto its public operations (spec §6).
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webkeep/webkeep/internal/archival/archiver"
	"github.com/webkeep/webkeep/internal/archival/dedup"
	"github.com/webkeep/webkeep/internal/archival/queue"
	"github.com/webkeep/webkeep/internal/storage/db"
	"github.com/webkeep/webkeep/internal/storage/file"
)

// Item is one caller-submitted (id, url, name?) pair.
type Item struct {
	ItemID string
	URL    string
	Name   string
}

// ItemResult is the per-item outcome returned by the synchronous and task-status
// operations, mirroring the HTTP surface's `{url, id, status, exit_code, saved_path,
// db_rowid}` shape (spec §6).
type ItemResult struct {
	ItemID    string
	URL       string
	Archiver  string
	Status    string
	ExitCode  *int
	SavedPath string
	RowID     int64
}

// Options configures an Orchestrator. Every collaborator is an explicit field threaded in
// by the composition root (spec §9's "no hidden process-wide state" redesign flag).
type Options struct {
	Registry         *archiver.Registry
	DB               db.Provider
	Dedup            *dedup.Checker
	Providers        []file.Provider
	Notifier         archiver.Notifier
	Cleanup          archiver.CleanupRegistrar
	DataDir          string
	Compress         bool
	CleanupEnabled   bool
	CleanupRetention time.Duration
	QueueCapacity    int
	WorkerCount      int
	RetryUnreachable bool
}

// Orchestrator is the kernel's central coordinator.
type Orchestrator struct {
	opts  Options
	queue *queue.Queue

	mu    sync.Mutex
	tasks map[string]*taskState
}

// taskState is the in-memory aggregate the task-status operation reads, since BatchTask
// and BatchItem are explicitly in-memory entities (spec §3) — the durable source of truth
// remains the ArchiveArtifact rows, but a submitter needs a task_id to poll before any
// worker has touched the catalog.
type taskState struct {
	mu      sync.Mutex
	results []ItemResult
	total   int
}

// New constructs an Orchestrator and its backing worker pool. The pool is lazily started
// on the first enqueue, per spec §4.6.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		opts:  opts,
		tasks: make(map[string]*taskState),
	}
	o.queue = queue.New(opts.QueueCapacity, opts.WorkerCount, o.runTask)
	return o
}

// Submit implements the synchronous `/archive/{archiver}` operation (spec §6): it runs a
// single item through one archiver (or, for archiver="all", every configured archiver in
// registration order) and returns only once every run has finished.
func (o *Orchestrator) Submit(ctx context.Context, item Item, archiverName string) ([]ItemResult, error) {
	names, err := o.resolveNames(archiverName)
	if err != nil {
		return nil, err
	}

	archivedURL, err := o.opts.DB.CreateArticle(ctx, db.ArchivedURL{URL: item.URL, ItemID: item.ItemID, Name: item.Name})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: failed to create catalog row: %w", err)
	}

	results := make([]ItemResult, 0, len(names))
	for _, name := range names {
		results = append(results, o.runOne(ctx, archivedURL, item, name))
	}
	return results, nil
}

// SubmitBatch implements the `/save`, `/save/batch`, and `/archive/{archiver}/batch`
// operations (spec §6): it enqueues pending rows for every (item, archiver) pair and
// returns a task_id the caller polls via TaskStatus. archiverName="all" expands to every
// configured archiver, one pending row per archiver per item, with items enqueued
// item-then-archiver so a worker carries one item through every archiver before starting
// the next (spec §4.6's per-item pipeline ordering). A pair that CheckAtSubmission finds
// already succeeded gets no pending row; it is reported in the task as a reused success.
func (o *Orchestrator) SubmitBatch(ctx context.Context, items []Item, archiverName string) (taskID string, count int, err error) {
	names, err := o.resolveNames(archiverName)
	if err != nil {
		return "", 0, err
	}

	taskID = uuid.NewString()
	state := &taskState{}
	batchItems := make([]queue.BatchItem, 0, len(items)*len(names))

	for _, item := range items {
		archivedURL, cerr := o.opts.DB.CreateArticle(ctx, db.ArchivedURL{URL: item.URL, ItemID: item.ItemID, Name: item.Name})
		if cerr != nil {
			log.Printf("orchestrator: failed to create catalog row for %s: %v", item.ItemID, cerr)
			continue
		}
		for _, name := range names {
			if o.opts.Dedup != nil {
				if existing, found, derr := o.opts.Dedup.CheckAtSubmission(ctx, item.ItemID, name); derr == nil && found {
					state.results = append(state.results, ItemResult{ItemID: item.ItemID, URL: item.URL, Archiver: name,
						Status: db.StatusSuccess, ExitCode: existing.ExitCode, SavedPath: existing.SavedPath, RowID: existing.ID})
					state.total++
					continue
				}
			}
			artifact, perr := o.opts.DB.UpsertPendingArtifact(ctx, archivedURL.ID, name, taskID)
			if perr != nil {
				log.Printf("orchestrator: failed to enqueue pending artifact for %s/%s: %v", item.ItemID, name, perr)
				continue
			}
			batchItems = append(batchItems, queue.BatchItem{
				ItemID:        item.ItemID,
				URL:           item.URL,
				RowID:         artifact.ID,
				ArchivedURLID: archivedURL.ID,
				ArchiverName:  name,
			})
			state.total++
		}
	}

	o.mu.Lock()
	o.tasks[taskID] = state
	o.mu.Unlock()

	o.queue.Enqueue(queue.BatchTask{TaskID: taskID, ArchiverName: archiverName, Items: batchItems})
	return taskID, state.total, nil
}

// TaskStatus implements the `/tasks/{task_id}` operation: the overall status is `pending`
// if any item is still pending, else `failed` if any item failed, else `success` (spec
// §6's worst-status aggregation, confirmed by §7's "reports the worst status across
// items").
func (o *Orchestrator) TaskStatus(taskID string) (overall string, items []ItemResult, ok bool) {
	o.mu.Lock()
	state, found := o.tasks[taskID]
	o.mu.Unlock()
	if !found {
		return "", nil, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	pending := len(state.results) < state.total
	failed := false
	for _, r := range state.results {
		if r.Status == db.StatusFailed {
			failed = true
		}
	}
	switch {
	case pending:
		overall = db.StatusPending
	case failed:
		overall = db.StatusFailed
	default:
		overall = db.StatusSuccess
	}
	out := make([]ItemResult, len(state.results))
	copy(out, state.results)
	return overall, out, true
}

func (o *Orchestrator) resolveNames(archiverName string) ([]string, error) {
	if archiverName == "all" {
		return o.opts.Registry.Names(), nil
	}
	if _, err := o.opts.Registry.Get(archiverName); err != nil {
		return nil, err
	}
	return []string{archiverName}, nil
}

// runTask is the queue.Handler: it processes every item of a BatchTask sequentially,
// recording each outcome into the task's in-memory aggregate.
func (o *Orchestrator) runTask(ctx context.Context, task queue.BatchTask) {
	o.mu.Lock()
	state, found := o.tasks[task.TaskID]
	o.mu.Unlock()

	for _, bi := range task.Items {
		result := o.processItem(ctx, bi.ItemID, bi.URL, bi.ArchiverName, bi.RowID, bi.ArchivedURLID)
		if found {
			state.mu.Lock()
			state.results = append(state.results, result)
			state.mu.Unlock()
		}
	}
}

// runOne executes one (item, archiver) synchronously for Submit: it inserts the pending
// row itself (Submit does not pre-enqueue through the queue, unlike SubmitBatch) and then
// runs the same worker-loop body used by queued work.
func (o *Orchestrator) runOne(ctx context.Context, archivedURL db.ArchivedURL, item Item, archiverName string) ItemResult {
	artifact, err := o.opts.DB.UpsertPendingArtifact(ctx, archivedURL.ID, archiverName, "")
	if err != nil {
		log.Printf("orchestrator: failed to create pending row for %s/%s: %v", item.ItemID, archiverName, err)
		return ItemResult{ItemID: item.ItemID, URL: item.URL, Archiver: archiverName, Status: db.StatusFailed}
	}
	return o.processItem(ctx, item.ItemID, item.URL, archiverName, artifact.ID, archivedURL.ID)
}

// processItem is the worker loop body (spec §4.6): resolve → dedup re-check → reachability
// pre-check → archive with storage fan-out → finalize. It never propagates a panic or
// unexpected error past its own boundary; every path finalizes the pending row (spec §7's
// "worker never re-throws" propagation policy).
func (o *Orchestrator) processItem(ctx context.Context, itemID, rawURL, archiverName string, rowID, archivedURLID int64) (result ItemResult) {
	result = ItemResult{ItemID: itemID, URL: rawURL, Archiver: archiverName, RowID: rowID}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("orchestrator: recovered panic processing %s/%s: %v", itemID, archiverName, r)
			result.Status = db.StatusFailed
			result.ExitCode = intPtr(db.ExitCodeInternalError)
			o.finalizeFailure(ctx, rowID, db.ExitCodeInternalError, "")
		}
	}()

	a, err := o.opts.Registry.Get(archiverName)
	if err != nil {
		result.Status = db.StatusFailed
		result.ExitCode = intPtr(db.ExitCodeUnknownArchiver)
		o.finalizeFailure(ctx, rowID, db.ExitCodeUnknownArchiver, "")
		return result
	}

	if o.opts.Dedup != nil {
		if existing, found, derr := o.opts.Dedup.CheckAtExecution(ctx, itemID, rawURL, archiverName); derr == nil && found {
			result.Status = db.StatusSuccess
			result.ExitCode = existing.ExitCode
			result.SavedPath = existing.SavedPath
			uploaded := existing.UploadedToStorage
			if uerr := o.opts.DB.UpdateArtifactStatus(ctx, db.ArtifactStatusUpdate{
				ArtifactID:        rowID,
				Status:            db.StatusSuccess,
				Success:           true,
				ExitCode:          existing.ExitCode,
				SavedPath:         existing.SavedPath,
				UploadedToStorage: &uploaded,
			}); uerr != nil {
				log.Printf("orchestrator: failed to promote deduped artifact %d: %v", rowID, uerr)
			}
			return result
		}

		if !o.opts.RetryUnreachable && o.previouslyUnreachable(ctx, itemID, archiverName) {
			result.Status = db.StatusFailed
			result.ExitCode = intPtr(db.ExitCodeUnreachableURL)
			return result
		}

		if reachable, rerr := o.opts.Dedup.PrecheckReachability(ctx, rawURL); rerr == nil && !reachable {
			result.Status = db.StatusFailed
			result.ExitCode = intPtr(db.ExitCodeUnreachableURL)
			o.finalizeFailure(ctx, rowID, db.ExitCodeUnreachableURL, "")
			return result
		}
	}

	storageResult, err := archiver.ArchiveWithStorage(ctx, a, rawURL, archiver.StorageOptions{
		Providers:        o.opts.Providers,
		Compress:         o.opts.Compress,
		CleanupEnabled:   o.opts.CleanupEnabled,
		CleanupRetention: o.opts.CleanupRetention,
		Notifier:         o.opts.Notifier,
		ArchivedURLID:    archivedURLID,
		ArtifactID:       rowID,
		ItemID:           itemID,
		DB:               o.opts.DB,
		Cleanup:          o.opts.Cleanup,
	})
	if err != nil {
		log.Printf("orchestrator: archiver %s raised for %s: %v", archiverName, itemID, err)
		result.Status = db.StatusFailed
		result.ExitCode = intPtr(db.ExitCodeInternalError)
		o.finalizeFailure(ctx, rowID, db.ExitCodeInternalError, "")
		return result
	}

	result.SavedPath = storageResult.SavedPath
	result.ExitCode = storageResult.ExitCode
	if storageResult.Success {
		result.Status = db.StatusSuccess
	} else {
		result.Status = db.StatusFailed
	}
	return result
}

// previouslyUnreachable implements the §9 Open Question #1 resolution: a 404 pre-flight
// result is recorded once and not retried automatically unless retry_unreachable is set.
// It reports true only when the existing artifact already failed with exit_code=404, in
// which case the worker skips re-probing reachability entirely.
func (o *Orchestrator) previouslyUnreachable(ctx context.Context, itemID, archiverName string) bool {
	existing, err := o.opts.DB.GetArtifact(ctx, itemID, archiverName)
	if err != nil {
		return false
	}
	return existing.Status == db.StatusFailed && existing.ExitCode != nil && *existing.ExitCode == db.ExitCodeUnreachableURL
}

func (o *Orchestrator) finalizeFailure(ctx context.Context, rowID int64, exitCode int, savedPath string) {
	if o.opts.DB == nil {
		return
	}
	code := exitCode
	if err := o.opts.DB.UpdateArtifactStatus(ctx, db.ArtifactStatusUpdate{
		ArtifactID: rowID,
		Status:     db.StatusFailed,
		Success:    false,
		ExitCode:   &code,
		SavedPath:  savedPath,
	}); err != nil {
		log.Printf("orchestrator: failed to finalize failure for artifact %d: %v", rowID, err)
	}
}

func intPtr(n int) *int { return &n }

// Close drains the worker pool, waiting for in-flight and queued tasks to finish.
func (o *Orchestrator) Close() {
	o.queue.Close()
}
