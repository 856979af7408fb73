package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webkeep/webkeep/internal/archival/command"
)

func commandExecutionFixture() command.Execution {
	return command.Execution{
		Command:   "echo hi",
		StartTime: time.Now(),
		Timeout:   5 * time.Second,
		Archiver:  "monolith",
	}
}

func outputLineFixture(execID int64, stream command.Stream, line string, lineNumber int) command.OutputLine {
	return command.OutputLine{
		ExecutionID: execID,
		Timestamp:   time.Now(),
		Stream:      stream,
		Line:        line,
		LineNumber:  lineNumber,
	}
}

func newTestRelational(t *testing.T) *Relational {
	t.Helper()
	r, err := NewRelational(":memory:")
	require.NoError(t, err)
	require.NoError(t, r.Migrate())
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRelational_CreateArticle_IdempotentOnItemID(t *testing.T) {
	r := newTestRelational(t)
	ctx := context.Background()

	first, err := r.CreateArticle(ctx, ArchivedURL{URL: "https://example.org/a", ItemID: "item-a"})
	require.NoError(t, err)

	second, err := r.CreateArticle(ctx, ArchivedURL{URL: "https://example.org/a-changed", ItemID: "item-a"})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "https://example.org/a", second.URL)
}

func TestRelational_UpsertPendingArtifact_UniquePerArchiver(t *testing.T) {
	r := newTestRelational(t)
	ctx := context.Background()

	article, err := r.CreateArticle(ctx, ArchivedURL{URL: "https://example.org/b", ItemID: "item-b"})
	require.NoError(t, err)

	first, err := r.UpsertPendingArtifact(ctx, article.ID, "monolith", "task-1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, first.Status)

	second, err := r.UpsertPendingArtifact(ctx, article.ID, "monolith", "task-2")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "a second upsert for the same archiver must not duplicate the row")
}

func TestRelational_UpdateArtifactStatus_RecomputesTotalSize(t *testing.T) {
	r := newTestRelational(t)
	ctx := context.Background()

	article, err := r.CreateArticle(ctx, ArchivedURL{URL: "https://example.org/c", ItemID: "item-c"})
	require.NoError(t, err)

	artifact, err := r.UpsertPendingArtifact(ctx, article.ID, "screenshot", "task-1")
	require.NoError(t, err)

	zero := 0
	size := int64(4096)
	require.NoError(t, r.UpdateArtifactStatus(ctx, ArtifactStatusUpdate{
		ArtifactID: artifact.ID,
		Status:     StatusSuccess,
		Success:    true,
		ExitCode:   &zero,
		SavedPath:  "/data/item-c/screenshot/output.png",
		SizeBytes:  &size,
	}))

	updated, err := r.getArticleByID(ctx, article.ID)
	require.NoError(t, err)
	require.Equal(t, size, updated.TotalSizeBytes)
}

func TestRelational_RecordStorageUploads_AllUploadsSucceeded(t *testing.T) {
	r := newTestRelational(t)
	ctx := context.Background()

	article, err := r.CreateArticle(ctx, ArchivedURL{URL: "https://example.org/d", ItemID: "item-d"})
	require.NoError(t, err)
	artifact, err := r.UpsertPendingArtifact(ctx, article.ID, "monolith", "task-1")
	require.NoError(t, err)

	require.NoError(t, r.RecordStorageUploads(ctx, artifact.ID, []StorageUploadRecord{
		{ProviderName: "local", Success: true},
		{ProviderName: "gcs", Success: false, Error: "network timeout"},
	}))

	fetched, err := r.getArtifactByURLAndArchiver(ctx, article.ID, "monolith")
	require.NoError(t, err)
	require.True(t, fetched.UploadedToStorage)
	require.False(t, fetched.AllUploadsSucceeded)
	require.Len(t, fetched.StorageUploads, 2)
}

func TestRelational_MarkLocalFileDeleted_RequiresAllUploadsSucceeded(t *testing.T) {
	r := newTestRelational(t)
	ctx := context.Background()

	article, err := r.CreateArticle(ctx, ArchivedURL{URL: "https://example.org/e", ItemID: "item-e"})
	require.NoError(t, err)
	artifact, err := r.UpsertPendingArtifact(ctx, article.ID, "pdf", "task-1")
	require.NoError(t, err)

	err = r.MarkLocalFileDeleted(ctx, artifact.ID)
	require.Error(t, err, "cleanup must not be markable before uploads succeed")

	require.NoError(t, r.RecordStorageUploads(ctx, artifact.ID, []StorageUploadRecord{
		{ProviderName: "local", Success: true},
	}))
	require.NoError(t, r.MarkLocalFileDeleted(ctx, artifact.ID))
}

func TestRelational_RequeueArtifact_ResetsTerminalState(t *testing.T) {
	r := newTestRelational(t)
	ctx := context.Background()

	article, err := r.CreateArticle(ctx, ArchivedURL{URL: "https://example.org/f", ItemID: "item-f"})
	require.NoError(t, err)
	artifact, err := r.UpsertPendingArtifact(ctx, article.ID, "readability", "task-1")
	require.NoError(t, err)

	code := 1
	require.NoError(t, r.UpdateArtifactStatus(ctx, ArtifactStatusUpdate{
		ArtifactID: artifact.ID,
		Status:     StatusFailed,
		Success:    false,
		ExitCode:   &code,
	}))

	require.NoError(t, r.RequeueArtifact(ctx, artifact.ID))

	requeued, err := r.getArtifactByURLAndArchiver(ctx, article.ID, "readability")
	require.NoError(t, err)
	require.Equal(t, StatusPending, requeued.Status)
	require.Nil(t, requeued.ExitCode)
}

func TestRelational_CommandLogger_AppendAndReplay(t *testing.T) {
	r := newTestRelational(t)
	ctx := context.Background()

	execID, err := r.CreateExecution(ctx, commandExecutionFixture())
	require.NoError(t, err)

	require.NoError(t, r.AppendOutputLine(ctx, outputLineFixture(execID, "stdout", "line one", 1)))
	require.NoError(t, r.AppendOutputLine(ctx, outputLineFixture(execID, "stdout", "line two", 2)))

	zero := 0
	require.NoError(t, r.FinalizeExecution(ctx, execID, commandExecutionFixture().StartTime, &zero, false))

	lines, err := r.GetOutputLines(ctx, execID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, "line one", lines[0].Line)
}

func TestRelational_DeleteArtifactsByItem(t *testing.T) {
	r := newTestRelational(t)
	ctx := context.Background()

	article, err := r.CreateArticle(ctx, ArchivedURL{URL: "https://example.org/g", ItemID: "item-g"})
	require.NoError(t, err)
	_, err = r.UpsertPendingArtifact(ctx, article.ID, "monolith", "task-1")
	require.NoError(t, err)

	deleted, err := r.DeleteArtifactsByItem(ctx, "item-g")
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	remaining, err := r.ListArtifacts(ctx, "item-g")
	require.NoError(t, err)
	require.Empty(t, remaining)
}
