package db

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("db: not found")

// ErrAlreadyExists is returned when a unique constraint would be violated by an insert
// that does not fall back to update-in-place.
var ErrAlreadyExists = errors.New("db: already exists")

// Provider is the Database Storage Provider contract the kernel depends on (spec §4.4).
// relational, document, and dual all implement it.
type Provider interface {
	// CreateArticle is idempotent on ItemID: a second call with the same ItemID returns
	// the existing row rather than erroring.
	CreateArticle(ctx context.Context, article ArchivedURL) (ArchivedURL, error)
	GetArticle(ctx context.Context, itemID string) (ArchivedURL, error)
	GetArticleByURL(ctx context.Context, url string) (ArchivedURL, error)
	// GetArticleByID looks up by the numeric surrogate id the HTTP API's
	// archived_url_id path segments carry. The document backend has no such id and
	// always returns ErrNotFound; callers needing it should run relational or dual.
	GetArticleByID(ctx context.Context, id int64) (ArchivedURL, error)
	ListArticles(ctx context.Context, limit, offset int) ([]ArchivedURL, error)

	GetArtifact(ctx context.Context, itemID, archiver string) (ArchiveArtifact, error)
	ListArtifacts(ctx context.Context, itemID string) ([]ArchiveArtifact, error)

	// UpsertPendingArtifact inserts a pending row for (archivedURLID, archiver) or, if one
	// already exists, returns it unchanged (the unique constraint is never violated by a
	// duplicate insert; retries update).
	UpsertPendingArtifact(ctx context.Context, archivedURLID int64, archiver, taskID string) (ArchiveArtifact, error)
	UpdateArtifactStatus(ctx context.Context, update ArtifactStatusUpdate) error
	RecordStorageUploads(ctx context.Context, artifactID int64, uploads []StorageUploadRecord) error
	MarkLocalFileDeleted(ctx context.Context, artifactID int64) error
	RequeueArtifact(ctx context.Context, artifactID int64) error

	UpdateArticleMetadata(ctx context.Context, meta URLMetadata) error

	DeleteArtifactByRowID(ctx context.Context, rowid int64) (ArchiveArtifact, error)
	DeleteArtifactsByItem(ctx context.Context, itemID string) ([]ArchiveArtifact, error)
	DeleteArtifactsByURL(ctx context.Context, url string) ([]ArchiveArtifact, error)
}
