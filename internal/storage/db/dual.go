package db

import (
	"context"
	"fmt"
	"log"
)

// FailureMode governs how Dual reacts to a replica write failure.
type FailureMode string

const (
	// FailureModeStrict propagates a replica write failure to the caller.
	FailureModeStrict FailureMode = "strict"
	// FailureModeBestEffort logs and swallows a replica write failure.
	FailureModeBestEffort FailureMode = "best_effort"
)

// Dual is the write-through fan-out Database Storage Provider: writes go to both the
// relational primary and the document replica; reads are served from the primary only
// (spec §4.4). The replica is always Document because it is the only provider in this
// catalog keyed in a way that tolerates being denormalized and trailing the primary.
type Dual struct {
	primary     *Relational
	replica     *Document
	failureMode FailureMode
}

var _ Provider = (*Dual)(nil)

// NewDual constructs a Dual provider. failureMode controls whether a replica failure is
// propagated (strict) or logged and swallowed (best_effort).
func NewDual(primary *Relational, replica *Document, failureMode FailureMode) *Dual {
	return &Dual{primary: primary, replica: replica, failureMode: failureMode}
}

func (d *Dual) replicate(ctx context.Context, op string, fn func() error) error {
	if err := fn(); err != nil {
		if d.failureMode == FailureModeStrict {
			return fmt.Errorf("dual: replica %s failed: %w", op, err)
		}
		log.Printf("dual: replica %s failed, continuing best-effort: %v", op, err)
	}
	return nil
}

func (d *Dual) CreateArticle(ctx context.Context, article ArchivedURL) (ArchivedURL, error) {
	created, err := d.primary.CreateArticle(ctx, article)
	if err != nil {
		return ArchivedURL{}, err
	}
	err = d.replicate(ctx, "CreateArticle", func() error {
		_, err := d.replica.CreateArticle(ctx, created)
		return err
	})
	return created, err
}

func (d *Dual) GetArticle(ctx context.Context, itemID string) (ArchivedURL, error) {
	return d.primary.GetArticle(ctx, itemID)
}

func (d *Dual) GetArticleByURL(ctx context.Context, url string) (ArchivedURL, error) {
	return d.primary.GetArticleByURL(ctx, url)
}

func (d *Dual) GetArticleByID(ctx context.Context, id int64) (ArchivedURL, error) {
	return d.primary.getArticleByID(ctx, id)
}

func (d *Dual) ListArticles(ctx context.Context, limit, offset int) ([]ArchivedURL, error) {
	return d.primary.ListArticles(ctx, limit, offset)
}

func (d *Dual) GetArtifact(ctx context.Context, itemID, archiver string) (ArchiveArtifact, error) {
	return d.primary.GetArtifact(ctx, itemID, archiver)
}

func (d *Dual) ListArtifacts(ctx context.Context, itemID string) ([]ArchiveArtifact, error) {
	return d.primary.ListArtifacts(ctx, itemID)
}

func (d *Dual) UpsertPendingArtifact(ctx context.Context, archivedURLID int64, archiver, taskID string) (ArchiveArtifact, error) {
	created, err := d.primary.UpsertPendingArtifact(ctx, archivedURLID, archiver, taskID)
	if err != nil {
		return ArchiveArtifact{}, err
	}
	err = d.replicate(ctx, "UpsertPendingArtifact", func() error {
		itemID, ierr := d.itemIDFor(ctx, archivedURLID)
		if ierr != nil {
			return ierr
		}
		_, rerr := d.replica.UpsertPendingArtifactByItem(ctx, itemID, archiver, taskID)
		return rerr
	})
	return created, err
}

func (d *Dual) UpdateArtifactStatus(ctx context.Context, u ArtifactStatusUpdate) error {
	if err := d.primary.UpdateArtifactStatus(ctx, u); err != nil {
		return err
	}
	return d.replicate(ctx, "UpdateArtifactStatus", func() error {
		itemID, archiver, ierr := d.itemAndArchiverFor(ctx, u.ArtifactID)
		if ierr != nil {
			return ierr
		}
		return d.replica.UpdateArtifactStatusByItem(ctx, itemID, archiver, u)
	})
}

func (d *Dual) RecordStorageUploads(ctx context.Context, artifactID int64, uploads []StorageUploadRecord) error {
	if err := d.primary.RecordStorageUploads(ctx, artifactID, uploads); err != nil {
		return err
	}
	return d.replicate(ctx, "RecordStorageUploads", func() error {
		itemID, archiver, ierr := d.itemAndArchiverFor(ctx, artifactID)
		if ierr != nil {
			return ierr
		}
		return d.replica.RecordStorageUploadsByItem(ctx, itemID, archiver, uploads)
	})
}

func (d *Dual) MarkLocalFileDeleted(ctx context.Context, artifactID int64) error {
	return d.primary.MarkLocalFileDeleted(ctx, artifactID)
}

func (d *Dual) RequeueArtifact(ctx context.Context, artifactID int64) error {
	if err := d.primary.RequeueArtifact(ctx, artifactID); err != nil {
		return err
	}
	return d.replicate(ctx, "RequeueArtifact", func() error {
		itemID, archiver, ierr := d.itemAndArchiverFor(ctx, artifactID)
		if ierr != nil {
			return ierr
		}
		_, rerr := d.replica.UpsertPendingArtifactByItem(ctx, itemID, archiver, "")
		return rerr
	})
}

func (d *Dual) UpdateArticleMetadata(ctx context.Context, meta URLMetadata) error {
	if err := d.primary.UpdateArticleMetadata(ctx, meta); err != nil {
		return err
	}
	return d.replicate(ctx, "UpdateArticleMetadata", func() error {
		itemID, ierr := d.itemIDFor(ctx, meta.ArchivedURLID)
		if ierr != nil {
			return ierr
		}
		return d.replica.UpdateArticleMetadataByItem(ctx, itemID, meta)
	})
}

func (d *Dual) DeleteArtifactByRowID(ctx context.Context, rowid int64) (ArchiveArtifact, error) {
	itemID, _, ierr := d.itemAndArchiverFor(ctx, rowid)
	deleted, err := d.primary.DeleteArtifactByRowID(ctx, rowid)
	if err != nil {
		return ArchiveArtifact{}, err
	}
	if ierr == nil {
		if rerr := d.replicate(ctx, "DeleteArtifactByRowID", func() error {
			_, rerr := d.replica.DeleteArtifactsByItem(ctx, itemID)
			return rerr
		}); rerr != nil {
			return deleted, rerr
		}
	}
	return deleted, nil
}

func (d *Dual) DeleteArtifactsByItem(ctx context.Context, itemID string) ([]ArchiveArtifact, error) {
	deleted, err := d.primary.DeleteArtifactsByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if rerr := d.replicate(ctx, "DeleteArtifactsByItem", func() error {
		_, rerr := d.replica.DeleteArtifactsByItem(ctx, itemID)
		return rerr
	}); rerr != nil {
		return deleted, rerr
	}
	return deleted, nil
}

func (d *Dual) DeleteArtifactsByURL(ctx context.Context, url string) ([]ArchiveArtifact, error) {
	article, err := d.primary.GetArticleByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	return d.DeleteArtifactsByItem(ctx, article.ItemID)
}

func (d *Dual) itemIDFor(ctx context.Context, archivedURLID int64) (string, error) {
	article, err := d.primary.getArticleByID(ctx, archivedURLID)
	if err != nil {
		return "", err
	}
	return article.ItemID, nil
}

func (d *Dual) itemAndArchiverFor(ctx context.Context, artifactID int64) (itemID, archiver string, err error) {
	artifact, err := d.primary.scanArtifact(d.primary.db.QueryRowContext(ctx, artifactSelect+` WHERE id = ?`, artifactID))
	if err != nil {
		return "", "", err
	}
	article, err := d.primary.getArticleByID(ctx, artifact.ArchivedURLID)
	if err != nil {
		return "", "", err
	}
	return article.ItemID, artifact.Archiver, nil
}
