// Package db implements the Database Storage Provider contract: a relational catalog
// (sqlite, generalized from the teacher's bookmarks schema), a denormalized document
// store (DynamoDB), and a dual write-through fan-out between the two.
package db

import "time"

// Artifact status values. A terminal status (Success/Failed) is never overwritten with
// Pending again except through an explicit requeue.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Reserved exit codes, per the HTTP surface contract.
const (
	ExitCodeUnknownArchiver = 127
	ExitCodeUnreachableURL  = 404
	ExitCodeInternalError   = 1
)

// ArchivedURL is the top-level catalog entry for one submitted page.
type ArchivedURL struct {
	ID             int64
	URL            string
	ItemID         string
	Name           string
	CreatedAt      time.Time
	TotalSizeBytes int64
}

// ArchiveArtifact is the per-(ArchivedURL, archiver) outcome row.
type ArchiveArtifact struct {
	ID                  int64
	ArchivedURLID       int64
	Archiver            string
	Success             bool
	ExitCode            *int
	SavedPath           string
	SizeBytes           *int64
	Status              string
	TaskID              string
	UploadedToStorage   bool
	StorageUploads      []StorageUploadRecord
	AllUploadsSucceeded bool
	LocalFileDeleted    bool
	LocalFileDeletedAt  *time.Time
	CreatedAt           time.Time
	UpdatedAt           *time.Time
}

// URLMetadata is the one-per-ArchivedURL readability extraction result.
type URLMetadata struct {
	ArchivedURLID      int64
	Title              string
	Byline             string
	Text               string
	WordCount          int
	ReadingTimeMinutes float64
}

// StorageUploadRecord is the outcome of uploading one artifact to one File Storage
// Provider.
type StorageUploadRecord struct {
	ArtifactID       int64
	ProviderName     string
	Success          bool
	StorageURI       string
	OriginalSize     *int64
	StoredSize       *int64
	CompressionRatio *float64
	UploadedAt       *time.Time
	Error            string
}

// ArtifactStatusUpdate is the input to UpdateArtifactStatus.
type ArtifactStatusUpdate struct {
	ArtifactID        int64
	Status            string
	Success           bool
	ExitCode          *int
	SavedPath         string
	SizeBytes         *int64
	UploadedToStorage *bool
}
