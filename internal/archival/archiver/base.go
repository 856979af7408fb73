package archiver

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/webkeep/webkeep/internal/sanitize"
	"github.com/webkeep/webkeep/internal/storage/db"
	"github.com/webkeep/webkeep/internal/storage/file"
)

const summarizationReason = "readability extraction completed"

// Base holds the shared pre/post logic every Archiver variant embeds: output path
// layout, existing-output probing, and the uniform success criterion. Grounded on
// original_source/services/archiver/archivers/base.py's BaseArchiver.
type Base struct {
	DataDir string
}

// OutputPath returns the well-known path <data_dir>/<sanitized(item_id)>/<name>/output.<ext>,
// creating the directory if needed.
func (b Base) OutputPath(itemID, name, ext string) (string, error) {
	dir := filepath.Join(b.DataDir, sanitize.ID(itemID), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("archiver: failed to create output dir %s: %w", dir, err)
	}
	return filepath.Join(dir, "output."+ext), nil
}

// HasExistingOutput probes for the standard output path and numbered variants
// ("output (1).ext", "output (2).ext", ...) left behind by a prior run of an external
// tool that refuses to overwrite. Returns the path and true if any non-empty file
// exists.
func (b Base) HasExistingOutput(itemID, name, ext string) (string, bool) {
	dir := filepath.Join(b.DataDir, sanitize.ID(itemID), name)
	candidate := filepath.Join(dir, "output."+ext)
	if info, err := os.Stat(candidate); err == nil && info.Size() > 0 {
		return candidate, true
	}
	for n := 1; n <= 20; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("output (%d).%s", n, ext))
		if info, err := os.Stat(candidate); err == nil && info.Size() > 0 {
			return candidate, true
		}
	}
	return "", false
}

// ValidateOutput applies the uniform success criterion: the subprocess/browser call
// exited zero and the resulting file is at least minSize bytes.
func (b Base) ValidateOutput(path string, exitCode int, minSize int64) bool {
	if exitCode != 0 {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() >= minSize
}

// StorageOptions configures ArchiveWithStorage.
type StorageOptions struct {
	Providers        []file.Provider
	Compress         bool
	CleanupEnabled   bool
	CleanupRetention time.Duration
	Notifier         Notifier
	ArchivedURLID    int64
	ArtifactID       int64
	ItemID           string
	DB               db.Provider
	Cleanup          CleanupRegistrar
}

// ArchiveWithStorage is the base method the orchestrator actually calls (spec §4.2): it
// runs the archiver, fans the artifact out to every configured File Storage Provider,
// records per-provider results, promotes the catalog row, and — if every upload
// succeeded and cleanup is enabled — registers the local file for deferred deletion.
func ArchiveWithStorage(ctx context.Context, a Archiver, url string, opts StorageOptions) (StorageResult, error) {
	result, err := a.Archive(ctx, url, opts.ItemID)
	if err != nil {
		return StorageResult{Result: result}, err
	}
	if !result.Success {
		if opts.DB != nil {
			update := db.ArtifactStatusUpdate{
				ArtifactID: opts.ArtifactID,
				Status:     db.StatusFailed,
				Success:    false,
				ExitCode:   result.ExitCode,
				SavedPath:  result.SavedPath,
			}
			if err := opts.DB.UpdateArtifactStatus(ctx, update); err != nil {
				log.Printf("archiver: failed to record failed status for artifact %d: %v", opts.ArtifactID, err)
			}
		}
		return StorageResult{Result: result}, nil
	}

	uploads := make([]file.UploadResult, 0, len(opts.Providers))
	records := make([]db.StorageUploadRecord, 0, len(opts.Providers))
	allOK := len(opts.Providers) > 0
	destPath := file.DestinationPath(opts.ItemID, a.Name(), a.OutputExtension())
	var sizeBytes *int64

	for _, p := range opts.Providers {
		res, uerr := p.Upload(ctx, result.SavedPath, destPath, opts.Compress)
		if uerr != nil {
			res = file.UploadResult{Success: false, Error: uerr.Error()}
		}
		uploads = append(uploads, res)
		records = append(records, toUploadRecord(p.Name(), res))
		allOK = allOK && res.Success
		if res.Success && sizeBytes == nil {
			orig := res.OriginalSize
			sizeBytes = &orig
		}
		if !res.Success {
			log.Printf("archiver: upload to %s failed for %s: %s", p.Name(), destPath, res.Error)
		}
	}

	if opts.DB != nil {
		uploaded := len(opts.Providers) > 0
		update := db.ArtifactStatusUpdate{
			ArtifactID:        opts.ArtifactID,
			Status:            db.StatusSuccess,
			Success:           true,
			ExitCode:          result.ExitCode,
			SavedPath:         result.SavedPath,
			SizeBytes:         sizeBytes,
			UploadedToStorage: &uploaded,
		}
		if err := opts.DB.UpdateArtifactStatus(ctx, update); err != nil {
			log.Printf("archiver: failed to promote artifact %d: %v", opts.ArtifactID, err)
		}
		if err := opts.DB.RecordStorageUploads(ctx, opts.ArtifactID, records); err != nil {
			log.Printf("archiver: failed to record storage uploads for artifact %d: %v", opts.ArtifactID, err)
		}
		if result.Metadata != nil {
			meta := db.URLMetadata{
				ArchivedURLID:      opts.ArchivedURLID,
				Title:              result.Metadata.Title,
				Byline:             result.Metadata.Byline,
				Text:               result.Metadata.Text,
				WordCount:          result.Metadata.WordCount,
				ReadingTimeMinutes: result.Metadata.ReadingTimeMinutes,
			}
			if err := opts.DB.UpdateArticleMetadata(ctx, meta); err != nil {
				log.Printf("archiver: failed to persist metadata for archived url %d: %v", opts.ArchivedURLID, err)
			}
		}
	}

	if result.Metadata != nil && opts.Notifier != nil {
		opts.Notifier.Schedule(ctx, opts.ArtifactID, opts.ArchivedURLID, summarizationReason)
	}

	if allOK && opts.CleanupEnabled && opts.Cleanup != nil {
		opts.Cleanup.Register(result.SavedPath, opts.ArtifactID, opts.CleanupRetention)
	}

	return StorageResult{Result: result, Uploads: uploads, AllUploadsSucceeded: allOK}, nil
}

func toUploadRecord(providerName string, res file.UploadResult) db.StorageUploadRecord {
	rec := db.StorageUploadRecord{
		ProviderName: providerName,
		Success:      res.Success,
		StorageURI:   res.URI,
		Error:        res.Error,
	}
	if res.Success {
		orig, stored, ratio := res.OriginalSize, res.StoredSize, res.CompressionRatio
		now := time.Now()
		rec.OriginalSize = &orig
		rec.StoredSize = &stored
		rec.CompressionRatio = &ratio
		rec.UploadedAt = &now
	}
	return rec
}
