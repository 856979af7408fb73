// Package file implements the File Storage Provider contract (spec §4.3): local disk and
// GCS object storage, with compression negotiated per call and a provider-agnostic
// destination path convention archives/<item_id>/<archiver>/output.<ext>.
package file

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a requested path does not exist in the provider.
var ErrNotFound = errors.New("file: not found")

// UploadResult is the outcome of one Upload call.
type UploadResult struct {
	Success          bool
	URI              string
	OriginalSize     int64
	StoredSize       int64
	CompressionRatio float64
	Error            string
}

// Metadata describes a stored object without fetching its content.
type Metadata struct {
	Size       int64
	Compressed bool
	ModifiedAt time.Time
}

// Provider is the uniform contract every File Storage Provider variant implements.
type Provider interface {
	// Name identifies the provider for StorageUploadRecord.provider_name.
	Name() string
	Upload(ctx context.Context, localPath, destinationPath string, compress bool) (UploadResult, error)
	Download(ctx context.Context, storagePath, localPath string, decompress bool) error
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	GetMetadata(ctx context.Context, path string) (Metadata, error)
	// GenerateAccessURL is optional: providers that cannot produce a signed URL return
	// ("", ErrAccessURLUnsupported).
	GenerateAccessURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// ErrAccessURLUnsupported is returned by providers (e.g. local) with no signed-URL concept.
var ErrAccessURLUnsupported = errors.New("file: provider does not support access URLs")

// DestinationPath builds the provider-agnostic path convention used by every archiver.
func DestinationPath(itemID, archiver, ext string) string {
	return "archives/" + itemID + "/" + archiver + "/output." + ext
}

// compressedPath appends the .gz suffix storage paths use for compressed objects.
func compressedPath(path string) string {
	return path + ".gz"
}

// copyWithSize copies src to dst and reports the number of bytes copied.
func copyWithSize(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}
