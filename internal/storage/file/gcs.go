package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/klauspost/compress/gzip"
	"google.golang.org/api/iterator"
)

// GCS is the object-store File Storage Provider backed by Google Cloud Storage. Grounded
// on the cloud.google.com/go/storage usage surfaced by ateneo-connect-zstore's manifest:
// a thin wrapper over *storage.Client's per-object Reader/Writer/Attrs calls.
type GCS struct {
	client *storage.Client
	bucket string
}

var _ Provider = (*GCS)(nil)

// NewGCS constructs a GCS provider over an existing *storage.Client and bucket.
func NewGCS(client *storage.Client, bucket string) *GCS {
	return &GCS{client: client, bucket: bucket}
}

func (g *GCS) Name() string { return "gcs" }

func (g *GCS) object(path string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(path)
}

func (g *GCS) Upload(ctx context.Context, localPath, destinationPath string, compress bool) (UploadResult, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return UploadResult{Success: false, Error: err.Error()}, nil
	}
	originalSize := info.Size()

	src, err := os.Open(localPath)
	if err != nil {
		return UploadResult{Success: false, Error: err.Error()}, nil
	}
	defer src.Close()

	dest := destinationPath
	if compress {
		dest = compressedPath(dest)
	}

	w := g.object(dest).NewWriter(ctx)
	w.Metadata = map[string]string{"compressed": fmt.Sprintf("%t", compress)}

	var storedSize int64
	if compress {
		gz := gzip.NewWriter(w)
		storedSize, err = copyWithSize(gz, src)
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
	} else {
		storedSize, err = copyWithSize(w, src)
	}
	if err != nil {
		_ = w.Close()
		return UploadResult{Success: false, Error: err.Error()}, nil
	}
	if err := w.Close(); err != nil {
		return UploadResult{Success: false, Error: err.Error()}, nil
	}

	ratio := 1.0
	if originalSize > 0 {
		ratio = float64(storedSize) / float64(originalSize)
	}
	return UploadResult{
		Success:          true,
		URI:              fmt.Sprintf("gs://%s/%s", g.bucket, dest),
		OriginalSize:     originalSize,
		StoredSize:       storedSize,
		CompressionRatio: ratio,
	}, nil
}

func (g *GCS) Download(ctx context.Context, storagePath, localPath string, decompress bool) error {
	r, err := g.object(storagePath).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("file/gcs: failed to open reader for %s: %w", storagePath, err)
	}
	defer r.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("file/gcs: failed to create %s: %w", localPath, err)
	}
	defer out.Close()

	var reader io.Reader = r
	if decompress {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("file/gcs: failed to open gzip stream for %s: %w", storagePath, err)
		}
		defer gz.Close()
		reader = gz
	}

	if _, err := io.Copy(out, reader); err != nil {
		return fmt.Errorf("file/gcs: failed to copy %s: %w", storagePath, err)
	}
	return nil
}

func (g *GCS) Delete(ctx context.Context, path string) error {
	if err := g.object(path).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("file/gcs: failed to delete %s: %w", path, err)
	}
	return nil
}

func (g *GCS) Exists(ctx context.Context, path string) (bool, error) {
	_, err := g.object(path).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("file/gcs: failed to stat %s: %w", path, err)
}

func (g *GCS) List(ctx context.Context, prefix string) ([]string, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("file/gcs: failed to list prefix %s: %w", prefix, err)
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

func (g *GCS) GetMetadata(ctx context.Context, path string) (Metadata, error) {
	attrs, err := g.object(path).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return Metadata{}, ErrNotFound
		}
		return Metadata{}, fmt.Errorf("file/gcs: failed to stat %s: %w", path, err)
	}
	return Metadata{
		Size:       attrs.Size,
		Compressed: attrs.Metadata["compressed"] == "true",
		ModifiedAt: attrs.Updated,
	}, nil
}

func (g *GCS) GenerateAccessURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	}
	url, err := g.client.Bucket(g.bucket).SignedURL(path, opts)
	if err != nil {
		return "", fmt.Errorf("file/gcs: failed to sign url for %s: %w", path, err)
	}
	return url, nil
}
