package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Local is the directory-tree File Storage Provider: destinationPath is a path under
// root, created on demand. Grounded on the teacher's resource-fetch/file-write idiom in
// internal/core/inline.go, generalized from "fetch a URL and write a data URI" to
// "copy a local file into provider-managed storage."
type Local struct {
	root string
}

var _ Provider = (*Local)(nil)

// NewLocal constructs a Local provider rooted at root. root is created if missing.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("file/local: failed to create root %s: %w", root, err)
	}
	return &Local{root: root}, nil
}

func (l *Local) Name() string { return "local" }

func (l *Local) abs(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(path))
}

func (l *Local) Upload(ctx context.Context, localPath, destinationPath string, compress bool) (UploadResult, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return UploadResult{Success: false, Error: err.Error()}, nil
	}
	originalSize := info.Size()

	dest := destinationPath
	if compress {
		dest = compressedPath(dest)
	}
	fullDest := l.abs(dest)
	if err := os.MkdirAll(filepath.Dir(fullDest), 0o755); err != nil {
		return UploadResult{Success: false, Error: err.Error()}, nil
	}

	src, err := os.Open(localPath)
	if err != nil {
		return UploadResult{Success: false, Error: err.Error()}, nil
	}
	defer src.Close()

	out, err := os.Create(fullDest)
	if err != nil {
		return UploadResult{Success: false, Error: err.Error()}, nil
	}
	defer out.Close()

	var storedSize int64
	if compress {
		gz := gzip.NewWriter(out)
		storedSize, err = copyWithSize(gz, src)
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
	} else {
		storedSize, err = copyWithSize(out, src)
	}
	if err != nil {
		return UploadResult{Success: false, Error: err.Error()}, nil
	}

	ratio := 1.0
	if originalSize > 0 {
		ratio = float64(storedSize) / float64(originalSize)
	}
	return UploadResult{
		Success:          true,
		URI:              "file://" + fullDest,
		OriginalSize:     originalSize,
		StoredSize:       storedSize,
		CompressionRatio: ratio,
	}, nil
}

func (l *Local) Download(ctx context.Context, storagePath, localPath string, decompress bool) error {
	src, err := os.Open(l.abs(storagePath))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("file/local: failed to open %s: %w", storagePath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("file/local: failed to create destination dir: %w", err)
	}
	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("file/local: failed to create %s: %w", localPath, err)
	}
	defer out.Close()

	var reader io.Reader = src
	if decompress {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return fmt.Errorf("file/local: failed to open gzip stream for %s: %w", storagePath, err)
		}
		defer gz.Close()
		reader = gz
	}

	if _, err := io.Copy(out, reader); err != nil {
		return fmt.Errorf("file/local: failed to copy %s: %w", storagePath, err)
	}
	return nil
}

func (l *Local) Delete(ctx context.Context, path string) error {
	if err := os.Remove(l.abs(path)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("file/local: failed to delete %s: %w", path, err)
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(l.abs(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("file/local: failed to stat %s: %w", path, err)
}

func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	base := l.abs(prefix)
	var out []string
	err := filepath.WalkDir(base, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == base {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(l.root, p)
		if rerr != nil {
			return rerr
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("file/local: failed to list prefix %s: %w", prefix, err)
	}
	return out, nil
}

func (l *Local) GetMetadata(ctx context.Context, path string) (Metadata, error) {
	info, err := os.Stat(l.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, ErrNotFound
		}
		return Metadata{}, fmt.Errorf("file/local: failed to stat %s: %w", path, err)
	}
	return Metadata{
		Size:       info.Size(),
		Compressed: filepath.Ext(path) == ".gz",
		ModifiedAt: info.ModTime(),
	}, nil
}

func (l *Local) GenerateAccessURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return "", ErrAccessURLUnsupported
}
