package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "output.html")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLocal_Upload_Uncompressed(t *testing.T) {
	root := t.TempDir()
	p, err := NewLocal(root)
	require.NoError(t, err)

	src := writeTempFile(t, "<html>hello</html>")
	res, err := p.Upload(context.Background(), src, DestinationPath("item-1", "monolith", "html"), false)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, int64(len("<html>hello</html>")), res.OriginalSize)
	require.Equal(t, res.OriginalSize, res.StoredSize)

	exists, err := p.Exists(context.Background(), DestinationPath("item-1", "monolith", "html"))
	require.NoError(t, err)
	require.True(t, exists)
}

func TestLocal_Upload_Compressed_RoundTrips(t *testing.T) {
	root := t.TempDir()
	p, err := NewLocal(root)
	require.NoError(t, err)

	content := "<html>" + string(make([]byte, 4096)) + "</html>"
	src := writeTempFile(t, content)
	dest := DestinationPath("item-2", "readability", "html")

	res, err := p.Upload(context.Background(), src, dest, true)
	require.NoError(t, err)
	require.True(t, res.Success)

	out := filepath.Join(t.TempDir(), "roundtrip.html")
	require.NoError(t, p.Download(context.Background(), dest+".gz", out, true))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, content, string(got))
}

func TestLocal_Download_NotFound(t *testing.T) {
	root := t.TempDir()
	p, err := NewLocal(root)
	require.NoError(t, err)

	err = p.Download(context.Background(), "archives/missing/monolith/output.html", filepath.Join(t.TempDir(), "x"), false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_Delete(t *testing.T) {
	root := t.TempDir()
	p, err := NewLocal(root)
	require.NoError(t, err)

	src := writeTempFile(t, "data")
	dest := DestinationPath("item-3", "pdf", "pdf")
	_, err = p.Upload(context.Background(), src, dest, false)
	require.NoError(t, err)

	require.NoError(t, p.Delete(context.Background(), dest))
	exists, err := p.Exists(context.Background(), dest)
	require.NoError(t, err)
	require.False(t, exists)

	require.ErrorIs(t, p.Delete(context.Background(), dest), ErrNotFound)
}

func TestLocal_List(t *testing.T) {
	root := t.TempDir()
	p, err := NewLocal(root)
	require.NoError(t, err)

	for _, archiver := range []string{"monolith", "screenshot"} {
		src := writeTempFile(t, "x")
		_, err := p.Upload(context.Background(), src, DestinationPath("item-4", archiver, "bin"), false)
		require.NoError(t, err)
	}

	entries, err := p.List(context.Background(), "archives/item-4")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestLocal_GenerateAccessURL_Unsupported(t *testing.T) {
	p, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	_, err = p.GenerateAccessURL(context.Background(), "anything", 0)
	require.ErrorIs(t, err, ErrAccessURLUnsupported)
}
