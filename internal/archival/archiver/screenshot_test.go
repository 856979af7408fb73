package archiver

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestScreenshot_Archive_RequiresBrowser exercises the real chromedp path. It is skipped
// by default since it needs a Chrome/Chromium binary on PATH.
//
// Run with: go test -v -run TestScreenshot_Archive_RequiresBrowser ./internal/archival/archiver/...
func TestScreenshot_Archive_RequiresBrowser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	dir := t.TempDir()
	s := &Screenshot{
		Base: Base{DataDir: dir},
		Session: BrowserSession{
			UserDataDir: t.TempDir(),
			Headless:    true,
		},
		Timeout: 20 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := s.Archive(ctx, "https://example.com", "item-1")
	if err != nil {
		t.Skipf("Chrome not available or failed: %v", err)
	}
	if !result.Success {
		t.Fatal("expected screenshot to succeed")
	}
	if info, statErr := os.Stat(result.SavedPath); statErr != nil || info.Size() == 0 {
		t.Fatalf("expected non-empty screenshot file at %s", result.SavedPath)
	}
}
