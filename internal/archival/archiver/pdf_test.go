package archiver

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestPDF_Archive_RequiresBrowser exercises the real chromedp + Page.printToPDF path. It
// is skipped by default since it needs a Chrome/Chromium binary on PATH.
func TestPDF_Archive_RequiresBrowser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	dir := t.TempDir()
	p := &PDF{
		Base: Base{DataDir: dir},
		Session: BrowserSession{
			UserDataDir: t.TempDir(),
			Headless:    true,
		},
		Timeout: 20 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := p.Archive(ctx, "https://example.com", "item-1")
	if err != nil {
		t.Skipf("Chrome not available or failed: %v", err)
	}
	if !result.Success {
		t.Fatal("expected PDF export to succeed")
	}
	if info, statErr := os.Stat(result.SavedPath); statErr != nil || info.Size() == 0 {
		t.Fatalf("expected non-empty PDF file at %s", result.SavedPath)
	}
}
