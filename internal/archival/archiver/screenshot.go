package archiver

import (
	"context"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

// Screenshot captures a full-page PNG of the rendered document via headless Chrome.
type Screenshot struct {
	Base
	Session BrowserSession
	Timeout time.Duration
}

var _ Archiver = (*Screenshot)(nil)

func (s *Screenshot) Name() string            { return "screenshot" }
func (s *Screenshot) OutputExtension() string { return "png" }

func (s *Screenshot) Archive(ctx context.Context, url, itemID string) (Result, error) {
	if existing, ok := s.HasExistingOutput(itemID, s.Name(), s.OutputExtension()); ok {
		return Result{Success: true, ExitCode: exitCode(0), SavedPath: existing}, nil
	}

	outputPath, err := s.OutputPath(itemID, s.Name(), s.OutputExtension())
	if err != nil {
		return Result{}, err
	}

	var buf []byte
	timedOut, runErr := s.Session.Run(ctx, s.Timeout, func(browserCtx context.Context) error {
		return chromedp.Run(browserCtx,
			chromedp.Navigate(url),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(500*time.Millisecond),
			chromedp.FullScreenshot(&buf, 90),
		)
	})

	if timedOut {
		return Result{Success: false, ExitCode: nil, SavedPath: outputPath}, nil
	}
	if runErr != nil {
		one := 1
		return Result{Success: false, ExitCode: &one}, runErr
	}

	if err := os.WriteFile(outputPath, buf, 0o644); err != nil {
		return Result{}, err
	}

	success := s.ValidateOutput(outputPath, 0, 1)
	return Result{Success: success, ExitCode: exitCode(0), SavedPath: outputPath}, nil
}
