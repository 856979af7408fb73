package archiver

import (
	"context"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// PDF prints the rendered document to PDF via headless Chrome's DevTools Page.printToPDF.
type PDF struct {
	Base
	Session BrowserSession
	Timeout time.Duration
}

var _ Archiver = (*PDF)(nil)

func (p *PDF) Name() string            { return "pdf" }
func (p *PDF) OutputExtension() string { return "pdf" }

func (p *PDF) Archive(ctx context.Context, url, itemID string) (Result, error) {
	if existing, ok := p.HasExistingOutput(itemID, p.Name(), p.OutputExtension()); ok {
		return Result{Success: true, ExitCode: exitCode(0), SavedPath: existing}, nil
	}

	outputPath, err := p.OutputPath(itemID, p.Name(), p.OutputExtension())
	if err != nil {
		return Result{}, err
	}

	var buf []byte
	timedOut, runErr := p.Session.Run(ctx, p.Timeout, func(browserCtx context.Context) error {
		return chromedp.Run(browserCtx,
			chromedp.Navigate(url),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(500*time.Millisecond),
			chromedp.ActionFunc(func(ctx context.Context) error {
				var pdfErr error
				buf, _, pdfErr = page.PrintToPDF().WithPrintBackground(true).Do(ctx)
				return pdfErr
			}),
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

	success := p.ValidateOutput(outputPath, 0, 1)
	return Result{Success: success, ExitCode: exitCode(0), SavedPath: outputPath}, nil
}
