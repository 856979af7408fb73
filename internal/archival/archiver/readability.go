package archiver

import (
	"context"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// averageWordsPerMinute is the reading-speed constant used to turn a word count into a
// reading_time estimate, the same ratio original_source's summarizer request used.
const averageWordsPerMinute = 200.0

// noiseSelectors are stripped from the DOM before text extraction: navigation, scripts,
// and other elements that are never part of the article body.
var noiseSelectors = []string{"script", "style", "nav", "header", "footer", "noscript", "iframe", "form"}

// contentSelectors are tried in order; the first one that yields a non-trivial amount of
// text is treated as the article body, the same fallback chain
// original_source/services/archiver/archivers/readability.py walked through before
// falling back to <body> itself.
var contentSelectors = []string{"article", "main", "[role=main]", "#content", ".content", "body"}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Readability renders a page with headless Chrome, then runs goquery over the final DOM
// to produce clean article text plus structured metadata (title, byline, word count,
// reading time) — the teacher's own HTML-parsing dependency, generalized from a
// title-fallback (archive.go) and resource-traversal (inline.go) role into full
// extraction.
type Readability struct {
	Base
	Session BrowserSession
	Timeout time.Duration
}

var _ Archiver = (*Readability)(nil)

func (r *Readability) Name() string            { return "readability" }
func (r *Readability) OutputExtension() string { return "html" }

func (r *Readability) Archive(ctx context.Context, rawURL, itemID string) (Result, error) {
	if existing, ok := r.HasExistingOutput(itemID, r.Name(), r.OutputExtension()); ok {
		return Result{Success: true, ExitCode: exitCode(0), SavedPath: existing}, nil
	}

	outputPath, err := r.OutputPath(itemID, r.Name(), r.OutputExtension())
	if err != nil {
		return Result{}, err
	}

	var html, title string
	timedOut, runErr := r.Session.Run(ctx, r.Timeout, func(browserCtx context.Context) error {
		return chromedp.Run(browserCtx,
			chromedp.Navigate(rawURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(500*time.Millisecond),
			chromedp.Title(&title),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
	})
	if timedOut {
		return Result{Success: false, ExitCode: nil, SavedPath: outputPath}, nil
	}
	if runErr != nil {
		one := 1
		return Result{Success: false, ExitCode: &one}, runErr
	}

	if err := os.WriteFile(outputPath, []byte(html), 0o644); err != nil {
		return Result{}, err
	}

	meta, err := extractMetadata(html, title)
	if err != nil {
		one := 1
		return Result{Success: false, ExitCode: &one}, err
	}

	success := r.ValidateOutput(outputPath, 0, 1)
	return Result{Success: success, ExitCode: exitCode(0), SavedPath: outputPath, Metadata: meta}, nil
}

// extractMetadata runs the goquery extraction chain over the captured document.
func extractMetadata(html, fallbackTitle string) (*Metadata, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	for _, sel := range noiseSelectors {
		doc.Find(sel).Remove()
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = fallbackTitle
	}

	byline := extractByline(doc)
	text := extractText(doc)
	wordCount := len(strings.Fields(text))

	return &Metadata{
		Title:              title,
		Byline:             byline,
		Text:               text,
		WordCount:          wordCount,
		ReadingTimeMinutes: math.Ceil(float64(wordCount) / averageWordsPerMinute),
	}, nil
}

// extractByline follows the common attribution markup conventions: a meta author tag
// first, then a visible ".byline"/".author" element.
func extractByline(doc *goquery.Document) string {
	if content, ok := doc.Find(`meta[name="author"]`).First().Attr("content"); ok && strings.TrimSpace(content) != "" {
		return strings.TrimSpace(content)
	}
	for _, sel := range []string{".byline", ".author", "[rel=author]"} {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// extractText walks contentSelectors in order and returns the first candidate whose
// collapsed text is long enough to plausibly be the article body, falling back to the
// whole document.
func extractText(doc *goquery.Document) string {
	for _, sel := range contentSelectors {
		text := collapseWhitespace(doc.Find(sel).First().Text())
		if len(text) > 200 || sel == "body" {
			return text
		}
	}
	return collapseWhitespace(doc.Text())
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
