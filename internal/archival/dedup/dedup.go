// Package dedup implements the two dedup/skip checkpoints (spec §4.5): a submission-time
// check that avoids enqueueing redundant work, and an execution-time re-check that closes
// the race between a request and a concurrently-completing identical one. Grounded on
// original_source/app/core/dedup.py's two-checkpoint design, translated into methods over
// the Database Storage Provider contract so neither checkpoint depends on a particular
// catalog backend.
package dedup

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/webkeep/webkeep/internal/storage/db"
)

// Checker applies both dedup checkpoints against a Database Storage Provider.
type Checker struct {
	DB         db.Provider
	HTTPClient *http.Client

	// SkipExisting mirrors the config.Settings flag the Orchestrator threads through;
	// when false both checkpoints are no-ops and every job runs.
	SkipExisting bool
}

// NewChecker constructs a Checker with a sane default HTTP client (5s timeout, matching
// the reachability pre-check's "fail fast" intent).
func NewChecker(database db.Provider, skipExisting bool) *Checker {
	return &Checker{
		DB:           database,
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
		SkipExisting: skipExisting,
	}
}

// CheckAtSubmission implements spec §4.5 checkpoint 1: if skip_existing_saves is on and a
// successful artifact for (item_id, archiver) already exists, the caller should not
// enqueue a pending row at all. The bool return reports whether an existing artifact was
// found and should be reused.
func (c *Checker) CheckAtSubmission(ctx context.Context, itemID, archiver string) (db.ArchiveArtifact, bool, error) {
	if !c.SkipExisting {
		return db.ArchiveArtifact{}, false, nil
	}
	artifact, err := c.DB.GetArtifact(ctx, itemID, archiver)
	if err != nil {
		if err == db.ErrNotFound {
			return db.ArchiveArtifact{}, false, nil
		}
		return db.ArchiveArtifact{}, false, fmt.Errorf("dedup: submission check failed: %w", err)
	}
	if artifact.Status != db.StatusSuccess {
		return db.ArchiveArtifact{}, false, nil
	}
	return artifact, true, nil
}

// CheckAtExecution implements spec §4.5 checkpoint 2: re-checked immediately before
// running the archiver, closing the race where another worker completed the same
// (item_id, url, archiver) job after submission but before this one was dispatched. It
// also tries the original-URL extraction fallback for wrapped paywall-bypass URLs.
func (c *Checker) CheckAtExecution(ctx context.Context, itemID, rawURL, archiver string) (db.ArchiveArtifact, bool, error) {
	if !c.SkipExisting {
		return db.ArchiveArtifact{}, false, nil
	}
	if artifact, found, err := c.lookupSuccess(ctx, itemID, archiver); found || err != nil {
		return artifact, found, err
	}
	if original, ok := ExtractOriginalURL(rawURL); ok && original != rawURL {
		if article, err := c.DB.GetArticleByURL(ctx, original); err == nil {
			return c.lookupSuccess(ctx, article.ItemID, archiver)
		}
	}
	return db.ArchiveArtifact{}, false, nil
}

func (c *Checker) lookupSuccess(ctx context.Context, itemID, archiver string) (db.ArchiveArtifact, bool, error) {
	artifact, err := c.DB.GetArtifact(ctx, itemID, archiver)
	if err != nil {
		if err == db.ErrNotFound {
			return db.ArchiveArtifact{}, false, nil
		}
		return db.ArchiveArtifact{}, false, fmt.Errorf("dedup: execution check failed: %w", err)
	}
	if artifact.Status != db.StatusSuccess {
		return db.ArchiveArtifact{}, false, nil
	}
	return artifact, true, nil
}

// PrecheckReachability issues a HEAD request (falling back to GET, since some origins
// reject HEAD) and reports whether the URL is reachable. A 404 response is the only
// status this treats as definitively unreachable per spec §4.5 — any other status or
// network error is left for the archiver itself to handle, since servers frequently
// misbehave on HEAD without the page itself being gone.
func (c *Checker) PrecheckReachability(ctx context.Context, rawURL string) (reachable bool, err error) {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	status, err := c.probe(ctx, client, http.MethodHead, rawURL)
	if err != nil || status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		status, err = c.probe(ctx, client, http.MethodGet, rawURL)
	}
	if err != nil {
		// Network-level failures are not a definitive 404; let the archiver attempt it.
		return true, nil
	}
	return status != http.StatusNotFound, nil
}

func (c *Checker) probe(ctx context.Context, client *http.Client, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// ExtractOriginalURL recognizes common paywall-bypass wrapper URL shapes: a `?url=`
// query parameter carrying the real target, and a trailing `/https://...` or
// `/http://...` path suffix. Returns the unwrapped URL and true if one was found.
func ExtractOriginalURL(rawURL string) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err == nil {
		if q := parsed.Query().Get("url"); q != "" {
			if decoded, derr := url.QueryUnescape(q); derr == nil && looksLikeURL(decoded) {
				return decoded, true
			}
			if looksLikeURL(q) {
				return q, true
			}
		}
	}

	for _, scheme := range []string{"/https://", "/http://"} {
		if idx := strings.LastIndex(rawURL, scheme); idx >= 0 {
			candidate := rawURL[idx+1:]
			if looksLikeURL(candidate) {
				return candidate, true
			}
		}
	}

	return "", false
}

func looksLikeURL(s string) bool {
	parsed, err := url.Parse(s)
	return err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
