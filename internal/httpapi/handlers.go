package httpapi

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/webkeep/webkeep/internal/archival/orchestrator"
	"github.com/webkeep/webkeep/internal/sanitize"
	"github.com/webkeep/webkeep/internal/storage/db"
	"github.com/webkeep/webkeep/internal/storage/file"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type itemRequest struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

func (i itemRequest) validate() error {
	if i.ID == "" || i.URL == "" {
		return errors.New("id and url are required")
	}
	return nil
}

type batchRequest struct {
	Items []itemRequest `json:"items"`
}

func itemResultJSON(r orchestrator.ItemResult) map[string]interface{} {
	return map[string]interface{}{
		"id":         r.ItemID,
		"url":        r.URL,
		"archiver":   r.Archiver,
		"status":     r.Status,
		"ok":         r.Status == db.StatusSuccess,
		"exit_code":  r.ExitCode,
		"saved_path": r.SavedPath,
		"db_rowid":   r.RowID,
	}
}

// handleArchiveOne implements the synchronous `/archive/{archiver}` operation: a single
// item run through one archiver, or every configured archiver when archiver="all"
// (archiver="all" reports the last archiver's result per spec §7).
func (s *Server) handleArchiveOne(w http.ResponseWriter, r *http.Request) {
	archiverName := chi.URLParam(r, "archiver")
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.Orchestrator.Submit(r.Context(), orchestrator.Item{ItemID: req.ID, URL: req.URL, Name: req.Name}, archiverName)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	last := results[len(results)-1]
	writeJSON(w, http.StatusOK, itemResultJSON(last))
}

// handleSave implements the `/save` operation: enqueues one item through every
// configured archiver asynchronously.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.enqueueBatch(w, r, []itemRequest{req}, "all")
}

// handleArchiveBatch implements `/archive/{archiver}/batch`.
func (s *Server) handleArchiveBatch(w http.ResponseWriter, r *http.Request) {
	archiverName := chi.URLParam(r, "archiver")
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.enqueueBatch(w, r, req.Items, archiverName)
}

// handleSaveBatch implements `/save/batch`: every item through every configured archiver.
func (s *Server) handleSaveBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.enqueueBatch(w, r, req.Items, "all")
}

func (s *Server) enqueueBatch(w http.ResponseWriter, r *http.Request, reqs []itemRequest, archiverName string) {
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "items must not be empty")
		return
	}
	items := make([]orchestrator.Item, 0, len(reqs))
	for _, it := range reqs {
		if err := it.validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		items = append(items, orchestrator.Item{ItemID: it.ID, URL: it.URL, Name: it.Name})
	}

	taskID, count, err := s.Orchestrator.SubmitBatch(r.Context(), items, archiverName)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"task_id": taskID, "count": count})
}

// handleTaskStatus implements `/tasks/{task_id}`.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	overall, items, ok := s.Orchestrator.TaskStatus(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown task")
		return
	}
	perItem := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		perItem = append(perItem, itemResultJSON(it))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": overall, "items": perItem})
}

type retrieveRequest struct {
	ID       string `json:"id"`
	Archiver string `json:"archiver"`
}

// handleRetrieve implements `/archive/retrieve`: a single artifact file, or a gzipped tar
// of every artifact for the item when archiver="all".
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ID == "" || req.Archiver == "" {
		writeError(w, http.StatusBadRequest, "id and archiver are required")
		return
	}
	itemID := sanitize.ID(req.ID)

	artifacts, err := s.DB.ListArtifacts(r.Context(), itemID)
	if err != nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	if req.Archiver != "all" {
		for _, a := range artifacts {
			if a.Archiver == req.Archiver {
				s.serveArtifactFile(w, r, itemID, a)
				return
			}
		}
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.tar.gz"`, itemID))
	gz := gzip.NewWriter(w)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, a := range artifacts {
		if a.Status != db.StatusSuccess || a.SavedPath == "" {
			continue
		}
		content, rerr := s.readArtifactContent(r.Context(), itemID, a)
		if rerr != nil {
			continue
		}
		name := filepath.Join(a.Archiver, filepath.Base(a.SavedPath))
		_ = tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(content)), Mode: 0o644})
		_, _ = tw.Write(content)
	}
}

func (s *Server) serveArtifactFile(w http.ResponseWriter, r *http.Request, itemID string, a db.ArchiveArtifact) {
	content, err := s.readArtifactContent(r.Context(), itemID, a)
	if err != nil {
		writeError(w, http.StatusNotFound, "artifact content unavailable")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(a.SavedPath)))
	_, _ = w.Write(content)
}

// readArtifactContent reads an artifact's bytes from local disk, falling back to the
// configured file.Providers. Local disk is preferred since ArchiveWithStorage keeps a
// local copy until the cleanup scheduler reclaims it (spec §4.7), so the common case
// never touches a remote store.
//
// The fallback cannot pass a.SavedPath (the local on-disk path) to a provider's Download:
// providers key stored objects by the archives/<item_id>/<archiver>/output.<ext>
// convention (file.DestinationPath), not by the local path ArchiveWithStorage wrote to.
// It rebuilds that storage key from itemID/a.Archiver/the extension of a.SavedPath, and
// tries both the uncompressed and the ".gz"-suffixed compressed variant, since Upload
// picks one or the other per call depending on whether compression was requested.
func (s *Server) readArtifactContent(ctx context.Context, itemID string, a db.ArchiveArtifact) ([]byte, error) {
	if a.SavedPath != "" {
		if b, err := os.ReadFile(a.SavedPath); err == nil {
			return b, nil
		}
	}

	ext := strings.TrimPrefix(filepath.Ext(a.SavedPath), ".")
	if ext == "" {
		return nil, fmt.Errorf("httpapi: cannot determine storage path for artifact %d", a.ID)
	}
	storagePath := file.DestinationPath(itemID, a.Archiver, ext)
	candidates := []struct {
		path       string
		decompress bool
	}{
		{storagePath, false},
		{storagePath + ".gz", true},
	}

	for _, p := range s.Providers {
		for _, c := range candidates {
			tmp, err := os.CreateTemp("", "webkeep-retrieve-*")
			if err != nil {
				continue
			}
			tmpPath := tmp.Name()
			tmp.Close()

			derr := p.Download(ctx, c.path, tmpPath, c.decompress)
			if derr != nil {
				os.Remove(tmpPath)
				continue
			}
			b, err := os.ReadFile(tmpPath)
			os.Remove(tmpPath)
			if err == nil {
				return b, nil
			}
		}
	}
	return nil, fmt.Errorf("httpapi: no provider could produce content for artifact %d", a.ID)
}

// handleSize implements `/archive/{archived_url_id}/size`.
func (s *Server) handleSize(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "archived_url_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "archived_url_id must be numeric")
		return
	}
	article, err := s.DB.GetArticleByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "archived url not found")
		return
	}
	artifacts, err := s.DB.ListArtifacts(r.Context(), article.ItemID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var total int64
	out := make([]map[string]interface{}, 0, len(artifacts))
	for _, a := range artifacts {
		var size int64
		if a.SizeBytes != nil {
			size = *a.SizeBytes
		}
		total += size
		out = append(out, map[string]interface{}{
			"archiver":   a.Archiver,
			"size_bytes": size,
			"saved_path": a.SavedPath,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"total_size_bytes": total, "artifacts": out})
}

// handleArtifactDetail implements the supplemented `/archive/{archived_url_id}/artifacts/{archiver}`
// read: the full per-archiver record, including storage upload outcomes.
func (s *Server) handleArtifactDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "archived_url_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "archived_url_id must be numeric")
		return
	}
	archiverName := chi.URLParam(r, "archiver")

	article, err := s.DB.GetArticleByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "archived url not found")
		return
	}
	artifact, err := s.DB.GetArtifact(r.Context(), article.ItemID, archiverName)
	if err != nil {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

// handleAdminListSaves implements `/admin/saves`: a paginated listing with a file_exists
// probe per artifact.
func (s *Server) handleAdminListSaves(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	articles, err := s.DB.ListArticles(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]interface{}, 0, len(articles))
	for _, article := range articles {
		artifacts, _ := s.DB.ListArtifacts(r.Context(), article.ItemID)
		artifactOut := make([]map[string]interface{}, 0, len(artifacts))
		for _, a := range artifacts {
			exists := false
			if a.SavedPath != "" {
				if _, statErr := os.Stat(a.SavedPath); statErr == nil {
					exists = true
				}
			}
			artifactOut = append(artifactOut, map[string]interface{}{
				"archiver":    a.Archiver,
				"status":      a.Status,
				"saved_path":  a.SavedPath,
				"file_exists": exists,
			})
		}
		out = append(out, map[string]interface{}{
			"id":        article.ID,
			"item_id":   article.ItemID,
			"url":       article.URL,
			"name":      article.Name,
			"artifacts": artifactOut,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"saves": out, "limit": limit, "offset": offset})
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func removeFilesRequested(r *http.Request) bool {
	v := r.URL.Query().Get("remove_files")
	return v == "true" || v == "1"
}

func (s *Server) maybeRemoveFiles(r *http.Request, artifacts []db.ArchiveArtifact) {
	if !removeFilesRequested(r) {
		return
	}
	for _, a := range artifacts {
		if a.SavedPath == "" {
			continue
		}
		if err := os.Remove(a.SavedPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			continue
		}
	}
}

// handleAdminDeleteByRowID implements `DELETE /admin/saves/{rowid}`.
func (s *Server) handleAdminDeleteByRowID(w http.ResponseWriter, r *http.Request) {
	rowID, err := strconv.ParseInt(chi.URLParam(r, "rowid"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "rowid must be numeric")
		return
	}
	deleted, err := s.DB.DeleteArtifactByRowID(r.Context(), rowID)
	if err != nil {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	s.maybeRemoveFiles(r, []db.ArchiveArtifact{deleted})
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": 1})
}

// handleAdminDeleteByItem implements `DELETE /admin/saves/by-item/{id}`.
func (s *Server) handleAdminDeleteByItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	deleted, err := s.DB.DeleteArtifactsByItem(r.Context(), itemID)
	if err != nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	s.maybeRemoveFiles(r, deleted)
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": len(deleted)})
}

// handleAdminDeleteByURL implements `DELETE /admin/saves/by-url?url=`.
func (s *Server) handleAdminDeleteByURL(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	deleted, err := s.DB.DeleteArtifactsByURL(r.Context(), url)
	if err != nil {
		writeError(w, http.StatusNotFound, "url not found")
		return
	}
	s.maybeRemoveFiles(r, deleted)
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": len(deleted)})
}

type summarizeRequest struct {
	ArtifactID    int64  `json:"artifact_id"`
	ArchivedURLID int64  `json:"archived_url_id"`
	Reason        string `json:"reason,omitempty"`
}

// handleAdminSummarize implements `/admin/summarize`: a manual re-notification of the
// summarization subsystem, e.g. after a consumer outage.
func (s *Server) handleAdminSummarize(w http.ResponseWriter, r *http.Request) {
	if s.Notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "summarization notifier not configured")
		return
	}
	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "admin_resubmit"
	}
	s.Notifier.Schedule(r.Context(), req.ArtifactID, req.ArchivedURLID, reason)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// handleAdminCommandLog implements the supplemented `GET /admin/command-log/{execution_id}`:
// a replay of a persisted command execution's output, without re-running it. Only
// available when the configured database backend implements command.Logger (the
// relational catalog); other backends report 501.
func (s *Server) handleAdminCommandLog(w http.ResponseWriter, r *http.Request) {
	if s.CommandRunner == nil {
		writeError(w, http.StatusNotImplemented, "command log replay requires the relational database backend")
		return
	}
	executionID, err := strconv.ParseInt(chi.URLParam(r, "execution_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "execution_id must be numeric")
		return
	}
	result, err := s.CommandRunner.Replay(r.Context(), executionID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
