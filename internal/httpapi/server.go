// Package httpapi is the thin chi-routed adapter onto the Archival Orchestrator's public
// operations (spec §6): it decodes requests, calls Orchestrator/db.Provider methods, and
// serializes results as JSON. It carries no business logic of its own — every decision
// belongs to the orchestrator, dedup checker, or storage providers it wraps.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/webkeep/webkeep/internal/archival/archiver"
	"github.com/webkeep/webkeep/internal/archival/command"
	"github.com/webkeep/webkeep/internal/archival/orchestrator"
	"github.com/webkeep/webkeep/internal/storage/db"
	"github.com/webkeep/webkeep/internal/storage/file"
)

// Server holds every collaborator a handler needs, threaded in explicitly by the
// composition root (spec §9: no hidden process-wide state).
//
// CommandRunner is nil when the configured database backend does not implement
// command.Logger (only the relational catalog does): the command-log replay endpoint
// degrades gracefully in that case rather than assuming its presence.
type Server struct {
	Orchestrator  *orchestrator.Orchestrator
	DB            db.Provider
	Providers     []file.Provider
	CommandRunner *command.Runner
	Notifier      archiver.Notifier
	DataDir       string
}

// NewServer constructs a Server.
func NewServer(o *orchestrator.Orchestrator, database db.Provider, providers []file.Provider, commandRunner *command.Runner, notifier archiver.Notifier, dataDir string) *Server {
	return &Server{Orchestrator: o, DB: database, Providers: providers, CommandRunner: commandRunner, Notifier: notifier, DataDir: dataDir}
}

// Routes builds the chi.Router exposing the HTTP surface of spec §6, plus the two
// SPEC_FULL.md-supplemented admin read endpoints.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Get("/health", s.handleHealth)

	r.Post("/archive/{archiver}", s.handleArchiveOne)
	r.Post("/archive/{archiver}/batch", s.handleArchiveBatch)
	r.Post("/save", s.handleSave)
	r.Post("/save/batch", s.handleSaveBatch)
	r.Get("/tasks/{task_id}", s.handleTaskStatus)
	r.Post("/archive/retrieve", s.handleRetrieve)
	r.Get("/archive/{archived_url_id}/size", s.handleSize)
	r.Get("/archive/{archived_url_id}/artifacts/{archiver}", s.handleArtifactDetail)

	r.Get("/admin/saves", s.handleAdminListSaves)
	r.Delete("/admin/saves/{rowid}", s.handleAdminDeleteByRowID)
	r.Delete("/admin/saves/by-item/{id}", s.handleAdminDeleteByItem)
	r.Delete("/admin/saves/by-url", s.handleAdminDeleteByURL)
	r.Post("/admin/summarize", s.handleAdminSummarize)
	r.Get("/admin/command-log/{execution_id}", s.handleAdminCommandLog)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
