package server

import (
	"net/http"

	"github.com/ckr-digital/ridgeline/internal/api"
	"github.com/ckr-digital/ridgeline/internal/api/handlers"
	"github.com/ckr-digital/ridgeline/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	KnowledgeHandler *handlers.KnowledgeHandler
	JobHandler       *handlers.JobHandler
	SearchHandler    *handlers.SearchHandler
	ContextHandler   *handlers.ContextHandler
	StatsHandler     *handlers.StatsHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/knowledge", func(r chi.Router) {
		r.Post("/files", cfg.KnowledgeHandler.Ingest)
		r.Get("/files", cfg.KnowledgeHandler.List)
		r.Get("/files/{fileKey}", cfg.KnowledgeHandler.Get)
		r.Delete("/files/{fileKey}", cfg.KnowledgeHandler.Deactivate)
		r.Post("/files/{fileKey}/reembed", cfg.KnowledgeHandler.Reembed)
		r.Post("/reembed", cfg.KnowledgeHandler.Reembed)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", cfg.JobHandler.List)
		r.Get("/overview", cfg.JobHandler.Overview)
		r.Get("/{id}", cfg.JobHandler.Get)
		r.Post("/{id}/cancel", cfg.JobHandler.Cancel)
	})

	r.Post("/search", cfg.SearchHandler.Search)

	r.Route("/context", func(r chi.Router) {
		r.Post("/{function}", cfg.ContextHandler.Build)
		r.Get("/{function}/assignments", cfg.ContextHandler.ListAssignments)
		r.Post("/{function}/assignments", cfg.ContextHandler.Assign)
		r.Delete("/{function}/assignments/{fileKey}", cfg.ContextHandler.Unassign)
	})

	r.Get("/stats", cfg.StatsHandler.Get)

	return r
}
