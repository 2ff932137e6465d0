package handlers

import (
	"context"
	"net/http"

	"github.com/ckr-digital/ridgeline/internal/api"
	"github.com/ckr-digital/ridgeline/internal/service"
)

type StatsService interface {
	Stats(ctx context.Context) (*service.KnowledgeStats, error)
}

type StatsHandler struct {
	svc StatsService
}

func NewStatsHandler(svc StatsService) *StatsHandler {
	return &StatsHandler{svc: svc}
}

func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, stats)
}
