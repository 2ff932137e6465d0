package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ckr-digital/ridgeline/internal/api"
	"github.com/ckr-digital/ridgeline/internal/service"
)

type SearchService interface {
	Search(ctx context.Context, input service.SearchInput) (*service.SearchOutput, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	Query     string  `json:"query"`
	Threshold float64 `json:"threshold"`
	Limit     int     `json:"limit"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.SearchInput{
		Query:     req.Query,
		Threshold: req.Threshold,
		Limit:     req.Limit,
	}

	output, err := h.svc.Search(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, output)
}
