package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"unimem/application/queries"
	querybus "unimem/application/queries/bus"
	"unimem/application/services"
	"unimem/pkg/common"
	pkgerrors "unimem/pkg/errors"
)

// SearchHandler handles semantic search, stats and embedding requests
type SearchHandler struct {
	base
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(queryBus *querybus.QueryBus, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{base{
		queryBus: queryBus,
		errors:   errorHandler,
		logger:   logger,
	}}
}

// SearchRequest represents the request body for a semantic search.
// A nil threshold uses the configured default; zero is a valid threshold.
type SearchRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// EmbedRequest represents the request body for POST /embed
type EmbedRequest struct {
	Text      string `json:"text"`
	InputType string `json:"input_type,omitempty"`
}

// EmbedBatchRequest represents the request body for POST /embed/batch
type EmbedBatchRequest struct {
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type,omitempty"`
}

// Search handles POST /search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req SearchRequest
	if err := common.DecodeJSONBody(w, r, &req, 0); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.SearchMemoriesQuery{
		OwnerID:   ownerID,
		Query:     req.Query,
		Limit:     req.Limit,
		Threshold: req.Threshold,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// Stats handles GET /stats
func (h *SearchHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetStatsQuery{OwnerID: ownerID})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// Embed handles POST /embed. It returns the raw vector for debugging.
func (h *SearchHandler) Embed(w http.ResponseWriter, r *http.Request) {
	var req EmbedRequest
	if err := common.DecodeJSONBody(w, r, &req, 0); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.EmbedTextQuery{
		Text:      req.Text,
		InputType: req.InputType,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// EmbedBatch handles POST /embed/batch. Texts are embedded in order.
func (h *SearchHandler) EmbedBatch(w http.ResponseWriter, r *http.Request) {
	var req EmbedBatchRequest
	if err := common.DecodeJSONBody(w, r, &req, 0); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.EmbedBatchQuery{
		Texts:     req.Texts,
		InputType: req.InputType,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// Health handles GET /health. An unhealthy service answers 503.
func (h *SearchHandler) Health(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.HealthQuery{})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	status := http.StatusOK
	if view, ok := result.(*queries.HealthView); ok && view.Status == services.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	common.RespondJSON(w, status, result)
}
