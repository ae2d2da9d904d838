package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"unimem/application/commands"
	"unimem/application/commands/bus"
	"unimem/application/queries"
	querybus "unimem/application/queries/bus"
	"unimem/application/services"
	"unimem/pkg/common"
	pkgerrors "unimem/pkg/errors"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// MemoryHandler handles memory-related HTTP requests
type MemoryHandler struct {
	base
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *MemoryHandler {
	return &MemoryHandler{base{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		logger:     logger,
	}}
}

// CreateMemoryRequest represents the request body for storing content
type CreateMemoryRequest struct {
	Content    string                 `json:"content"`
	MemoryType string                 `json:"memory_type,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Source     string                 `json:"source,omitempty"`
	Tags       []string               `json:"tags,omitempty"`
	Summary    string                 `json:"summary,omitempty"`
}

// ParseTextRequest represents the request body for ingesting raw text
type ParseTextRequest struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// IngestResponse reports the memories an ingest produced. Errors is set on partial ingestion.
type IngestResponse struct {
	ID            string                 `json:"id"`
	ChunkIDs      []string               `json:"chunk_ids"`
	TotalChunks   int                    `json:"total_chunks"`
	FailedChunks  []int                  `json:"failed_chunks,omitempty"`
	ContentLength int                    `json:"content_length"`
	Message       string                 `json:"message"`
	Errors        map[string]interface{} `json:"errors,omitempty"`
}

// CreateMemory handles POST /memories
func (h *MemoryHandler) CreateMemory(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req CreateMemoryRequest
	if err := common.DecodeJSONBody(w, r, &req, 0); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.CreateMemoryCommand{
		OwnerID:    ownerID,
		Content:    req.Content,
		MemoryType: req.MemoryType,
		Metadata:   req.Metadata,
		Source:     req.Source,
		Tags:       req.Tags,
		Summary:    req.Summary,
	})
	h.respondIngest(w, r, result, err)
}

// ParseText handles POST /parse-text
func (h *MemoryHandler) ParseText(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req ParseTextRequest
	if err := common.DecodeJSONBody(w, r, &req, 0); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.ParseTextCommand{
		OwnerID: ownerID,
		Text:    req.Text,
		Source:  req.Source,
	})
	h.respondIngest(w, r, result, err)
}

// respondIngest writes 201 on success and 207 when the primary memory landed but some
// secondary chunks did not.
func (h *MemoryHandler) respondIngest(w http.ResponseWriter, r *http.Request, result interface{}, err error) {
	ingested, _ := result.(*services.IngestResult)
	if err != nil && !(pkgerrors.IsPartialIngestion(err) && ingested != nil) {
		h.errors.Handle(w, r, err)
		return
	}
	if ingested == nil {
		h.errors.Handle(w, r, pkgerrors.NewInternalError("ingest returned no result"))
		return
	}

	response := IngestResponse{
		ID:            ingested.PrimaryID,
		ChunkIDs:      ingested.ChunkIDs,
		TotalChunks:   ingested.TotalChunks,
		FailedChunks:  ingested.FailedChunks,
		ContentLength: ingested.ContentLength,
		Message:       "Memory stored successfully",
	}
	if response.ChunkIDs == nil {
		response.ChunkIDs = []string{}
	}

	if err != nil {
		appErr := pkgerrors.GetAppError(err)
		response.Message = appErr.Message
		response.Errors = appErr.Details
		h.logger.Warn("Memory partially stored",
			zap.String("memoryID", ingested.PrimaryID),
			zap.Ints("failedChunks", ingested.FailedChunks),
		)
		common.RespondJSON(w, http.StatusMultiStatus, response)
		return
	}

	common.RespondJSON(w, http.StatusCreated, response)
}

// GetMemory handles GET /memories/{memoryID}
func (h *MemoryHandler) GetMemory(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetMemoryQuery{
		OwnerID:  ownerID,
		MemoryID: chi.URLParam(r, "memoryID"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// DeleteMemory handles DELETE /memories/{memoryID}
func (h *MemoryHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.DeleteMemoryCommand{
		OwnerID:  ownerID,
		MemoryID: chi.URLParam(r, "memoryID"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"id":      result,
		"deleted": true,
	})
}

// ListMemories handles GET /memories
func (h *MemoryHandler) ListMemories(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	page, err := common.ExtractPaginationParams(r, defaultListLimit, maxListLimit)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	params := r.URL.Query()
	result, err := h.queryBus.Ask(r.Context(), queries.ListMemoriesQuery{
		OwnerID:    ownerID,
		MemoryType: params.Get("memory_type"),
		StartDate:  params.Get("start_date"),
		EndDate:    params.Get("end_date"),
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// GetRelated handles GET /memories/{memoryID}/related
func (h *MemoryHandler) GetRelated(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	limit, err := common.QueryInt(r, "limit", 0)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetRelatedMemoriesQuery{
		OwnerID:  ownerID,
		MemoryID: chi.URLParam(r, "memoryID"),
		Limit:    limit,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}
