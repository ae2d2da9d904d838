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

// ConversationHandler handles the conversation feedback endpoints
type ConversationHandler struct {
	base
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *ConversationHandler {
	return &ConversationHandler{base{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		logger:     logger,
	}}
}

// TurnRequest represents one completed exchange
type TurnRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	UserInput      string `json:"user_input"`
	Response       string `json:"response"`
}

// TurnResponse reports whether the turn became a memory
type TurnResponse struct {
	Ingested       bool   `json:"ingested"`
	MemoryID       string `json:"memory_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ContextRequest asks for memories relevant to the next reply
type ContextRequest struct {
	Query string `json:"query"`
}

// RecordTurn handles POST /conversations/turns
func (h *ConversationHandler) RecordTurn(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req TurnRequest
	if err := common.DecodeJSONBody(w, r, &req, 0); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.IngestConversationTurnCommand{
		OwnerID:        ownerID,
		ConversationID: req.ConversationID,
		UserInput:      req.UserInput,
		Response:       req.Response,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	turn, _ := result.(*services.TurnResult)
	if turn == nil {
		h.errors.Handle(w, r, pkgerrors.NewInternalError("turn returned no result"))
		return
	}

	status := http.StatusOK
	if turn.Ingested {
		status = http.StatusCreated
	}
	common.RespondJSON(w, status, TurnResponse{
		Ingested:       turn.Ingested,
		MemoryID:       turn.MemoryID,
		ConversationID: turn.ConversationID,
	})
}

// List handles GET /conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.ListConversationsQuery{OwnerID: ownerID})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// History handles GET /conversations/{conversationID}/history
func (h *ConversationHandler) History(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetConversationHistoryQuery{
		OwnerID:        ownerID,
		ConversationID: chi.URLParam(r, "conversationID"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// ClearHistory handles DELETE /conversations/{conversationID}/history and, without a
// conversation id, DELETE /conversations, which clears every conversation of the caller.
func (h *ConversationHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	_, err := h.commandBus.Send(r.Context(), commands.ClearConversationHistoryCommand{
		OwnerID:        ownerID,
		ConversationID: chi.URLParam(r, "conversationID"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Context handles POST /conversations/context
func (h *ConversationHandler) Context(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req ContextRequest
	if err := common.DecodeJSONBody(w, r, &req, 0); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.ConversationContextQuery{
		OwnerID: ownerID,
		Query:   req.Query,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}
