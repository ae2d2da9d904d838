package handlers

import (
	"context"
	"fmt"

	"unimem/application/queries"
	"unimem/application/queries/bus"
	"unimem/application/services"
	pkgerrors "unimem/pkg/errors"
)

// ConversationReader exposes conversation history and context search.
type ConversationReader interface {
	History(ownerID, conversationID string) []services.Turn
	Conversations(ownerID string) []services.ConversationSummary
	RelevantMemories(ctx context.Context, ownerID, query string) (*services.SearchResponse, error)
}

// ConversationQueryHandler answers conversation read queries.
type ConversationQueryHandler struct {
	conversations ConversationReader
}

// NewConversationQueryHandler creates a new query handler
func NewConversationQueryHandler(conversations ConversationReader) *ConversationQueryHandler {
	return &ConversationQueryHandler{conversations: conversations}
}

func (h *ConversationQueryHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	switch q := query.(type) {
	case queries.GetConversationHistoryQuery:
		return queries.NewHistoryView(q.ConversationID, h.conversations.History(q.OwnerID, q.ConversationID)), nil
	case queries.ListConversationsQuery:
		return queries.NewConversationListView(h.conversations.Conversations(q.OwnerID)), nil
	case queries.ConversationContextQuery:
		resp, err := h.conversations.RelevantMemories(ctx, q.OwnerID, q.Query)
		if err != nil {
			return nil, err
		}
		return queries.NewSearchResultsView(resp), nil
	default:
		return nil, pkgerrors.NewInternalError(fmt.Sprintf("unexpected query type %T", query))
	}
}

// RegisterAll wires every query handler into the bus.
func RegisterAll(b *bus.QueryBus, memories *MemoryQueryHandler, conversations *ConversationQueryHandler) error {
	registrations := []struct {
		query   bus.Query
		handler bus.QueryHandler
	}{
		{queries.GetMemoryQuery{}, memories},
		{queries.ListMemoriesQuery{}, memories},
		{queries.SearchMemoriesQuery{}, memories},
		{queries.GetRelatedMemoriesQuery{}, memories},
		{queries.GetStatsQuery{}, memories},
		{queries.HealthQuery{}, memories},
		{queries.EmbedTextQuery{}, memories},
		{queries.EmbedBatchQuery{}, memories},
		{queries.GetConversationHistoryQuery{}, conversations},
		{queries.ListConversationsQuery{}, conversations},
		{queries.ConversationContextQuery{}, conversations},
	}
	for _, r := range registrations {
		if err := b.Register(r.query, r.handler); err != nil {
			return err
		}
	}
	return nil
}
