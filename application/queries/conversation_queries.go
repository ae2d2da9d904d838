package queries

import (
	"unimem/pkg/utils"
)

// GetConversationHistoryQuery returns the recent turns of one of the owner's conversations.
type GetConversationHistoryQuery struct {
	OwnerID        string `json:"owner_id" validate:"required,max=256"`
	ConversationID string `json:"conversation_id" validate:"required,max=128"`
}

func (q GetConversationHistoryQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ListConversationsQuery lists the owner's conversations.
type ListConversationsQuery struct {
	OwnerID string `json:"owner_id" validate:"required,max=256"`
}

func (q ListConversationsQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ConversationContextQuery finds memories to ground an answer to Query.
type ConversationContextQuery struct {
	OwnerID string `json:"owner_id" validate:"required"`
	Query   string `json:"query" validate:"required"`
}

func (q ConversationContextQuery) Validate() error {
	return utils.ValidateStruct(q)
}
