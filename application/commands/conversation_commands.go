package commands

import (
	"unimem/pkg/utils"
)

// IngestConversationTurnCommand feeds one completed dialogue turn into the memory store.
// ConversationID may be empty; a new one is generated.
type IngestConversationTurnCommand struct {
	OwnerID        string `json:"owner_id" validate:"required,max=256"`
	ConversationID string `json:"conversation_id" validate:"max=128"`
	UserInput      string `json:"user_input" validate:"required"`
	Response       string `json:"response" validate:"required"`
}

func (c IngestConversationTurnCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// ClearConversationHistoryCommand drops the in-memory history of one of the owner's
// conversations, or of all of them when ConversationID is empty.
type ClearConversationHistoryCommand struct {
	OwnerID        string `json:"owner_id" validate:"required,max=256"`
	ConversationID string `json:"conversation_id" validate:"max=128"`
}

func (c ClearConversationHistoryCommand) Validate() error {
	return utils.ValidateStruct(c)
}
