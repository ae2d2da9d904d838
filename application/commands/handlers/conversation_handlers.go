package handlers

import (
	"context"

	"go.uber.org/zap"

	"unimem/application/commands"
	"unimem/application/commands/bus"
	"unimem/application/services"
)

// TurnRecorder applies the conversation feedback policy.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, req services.TurnRequest) (*services.TurnResult, error)
	ClearHistory(ownerID, conversationID string)
}

// IngestConversationTurnHandler handles IngestConversationTurnCommand
type IngestConversationTurnHandler struct {
	conversations TurnRecorder
	logger        *zap.Logger
}

// NewIngestConversationTurnHandler creates a new handler instance
func NewIngestConversationTurnHandler(conversations TurnRecorder, logger *zap.Logger) *IngestConversationTurnHandler {
	return &IngestConversationTurnHandler{conversations: conversations, logger: logger}
}

func (h *IngestConversationTurnHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.IngestConversationTurnCommand)
	if !ok {
		return nil, unexpected(cmd)
	}

	result, err := h.conversations.RecordTurn(ctx, services.TurnRequest{
		OwnerID:        c.OwnerID,
		ConversationID: c.ConversationID,
		UserInput:      c.UserInput,
		Response:       c.Response,
	})
	if result == nil {
		return nil, err
	}
	return result, err
}

// ClearConversationHistoryHandler handles ClearConversationHistoryCommand
type ClearConversationHistoryHandler struct {
	conversations TurnRecorder
}

// NewClearConversationHistoryHandler creates a new handler instance
func NewClearConversationHistoryHandler(conversations TurnRecorder) *ClearConversationHistoryHandler {
	return &ClearConversationHistoryHandler{conversations: conversations}
}

func (h *ClearConversationHistoryHandler) Handle(_ context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.ClearConversationHistoryCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	h.conversations.ClearHistory(c.OwnerID, c.ConversationID)
	return nil, nil
}

// RegisterAll wires every command handler into the bus.
func RegisterAll(b *bus.CommandBus, ingester Ingester, conversations TurnRecorder, logger *zap.Logger) error {
	registrations := []struct {
		cmd     bus.Command
		handler bus.CommandHandler
	}{
		{commands.CreateMemoryCommand{}, NewCreateMemoryHandler(ingester, logger)},
		{commands.DeleteMemoryCommand{}, NewDeleteMemoryHandler(ingester, logger)},
		{commands.ParseTextCommand{}, NewParseTextHandler(ingester, logger)},
		{commands.IngestConversationTurnCommand{}, NewIngestConversationTurnHandler(conversations, logger)},
		{commands.ClearConversationHistoryCommand{}, NewClearConversationHistoryHandler(conversations)},
	}
	for _, r := range registrations {
		if err := b.Register(r.cmd, r.handler); err != nil {
			return err
		}
	}
	return nil
}
