// Package worker handles asynchronous events delivered to the service's Lambda workers.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	awsevents "github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"unimem/application/commands"
	"unimem/application/commands/bus"
	"unimem/application/ports"
	"unimem/application/services"
	"unimem/domain/events"
	pkgerrors "unimem/pkg/errors"
	"unimem/pkg/utils"
)

// DedupTTL is how long a delivered turn is remembered. EventBridge redelivers within hours.
const DedupTTL = 24 * time.Hour

// CommandSender is the command bus surface the worker needs.
type CommandSender interface {
	Send(ctx context.Context, cmd bus.Command) (interface{}, error)
}

// TurnCompletedHandler applies the conversation feedback loop to turns completed by the
// chat service. Deliveries are at least once, so each turn is claimed in the control table first.
type TurnCompletedHandler struct {
	commands CommandSender
	lock     ports.DistributedLock
	logger   *zap.Logger
}

// NewTurnCompletedHandler creates a new handler
func NewTurnCompletedHandler(commands CommandSender, lock ports.DistributedLock, logger *zap.Logger) *TurnCompletedHandler {
	return &TurnCompletedHandler{commands: commands, lock: lock, logger: logger}
}

// DedupKey identifies one turn of one owner's conversation.
func DedupKey(turn events.ConversationTurnCompleted) string {
	return fmt.Sprintf("turn#%s#%s#%s", turn.OwnerID, turn.ConversationID, utils.ContentHash(turn.UserInput+"\x00"+turn.Response))
}

// Handle processes one EventBridge event. Other detail types are ignored. A returned error
// makes Lambda redeliver the event; the claim is released first so the retry can run.
func (h *TurnCompletedHandler) Handle(ctx context.Context, event awsevents.CloudWatchEvent) error {
	if event.DetailType != events.TypeConversationTurnCompleted {
		h.logger.Debug("Ignoring event", zap.String("detailType", event.DetailType), zap.String("eventID", event.ID))
		return nil
	}

	var turn events.ConversationTurnCompleted
	if err := json.Unmarshal(event.Detail, &turn); err != nil {
		h.logger.Error("Malformed turn event", zap.String("eventID", event.ID), zap.Error(err))
		return nil
	}

	key := DedupKey(turn)
	acquired, err := h.lock.TryLock(ctx, key, DedupTTL)
	if err != nil {
		return fmt.Errorf("claim turn: %w", err)
	}
	if !acquired {
		h.logger.Info("Duplicate turn delivery skipped",
			zap.String("conversationID", turn.ConversationID),
			zap.String("eventID", event.ID),
		)
		return nil
	}

	result, err := h.commands.Send(ctx, commands.IngestConversationTurnCommand{
		OwnerID:        turn.OwnerID,
		ConversationID: turn.ConversationID,
		UserInput:      turn.UserInput,
		Response:       turn.Response,
	})

	switch {
	case err == nil, pkgerrors.IsPartialIngestion(err):
		processed, _ := result.(*services.TurnResult)
		if processed == nil {
			processed = &services.TurnResult{}
		}
		h.logger.Info("Turn processed",
			zap.String("conversationID", turn.ConversationID),
			zap.String("ownerID", turn.OwnerID),
			zap.Bool("ingested", processed.Ingested),
			zap.String("memoryID", processed.MemoryID),
		)
		return nil
	case pkgerrors.IsValidation(err), pkgerrors.IsForbidden(err), pkgerrors.IsNotFound(err):
		// Redelivery cannot fix these; keep the claim so the event is not reprocessed.
		h.logger.Warn("Turn rejected",
			zap.String("conversationID", turn.ConversationID),
			zap.Error(err),
		)
		return nil
	default:
		h.logger.Error("Turn ingestion failed, releasing claim for redelivery",
			zap.String("conversationID", turn.ConversationID),
			zap.Bool("retryable", pkgerrors.IsRetryable(err)),
			zap.Error(err),
		)
		if unlockErr := h.lock.Unlock(ctx, key); unlockErr != nil {
			h.logger.Error("Failed to release turn claim", zap.String("key", key), zap.Error(unlockErr))
		}
		return err
	}
}
