package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"unimem/application/commands"
	"unimem/application/commands/bus"
	"unimem/application/services"
	"unimem/domain/core/valueobjects"
	pkgerrors "unimem/pkg/errors"
)

// Ingester is the write side of the memory store.
type Ingester interface {
	Ingest(ctx context.Context, req services.IngestRequest) (*services.IngestResult, error)
	ParseText(ctx context.Context, ownerID, text, source string) (*services.IngestResult, error)
	Delete(ctx context.Context, ownerID string, id valueobjects.MemoryID) error
}

// CreateMemoryHandler handles CreateMemoryCommand
type CreateMemoryHandler struct {
	ingester Ingester
	logger   *zap.Logger
}

// NewCreateMemoryHandler creates a new handler instance
func NewCreateMemoryHandler(ingester Ingester, logger *zap.Logger) *CreateMemoryHandler {
	return &CreateMemoryHandler{ingester: ingester, logger: logger}
}

// Handle ingests the command's content. On partial ingestion both the result and the
// PARTIAL_INGESTION error are returned.
func (h *CreateMemoryHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.CreateMemoryCommand)
	if !ok {
		return nil, unexpected(cmd)
	}

	result, err := h.ingester.Ingest(ctx, services.IngestRequest{
		OwnerID:    c.OwnerID,
		Content:    c.Content,
		MemoryType: c.MemoryType,
		Metadata:   c.Metadata,
		Source:     c.Source,
		Tags:       c.Tags,
		Summary:    c.Summary,
	})
	if result == nil {
		return nil, err
	}
	return result, err
}

// DeleteMemoryHandler handles DeleteMemoryCommand
type DeleteMemoryHandler struct {
	ingester Ingester
	logger   *zap.Logger
}

// NewDeleteMemoryHandler creates a new handler instance
func NewDeleteMemoryHandler(ingester Ingester, logger *zap.Logger) *DeleteMemoryHandler {
	return &DeleteMemoryHandler{ingester: ingester, logger: logger}
}

// Handle deletes the memory. The result is the deleted id.
func (h *DeleteMemoryHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.DeleteMemoryCommand)
	if !ok {
		return nil, unexpected(cmd)
	}

	id, err := valueobjects.ParseMemoryID(c.MemoryID)
	if err != nil {
		return nil, err
	}
	if err := h.ingester.Delete(ctx, c.OwnerID, id); err != nil {
		return nil, err
	}
	return id.String(), nil
}

// ParseTextHandler handles ParseTextCommand
type ParseTextHandler struct {
	ingester Ingester
	logger   *zap.Logger
}

// NewParseTextHandler creates a new handler instance
func NewParseTextHandler(ingester Ingester, logger *zap.Logger) *ParseTextHandler {
	return &ParseTextHandler{ingester: ingester, logger: logger}
}

func (h *ParseTextHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.ParseTextCommand)
	if !ok {
		return nil, unexpected(cmd)
	}

	result, err := h.ingester.ParseText(ctx, c.OwnerID, c.Text, c.Source)
	if result == nil {
		return nil, err
	}
	return result, err
}

func unexpected(cmd bus.Command) error {
	return pkgerrors.NewInternalError(fmt.Sprintf("unexpected command type %T", cmd))
}
