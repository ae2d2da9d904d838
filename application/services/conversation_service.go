package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"unimem/application/ports"
	"unimem/domain/config"
	"unimem/domain/core/valueobjects"
	"unimem/domain/events"
	pkgerrors "unimem/pkg/errors"
	"unimem/pkg/utils"
)

// TurnRequest is one completed exchange between a user and the assistant.
type TurnRequest struct {
	OwnerID        string
	ConversationID string
	UserInput      string
	Response       string
}

// TurnResult reports whether the turn was kept as a memory.
type TurnResult struct {
	Ingested       bool
	MemoryID       string
	ConversationID string
}

// ConversationSummary describes one of an owner's conversations.
type ConversationSummary struct {
	ConversationID string
	TurnCount      int
	LastActivity   time.Time
}

// Turn is one entry of a conversation's in-memory history.
type Turn struct {
	UserInput string
	Response  string
	MemoryID  string
	Timestamp time.Time
}

// ConversationService decides which dialogue turns become memories and keeps a short
// per-conversation history. Histories are scoped to their owner; a conversation id is
// only meaningful together with the owner that recorded it.
type ConversationService struct {
	ingestion *IngestionService
	retrieval *RetrievalService
	publisher ports.EventPublisher
	cfg       *config.DomainConfig
	logger    *zap.Logger

	mu      sync.Mutex
	history map[string]map[string][]Turn
}

// NewConversationService creates a new conversation service
func NewConversationService(
	ingestion *IngestionService,
	retrieval *RetrievalService,
	publisher ports.EventPublisher,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *ConversationService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &ConversationService{
		ingestion: ingestion,
		retrieval: retrieval,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		history:   make(map[string]map[string][]Turn),
	}
}

// ShouldIngest is a length and marker heuristic: long responses are kept unless they
// already talk about memory.
func (s *ConversationService) ShouldIngest(response string) bool {
	return utf8.RuneCountInString(response) > s.cfg.FeedbackMinResponseLength &&
		!strings.Contains(response, s.cfg.FeedbackMarker)
}

// RecordTurn appends the turn to the conversation history and ingests it when ShouldIngest holds.
func (s *ConversationService) RecordTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if req.OwnerID == "" {
		return nil, pkgerrors.NewValidationError("owner ID cannot be empty")
	}
	if strings.TrimSpace(req.UserInput) == "" && strings.TrimSpace(req.Response) == "" {
		return nil, pkgerrors.NewValidationError("turn has no content")
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = utils.ConversationID(time.Now())
	}
	result := &TurnResult{ConversationID: conversationID}

	if !s.ShouldIngest(req.Response) {
		s.appendTurn(req.OwnerID, conversationID, Turn{UserInput: req.UserInput, Response: req.Response, Timestamp: time.Now().UTC()})
		return result, nil
	}

	content := fmt.Sprintf("用户: %s\n助手: %s", req.UserInput, req.Response)
	source := "ai_agent"
	if req.ConversationID != "" {
		source = "conversation_" + req.ConversationID
	}

	ingested, err := s.ingestion.Ingest(ctx, IngestRequest{
		OwnerID:    req.OwnerID,
		Content:    content,
		MemoryType: valueobjects.MemoryTypeConversation.String(),
		Metadata: map[string]interface{}{
			"conversation_id": conversationID,
			"user_input":      req.UserInput,
			"ai_response":     req.Response,
			"source":          "ai_agent",
		},
		Source:  source,
		Tags:    []string{"conversation", "ai_chat"},
		Summary: utils.GenerateSummary(content, s.cfg.ConversationSummaryLength),
	})
	if ingested != nil {
		result.Ingested = true
		result.MemoryID = ingested.PrimaryID
	}
	s.appendTurn(req.OwnerID, conversationID, Turn{
		UserInput: req.UserInput,
		Response:  req.Response,
		MemoryID:  result.MemoryID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil && ingested == nil {
		s.logger.Error("Failed to ingest conversation turn",
			zap.String("conversationID", conversationID),
			zap.String("ownerID", req.OwnerID),
			zap.Error(err),
		)
		return result, err
	}

	memoryID, _ := valueobjects.ParseMemoryID(result.MemoryID)
	if s.publisher != nil {
		if pubErr := s.publisher.Publish(ctx, events.NewConversationTurnIngested(conversationID, memoryID, req.OwnerID, time.Now().UTC())); pubErr != nil {
			s.logger.Warn("Failed to publish turn event", zap.String("conversationID", conversationID), zap.Error(pubErr))
		}
	}

	s.logger.Info("Conversation turn ingested",
		zap.String("conversationID", conversationID),
		zap.String("memoryID", result.MemoryID),
	)
	return result, err
}

// RelevantMemories searches the owner's memories for context to answer query.
func (s *ConversationService) RelevantMemories(ctx context.Context, ownerID, query string) (*SearchResponse, error) {
	return s.retrieval.searchText(ctx, ownerID, query, ports.IntentQuery, s.cfg.ContextSearchLimit, s.cfg.DefaultSearchThreshold)
}

// History returns a copy of the turns ownerID recorded for conversationID, oldest first.
func (s *ConversationService) History(ownerID, conversationID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history[ownerID][conversationID]...)
}

// Conversations lists the owner's conversations, most recently active first.
func (s *ConversationService) Conversations(ownerID string) []ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	summaries := make([]ConversationSummary, 0, len(s.history[ownerID]))
	for id, turns := range s.history[ownerID] {
		summary := ConversationSummary{ConversationID: id, TurnCount: len(turns)}
		if len(turns) > 0 {
			summary.LastActivity = turns[len(turns)-1].Timestamp
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].LastActivity.Equal(summaries[j].LastActivity) {
			return summaries[i].LastActivity.After(summaries[j].LastActivity)
		}
		return summaries[i].ConversationID < summaries[j].ConversationID
	})
	return summaries
}

// ClearHistory forgets one of the owner's conversations, or all of them when
// conversationID is empty. Other owners are untouched.
func (s *ConversationService) ClearHistory(ownerID, conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversationID == "" {
		delete(s.history, ownerID)
		return
	}
	delete(s.history[ownerID], conversationID)
	if len(s.history[ownerID]) == 0 {
		delete(s.history, ownerID)
	}
}

func (s *ConversationService) appendTurn(ownerID, conversationID string, turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversations, ok := s.history[ownerID]
	if !ok {
		conversations = make(map[string][]Turn)
		s.history[ownerID] = conversations
	}
	turns := append(conversations[conversationID], turn)
	if limit := s.cfg.ConversationHistoryLimit; len(turns) > limit {
		turns = append([]Turn(nil), turns[len(turns)-limit:]...)
	}
	conversations[conversationID] = turns
}
