package queries

import (
	"unimem/pkg/utils"
)

// GetMemoryQuery loads one memory the caller owns.
type GetMemoryQuery struct {
	OwnerID  string `json:"owner_id" validate:"required"`
	MemoryID string `json:"memory_id" validate:"required,uuid"`
}

func (q GetMemoryQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ListMemoriesQuery pages through the caller's memories, newest first.
// StartDate and EndDate accept YYYY-MM-DD or RFC3339.
type ListMemoriesQuery struct {
	OwnerID    string `json:"owner_id" validate:"required"`
	MemoryType string `json:"memory_type"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Limit      int    `json:"limit" validate:"gte=0,lte=100"`
	Offset     int    `json:"offset" validate:"gte=0"`
}

func (q ListMemoriesQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// SearchMemoriesQuery is a free-text similarity search. A nil Threshold uses the default.
type SearchMemoriesQuery struct {
	OwnerID   string   `json:"owner_id" validate:"required"`
	Query     string   `json:"query" validate:"required"`
	Limit     int      `json:"limit" validate:"gte=0,lte=100"`
	Threshold *float64 `json:"threshold"`
}

func (q SearchMemoriesQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetRelatedMemoriesQuery finds memories similar to an existing one.
type GetRelatedMemoriesQuery struct {
	OwnerID  string `json:"owner_id" validate:"required"`
	MemoryID string `json:"memory_id" validate:"required,uuid"`
	Limit    int    `json:"limit" validate:"gte=0,lte=20"`
}

func (q GetRelatedMemoriesQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetStatsQuery reports store and cache sizes.
type GetStatsQuery struct {
	OwnerID string `json:"owner_id" validate:"required"`
}

func (q GetStatsQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// HealthQuery checks the store and the embedding provider.
type HealthQuery struct{}

func (q HealthQuery) Validate() error { return nil }

// EmbedTextQuery returns the raw embedding of Text. InputType defaults to passage.
type EmbedTextQuery struct {
	Text      string `json:"text" validate:"required"`
	InputType string `json:"input_type" validate:"omitempty,oneof=passage query"`
}

func (q EmbedTextQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// EmbedBatchQuery embeds every text of Texts in order. InputType defaults to passage.
type EmbedBatchQuery struct {
	Texts     []string `json:"texts" validate:"required,min=1,max=100,dive,required"`
	InputType string   `json:"input_type" validate:"omitempty,oneof=passage query"`
}

func (q EmbedBatchQuery) Validate() error {
	return utils.ValidateStruct(q)
}
