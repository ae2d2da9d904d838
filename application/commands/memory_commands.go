package commands

import (
	"unimem/pkg/utils"
)

// CreateMemoryCommand stores content as one or more memories for its owner.
type CreateMemoryCommand struct {
	OwnerID    string                 `json:"owner_id" validate:"required,max=256"`
	Content    string                 `json:"content" validate:"required"`
	MemoryType string                 `json:"memory_type" validate:"omitempty,max=32"`
	Metadata   map[string]interface{} `json:"metadata"`
	Source     string                 `json:"source" validate:"max=512"`
	Tags       []string               `json:"tags" validate:"max=50,dive,min=1,max=100"`
	Summary    string                 `json:"summary" validate:"max=2000"`
}

func (c CreateMemoryCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// DeleteMemoryCommand removes a memory, its vector and its cache entry.
type DeleteMemoryCommand struct {
	OwnerID  string `json:"owner_id" validate:"required"`
	MemoryID string `json:"memory_id" validate:"required,uuid"`
}

func (c DeleteMemoryCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// ParseTextCommand ingests raw text typed or pasted by the user.
type ParseTextCommand struct {
	OwnerID string `json:"owner_id" validate:"required,max=256"`
	Text    string `json:"text" validate:"required"`
	Source  string `json:"source" validate:"max=512"`
}

func (c ParseTextCommand) Validate() error {
	return utils.ValidateStruct(c)
}
