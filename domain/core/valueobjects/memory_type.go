package valueobjects

import (
	"strings"

	pkgerrors "unimem/pkg/errors"
)

// MemoryType is the kind of content a memory unit was ingested from.
type MemoryType string

const (
	MemoryTypeText         MemoryType = "text"
	MemoryTypeDocument     MemoryType = "document"
	MemoryTypeImage        MemoryType = "image"
	MemoryTypeAudio        MemoryType = "audio"
	MemoryTypeConversation MemoryType = "conversation"
)

// AllMemoryTypes lists every accepted memory type.
var AllMemoryTypes = []MemoryType{
	MemoryTypeText,
	MemoryTypeDocument,
	MemoryTypeImage,
	MemoryTypeAudio,
	MemoryTypeConversation,
}

// ParseMemoryType normalizes case and rejects unknown types.
func ParseMemoryType(s string) (MemoryType, error) {
	t := MemoryType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", pkgerrors.NewValidationError("unknown memory type: " + s)
	}
	return t, nil
}

func (t MemoryType) IsValid() bool {
	for _, known := range AllMemoryTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t MemoryType) String() string {
	return string(t)
}
