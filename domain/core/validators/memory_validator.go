package validators

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"unimem/domain/config"
	pkgerrors "unimem/pkg/errors"
)

// MemoryValidator enforces the domain limits on memory units before they are persisted.
type MemoryValidator struct {
	cfg *config.DomainConfig
}

// NewMemoryValidator creates a validator; a nil config falls back to the defaults.
func NewMemoryValidator(cfg *config.DomainConfig) *MemoryValidator {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &MemoryValidator{cfg: cfg}
}

// ValidateOwner rejects empty or oversized owner ids.
func (v *MemoryValidator) ValidateOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return pkgerrors.NewValidationError("owner ID cannot be empty")
	}
	if len(ownerID) > v.cfg.MaxOwnerIDLength {
		return pkgerrors.NewValidationError(fmt.Sprintf("owner ID exceeds %d bytes", v.cfg.MaxOwnerIDLength))
	}
	return nil
}

// ValidateContent rejects blank content and content above the configured size.
func (v *MemoryValidator) ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return pkgerrors.NewValidationError("content cannot be empty")
	}
	if n := utf8.RuneCountInString(content); n > v.cfg.MaxContentLength {
		return pkgerrors.NewValidationError(
			fmt.Sprintf("content length %d exceeds maximum of %d characters", n, v.cfg.MaxContentLength))
	}
	return nil
}

// NormalizeTags trims, drops empties and duplicates, and enforces tag limits.
func (v *MemoryValidator) NormalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if utf8.RuneCountInString(tag) > v.cfg.MaxTagLength {
			return nil, pkgerrors.NewValidationError(
				fmt.Sprintf("tag %q exceeds %d characters", tag, v.cfg.MaxTagLength))
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) > v.cfg.MaxTagsPerMemory {
		return nil, pkgerrors.NewValidationError(
			fmt.Sprintf("too many tags: %d (maximum %d)", len(out), v.cfg.MaxTagsPerMemory))
	}
	return out, nil
}
