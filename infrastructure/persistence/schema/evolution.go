package schema

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Migration is one idempotent step of the storage layout.
// Applied inspects the live store so migrations need no version table of their own.
type Migration struct {
	Version     int
	Description string
	Applied     func(ctx context.Context) (bool, error)
	Up          func(ctx context.Context) error
}

// AppliedMigration records a migration run by Migrate.
type AppliedMigration struct {
	Version     int       `json:"version"`
	Description string    `json:"description"`
	AppliedAt   time.Time `json:"applied_at"`
	Skipped     bool      `json:"skipped"`
}

// SchemaEvolution runs registered migrations in version order
type SchemaEvolution struct {
	migrations []Migration
	history    []AppliedMigration
	logger     *zap.Logger
}

// NewSchemaEvolution creates a new schema evolution manager
func NewSchemaEvolution(logger *zap.Logger) *SchemaEvolution {
	return &SchemaEvolution{logger: logger}
}

// RegisterMigration registers a new migration
func (s *SchemaEvolution) RegisterMigration(m Migration) error {
	if m.Up == nil || m.Applied == nil {
		return fmt.Errorf("migration %d must define Up and Applied", m.Version)
	}
	for _, existing := range s.migrations {
		if existing.Version == m.Version {
			return fmt.Errorf("migration version %d already registered", m.Version)
		}
	}
	s.migrations = append(s.migrations, m)
	sort.Slice(s.migrations, func(i, j int) bool { return s.migrations[i].Version < s.migrations[j].Version })
	return nil
}

// Migrate applies every migration whose Applied check reports false. It stops at the first failure.
func (s *SchemaEvolution) Migrate(ctx context.Context) error {
	for _, m := range s.migrations {
		done, err := m.Applied(ctx)
		if err != nil {
			return fmt.Errorf("migration %d (%s): check failed: %w", m.Version, m.Description, err)
		}
		if done {
			s.history = append(s.history, AppliedMigration{Version: m.Version, Description: m.Description, AppliedAt: time.Now(), Skipped: true})
			continue
		}

		s.logger.Info("Applying storage migration",
			zap.Int("version", m.Version),
			zap.String("description", m.Description),
		)
		if err := m.Up(ctx); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		s.history = append(s.history, AppliedMigration{Version: m.Version, Description: m.Description, AppliedAt: time.Now()})
	}
	return nil
}

// GetHistory returns what the last Migrate call did
func (s *SchemaEvolution) GetHistory() []AppliedMigration {
	return append([]AppliedMigration(nil), s.history...)
}
