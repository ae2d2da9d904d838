package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"unimem/application/ports"
)

// RebuildReport summarizes a cache rebuild and the divergence found between the two tables.
type RebuildReport struct {
	Loaded         int
	Skipped        []ports.VectorDecodeFailure
	OrphanVectors  []string // vector records whose memory record is gone
	MissingVectors []string // memory records with no usable vector
	Duration       time.Duration
}

// Diverged reports whether the memory and vector tables disagree.
func (r *RebuildReport) Diverged() bool {
	return len(r.OrphanVectors) > 0 || len(r.MissingVectors) > 0
}

// Rebuilder loads the cache from the durable stores.
type Rebuilder struct {
	cache     *VectorCache
	vectors   ports.VectorRepository
	memories  ports.MemoryRepository
	dimension int
	logger    *zap.Logger
}

// NewRebuilder creates a Rebuilder
func NewRebuilder(cache *VectorCache, vectors ports.VectorRepository, memories ports.MemoryRepository, dimension int, logger *zap.Logger) *Rebuilder {
	return &Rebuilder{
		cache:     cache,
		vectors:   vectors,
		memories:  memories,
		dimension: dimension,
		logger:    logger,
	}
}

// Rebuild replaces the cache contents with every usable vector in the store.
// Records with the wrong dimension and records whose memory no longer exists are left out.
func (r *Rebuilder) Rebuild(ctx context.Context) (*RebuildReport, error) {
	start := time.Now()

	var (
		scan      *ports.VectorScanResult
		memoryIDs []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		scan, err = r.vectors.ScanAll(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		memoryIDs, err = r.memories.ScanIDs(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to scan stores for cache rebuild: %w", err)
	}

	known := make(map[string]struct{}, len(memoryIDs))
	for _, id := range memoryIDs {
		known[id] = struct{}{}
	}

	report := &RebuildReport{Skipped: append([]ports.VectorDecodeFailure(nil), scan.Failures...)}
	entries := make(map[string]ports.IndexEntry, len(scan.Records))
	for _, rec := range scan.Records {
		id := rec.MemoryID.String()
		if err := rec.Vector.CheckDimension(r.dimension); err != nil {
			report.Skipped = append(report.Skipped, ports.VectorDecodeFailure{ID: id, Reason: err.Error()})
			continue
		}
		if _, ok := known[id]; !ok {
			report.OrphanVectors = append(report.OrphanVectors, id)
			continue
		}
		entries[id] = ports.IndexEntry{ID: id, OwnerID: rec.OwnerID, Vector: rec.Vector}
	}
	for _, id := range memoryIDs {
		if _, ok := entries[id]; !ok {
			report.MissingVectors = append(report.MissingVectors, id)
		}
	}

	r.cache.replace(entries)
	report.Loaded = len(entries)
	report.Duration = time.Since(start)

	for _, skipped := range report.Skipped {
		r.logger.Warn("Skipped vector record during cache rebuild",
			zap.String("memoryID", skipped.ID),
			zap.String("reason", skipped.Reason),
		)
	}
	if report.Diverged() {
		r.logger.Warn("Memory and vector tables have diverged",
			zap.Strings("orphanVectors", report.OrphanVectors),
			zap.Strings("missingVectors", report.MissingVectors),
		)
	}
	r.logger.Info("Vector cache rebuilt",
		zap.Int("loaded", report.Loaded),
		zap.Int("skipped", len(report.Skipped)),
		zap.Duration("duration", report.Duration),
	)

	return report, nil
}
