package scheduler

import (
	"context"
	"time"

	"github.com/fadedpez/spinz/internal/logging"
)

// IndexMaintainer is implemented by the Elasticsearch analytics sink
type IndexMaintainer interface {
	RotateIndices(ctx context.Context) error
	PruneOldIndices(ctx context.Context) ([]string, error)
}

// ElasticsearchMaintenanceScheduler manages scheduled maintenance tasks for the analytics indices
type ElasticsearchMaintenanceScheduler struct {
	scheduler        *Scheduler
	sink             IndexMaintainer
	rotationInterval time.Duration
	pruneInterval    time.Duration
	logger           *logging.Logger
}

// NewElasticsearchMaintenanceScheduler creates a new scheduler for index maintenance.
// A non-positive rotation interval defaults to daily.
func NewElasticsearchMaintenanceScheduler(sink IndexMaintainer, rotationInterval time.Duration, logger *logging.Logger) *ElasticsearchMaintenanceScheduler {
	if rotationInterval <= 0 {
		rotationInterval = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Default
	}
	return &ElasticsearchMaintenanceScheduler{
		scheduler:        NewScheduler(logger),
		sink:             sink,
		rotationInterval: rotationInterval,
		pruneInterval:    7 * 24 * time.Hour,
		logger:           logger.With("component", "analytics_maintenance"),
	}
}

// Start initializes and starts the maintenance scheduler
func (s *ElasticsearchMaintenanceScheduler) Start(ctx context.Context) {
	s.scheduler.AddTask("analytics_index_rotation", s.rotationInterval, s.rotateIndices)
	s.scheduler.AddTask("analytics_index_pruning", s.pruneInterval, s.pruneOldIndices)
	s.scheduler.Start(ctx)
}

// Stop stops the maintenance scheduler
func (s *ElasticsearchMaintenanceScheduler) Stop() {
	s.scheduler.Stop()
}

// rotateIndices makes sure the current month's index exists and is aliased
func (s *ElasticsearchMaintenanceScheduler) rotateIndices(ctx context.Context) error {
	return s.sink.RotateIndices(ctx)
}

// pruneOldIndices deletes indices past the retention period
func (s *ElasticsearchMaintenanceScheduler) pruneOldIndices(ctx context.Context) error {
	deleted, err := s.sink.PruneOldIndices(ctx)
	if err != nil {
		return err
	}
	if len(deleted) > 0 {
		s.logger.Info("Pruned %d analytics indices: %v", len(deleted), deleted)
	}
	return nil
}
