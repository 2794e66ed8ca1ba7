package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/gradesheet-api/pkg/errors"
	"github.com/noah-isme/gradesheet-api/pkg/jobs"
)

// Maintenance job types.
const (
	JobPurgeSessions  = "purge_sessions"
	JobCleanupExports = "cleanup_exports"
)

type sessionPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// ExportCleaner removes stale export files.
type ExportCleaner interface {
	Cleanup(ttl time.Duration) ([]string, error)
}

// MaintenanceService runs housekeeping on the background job queue.
type MaintenanceService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewMaintenanceService registers the housekeeping handlers on queue. exports may be nil
// when exports are disabled.
func NewMaintenanceService(queue *jobs.Queue, sessions sessionPurger, exports ExportCleaner, logger *zap.Logger) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	queue.Handle(JobPurgeSessions, func(ctx context.Context, _ jobs.Job) error {
		_, err := sessions.PurgeExpired(ctx)
		return err
	})
	if exports != nil {
		queue.Handle(JobCleanupExports, func(context.Context, jobs.Job) error {
			_, err := exports.Cleanup(0)
			return err
		})
	}
	return &MaintenanceService{queue: queue, logger: logger}
}

// Trigger enqueues a maintenance job and returns its id.
func (s *MaintenanceService) Trigger(jobType string) (string, error) {
	if !s.queue.Handles(jobType) {
		return "", appErrors.Clone(appErrors.ErrNotFound, "unknown maintenance job "+jobType)
	}
	id := uuid.NewString()
	if err := s.queue.Enqueue(jobs.Job{ID: id, Type: jobType}); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "maintenance queue unavailable")
	}
	s.logger.Info("maintenance job triggered", zap.String("job_id", id), zap.String("type", jobType))
	return id, nil
}
