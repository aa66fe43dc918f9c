package billing

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// SweepJob processes scheduled overdue-sweep tasks.
type SweepJob struct {
	service *Service
	logger  *slog.Logger
}

// NewSweepJob constructs a job handler.
func NewSweepJob(service *Service, logger *slog.Logger) *SweepJob {
	return &SweepJob{service: service, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract. The sweep is idempotent, so
// a retried task converges to the same charge statuses.
func (j *SweepJob) Handle(ctx context.Context, task *asynq.Task) error {
	swept, err := j.service.SweepOverdue(ctx)
	if err != nil {
		if j.logger != nil {
			j.logger.Error("overdue sweep", slog.Any("error", err))
		}
		return err
	}
	if j.logger != nil {
		j.logger.Info("overdue sweep complete", slog.Int("charges_updated", swept))
	}
	return nil
}
