package reports

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/mirador-hq/mirador/internal/shared"
	"github.com/mirador-hq/mirador/jobs"
)

// RefreshJob regenerates an open period report on schedule.
type RefreshJob struct {
	service *Service
	logger  *slog.Logger
}

// NewRefreshJob constructs a job handler.
func NewRefreshJob(service *Service, logger *slog.Logger) *RefreshJob {
	return &RefreshJob{service: service, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract. An empty period in the
// payload refreshes the current month. A closed report is left untouched.
func (j *RefreshJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.ReportRefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	period := shared.Period(payload.Period)
	if payload.Period == "" {
		period = shared.PeriodOf(j.service.now())
	} else if _, err := shared.ParsePeriod(payload.Period); err != nil {
		return asynq.SkipRetry
	}

	if _, err := j.service.Generate(ctx, period); err != nil {
		if errors.Is(err, ErrReportClosed) {
			return nil
		}
		if j.logger != nil {
			j.logger.Error("report refresh", slog.String("period", period.String()), slog.Any("error", err))
		}
		return err
	}
	return nil
}
