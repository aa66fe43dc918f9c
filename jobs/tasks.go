// Package jobs defines the background task catalogue and the asynq worker
// wrapper that runs it.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueSweep advances past-due charges to their recomputed status.
	TaskOverdueSweep = "billing:overdue_sweep"
	// TaskReportRefresh regenerates an open period report.
	TaskReportRefresh = "reports:refresh"
)

// ReportRefreshPayload selects the period to regenerate. Empty means the
// current month.
type ReportRefreshPayload struct {
	Period string `json:"period,omitempty"`
}

// NewOverdueSweepTask constructs the sweep task. The sweep needs no payload;
// it derives everything from the current date.
func NewOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueSweep, nil)
}

// NewReportRefreshTask constructs a report refresh task.
func NewReportRefreshTask(payload ReportRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportRefresh, data), nil
}
