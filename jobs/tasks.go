package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPayrollReportAggregate aggregates the active payroll report for a period.
	TaskPayrollReportAggregate = "payroll:report:aggregate"
)

// ReportAggregationPayload describes a report aggregation request. An empty period means
// the fortnight containing the time the job runs.
type ReportAggregationPayload struct {
	Period string `json:"period,omitempty"`
}

// NewReportAggregationTask constructs an Asynq task.
func NewReportAggregationTask(period string) (*asynq.Task, error) {
	data, err := json.Marshal(ReportAggregationPayload{Period: period})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayrollReportAggregate, data), nil
}
