package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/nomina/internal/jobs"
	"github.com/odyssey-erp/nomina/internal/payroll"
	"github.com/odyssey-erp/nomina/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReportAggregator is the slice of payroll.Aggregator the job needs.
type ReportAggregator interface {
	ActiveReport(ctx context.Context, period string) (payroll.ReportTotals, error)
}

// ReportAggregationJob computes the active payroll report in the background so the
// report cache is warm before anyone opens it.
type ReportAggregationJob struct {
	Aggregator ReportAggregator
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	Timeout    time.Duration
	Clock      shared.Clock
}

// NewReportAggregationJob wires dependencies for the aggregation handler.
func NewReportAggregationJob(aggregator ReportAggregator, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportAggregationJob {
	return &ReportAggregationJob{
		Aggregator: aggregator,
		Logger:     logger,
		Metrics:    metrics,
		Timeout:    2 * time.Minute,
	}
}

// Handle processes TaskPayrollReportAggregate tasks.
func (j *ReportAggregationJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Aggregator == nil {
		return errors.New("payroll report: handler not configured")
	}
	var payload ReportAggregationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	period := payload.Period
	if period == "" {
		period = payroll.PeriodFor(j.Clock.Now())
	}

	tracker := j.metrics().Track(TaskPayrollReportAggregate)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("period", period))
	logger.Info("starting payroll report aggregation")

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	started := time.Now()
	totals, err := j.Aggregator.ActiveReport(ctx, period)
	if err != nil {
		resultErr = err
		logger.Error("aggregate payroll report", slog.Any("error", err))
		if errors.Is(err, shared.ErrInvalidPeriod) {
			return errors.Join(err, asynq.SkipRetry)
		}
		return resultErr
	}
	j.metrics().AddExcluded(TaskPayrollReportAggregate, len(totals.Failed))
	for _, f := range totals.Failed {
		logger.Warn("employee excluded from report", slog.String("employee_id", f.EmployeeID), slog.String("reason", f.Reason))
	}
	logger.Info("completed payroll report aggregation",
		slog.Int("employees", totals.ActiveEmployeeCount),
		slog.Int("excluded", len(totals.Failed)),
		slog.String("summary", totals.Summary(payroll.ReportLocale)),
		slog.Duration("duration", time.Since(started)))
	return resultErr
}

func (j *ReportAggregationJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPayrollReportAggregate))
	}
	return slog.Default().With(slog.String("job", TaskPayrollReportAggregate))
}

func (j *ReportAggregationJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

var (
	_ payroll.ReportEnqueuer = (*Client)(nil)
	_ ReportAggregator       = (*payroll.Aggregator)(nil)
)
