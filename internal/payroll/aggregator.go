package payroll

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/nomina/internal/lifecycle"
	"github.com/odyssey-erp/nomina/internal/shared"
)

// DefaultConcurrency bounds simultaneous per-employee fetches.
const DefaultConcurrency = 8

// EmployeeDirectory lists employees for the active report.
type EmployeeDirectory interface {
	List(ctx context.Context, filter lifecycle.ListFilter) ([]lifecycle.Entity, error)
}

// Config tunes the Aggregator.
type Config struct {
	Concurrency int
	Locker      KeyLocker
	Cache       *ReportCache
	Metrics     *Metrics
	Clock       shared.Clock
	Logger      *slog.Logger
}

// Aggregator computes payroll records and organisation totals.
type Aggregator struct {
	store       RecordStore
	employees   EmployeeDirectory
	concurrency int
	locker      KeyLocker
	cache       *ReportCache
	metrics     *Metrics
	clock       shared.Clock
	logger      *slog.Logger
	reports     singleflight.Group
}

// NewAggregator wires an Aggregator.
func NewAggregator(store RecordStore, employees EmployeeDirectory, cfg Config) *Aggregator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Locker == nil {
		cfg.Locker = NewMemoryLocker()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:       store,
		employees:   employees,
		concurrency: cfg.Concurrency,
		locker:      cfg.Locker,
		cache:       cfg.Cache,
		metrics:     cfg.Metrics,
		clock:       cfg.Clock,
		logger:      logger,
	}
}

// CurrentPeriod returns the fortnight containing now.
func (a *Aggregator) CurrentPeriod() string {
	return PeriodFor(a.clock.Now())
}

// RecordFor returns the stored record, or the zero baseline when none exists.
func (a *Aggregator) RecordFor(ctx context.Context, employeeID, period string) (Record, error) {
	period, err := ParsePeriod(period)
	if err != nil {
		return Record{}, err
	}
	items, err := a.store.FetchLineItems(ctx, employeeID, period)
	if err != nil {
		return Record{}, err
	}
	if len(items) == 0 {
		items = DefaultLineItems()
	}
	return ComputeRecord(employeeID, period, items), nil
}

// UpsertRecord replaces the record of (EmployeeID, Period). Writers of the same key are
// serialised; the last writer wins.
func (a *Aggregator) UpsertRecord(ctx context.Context, rec Record) (Record, error) {
	out, err := a.upsert(ctx, rec)
	a.metrics.observeUpsert(err)
	return out, err
}

func (a *Aggregator) upsert(ctx context.Context, rec Record) (Record, error) {
	if strings.TrimSpace(rec.EmployeeID) == "" {
		return Record{}, fmt.Errorf("payroll: upsert: employee id required: %w", shared.ErrEntityNotFound)
	}
	period, err := ParsePeriod(rec.Period)
	if err != nil {
		return Record{}, err
	}
	if err := ValidateLineItems(rec.LineItems); err != nil {
		return Record{}, err
	}
	rec = ComputeRecord(rec.EmployeeID, period, rec.LineItems)

	unlock, err := a.locker.Lock(ctx, shared.PayrollLockKey(rec.EmployeeID, rec.Period))
	if err != nil {
		return Record{}, err
	}
	defer unlock()

	if err := a.store.SaveRecord(ctx, rec); err != nil {
		return Record{}, err
	}
	now := a.clock.Now()
	rec.UpdatedAt = &now
	if err := a.cache.Bump(ctx); err != nil {
		a.logger.Warn("bump payroll report cache", slog.Any("error", err))
	}
	return rec, nil
}

type outcome struct {
	net decimal.Decimal
	err error
}

// AggregateReport fetches every employee concurrently and reduces net pay over the
// successful fetches. Failed employees are listed in Failed. When every fetch fails the
// report fails with ErrCollaboratorUnavailable. If ctx is cancelled, no totals are
// published and ctx.Err() is returned.
func (a *Aggregator) AggregateReport(ctx context.Context, employeeIDs []string, period string) (ReportTotals, error) {
	start := time.Now()
	totals, err := a.aggregate(ctx, employeeIDs, period)
	a.metrics.observeReport(start, len(totals.Failed), err)
	return totals, err
}

func (a *Aggregator) aggregate(ctx context.Context, employeeIDs []string, period string) (ReportTotals, error) {
	period, err := ParsePeriod(period)
	if err != nil {
		return ReportTotals{}, err
	}
	totals := ReportTotals{Period: period, TotalNetPayroll: decimal.Zero}
	if len(employeeIDs) == 0 {
		return totals, nil
	}

	results := make([]outcome, len(employeeIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, id := range employeeIDs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}
			items, err := a.store.FetchLineItems(gctx, id, period)
			if err == nil {
				err = ValidateLineItems(items)
			}
			if err != nil {
				results[i] = outcome{err: err}
				return nil
			}
			results[i] = outcome{net: ComputeRecord(id, period, items).NetPay()}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return ReportTotals{}, err
	}

	for i, res := range results {
		if res.err != nil {
			totals.Failed = append(totals.Failed, EmployeeFailure{EmployeeID: employeeIDs[i], Reason: res.err.Error(), Err: res.err})
			a.logger.Warn("payroll fetch failed", slog.String("employee_id", employeeIDs[i]), slog.String("period", period), slog.Any("error", res.err))
			continue
		}
		totals.ActiveEmployeeCount++
		totals.TotalNetPayroll = totals.TotalNetPayroll.Add(res.net)
	}
	if totals.ActiveEmployeeCount == 0 {
		return totals, fmt.Errorf("payroll: report %s: all %d fetches failed: %w", period, len(employeeIDs), shared.ErrCollaboratorUnavailable)
	}
	return totals, nil
}

// ActiveReport aggregates every active, non deleted employee. Concurrent callers for the
// same period share one computation, and complete reports are cached until the next
// record write or employee lifecycle change.
func (a *Aggregator) ActiveReport(ctx context.Context, period string) (ReportTotals, error) {
	period, err := ParsePeriod(period)
	if err != nil {
		return ReportTotals{}, err
	}
	key, err := a.cache.BuildKey(ctx, period)
	if err != nil {
		a.logger.Warn("payroll report cache key", slog.Any("error", err))
		key = "payroll:report:" + period
	}
	if cached, ok, err := a.cache.Get(ctx, key); err != nil {
		a.logger.Warn("payroll report cache get", slog.Any("error", err))
	} else if ok {
		return cached, nil
	}

	ch := a.reports.DoChan(key, func() (interface{}, error) {
		return a.buildActiveReport(context.WithoutCancel(ctx), key, period)
	})
	select {
	case <-ctx.Done():
		return ReportTotals{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ReportTotals{}, res.Err
		}
		return res.Val.(ReportTotals), nil
	}
}

func (a *Aggregator) buildActiveReport(ctx context.Context, key, period string) (ReportTotals, error) {
	if a.employees == nil {
		return ReportTotals{}, fmt.Errorf("payroll: employee directory: %w", shared.ErrCollaboratorUnavailable)
	}
	rows, err := a.employees.List(ctx, lifecycle.ListFilter{Type: lifecycle.EntityEmployee})
	if err != nil {
		return ReportTotals{}, err
	}
	ids := make([]string, 0, len(rows))
	for _, e := range rows {
		if e.Active && e.DeletedAt == nil {
			ids = append(ids, e.ID)
		}
	}
	totals, err := a.AggregateReport(ctx, ids, period)
	if err != nil {
		return totals, err
	}
	if len(totals.Failed) == 0 {
		if err := a.cache.Put(ctx, key, totals); err != nil {
			a.logger.Warn("payroll report cache put", slog.Any("error", err))
		}
	}
	return totals, nil
}

// IsPartial reports whether some employees were excluded from totals.
func (t ReportTotals) IsPartial() bool {
	return len(t.Failed) > 0
}
