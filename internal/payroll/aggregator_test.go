package payroll

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/nomina/internal/lifecycle"
	"github.com/odyssey-erp/nomina/internal/shared"
)

const period = "2024-05-01"

var fixedClock = shared.Clock(func() time.Time { return time.Date(2024, 5, 7, 10, 0, 0, 0, time.UTC) })

// stubSource serves fixed items per employee and fails for the listed ids.
type stubSource struct {
	*MemoryRepository
	fail    map[string]error
	fetches atomic.Int32
	gate    chan struct{}
}

func newStubSource() *stubSource {
	return &stubSource{MemoryRepository: NewMemoryRepository(), fail: map[string]error{}}
}

func (s *stubSource) FetchLineItems(ctx context.Context, employeeID, p string) ([]LineItem, error) {
	s.fetches.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := s.fail[employeeID]; ok {
		return nil, err
	}
	return s.MemoryRepository.FetchLineItems(ctx, employeeID, p)
}

func seedNet(t *testing.T, repo RecordStore, employeeID string, perceptions, deductions int64) {
	t.Helper()
	require.NoError(t, repo.SaveRecord(context.Background(), Record{
		EmployeeID: employeeID,
		Period:     period,
		LineItems: []LineItem{
			{ConceptID: "concepto-0", Name: "Sueldo Base", Kind: KindPerception, Amount: decimal.NewFromInt(perceptions)},
			{ConceptID: "concepto-3", Name: "ISR", Kind: KindDeduction, Amount: decimal.NewFromInt(deductions)},
		},
	}))
}

func newAggregator(store RecordStore, employees EmployeeDirectory, cfg Config) *Aggregator {
	cfg.Clock = fixedClock
	cfg.Metrics = NewMetrics(prometheus.NewRegistry())
	return NewAggregator(store, employees, cfg)
}

func TestAggregateReportExcludesFailures(t *testing.T) {
	src := newStubSource()
	seedNet(t, src, "A", 1200, 200)
	seedNet(t, src, "C", 600, 100)
	src.fail["B"] = fmt.Errorf("fetch B: %w", shared.ErrCollaboratorUnavailable)
	agg := newAggregator(src, nil, Config{Concurrency: 2})

	totals, err := agg.AggregateReport(context.Background(), []string{"A", "B", "C"}, period)
	require.NoError(t, err)
	require.Equal(t, 2, totals.ActiveEmployeeCount)
	require.True(t, totals.TotalNetPayroll.Equal(decimal.NewFromInt(1500)))
	require.Len(t, totals.Failed, 1)
	require.Equal(t, "B", totals.Failed[0].EmployeeID)
	require.ErrorIs(t, totals.Failed[0].Err, shared.ErrCollaboratorUnavailable)
	require.True(t, totals.IsPartial())
	require.EqualValues(t, 3, src.fetches.Load())
}

func TestAggregateReportEmployeeWithoutRecordCountsAsZero(t *testing.T) {
	src := newStubSource()
	seedNet(t, src, "A", 1000, 0)
	agg := newAggregator(src, nil, Config{})

	totals, err := agg.AggregateReport(context.Background(), []string{"A", "new-hire"}, period)
	require.NoError(t, err)
	require.Equal(t, 2, totals.ActiveEmployeeCount)
	require.True(t, totals.TotalNetPayroll.Equal(decimal.NewFromInt(1000)))
}

func TestAggregateReportEmpty(t *testing.T) {
	agg := newAggregator(newStubSource(), nil, Config{})
	totals, err := agg.AggregateReport(context.Background(), nil, period)
	require.NoError(t, err)
	require.Zero(t, totals.ActiveEmployeeCount)
	require.True(t, totals.TotalNetPayroll.IsZero())
	require.Equal(t, period, totals.Period)
}

func TestAggregateReportAllFailed(t *testing.T) {
	src := newStubSource()
	boom := errors.New("firestore down")
	src.fail["A"] = boom
	src.fail["B"] = boom
	agg := newAggregator(src, nil, Config{})

	totals, err := agg.AggregateReport(context.Background(), []string{"A", "B"}, period)
	require.ErrorIs(t, err, shared.ErrCollaboratorUnavailable)
	require.Len(t, totals.Failed, 2)
}

func TestAggregateReportRejectsCorruptItems(t *testing.T) {
	src := newStubSource()
	seedNet(t, src, "A", 500, 0)
	require.NoError(t, src.SaveRecord(context.Background(), Record{EmployeeID: "B", Period: period, LineItems: []LineItem{
		{Name: "Bono", Kind: KindPerception, Amount: decimal.NewFromInt(-10)},
	}}))
	agg := newAggregator(src, nil, Config{})

	totals, err := agg.AggregateReport(context.Background(), []string{"A", "B"}, period)
	require.NoError(t, err)
	require.Equal(t, 1, totals.ActiveEmployeeCount)
	require.ErrorIs(t, totals.Failed[0].Err, shared.ErrInvalidAmount)
}

func TestAggregateReportLargeFanOut(t *testing.T) {
	src := newStubSource()
	ids := make([]string, 200)
	for i := range ids {
		ids[i] = fmt.Sprintf("e-%03d", i)
		seedNet(t, src, ids[i], 10, 0)
	}
	agg := newAggregator(src, nil, Config{Concurrency: 16})

	totals, err := agg.AggregateReport(context.Background(), ids, period)
	require.NoError(t, err)
	require.Equal(t, 200, totals.ActiveEmployeeCount)
	require.True(t, totals.TotalNetPayroll.Equal(decimal.NewFromInt(2000)))
}

func TestAggregateReportCancelled(t *testing.T) {
	src := newStubSource()
	src.gate = make(chan struct{})
	for _, id := range []string{"A", "B", "C", "D"} {
		seedNet(t, src, id, 100, 0)
	}
	agg := newAggregator(src, nil, Config{Concurrency: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := agg.AggregateReport(ctx, []string{"A", "B", "C", "D"}, period)
		done <- err
	}()
	require.Eventually(t, func() bool { return src.fetches.Load() == 2 }, time.Second, time.Millisecond)
	cancel()
	close(src.gate)

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("aggregate did not return after cancel")
	}
	require.LessOrEqual(t, src.fetches.Load(), int32(4))
}

func TestRecordForFallsBackToDefaults(t *testing.T) {
	src := newStubSource()
	seedNet(t, src, "A", 1000, 150)
	agg := newAggregator(src, nil, Config{})

	rec, err := agg.RecordFor(context.Background(), "A", "2024-05-09")
	require.NoError(t, err)
	require.Equal(t, period, rec.Period)
	require.True(t, rec.NetPay().Equal(decimal.NewFromInt(850)))

	rec, err = agg.RecordFor(context.Background(), "Z", period)
	require.NoError(t, err)
	require.Len(t, rec.LineItems, 4)
	require.Equal(t, "Z", rec.EmployeeID)

	_, err = agg.RecordFor(context.Background(), "A", "mayo")
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)
}

func TestUpsertRecordReplacesWholeRecord(t *testing.T) {
	repo := NewMemoryRepository()
	agg := newAggregator(repo, nil, Config{})
	ctx := context.Background()

	_, err := agg.UpsertRecord(ctx, Record{EmployeeID: "A", Period: period, LineItems: []LineItem{
		{ConceptID: "1", Name: "Sueldo Base", Kind: KindPerception, Amount: decimal.NewFromInt(1000)},
		{ConceptID: "2", Name: "Despensa", Kind: KindPerception, Amount: decimal.NewFromInt(200)},
	}})
	require.NoError(t, err)
	saved, err := agg.UpsertRecord(ctx, Record{EmployeeID: "A", Period: "2024-05-15", LineItems: []LineItem{
		{ConceptID: "1", Name: "Sueldo Base", Kind: KindPerception, Amount: decimal.NewFromInt(900)},
	}})
	require.NoError(t, err)
	require.NotNil(t, saved.UpdatedAt)

	rec, err := agg.RecordFor(ctx, "A", period)
	require.NoError(t, err)
	require.Len(t, rec.LineItems, 1)
	require.True(t, rec.NetPay().Equal(decimal.NewFromInt(900)))

	_, err = agg.UpsertRecord(ctx, Record{EmployeeID: "A", Period: period, LineItems: []LineItem{{Name: "x", Kind: KindDeduction, Amount: decimal.NewFromInt(-1)}}})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
	_, err = agg.UpsertRecord(ctx, Record{Period: period})
	require.Error(t, err)
}

// slowStore writes item by item so unsynchronised writers would interleave.
type slowStore struct {
	mu      sync.Mutex
	records map[string][]LineItem
}

func (s *slowStore) FetchLineItems(_ context.Context, employeeID, p string) ([]LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LineItem(nil), s.records[employeeID+"/"+p]...), nil
}

func (s *slowStore) SaveRecord(_ context.Context, rec Record) error {
	key := rec.EmployeeID + "/" + rec.Period
	s.mu.Lock()
	s.records[key] = nil
	s.mu.Unlock()
	for _, it := range rec.LineItems {
		runtime.Gosched()
		s.mu.Lock()
		s.records[key] = append(s.records[key], it)
		s.mu.Unlock()
	}
	return nil
}

func TestConcurrentUpsertsDoNotInterleave(t *testing.T) {
	store := &slowStore{records: map[string][]LineItem{}}
	agg := newAggregator(store, nil, Config{})

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items := make([]LineItem, 5)
			for i := range items {
				items[i] = LineItem{ConceptID: fmt.Sprint(i), Name: "writer", Kind: KindPerception, Amount: decimal.NewFromInt(int64(w))}
			}
			_, err := agg.UpsertRecord(context.Background(), Record{EmployeeID: "A", Period: period, LineItems: items})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	items, err := store.FetchLineItems(context.Background(), "A", period)
	require.NoError(t, err)
	require.Len(t, items, 5)
	for _, it := range items {
		require.True(t, it.Amount.Equal(items[0].Amount))
	}
}

func TestActiveReportUsesLiveEmployees(t *testing.T) {
	ctx := context.Background()
	entities := lifecycle.NewMemoryStore(fixedClock)
	for _, e := range []lifecycle.Entity{
		{Type: lifecycle.EntityEmployee, ID: "A", Name: "Ana", Active: true},
		{Type: lifecycle.EntityEmployee, ID: "B", Name: "Beto", Active: false},
		{Type: lifecycle.EntityEmployee, ID: "C", Name: "Carla", Active: true},
		{Type: lifecycle.EntityEmployee, ID: "D", Name: "Dora", Active: true},
	} {
		require.NoError(t, entities.Create(ctx, e))
	}
	manager := lifecycle.NewManager(entities, nil, lifecycle.Config{Clock: fixedClock})
	_, err := manager.SoftDelete(ctx, lifecycle.Ref{Type: lifecycle.EntityEmployee, ID: "D"})
	require.NoError(t, err)

	repo := NewMemoryRepository()
	seedNet(t, repo, "A", 1000, 0)
	seedNet(t, repo, "B", 700, 0)
	seedNet(t, repo, "C", 500, 0)
	seedNet(t, repo, "D", 300, 0)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	agg := newAggregator(repo, manager, Config{Cache: NewReportCache(client, time.Minute)})

	totals, err := agg.ActiveReport(ctx, period)
	require.NoError(t, err)
	require.Equal(t, 2, totals.ActiveEmployeeCount)
	require.True(t, totals.TotalNetPayroll.Equal(decimal.NewFromInt(1500)))
	require.True(t, mr.Exists("payroll:report:"+period+":1"))

	_, err = agg.UpsertRecord(ctx, Record{EmployeeID: "C", Period: period, LineItems: []LineItem{
		{ConceptID: "1", Name: "Sueldo Base", Kind: KindPerception, Amount: decimal.NewFromInt(800)},
	}})
	require.NoError(t, err)

	totals, err = agg.ActiveReport(ctx, period)
	require.NoError(t, err)
	require.True(t, totals.TotalNetPayroll.Equal(decimal.NewFromInt(1800)))
	require.True(t, mr.Exists("payroll:report:"+period+":2"))
}

func TestActiveReportReflectsEmployeeLifecycle(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewReportCache(client, time.Minute)

	entities := lifecycle.NewMemoryStore(fixedClock)
	for _, id := range []string{"A", "B"} {
		require.NoError(t, entities.Create(ctx, lifecycle.Entity{Type: lifecycle.EntityEmployee, ID: id, Name: id, Active: true}))
	}
	manager := lifecycle.NewManager(entities, nil, lifecycle.Config{Invalidator: cache, Clock: fixedClock})

	repo := NewMemoryRepository()
	seedNet(t, repo, "A", 1000, 0)
	seedNet(t, repo, "B", 1000, 0)
	agg := newAggregator(repo, manager, Config{Cache: cache})

	totals, err := agg.ActiveReport(ctx, period)
	require.NoError(t, err)
	require.Equal(t, 2, totals.ActiveEmployeeCount)

	ref := lifecycle.Ref{Type: lifecycle.EntityEmployee, ID: "B"}
	_, err = manager.SoftDelete(ctx, ref)
	require.NoError(t, err)
	totals, err = agg.ActiveReport(ctx, period)
	require.NoError(t, err)
	require.Equal(t, 1, totals.ActiveEmployeeCount)
	require.True(t, totals.TotalNetPayroll.Equal(decimal.NewFromInt(1000)))

	_, err = manager.Restore(ctx, ref)
	require.NoError(t, err)
	totals, err = agg.ActiveReport(ctx, period)
	require.NoError(t, err)
	require.Equal(t, 2, totals.ActiveEmployeeCount)

	_, err = manager.ToggleActive(ctx, lifecycle.Ref{Type: lifecycle.EntityEmployee, ID: "A"})
	require.NoError(t, err)
	totals, err = agg.ActiveReport(ctx, period)
	require.NoError(t, err)
	require.Equal(t, 1, totals.ActiveEmployeeCount)
	require.True(t, totals.TotalNetPayroll.Equal(decimal.NewFromInt(1000)))
}

func TestActiveReportWithoutDirectory(t *testing.T) {
	agg := newAggregator(NewMemoryRepository(), nil, Config{})
	_, err := agg.ActiveReport(context.Background(), period)
	require.ErrorIs(t, err, shared.ErrCollaboratorUnavailable)
}
