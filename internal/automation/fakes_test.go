package automation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rashid2003/jira-payroll-automation/internal/payroll"
	"github.com/rashid2003/jira-payroll-automation/internal/periods"
)

type fakePeriods struct {
	mu      sync.Mutex
	periods map[int64]periods.Period
	listErr error
}

func newFakePeriods(ps ...periods.Period) *fakePeriods {
	f := &fakePeriods{periods: make(map[int64]periods.Period)}
	for _, p := range ps {
		f.periods[p.ID] = p
	}
	return f
}

func (f *fakePeriods) Get(ctx context.Context, id int64) (periods.Period, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.periods[id]
	if !ok {
		return periods.Period{}, periods.ErrNotFound
	}
	return p, nil
}

func (f *fakePeriods) ListAutomationCandidates(ctx context.Context) ([]periods.Period, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []periods.Period
	for _, p := range f.periods {
		if p.AutomationEnabled && p.Status == periods.StatusActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePeriods) complete(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.periods[id]
	p.Status = periods.StatusCompleted
	f.periods[id] = p
}

type fakeProcessor struct {
	mu     sync.Mutex
	source *fakePeriods
	fail   map[int64][]error
	panics map[int64]bool
	calls  map[int64]int
}

func newFakeProcessor(source *fakePeriods) *fakeProcessor {
	return &fakeProcessor{source: source, fail: map[int64][]error{}, panics: map[int64]bool{}, calls: map[int64]int{}}
}

func (f *fakeProcessor) Run(ctx context.Context, periodID int64) (payroll.RunSummary, error) {
	f.mu.Lock()
	f.calls[periodID]++
	var err error
	if queue := f.fail[periodID]; len(queue) > 0 {
		err, f.fail[periodID] = queue[0], queue[1:]
	}
	shouldPanic := f.panics[periodID]
	f.mu.Unlock()
	if shouldPanic {
		panic("unexpected nil employee")
	}
	if err != nil {
		return payroll.RunSummary{}, err
	}
	f.source.complete(periodID)
	return payroll.RunSummary{PeriodID: periodID, Status: payroll.SummaryStatusCompleted}, nil
}

func (f *fakeProcessor) callCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type fakeLocker struct {
	mu         sync.Mutex
	held       map[string]bool
	foreign    map[string]bool
	acquireErr error
	released   []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}, foreign: map[string]bool{}}
}

func (l *fakeLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	if l.held[key] || l.foreign[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

func (l *fakeLocker) isHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key]
}

type fakeQueue struct {
	periods []int64
	sweeps  int
}

func (q *fakeQueue) EnqueuePeriod(ctx context.Context, periodID int64) (string, error) {
	q.periods = append(q.periods, periodID)
	return "task-period", nil
}

func (q *fakeQueue) EnqueueSweep(ctx context.Context) (string, error) {
	q.sweeps++
	return "task-sweep", nil
}

func dueToday(id int64) periods.Period {
	return periods.Period{
		ID:                id,
		StartDate:         time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		EndDate:           time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		Type:              periods.TypeMonthly,
		Status:            periods.StatusActive,
		AutomationEnabled: true,
		AutomationRule:    periods.AutomationRule{periods.RuleDaysBeforeEnd: 3},
	}
}

var sweepDay = time.Date(2024, time.March, 28, 6, 0, 0, 0, time.UTC)
