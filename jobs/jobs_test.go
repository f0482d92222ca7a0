package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rashid2003/jira-payroll-automation/internal/automation"
	jobmetrics "github.com/rashid2003/jira-payroll-automation/internal/jobs"
	"github.com/rashid2003/jira-payroll-automation/internal/lock"
	"github.com/rashid2003/jira-payroll-automation/internal/payroll"
	"github.com/rashid2003/jira-payroll-automation/internal/periods"
	"github.com/rashid2003/jira-payroll-automation/internal/platform/httpx"
	"github.com/rashid2003/jira-payroll-automation/internal/shared"
)

type stubSweeper struct {
	report automation.SweepReport
	err    error
	calls  int
}

func (s *stubSweeper) RunSweep(ctx context.Context) (automation.SweepReport, error) {
	s.calls++
	return s.report, s.err
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type stubProcessor struct {
	fn    func(ctx context.Context, periodID int64) (automation.RunResult, error)
	calls int
}

func (s *stubProcessor) ProcessOne(ctx context.Context, periodID int64) (automation.RunResult, error) {
	s.calls++
	return s.fn(ctx, periodID)
}

func newLocker(t *testing.T) (*lock.RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.NewRedisLocker(client), mr
}

func TestSweepJobRecordsReport(t *testing.T) {
	sweeper := &stubSweeper{report: automation.SweepReport{
		RunID:          "sweep-1",
		ProcessedCount: 1,
		FailedCount:    1,
		Processed: []automation.ProcessedItem{{PeriodID: 1, Result: automation.RunResult{
			PeriodID: 1,
			Status:   automation.RunCompleted,
			Result:   &payroll.RunSummary{ProcessingErrors: 2},
		}}},
		Failed: []automation.FailedItem{{PeriodID: 2, Error: "boom"}},
	}}
	audit := &recordingAudit{}
	job := NewSweepJob(sweeper, audit, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewSweepTask(time.Date(2024, time.March, 28, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, sweeper.calls)
	require.Len(t, audit.logs, 1)
	require.Equal(t, shared.AuditActionSweep, audit.logs[0].Action)
	require.Equal(t, "sweep-1", audit.logs[0].EntityID)
	require.Equal(t, "cron", audit.logs[0].Meta["trigger"])
}

func TestSweepJobPropagatesListFailure(t *testing.T) {
	listErr := errors.New("connection refused")
	job := NewSweepJob(&stubSweeper{err: listErr}, nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewSweepTask(time.Now(), "manual")
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), listErr)
}

func TestSweepJobRejectsMalformedPayload(t *testing.T) {
	job := NewSweepJob(&stubSweeper{}, nil, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskSweep, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessPeriodJob(t *testing.T) {
	ctx := context.Background()
	locker, _ := newLocker(t)
	audit := &recordingAudit{}
	proc := &stubProcessor{fn: func(ctx context.Context, periodID int64) (automation.RunResult, error) {
		return automation.RunResult{PeriodID: periodID, Status: automation.RunCompleted, Result: &payroll.RunSummary{PeriodID: periodID}}, nil
	}}
	job := NewProcessPeriodJob(proc, locker, audit, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewProcessPeriodTask(7)
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))
	require.Equal(t, 1, proc.calls)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "7", audit.logs[0].EntityID)

	acquired, err := locker.TryAcquire(ctx, shared.ProcessingLockKey(7), time.Minute)
	require.NoError(t, err)
	require.True(t, acquired, "lock must be released after the run")
}

func TestProcessPeriodJobRetriesWhenLocked(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)
	require.NoError(t, mr.Set(shared.ProcessingLockKey(7), "other-worker"))
	proc := &stubProcessor{fn: func(ctx context.Context, periodID int64) (automation.RunResult, error) {
		t.Fatal("processor must not run while the period is locked")
		return automation.RunResult{}, nil
	}}
	job := NewProcessPeriodJob(proc, locker, nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewProcessPeriodTask(7)
	require.NoError(t, err)
	err = job.Handle(ctx, task)
	require.ErrorIs(t, err, ErrPeriodBusy)
	require.False(t, errors.Is(err, asynq.SkipRetry))
	require.Zero(t, proc.calls)
}

func TestProcessPeriodJobRetrySemantics(t *testing.T) {
	ctx := context.Background()
	locker, _ := newLocker(t)
	business := &payroll.BusinessError{PeriodID: 7, Status: "cancelled", Err: payroll.ErrPeriodCancelled}
	transient := errors.New("deadlock detected")

	cases := []struct {
		name      string
		err       error
		skipRetry bool
	}{
		{name: "business", err: business, skipRetry: true},
		{name: "transient", err: transient, skipRetry: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proc := &stubProcessor{fn: func(ctx context.Context, periodID int64) (automation.RunResult, error) {
				return automation.RunResult{PeriodID: periodID, Status: automation.RunError}, tc.err
			}}
			job := NewProcessPeriodJob(proc, locker, nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
			task, err := NewProcessPeriodTask(7)
			require.NoError(t, err)

			err = job.Handle(ctx, task)
			require.ErrorIs(t, err, tc.err)
			require.Equal(t, tc.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestProcessPeriodJobRejectsInvalidPayload(t *testing.T) {
	locker, _ := newLocker(t)
	job := NewProcessPeriodJob(&stubProcessor{}, locker, nil, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskProcessPeriod, []byte(`{"period_id":0}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	_, err = NewProcessPeriodTask(-1)
	require.Error(t, err)
}

func TestRetryDelayUsesPolicyForPayrollTasks(t *testing.T) {
	delay := retryDelay(automation.RetryPolicy{MaxRetries: 2, Delay: 5 * time.Minute})
	task, err := NewProcessPeriodTask(1)
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, delay(1, errors.New("x"), task))

	other := asynq.NewTask("other", nil)
	d := delay(1, errors.New("x"), other)
	require.Positive(t, d)
}

type fakeEnqueuer struct {
	err error
	ids []int64
}

func (f *fakeEnqueuer) EnqueuePeriod(ctx context.Context, periodID int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.ids = append(f.ids, periodID)
	return "task-1", nil
}

func (f *fakeEnqueuer) EnqueueSweep(ctx context.Context) (string, error) { return "sweep", nil }

func TestQueueDispatcher(t *testing.T) {
	q := &fakeEnqueuer{}
	res, err := QueueDispatcher{Queue: q}.Dispatch(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, automation.RunDispatched, res.Status)
	require.Equal(t, "task-1", res.TaskID)
	require.Equal(t, []int64{4}, q.ids)

	q.err = errors.New("redis down")
	res, err = QueueDispatcher{Queue: q}.Dispatch(context.Background(), 5)
	require.Error(t, err)
	require.Equal(t, automation.RunError, res.Status)
	q.err = httpx.Mark(fmt.Errorf("%w: %s", ErrAlreadyQueued, TaskProcessPeriod), httpx.ErrConflict)
	res, err = QueueDispatcher{Queue: q}.Dispatch(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, automation.RunSkipped, res.Status)
	require.Equal(t, automation.ReasonAlreadyQueued, res.Message)
}

var dispatchDay = time.Date(2024, time.March, 28, 6, 0, 0, 0, time.UTC)

type candidateList []periods.Period

func (c candidateList) Get(ctx context.Context, id int64) (periods.Period, error) {
	for _, p := range c {
		if p.ID == id {
			return p, nil
		}
	}
	return periods.Period{}, periods.ErrNotFound
}

func (c candidateList) ListAutomationCandidates(ctx context.Context) ([]periods.Period, error) {
	return c, nil
}

func duePeriod(id int64) periods.Period {
	return periods.Period{
		ID:                id,
		StartDate:         time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		EndDate:           time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		Type:              periods.TypeMonthly,
		Status:            periods.StatusActive,
		AutomationEnabled: true,
		AutomationRule:    periods.AutomationRule{periods.RuleRunOnDate: "2024-03-28"},
	}
}

// inlineWorker hands every enqueued task straight to the handler, the way an
// idle worker dequeues it before the sweep moves on.
type inlineWorker struct {
	t    *testing.T
	job  *ProcessPeriodJob
	errs []error
}

func (w *inlineWorker) EnqueuePeriod(ctx context.Context, periodID int64) (string, error) {
	task, err := NewProcessPeriodTask(periodID)
	require.NoError(w.t, err)
	w.errs = append(w.errs, w.job.Handle(ctx, task))
	return fmt.Sprintf("task-%d", periodID), nil
}

func (w *inlineWorker) EnqueueSweep(ctx context.Context) (string, error) { return "sweep", nil }

func TestQueuedSweepTaskRunsWhenPickedUpImmediately(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	newRedisLocker := func() *lock.RedisLocker {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return lock.NewRedisLocker(client)
	}
	proc := &stubProcessor{fn: func(ctx context.Context, periodID int64) (automation.RunResult, error) {
		return automation.RunResult{PeriodID: periodID, Status: automation.RunCompleted, Result: &payroll.RunSummary{PeriodID: periodID}}, nil
	}}
	job := NewProcessPeriodJob(proc, newRedisLocker(), nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	worker := &inlineWorker{t: t, job: job}
	scheduler := automation.NewScheduler(candidateList{duePeriod(1)}, newRedisLocker(), QueueDispatcher{Queue: worker}, automation.SchedulerConfig{}, nil)
	scheduler.WithNow(func() time.Time { return dispatchDay })

	report, err := scheduler.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.ProcessedCount)
	require.Equal(t, automation.RunDispatched, report.Processed[0].Result.Status)
	require.Equal(t, "task-1", report.Processed[0].Result.TaskID)
	require.Len(t, worker.errs, 1)
	require.NoError(t, worker.errs[0])
	require.Equal(t, 1, proc.calls)
	require.False(t, mr.Exists(shared.ProcessingLockKey(1)))
}

func TestQueuedSweepSkipsPeriodsAlreadyQueued(t *testing.T) {
	locker, _ := newLocker(t)
	queue := &fakeEnqueuer{err: httpx.Mark(fmt.Errorf("%w: %s", ErrAlreadyQueued, TaskProcessPeriod), httpx.ErrConflict)}
	scheduler := automation.NewScheduler(candidateList{duePeriod(1), duePeriod(2)}, locker, QueueDispatcher{Queue: queue}, automation.SchedulerConfig{}, nil)
	scheduler.WithNow(func() time.Time { return dispatchDay })

	report, err := scheduler.RunSweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.FailedCount)
	require.Zero(t, report.ProcessedCount)
	require.Equal(t, []automation.SkippedItem{
		{PeriodID: 1, Reason: automation.ReasonAlreadyQueued},
		{PeriodID: 2, Reason: automation.ReasonAlreadyQueued},
	}, report.Skipped)
}

func TestClientDeduplicatesPeriodTasks(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()}, automation.DefaultRetryPolicy(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	id, err := client.EnqueuePeriod(context.Background(), 3)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = client.EnqueuePeriod(context.Background(), 3)
	require.ErrorIs(t, err, ErrAlreadyQueued)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

type stubInspector struct {
	info map[string]*asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.info[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(stubInspector{info: map[string]*asynq.QueueInfo{
		QueuePayroll: {Queue: QueuePayroll, Pending: 2, Retry: 1},
	}}, nil)
	r := chi.NewRouter()
	h.MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queues":[
		{"queue":"payroll","pending":2,"active":0,"retry":1,"archived":0,"available":true},
		{"queue":"default","pending":0,"active":0,"retry":0,"archived":0,"available":true}
	]}`, rr.Body.String())

	h = NewHandler(stubInspector{err: errors.New("redis down")}, nil)
	r = chi.NewRouter()
	h.MountRoutes(r)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
