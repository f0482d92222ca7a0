package automation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rashid2003/jira-payroll-automation/internal/payroll"
	"github.com/rashid2003/jira-payroll-automation/internal/periods"
	"github.com/rashid2003/jira-payroll-automation/internal/shared"
)

type triggerFixture struct {
	source  *fakePeriods
	proc    *fakeProcessor
	locker  *fakeLocker
	queue   *fakeQueue
	trigger *Trigger
}

func newTriggerFixture(withQueue bool, ps ...periods.Period) triggerFixture {
	source := newFakePeriods(ps...)
	proc := newFakeProcessor(source)
	locker := newFakeLocker()
	runner := NewRunner(source, proc, nil)
	scheduler := newTestScheduler(source, locker, runner, 1)
	f := triggerFixture{source: source, proc: proc, locker: locker}
	var queue Enqueuer
	if withQueue {
		f.queue = &fakeQueue{}
		queue = f.queue
	}
	f.trigger = NewTrigger(scheduler, source, locker, runner, queue, nil)
	return f
}

func periodID(id int64) *int64 { return &id }

func TestTriggerSinglePeriodNotDue(t *testing.T) {
	p := dueToday(1)
	p.AutomationRule = periods.AutomationRule{periods.RuleDaysBeforeEnd: 10}
	f := newTriggerFixture(false, p)

	resp, err := f.trigger.Run(context.Background(), TriggerRequest{PeriodID: periodID(1)})
	require.NoError(t, err)
	require.Equal(t, RunSkipped, resp.Run.Status)
	require.Equal(t, MessageNotDue, resp.Run.Message)
	require.Zero(t, f.proc.callCount(1))
}

func TestTriggerForceBypassesDueCheckAndGate(t *testing.T) {
	p := dueToday(1)
	p.AutomationEnabled = false
	p.AutomationRule = nil
	f := newTriggerFixture(false, p)

	resp, err := f.trigger.Run(context.Background(), TriggerRequest{PeriodID: periodID(1), Force: true})
	require.NoError(t, err)
	require.Equal(t, RunCompleted, resp.Run.Status)
	require.Equal(t, []string{shared.ProcessingLockKey(1)}, f.locker.released)
}

func TestTriggerForceNeverBypassesTerminalStatus(t *testing.T) {
	p := dueToday(1)
	p.Status = periods.StatusCancelled
	f := newTriggerFixture(false, p)

	resp, err := f.trigger.Run(context.Background(), TriggerRequest{PeriodID: periodID(1), Force: true})
	require.True(t, payroll.IsBusinessError(err))
	require.Equal(t, RunError, resp.Run.Status)
	require.Zero(t, f.proc.callCount(1))
}

func TestTriggerUnknownPeriod(t *testing.T) {
	f := newTriggerFixture(false)

	resp, err := f.trigger.Run(context.Background(), TriggerRequest{PeriodID: periodID(9), Force: true})
	require.ErrorIs(t, err, payroll.ErrPeriodNotFound)
	require.Equal(t, MessageNotFound, resp.Run.Message)
}

func TestTriggerSkipsWhenLockHeld(t *testing.T) {
	f := newTriggerFixture(false, dueToday(1))
	f.locker.foreign[shared.ProcessingLockKey(1)] = true

	resp, err := f.trigger.Run(context.Background(), TriggerRequest{PeriodID: periodID(1)})
	require.NoError(t, err)
	require.Equal(t, RunSkipped, resp.Run.Status)
	require.Equal(t, ReasonAlreadyProcessing, resp.Run.Message)
	require.Zero(t, f.proc.callCount(1))
}

func TestTriggerAsync(t *testing.T) {
	f := newTriggerFixture(true, dueToday(1))

	resp, err := f.trigger.Run(context.Background(), TriggerRequest{PeriodID: periodID(1), Async: true})
	require.NoError(t, err)
	require.NotNil(t, resp.Receipt)
	require.Equal(t, "task-period", resp.Receipt.TaskID)
	require.Equal(t, []int64{1}, f.queue.periods)
	require.Zero(t, f.proc.callCount(1))

	resp, err = f.trigger.Run(context.Background(), TriggerRequest{Async: true})
	require.NoError(t, err)
	require.Equal(t, "Automation sweep dispatched", resp.Receipt.Message)
	require.Equal(t, 1, f.queue.sweeps)
}

func TestTriggerAsyncWithoutQueue(t *testing.T) {
	f := newTriggerFixture(false, dueToday(1))

	_, err := f.trigger.Run(context.Background(), TriggerRequest{PeriodID: periodID(1), Async: true})
	require.ErrorIs(t, err, ErrAsyncUnavailable)
	_, err = f.trigger.Run(context.Background(), TriggerRequest{Async: true})
	require.ErrorIs(t, err, ErrAsyncUnavailable)
}

func TestTriggerInlineSweep(t *testing.T) {
	f := newTriggerFixture(false, dueToday(1), dueToday(2))

	resp, err := f.trigger.Run(context.Background(), TriggerRequest{})
	require.NoError(t, err)
	require.NotNil(t, resp.Sweep)
	require.Equal(t, 2, resp.Sweep.ProcessedCount)
}
