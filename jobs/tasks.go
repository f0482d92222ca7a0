package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/rashid2003/jira-payroll-automation/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueuePayroll carries payroll runs so they never wait behind other work.
	QueuePayroll = "payroll"

	// TaskSweep evaluates every automation candidate.
	TaskSweep = "payroll:automation:sweep"
	// TaskProcessPeriod runs payroll for one period.
	TaskProcessPeriod = "payroll:period:process"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

var errInvalidPayload = errors.New("jobs: invalid payload")

// SweepPayload carries scheduling metadata for a sweep.
type SweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	Trigger      string    `json:"trigger"`
}

// ProcessPeriodPayload identifies the period to run.
type ProcessPeriodPayload struct {
	PeriodID int64 `json:"period_id"`
}

// NewSweepTask constructs an Asynq task for an automation sweep.
func NewSweepTask(at time.Time, trigger string, opts ...asynq.Option) (*asynq.Task, error) {
	if trigger == "" {
		trigger = "cron"
	}
	body, err := json.Marshal(SweepPayload{ScheduledFor: at.UTC(), Trigger: trigger})
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.Queue(QueuePayroll)}, opts...)
	return asynq.NewTask(TaskSweep, body, opts...), nil
}

// NewProcessPeriodTask constructs an Asynq task for a single period run.
func NewProcessPeriodTask(periodID int64, opts ...asynq.Option) (*asynq.Task, error) {
	if periodID <= 0 {
		return nil, fmt.Errorf("%w: period id must be positive", errInvalidPayload)
	}
	body, err := json.Marshal(ProcessPeriodPayload{PeriodID: periodID})
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.Queue(QueuePayroll)}, opts...)
	return asynq.NewTask(TaskProcessPeriod, body, opts...), nil
}

func decodeProcessPeriod(task *asynq.Task) (ProcessPeriodPayload, error) {
	var payload ProcessPeriodPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	if payload.PeriodID <= 0 {
		return payload, fmt.Errorf("%w: period id must be positive", errInvalidPayload)
	}
	return payload, nil
}
