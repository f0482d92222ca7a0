// Package automation drives unattended payroll runs: it sweeps eligible
// periods, serialises work per period through a distributed lock and retries
// transient failures of single runs.
package automation

import (
	"sort"
	"time"

	"github.com/rashid2003/jira-payroll-automation/internal/payroll"
)

// RunStatus is the outcome of a single-period run.
type RunStatus string

const (
	RunCompleted        RunStatus = "completed"
	RunAlreadyCompleted RunStatus = "already_completed"
	RunError            RunStatus = "error"
	RunSkipped          RunStatus = "skipped"
	RunDispatched       RunStatus = "dispatched"
)

// Messages reported to callers.
const (
	MessageAlreadyProcessed = "Period was already processed"
	MessageNotDue           = "Period is not due for automation"
	MessageNotFound         = "Period not found"
	ReasonAlreadyProcessing = "already processing"
	ReasonAlreadyQueued     = "already queued"
)

// RunResult reports the outcome of one period.
type RunResult struct {
	PeriodID int64               `json:"period_id"`
	Status   RunStatus           `json:"status"`
	Result   *payroll.RunSummary `json:"result,omitempty"`
	Message  string              `json:"message,omitempty"`
	TaskID   string              `json:"task_id,omitempty"`
}

// ProcessedItem is a period the sweep handed to the dispatcher successfully.
type ProcessedItem struct {
	PeriodID int64     `json:"period_id"`
	Result   RunResult `json:"result"`
}

// SkippedItem is a due period another worker was already processing.
type SkippedItem struct {
	PeriodID int64  `json:"period_id"`
	Reason   string `json:"reason"`
}

// FailedItem is a due period whose run failed.
type FailedItem struct {
	PeriodID int64  `json:"period_id"`
	Error    string `json:"error"`
}

// SweepReport aggregates a full sweep.
type SweepReport struct {
	RunID          string          `json:"run_id"`
	Timestamp      time.Time       `json:"timestamp"`
	ProcessedCount int             `json:"processed_count"`
	SkippedCount   int             `json:"skipped_count"`
	FailedCount    int             `json:"failed_count"`
	Processed      []ProcessedItem `json:"processed"`
	Skipped        []SkippedItem   `json:"skipped"`
	Failed         []FailedItem    `json:"failed"`
}

func newSweepReport(runID string, at time.Time) SweepReport {
	return SweepReport{
		RunID:     runID,
		Timestamp: at,
		Processed: []ProcessedItem{},
		Skipped:   []SkippedItem{},
		Failed:    []FailedItem{},
	}
}

func (r *SweepReport) finalize() {
	sort.Slice(r.Processed, func(i, j int) bool { return r.Processed[i].PeriodID < r.Processed[j].PeriodID })
	sort.Slice(r.Skipped, func(i, j int) bool { return r.Skipped[i].PeriodID < r.Skipped[j].PeriodID })
	sort.Slice(r.Failed, func(i, j int) bool { return r.Failed[i].PeriodID < r.Failed[j].PeriodID })
	r.ProcessedCount = len(r.Processed)
	r.SkippedCount = len(r.Skipped)
	r.FailedCount = len(r.Failed)
}
