// Package cli implements the payrollctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rashid2003/jira-payroll-automation/internal/automation"
)

// Triggerer performs manual automation runs.
type Triggerer interface {
	Run(ctx context.Context, req automation.TriggerRequest) (automation.TriggerResponse, error)
}

// AutomationCLI drives manual payroll automation.
type AutomationCLI struct {
	trigger Triggerer
}

// NewAutomationCLI constructs the helper.
func NewAutomationCLI(trigger Triggerer) (*AutomationCLI, error) {
	if trigger == nil {
		return nil, errors.New("automation cli: trigger not configured")
	}
	return &AutomationCLI{trigger: trigger}, nil
}

// RunOptions defines available flags for the automation run command. A zero
// PeriodID requests a full sweep.
type RunOptions struct {
	PeriodID   int64
	Force      bool
	Async      bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RunCommand executes the run and prints the outcome. It exits with 1 when
// the run fails and 2 when a sweep finished with failed periods.
func (c *AutomationCLI) RunCommand(ctx context.Context, opts RunOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.PeriodID < 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "automation run: --period-id must be positive")
		return 1
	}

	req := automation.TriggerRequest{Force: opts.Force, Async: opts.Async}
	if opts.PeriodID > 0 {
		id := opts.PeriodID
		req.PeriodID = &id
		if !opts.JSONOutput {
			_, _ = fmt.Fprintf(opts.Stdout, "Processing payroll for period %d (force=%t, async=%t)\n", id, opts.Force, opts.Async)
		}
	} else if !opts.JSONOutput {
		_, _ = fmt.Fprintln(opts.Stdout, "Running full payroll automation...")
	}

	resp, err := c.trigger.Run(ctx, req)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "Error running payroll automation: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(resp); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "automation run: encode json: %v\n", err)
			return 1
		}
	} else {
		renderTriggerHuman(opts.Stdout, resp)
	}
	if resp.Sweep != nil && resp.Sweep.FailedCount > 0 {
		return 2
	}
	return 0
}

func renderTriggerHuman(out io.Writer, resp automation.TriggerResponse) {
	switch {
	case resp.Receipt != nil:
		_, _ = fmt.Fprintf(out, "Task queued with ID: %s\n", resp.Receipt.TaskID)
	case resp.Run != nil:
		run := resp.Run
		_, _ = fmt.Fprintf(out, "Result: period %d %s", run.PeriodID, run.Status)
		if run.Message != "" {
			_, _ = fmt.Fprintf(out, " (%s)", run.Message)
		}
		_, _ = fmt.Fprintln(out)
		if run.Result != nil {
			_, _ = fmt.Fprintf(out, "Employees processed: %d, errors: %d, total net: %s\n",
				run.Result.ProcessedEmployees, run.Result.ProcessingErrors, run.Result.TotalNet.StringFixed(2))
		}
	case resp.Sweep != nil:
		sweep := resp.Sweep
		_, _ = fmt.Fprintf(out, "Sweep %s: processed %d, skipped %d, failed %d\n",
			sweep.RunID, sweep.ProcessedCount, sweep.SkippedCount, sweep.FailedCount)
		for _, item := range sweep.Skipped {
			_, _ = fmt.Fprintf(out, " - period %d skipped: %s\n", item.PeriodID, item.Reason)
		}
		for _, item := range sweep.Failed {
			_, _ = fmt.Fprintf(out, " - period %d failed: %s\n", item.PeriodID, item.Error)
		}
	}
}
