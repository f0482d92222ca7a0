package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"

	"github.com/rashid2003/jira-payroll-automation/jobs"
)

// QueueInspector reports queue depth.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// QueueOptions defines available flags for the automation queue command.
type QueueOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// QueueCLI inspects the payroll queues.
type QueueCLI struct {
	inspector QueueInspector
}

// NewQueueCLI constructs the helper.
func NewQueueCLI(inspector QueueInspector) (*QueueCLI, error) {
	if inspector == nil {
		return nil, errors.New("queue cli: inspector not configured")
	}
	return &QueueCLI{inspector: inspector}, nil
}

// InspectQueues reports the payroll and default queue metrics. Queues that
// have never received a task report zeroes.
func (c *QueueCLI) InspectQueues() ([]QueueStats, error) {
	names := []string{jobs.QueuePayroll, jobs.QueueDefault}
	out := make([]QueueStats, 0, len(names))
	for _, name := range names {
		info, err := c.inspector.GetQueueInfo(name)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				out = append(out, QueueStats{Queue: name})
				continue
			}
			return nil, fmt.Errorf("inspect queue %s: %w", name, err)
		}
		out = append(out, QueueStats{
			Queue:     name,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
		})
	}
	return out, nil
}

// QueueCommand prints the queue metrics.
func (c *QueueCLI) QueueCommand(opts QueueOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	stats, err := c.InspectQueues()
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "automation queue: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(stats); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "automation queue: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	for _, s := range stats {
		_, _ = fmt.Fprintf(opts.Stdout, "%-8s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	}
	return 0
}
