package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rashid2003/jira-payroll-automation/internal/automation"
	"github.com/rashid2003/jira-payroll-automation/internal/payroll"
	"github.com/rashid2003/jira-payroll-automation/internal/users"
)

type stubTrigger struct {
	req  automation.TriggerRequest
	resp automation.TriggerResponse
	err  error
}

func (s *stubTrigger) Run(ctx context.Context, req automation.TriggerRequest) (automation.TriggerResponse, error) {
	s.req = req
	return s.resp, s.err
}

func TestRunCommandSinglePeriod(t *testing.T) {
	trig := &stubTrigger{resp: automation.TriggerResponse{Run: &automation.RunResult{
		PeriodID: 7,
		Status:   automation.RunCompleted,
		Result:   &payroll.RunSummary{PeriodID: 7, ProcessedEmployees: 3, TotalNet: decimal.RequireFromString("1234.5")},
	}}}
	c, err := NewAutomationCLI(trig)
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := c.RunCommand(context.Background(), RunOptions{PeriodID: 7, Force: true, Stdout: stdout, Stderr: stderr})
	require.Zero(t, code)
	require.Empty(t, stderr.String())
	require.NotNil(t, trig.req.PeriodID)
	require.Equal(t, int64(7), *trig.req.PeriodID)
	require.True(t, trig.req.Force)
	require.Contains(t, stdout.String(), "Processing payroll for period 7 (force=true, async=false)")
	require.Contains(t, stdout.String(), "Result: period 7 completed")
	require.Contains(t, stdout.String(), "total net: 1234.50")
}

func TestRunCommandSweepWithFailures(t *testing.T) {
	trig := &stubTrigger{resp: automation.TriggerResponse{Sweep: &automation.SweepReport{
		RunID:       "sweep-1",
		FailedCount: 1,
		Failed:      []automation.FailedItem{{PeriodID: 2, Error: "store unavailable"}},
	}}}
	c, err := NewAutomationCLI(trig)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := c.RunCommand(context.Background(), RunOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 2, code)
	require.Nil(t, trig.req.PeriodID)
	require.Contains(t, stdout.String(), "Running full payroll automation...")
	require.Contains(t, stdout.String(), "period 2 failed: store unavailable")
}

func TestRunCommandAsyncJSON(t *testing.T) {
	trig := &stubTrigger{resp: automation.TriggerResponse{Receipt: &automation.Receipt{TaskID: "task-9", Message: "Automation sweep dispatched"}}}
	c, err := NewAutomationCLI(trig)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := c.RunCommand(context.Background(), RunOptions{Async: true, JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	require.True(t, trig.req.Async)

	var resp automation.TriggerResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	require.NotNil(t, resp.Receipt)
	require.Equal(t, "task-9", resp.Receipt.TaskID)
}

func TestRunCommandErrors(t *testing.T) {
	trig := &stubTrigger{err: automation.ErrAsyncUnavailable}
	c, err := NewAutomationCLI(trig)
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, c.RunCommand(context.Background(), RunOptions{PeriodID: 1, Async: true, Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "Error running payroll automation")

	stderr.Reset()
	require.Equal(t, 1, c.RunCommand(context.Background(), RunOptions{PeriodID: -3, Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "--period-id must be positive")

	_, err = NewAutomationCLI(nil)
	require.Error(t, err)
}

type stubInspector map[string]*asynq.QueueInfo

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if queue == "broken" {
		return nil, errors.New("boom")
	}
	info, ok := s[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestQueueCommand(t *testing.T) {
	c, err := NewQueueCLI(stubInspector{"payroll": {Queue: "payroll", Pending: 2, Retry: 1}})
	require.NoError(t, err)

	stats, err := c.InspectQueues()
	require.NoError(t, err)
	require.Equal(t, []QueueStats{{Queue: "payroll", Pending: 2, Retry: 1}, {Queue: "default"}}, stats)

	stdout := new(bytes.Buffer)
	require.Zero(t, c.QueueCommand(QueueOptions{Stdout: stdout, Stderr: new(bytes.Buffer)}))
	require.Contains(t, stdout.String(), "pending=2")
	require.Equal(t, 2, strings.Count(stdout.String(), "\n"))
}

type stubCreator struct {
	in  users.CreateInput
	err error
}

func (s *stubCreator) CreateUser(ctx context.Context, in users.CreateInput) (users.Account, error) {
	s.in = in
	if s.err != nil {
		return users.Account{}, s.err
	}
	profile := users.Profile{UserID: 5, Role: in.Role, Department: in.Department}
	profile.ApplyRoleDefaults()
	return users.Account{
		User:        users.User{ID: 5, Username: in.Username, Email: in.Email, FirstName: in.FirstName, LastName: in.LastName},
		Profile:     profile,
		Permissions: []string{"payroll.period.create", "payroll.period.edit", "payroll.period.view", "payroll.run"},
	}, nil
}

func TestCreateUserCommandPrintsSummary(t *testing.T) {
	creator := &stubCreator{}
	c, err := NewUsersCLI(creator)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := c.CreateCommand(context.Background(), CreateOptions{
		Input:  users.CreateInput{Username: "fin", Email: "fin@company.com", Password: "password1", Role: "finance", FirstName: "Fin", LastName: "Ance", Department: "Treasury"},
		Stdout: stdout,
		Stderr: new(bytes.Buffer),
	})
	require.Zero(t, code)
	out := stdout.String()
	require.Contains(t, out, `Successfully created user "fin"`)
	require.Contains(t, out, "Name: Fin Ance")
	require.Contains(t, out, "Role: Finance")
	require.Contains(t, out, "Department: Treasury")
	require.Contains(t, out, "Can Run Payroll: Yes")
	require.Contains(t, out, "Finance role automatically grants all payroll permissions")
	require.Contains(t, out, "POST /payroll/periods/{id}/run")
	require.NotContains(t, out, "GET /users")
}

func TestCreateUserCommandReadsPassword(t *testing.T) {
	creator := &stubCreator{}
	c, err := NewUsersCLI(creator)
	require.NoError(t, err)

	code := c.CreateCommand(context.Background(), CreateOptions{
		Input:  users.CreateInput{Username: "hr", Email: "hr@company.com", Role: "hr"},
		Stdin:  strings.NewReader("secret-pass\nsecret-pass\n"),
		Stdout: new(bytes.Buffer),
		Stderr: new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.Equal(t, "secret-pass", creator.in.Password)

	stderr := new(bytes.Buffer)
	code = c.CreateCommand(context.Background(), CreateOptions{
		Input:  users.CreateInput{Username: "hr", Email: "hr@company.com"},
		Stdin:  strings.NewReader("one\ntwo\n"),
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "passwords don't match")
}

func TestCreateUserCommandReportsFailure(t *testing.T) {
	c, err := NewUsersCLI(&stubCreator{err: errors.New(`user "fin" already exists`)})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	code := c.CreateCommand(context.Background(), CreateOptions{
		Input:  users.CreateInput{Username: "fin", Email: "fin@company.com", Password: "password1"},
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), `Error creating user: user "fin" already exists`)
}
