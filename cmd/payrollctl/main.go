package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/rashid2003/jira-payroll-automation/cmd/payrollctl/cli"
	"github.com/rashid2003/jira-payroll-automation/internal/app"
	"github.com/rashid2003/jira-payroll-automation/internal/platform/cache"
	"github.com/rashid2003/jira-payroll-automation/internal/platform/db"
	"github.com/rashid2003/jira-payroll-automation/internal/users"
)

// exitError carries a command exit code through cobra.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

var rootCmd = &cobra.Command{
	Use:           "payrollctl",
	Short:         "Operate payroll automation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var automationCmd = &cobra.Command{
	Use:   "automation",
	Short: "Run and inspect payroll automation",
}

var automationRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run payroll automation manually",
	RunE:  runAutomation,
}

var automationQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show payroll queue depth",
	RunE:  runQueue,
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage payroll users",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user with a payroll profile",
	RunE:  runUsersCreate,
}

var (
	runOpts    cli.RunOptions
	queueOpts  cli.QueueOptions
	createOpts cli.CreateOptions
)

func init() {
	automationRunCmd.Flags().Int64Var(&runOpts.PeriodID, "period-id", 0, "Process a specific payroll period by ID")
	automationRunCmd.Flags().BoolVar(&runOpts.Force, "force", false, "Force processing regardless of automation rules")
	automationRunCmd.Flags().BoolVar(&runOpts.Async, "async", false, "Hand the run to the worker queue")
	automationRunCmd.Flags().BoolVar(&runOpts.JSONOutput, "json", false, "Print the result as JSON")
	automationQueueCmd.Flags().BoolVar(&queueOpts.JSONOutput, "json", false, "Print the queue stats as JSON")
	automationCmd.AddCommand(automationRunCmd, automationQueueCmd)

	in := &createOpts.Input
	usersCreateCmd.Flags().StringVar(&in.Username, "username", "", "Username for the new user (required)")
	usersCreateCmd.Flags().StringVar(&in.Email, "email", "", "Email address (required)")
	usersCreateCmd.Flags().StringVar(&in.Password, "password", "", "Password, prompted when omitted")
	usersCreateCmd.Flags().StringVar(&in.Role, "role", "employee", "Role: employee, manager, hr, finance or admin")
	usersCreateCmd.Flags().StringVar(&in.Department, "department", "", "Department name")
	usersCreateCmd.Flags().StringVar(&in.EmployeeID, "employee-id", "", "Employee ID")
	usersCreateCmd.Flags().StringVar(&in.FirstName, "first-name", "", "First name")
	usersCreateCmd.Flags().StringVar(&in.LastName, "last-name", "", "Last name")
	usersCreateCmd.Flags().BoolVar(&in.IsStaff, "is-staff", false, "Grant staff access")
	usersCreateCmd.Flags().BoolVar(&in.IsSuperuser, "is-superuser", false, "Grant superuser access")
	_ = usersCreateCmd.MarkFlagRequired("username")
	_ = usersCreateCmd.MarkFlagRequired("email")
	usersCmd.AddCommand(usersCreateCmd)

	rootCmd.AddCommand(automationCmd, usersCmd)
}

type deps struct {
	pool     *pgxpool.Pool
	redis    *redis.Client
	services *app.Services
}

func openDeps(ctx context.Context) (*deps, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg, "payrollctl")
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, err
	}
	services, err := app.NewServices(cfg, pool, redisClient, logger)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, err
	}
	return &deps{pool: pool, redis: redisClient, services: services}, nil
}

func (d *deps) Close() {
	d.services.Close()
	_ = d.redis.Close()
	d.pool.Close()
}

func runAutomation(cmd *cobra.Command, args []string) error {
	d, err := openDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	c, err := cli.NewAutomationCLI(d.services.Trigger())
	if err != nil {
		return err
	}
	opts := runOpts
	opts.Stdout, opts.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
	return exitCode(c.RunCommand(cmd.Context(), opts))
}

func runQueue(cmd *cobra.Command, args []string) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer inspector.Close()

	c, err := cli.NewQueueCLI(inspector)
	if err != nil {
		return err
	}
	opts := queueOpts
	opts.Stdout, opts.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
	return exitCode(c.QueueCommand(opts))
}

func runUsersCreate(cmd *cobra.Command, args []string) error {
	d, err := openDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	c, err := cli.NewUsersCLI(users.NewService(users.NewRepository(d.pool)))
	if err != nil {
		return err
	}
	opts := createOpts
	opts.Stdin, opts.Stdout, opts.Stderr = cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()
	return exitCode(c.CreateCommand(cmd.Context(), opts))
}

func exitCode(code int) error {
	if code == 0 {
		return nil
	}
	return exitError(code)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if code, ok := err.(exitError); ok {
			os.Exit(int(code))
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
