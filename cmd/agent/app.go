package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/easeaico/sql-memory-agent/internal/config"
	"github.com/easeaico/sql-memory-agent/internal/mcpserver"
	"github.com/easeaico/sql-memory-agent/internal/report"
	"github.com/easeaico/sql-memory-agent/internal/service"
	"github.com/easeaico/sql-memory-agent/internal/tools"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/cmd/launcher"
	"google.golang.org/adk/cmd/launcher/full"
)

// Version information set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// App is the command-line application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	// loadConfig is replaced in tests.
	loadConfig func() (config.Config, error)
}

// NewApp creates the CLI with all subcommands registered.
func NewApp() *App {
	app := &App{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		loadConfig: config.Load,
	}

	app.root = &cobra.Command{
		Use:   "sql-memory-agent",
		Short: "Safety-gated SQL analysis agent that learns from every query",
		Long: `sql-memory-agent runs read-oriented SQL against a target database behind a
safety gate, records every outcome in a memory store and turns the
accumulated memory into error patterns, performance insights and
prioritized suggestions.

Configuration comes from the environment: DB_TYPE, DATABASE_URL,
TARGET_DB_TYPE, TARGET_DATABASE_URL, GOOGLE_API_KEY, MEMORY_OWNER,
MAX_CONCURRENT_QUERIES, LOG_LEVEL and LOG_FORMAT.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newAgentCmd(),
		app.newMCPCmd(),
		app.newExecCmd(),
		app.newLearnCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "sql-memory-agent version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
		},
	}
}

func (a *App) newAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "agent [launcher args]",
		Short:              "Run the conversational agent (console or web launcher)",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.setup()
			if err != nil {
				return err
			}
			if err := cfg.RequireAPIKey(); err != nil {
				return err
			}

			c, err := openComponents(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			llmAgent, err := buildAgent(ctx, cfg, c)
			if err != nil {
				return err
			}

			l := full.NewLauncher()
			launcherCfg := &launcher.Config{
				AgentLoader:   agent.NewSingleLoader(llmAgent),
				MemoryService: c.memoryService,
			}
			if err := l.Execute(ctx, launcherCfg, args); err != nil {
				return fmt.Errorf("failed to run agent: %w\n\n%s", err, l.CommandLineSyntax())
			}
			return nil
		},
	}
}

func (a *App) newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the agent tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.setup()
			if err != nil {
				return err
			}

			c, err := openComponents(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			s := mcpserver.New(tools.NewHandler(c.service), Version)
			return mcpserver.ServeStdio(s)
		},
	}
}

type execOptions struct {
	maxRows int
	timeout time.Duration
	noLearn bool
}

func (a *App) newExecCmd() *cobra.Command {
	opts := &execOptions{}

	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Execute one query behind the safety gate and print the report",
		Long: `Execute one query against the target database.

Examples:
  # Run a query and learn from the outcome
  sql-memory-agent exec "SELECT * FROM orders"

  # Cap the rows and skip learning
  sql-memory-agent exec --max-rows 10 --no-learn "SELECT * FROM orders"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.setup()
			if err != nil {
				return err
			}

			c, err := openComponents(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			out, err := c.service.ExecuteQuery(cmd.Context(), service.ExecuteRequest{
				Query:    args[0],
				RowLimit: opts.maxRows,
				Timeout:  opts.timeout,
				Learn:    !opts.noLearn,
			})
			return a.emit(out, err)
		},
	}

	cmd.Flags().IntVar(&opts.maxRows, "max-rows", 0, "Row limit appended when the query has none (default 100)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Execution timeout (default 30s)")
	cmd.Flags().BoolVar(&opts.noLearn, "no-learn", false, "Do not record the outcome in memory")

	return cmd
}

type learnOptions struct {
	category       string
	windowDays     int
	maxSuggestions int
}

func (a *App) newLearnCmd() *cobra.Command {
	opts := &learnOptions{}

	cmd := &cobra.Command{
		Use:   "learn <topic>",
		Short: "Analyze memory for a topic and print suggestions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.setup()
			if err != nil {
				return err
			}

			c, err := openComponents(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			out, err := c.service.LearnFromMemory(cmd.Context(), service.LearnRequest{
				Topic:          args[0],
				Category:       opts.category,
				WindowDays:     opts.windowDays,
				MaxSuggestions: opts.maxSuggestions,
			})
			return a.emit(out, err)
		},
	}

	cmd.Flags().StringVar(&opts.category, "category", "", "Restrict to one memory category")
	cmd.Flags().IntVar(&opts.windowDays, "days", service.DefaultWindowDays, "Only consider memories from the last N days (0 for all)")
	cmd.Flags().IntVar(&opts.maxSuggestions, "max-suggestions", service.DefaultMaxSuggestions, "Maximum number of suggestions")

	return cmd
}

// emit writes a successful report to stdout, or the rendered failure to
// stderr and returns an error so the exit code is non-zero.
func (a *App) emit(out string, err error) error {
	if err != nil {
		var inputErr *service.InputError
		if errors.As(err, &inputErr) {
			return err
		}
		fmt.Fprintln(a.stderr, report.FormatError(err, ""))
		return errors.New("query failed")
	}
	fmt.Fprintln(a.stdout, out)
	return nil
}
