// Package main is the CLI entry point for timeclock, a tamper-evident
// punch clock.
//
// Clock-in and clock-out events are appended to a hash-chained JSON log.
// Each entry's hash covers its own fields and the previous entry's hash,
// so editing any past entry is detected on the next load.
//
// CLI commands (cobra):
//
//	timeclock in             - Clock in
//	timeclock out            - Clock out
//	timeclock status         - Show the current state and the log
//	timeclock verify [file]  - Verify the hash chain
//	timeclock report         - Rounded quarter-hour session report
//	timeclock log            - Query or reindex the log
//	timeclock watch          - Re-verify the log whenever it changes
//	timeclock config         - View or create the configuration
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/timeclock/timeclock/internal/clock"
	"github.com/timeclock/timeclock/internal/config"
	"github.com/timeclock/timeclock/internal/report"
	"github.com/timeclock/timeclock/internal/timelog"
)

// Build-time variables injected via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
)

// defaultConfigDir returns ~/.timeclock/, where config.yaml and the time
// log live by default.
func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".timeclock"
	}
	return filepath.Join(home, ".timeclock")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ============================================================================
// Root command
// ============================================================================

// configDir is the global flag for the config/state directory.
var configDir string

var rootCmd = &cobra.Command{
	Use:   "timeclock",
	Short: "timeclock — tamper-evident punch clock",
	Long: `timeclock records clock-in and clock-out times in a hash-chained log.
Every entry's hash depends on the previous entry, so any later edit to the
log file is detected by 'timeclock verify'.

'timeclock report' pairs sessions and rounds them to the nearest quarter hour.`,
	Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configDir,
		"config-dir",
		defaultConfigDir(),
		"Path to timeclock config and state directory",
	)

	rootCmd.AddCommand(inCmd)
	rootCmd.AddCommand(outCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

// app bundles what every log-touching command needs.
type app struct {
	cfg   *config.Config
	store *timelog.Store
}

// openApp loads config.yaml, installs the slog handler at the
// configured level, and opens the time log.
func openApp() (*app, error) {
	cfg, err := config.Load(filepath.Join(configDir, "config.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	store, err := timelog.Open(cfg.LogPath(configDir), timelog.Options{Index: cfg.Log.Index})
	if err != nil {
		return nil, fmt.Errorf("failed to open time log: %w", err)
	}
	return &app{cfg: cfg, store: store}, nil
}

func (rt *app) Close() {
	if err := rt.store.Close(); err != nil {
		slog.Warn("closing time log", "error", err)
	}
}

// ============================================================================
// timeclock in / out
// ============================================================================

var inCmd = &cobra.Command{
	Use:   "in",
	Short: "Clock in",
	Long:  `Record a clock-in at the current time. Fails if you are already clocked in.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClock(timelog.KindIn)
	},
}

var outCmd = &cobra.Command{
	Use:   "out",
	Short: "Clock out",
	Long:  `Record a clock-out at the current time. Fails if you are not clocked in.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClock(timelog.KindOut)
	},
}

// runClock loads the verified log and appends one event through the
// clock engine, which rejects out-of-sequence calls.
func runClock(kind timelog.Kind) error {
	rt, err := openApp()
	if err != nil {
		return err
	}
	defer rt.Close()

	engine, err := clock.Open(rt.store)
	if err != nil {
		return err
	}

	var ts string
	if kind == timelog.KindIn {
		ts, err = engine.ClockIn()
	} else {
		ts, err = engine.ClockOut()
	}
	if err != nil {
		return err
	}

	fmt.Printf("[timeclock] Clocked %s at %s\n", kind, ts)
	return nil
}

// ============================================================================
// timeclock status
// ============================================================================

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether you are clocked in, and the log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openApp()
		if err != nil {
			return err
		}
		defer rt.Close()

		engine, err := clock.Open(rt.store)
		if err != nil {
			return err
		}

		fmt.Printf("Log:    %s\n", rt.store.Path())
		fmt.Printf("State:  clocked %s\n", engine.State())
		fmt.Println()
		printEntries(engine.Entries())
		return nil
	},
}

// ============================================================================
// timeclock verify — Verify the hash chain
// ============================================================================

var verifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify hash chain integrity",
	Long: `Verify the integrity of the time log hash chain. Each entry's hash is
SHA-256 of its canonical fields followed by the previous entry's hash. If
any entry has been modified, the chain no longer verifies.

With no argument the configured log is checked; a missing log counts as an
empty, valid log. With a file argument that file is checked and must exist.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var verr error
		if len(args) == 1 {
			verr = timelog.VerifyFile(args[0])
		} else {
			rt, err := openApp()
			if err != nil {
				return err
			}
			defer rt.Close()
			verr = rt.store.Verify()
		}

		ok, msg := timelog.VerifyMessage(verr)
		fmt.Printf("[timeclock] %s\n", msg)
		if !ok {
			return fmt.Errorf("verification failed: %w", verr)
		}
		return nil
	},
}

// ============================================================================
// timeclock report — Rounded session report
// ============================================================================

var (
	reportOutput string
	reportFormat string
	reportDate   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a rounded quarter-hour session report",
	Long: `Pair clock-in/clock-out entries into sessions and round both ends to the
nearest quarter hour. The log is verified first; a tampered log produces no
report.

Examples:
  timeclock report
  timeclock report --format json --output january.json --date '2024-01-*'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openApp()
		if err != nil {
			return err
		}
		defer rt.Close()

		format := rt.cfg.Report.Format
		if cmd.Flags().Changed("format") {
			format = reportFormat
		}
		output := rt.cfg.Report.Output
		if cmd.Flags().Changed("output") {
			output = reportOutput
		}
		// Checked before the output file is created, so a bad format
		// never truncates an existing report.
		if err := report.CheckFormat(format); err != nil {
			return err
		}

		rows, err := report.Generate(rt.store)
		if err != nil {
			return err
		}
		rows, err = report.Filter(rows, reportDate)
		if err != nil {
			return err
		}

		if output == "" {
			return report.Write(os.Stdout, rows, format)
		}

		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating report %s: %w", output, err)
		}
		if err := report.Write(f, rows, format); err != nil {
			f.Close()
			return fmt.Errorf("writing report %s: %w", output, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing report %s: %w", output, err)
		}
		fmt.Printf("[timeclock] Wrote %d sessions to %s\n", len(rows), output)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Write the report to this file instead of stdout")
	reportCmd.Flags().StringVar(&reportFormat, "format", "csv", "Report format: csv, json")
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Only include sessions whose date matches this glob (e.g. 2024-01-*)")
}

// ============================================================================
// timeclock log — Query and reindex
// ============================================================================

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Query or reindex the time log",
	Long: `Query the time log by entry type and time range. When the index is
enabled in config.yaml, queries run against a SQLite projection of the log
that is rebuilt from the JSON file whenever they differ. The chain is always
verified before any entry is shown.`,
}

var (
	logQueryKind  string
	logQuerySince string
	logQueryUntil string
	logQueryLimit int
)

var logQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query log entries with filters",
	Long: `Query the time log with filters.

Examples:
  timeclock log query --kind in --since 2024-01-01
  timeclock log query --since 72h --limit 10`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openApp()
		if err != nil {
			return err
		}
		defer rt.Close()

		switch timelog.Kind(logQueryKind) {
		case "", timelog.KindIn, timelog.KindOut:
		default:
			return fmt.Errorf("invalid --kind %q (use in or out)", logQueryKind)
		}

		entries, err := rt.store.Query(timelog.QueryParams{
			Kind:  timelog.Kind(logQueryKind),
			Since: logQuerySince,
			Until: logQueryUntil,
			Limit: logQueryLimit,
		})
		if err != nil {
			return fmt.Errorf("log query failed: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No matching entries found.")
			return nil
		}
		printEntries(entries)
		fmt.Printf("\n%d entries found.\n", len(entries))
		return nil
	},
}

var logReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the SQLite index from the log file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openApp()
		if err != nil {
			return err
		}
		defer rt.Close()

		n, err := rt.store.Reindex()
		if err != nil {
			return err
		}
		fmt.Printf("[timeclock] Indexed %d entries\n", n)
		return nil
	},
}

func init() {
	logCmd.AddCommand(logQueryCmd)
	logCmd.AddCommand(logReindexCmd)

	logQueryCmd.Flags().StringVar(&logQueryKind, "kind", "", "Filter by entry type (in/out)")
	logQueryCmd.Flags().StringVar(&logQuerySince, "since", "", "Entries at or after a time (2024-01-02) or within a duration (8h)")
	logQueryCmd.Flags().StringVar(&logQueryUntil, "until", "", "Entries before a time (2024-01-03)")
	logQueryCmd.Flags().IntVarP(&logQueryLimit, "limit", "n", 0, "Only the most recent N entries")
}

// printEntries prints one line per entry, e.g. "In  at 2024-01-01 09:07:00".
func printEntries(entries []timelog.Entry) {
	if len(entries) == 0 {
		fmt.Println("(no entries)")
		return
	}
	for _, e := range entries {
		label := "Out"
		if e.Type == timelog.KindIn {
			label = "In"
		}
		fmt.Printf("%-3s at %s  %s\n", label, e.Time, e.Hash)
	}
}

// ============================================================================
// timeclock watch — Re-verify on change
// ============================================================================

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-verify the log whenever it changes on disk",
	Long: `Watch the time log file and verify its hash chain each time it is
written. Edits made outside timeclock are reported immediately. Runs until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openApp()
		if err != nil {
			return err
		}
		defer rt.Close()

		check := func() {
			err := rt.store.Verify()
			ok, msg := timelog.VerifyMessage(err)
			if ok {
				slog.Info("time log verified", "path", rt.store.Path())
			} else if errors.Is(err, timelog.ErrTampered) {
				slog.Error("time log tampered", "path", rt.store.Path())
			} else {
				slog.Warn("time log check failed", "path", rt.store.Path(), "error", err)
			}
			fmt.Printf("[timeclock] %s\n", msg)
		}
		check()

		configPath := filepath.Join(configDir, "config.yaml")
		w, err := config.NewWatcher(rt.store.Path(), configPath, config.WatchTargets{
			OnLogChange: check,
			OnConfigChange: func() {
				slog.Warn("config.yaml changed; restart watch to apply it")
			},
		})
		if err != nil {
			return err
		}
		defer w.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

// ============================================================================
// timeclock config — Configuration management
// ============================================================================

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and create configuration",
	Long: `Manage the timeclock configuration. The config file lives at
~/.timeclock/config.yaml and defines the log location, index toggle,
report defaults, and log level.`,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := filepath.Join(configDir, "config.yaml")
		data, err := os.ReadFile(configPath)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Printf("No config file found at %s (defaults in use)\n", configPath)
				fmt.Println("Run 'timeclock config init' to write a template.")
				return nil
			}
			return fmt.Errorf("failed to read config: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := filepath.Join(configDir, "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			fmt.Printf("Config already exists at %s\n", configPath)
			return nil
		}
		if err := os.MkdirAll(configDir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
		}
		if err := config.WriteDefault(configPath); err != nil {
			return fmt.Errorf("failed to write default config: %w", err)
		}
		fmt.Printf("[timeclock] Wrote %s\n", configPath)
		return nil
	},
}
