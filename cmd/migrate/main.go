package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"wachannel/internal/config"
	"wachannel/internal/migrate"
)

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func main() {
	// Load .env file (ignore error if not present)
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s%v%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dir string

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply and roll back chat_logs schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dir, "dir", "migrations", "directory holding NNN_name.sql files")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRunner(cmd, dir, runUp)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last applied migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRunner(cmd, dir, runDown)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show which migrations are applied",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRunner(cmd, dir, showStatus)
			},
		},
	)

	return root
}

type action func(ctx context.Context, out io.Writer, runner *migrate.Runner, migrations []migrate.Migration) error

func withRunner(cmd *cobra.Command, dir string, run action) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	dbCfg, err := config.LoadDatabase()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	migrations, err := migrate.Load(dir)
	if err != nil {
		return err
	}
	if len(migrations) == 0 {
		printColor(out, colorYellow, fmt.Sprintf("No migration files found in %s/", dir))
		return nil
	}

	printColor(out, colorCyan, "Connecting to database...")
	db, err := sql.Open("postgres", dbCfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	runner := migrate.NewRunner(db)
	if err := runner.EnsureTable(ctx); err != nil {
		return err
	}

	return run(ctx, out, runner, migrations)
}

func runUp(ctx context.Context, out io.Writer, runner *migrate.Runner, migrations []migrate.Migration) error {
	ran, err := runner.Up(ctx, migrations)
	for _, m := range ran {
		printColor(out, colorGreen, fmt.Sprintf("  ✓ Migration %03d_%s applied", m.Version, m.Name))
	}
	if err != nil {
		return err
	}

	if len(ran) == 0 {
		printColor(out, colorGreen, "✓ All migrations are up to date")
		return nil
	}
	printColor(out, colorGreen, fmt.Sprintf("✓ Successfully applied %d migration(s)", len(ran)))
	return nil
}

func runDown(ctx context.Context, out io.Writer, runner *migrate.Runner, migrations []migrate.Migration) error {
	m, err := runner.Down(ctx, migrations)
	if err != nil {
		return err
	}
	if m == nil {
		printColor(out, colorYellow, "No migrations to roll back")
		return nil
	}

	printColor(out, colorGreen, fmt.Sprintf("✓ Rolled back migration %03d_%s", m.Version, m.Name))
	return nil
}

func showStatus(ctx context.Context, out io.Writer, runner *migrate.Runner, migrations []migrate.Migration) error {
	status, err := runner.Status(ctx, migrations)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s%-10s %-40s %-12s %-20s%s\n", colorBold, "VERSION", "NAME", "STATUS", "APPLIED AT", colorReset)
	fmt.Fprintln(out, strings.Repeat("-", 85))

	applied := 0
	for _, m := range status {
		state, stateColor, at := "pending", colorYellow, "-"
		if m.Applied {
			applied++
			state, stateColor = "applied", colorGreen
			if m.AppliedAt != nil {
				at = m.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10s %-40s %s%-12s%s %-20s\n", fmt.Sprintf("%03d", m.Version), m.Name, stateColor, state, colorReset, at)
	}

	fmt.Fprintln(out, strings.Repeat("-", 85))
	printColor(out, colorCyan, fmt.Sprintf("Summary: %d/%d migrations applied", applied, len(status)))
	return nil
}

func printColor(out io.Writer, color, msg string) {
	fmt.Fprintf(out, "%s%s%s\n", color, msg, colorReset)
}
