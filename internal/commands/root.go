package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ynab-tools/ynab-bulk-rename/internal/buildinfo"
	"github.com/ynab-tools/ynab-bulk-rename/internal/config"
	"github.com/ynab-tools/ynab-bulk-rename/internal/rename"
	"github.com/ynab-tools/ynab-bulk-rename/internal/ynab"
)

// ErrCancelled is returned when the operator interrupts a run.
var ErrCancelled = errors.New("operation cancelled by user")

type rootOptions struct {
	pattern    string
	noDryRun   bool
	skipPause  bool
	configPath string
	verbose    bool
}

// NewRootCommand creates the ynab-bulk-rename command.
func NewRootCommand() *cobra.Command {
	var opts rootOptions

	rootCmd := &cobra.Command{
		Use:   "ynab-bulk-rename <budget-id>",
		Short: "Bulk rename YNAB payees that match a specific pattern",
		Long: `Bulk rename YNAB payees whose names start with a pattern, removing the
matched prefix. Runs are dry by default; pass --no-dry-run to apply changes.

The API token is read from the YNAB_TOKEN environment variable.`,
		Example: `  # Dry run with default pattern
  ynab-bulk-rename fedd1ee2-8048-4e69-95e5-cf2cab422dc5

  # Actually rename payees
  ynab-bulk-rename fedd1ee2-8048-4e69-95e5-cf2cab422dc5 --no-dry-run

  # Custom pattern
  ynab-bulk-rename fedd1ee2-8048-4e69-95e5-cf2cab422dc5 --pattern "^PAYMENT \d{2}/\d{2} "`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		Args:    cobra.ExactArgs(1),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRename(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.pattern, "pattern", "p", config.DefaultPattern, "regex pattern to match payees")
	flags.BoolVar(&opts.noDryRun, "no-dry-run", false, "actually perform the rename operations (default: dry run only)")
	flags.BoolVar(&opts.skipPause, "skip-pause", false, "skip the pause between API calls that keeps large runs within the rate limit")
	flags.StringVar(&opts.configPath, "config", "", "optional YAML settings file (API URL, retries, pacing)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	return rootCmd
}

func runRename(ctx context.Context, stdout, stderr io.Writer, budgetID string, opts rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Configuration errors are fatal before any network call.
	token, err := config.TokenFromEnv(os.LookupEnv)
	if err != nil {
		return err
	}

	settings := config.Default()
	if opts.configPath != "" {
		settings, err = config.Load(opts.configPath)
		if err != nil {
			return err
		}
	}

	rc, err := config.NewRunConfig(budgetID, token, opts.pattern, !opts.noDryRun, opts.skipPause)
	if err != nil {
		return err
	}

	logger := newLogger(stderr, opts.verbose)

	policy := ynab.RetryPolicy{
		MaxAttempts:   settings.Retry.MaxAttempts,
		RateLimitWait: settings.Retry.RateLimitWait,
		BackoffBase:   settings.Retry.BackoffBase,
	}
	client := ynab.NewClient(settings.API.BaseURL, token, &http.Client{Timeout: settings.API.Timeout}, policy, logger)
	agent := rename.NewAgent(rc, settings.Pacing, client, stdout, logger)

	mode := "DRY RUN"
	if !rc.DryRun {
		mode = "ACTUAL RENAME"
	}
	fmt.Fprintf(stdout, "Budget ID: %s\n", rc.BudgetID)
	fmt.Fprintf(stdout, "Pattern: %s\n", rc.Pattern)
	fmt.Fprintf(stdout, "Mode: %s\n", mode)
	fmt.Fprintln(stdout, strings.Repeat("-", 50))

	if _, err := agent.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return ErrCancelled
		}
		return fmt.Errorf("rename run: %w", err)
	}
	return nil
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: true}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
