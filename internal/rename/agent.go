package rename

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/ynab-tools/ynab-bulk-rename/internal/config"
	"github.com/ynab-tools/ynab-bulk-rename/internal/model"
	"github.com/ynab-tools/ynab-bulk-rename/internal/ynab"
)

// PayeeClient is the subset of the YNAB API the agent uses.
type PayeeClient interface {
	FetchPayees(ctx context.Context, budgetID string) ([]model.Payee, error)
	UpdatePayee(ctx context.Context, budgetID, payeeID, name string) error
}

// Summary describes the outcome of one run.
type Summary struct {
	Matched   int
	Attempted int
	Succeeded int
	Pauses    int
	DryRun    bool
	Aborted   bool // stopped early after too many consecutive failures
}

// Failed returns the number of attempted updates that did not succeed.
func (s Summary) Failed() int {
	return s.Attempted - s.Succeeded
}

// Agent runs fetch, filter and rename for a single budget. Progress is
// written to out for the operator; diagnostics go to the logger.
type Agent struct {
	cfg    *config.RunConfig
	pacing config.PacingSettings
	client PayeeClient
	out    io.Writer
	log    zerolog.Logger
	sleep  ynab.SleepFunc
}

// NewAgent creates an Agent.
func NewAgent(cfg *config.RunConfig, pacing config.PacingSettings, client PayeeClient, out io.Writer, logger zerolog.Logger) *Agent {
	return &Agent{
		cfg:    cfg,
		pacing: pacing,
		client: client,
		out:    out,
		log:    logger.With().Str("component", "rename").Logger(),
		sleep:  ynab.Sleep,
	}
}

// Run performs one rename pass. Fetch failures and per-payee failures are
// reported to out and reflected in the Summary; the returned error is
// non-nil only when ctx is cancelled.
func (a *Agent) Run(ctx context.Context) (Summary, error) {
	summary := Summary{DryRun: a.cfg.DryRun}

	a.printf("Fetching payees...\n")
	payees, err := a.client.FetchPayees(ctx, a.cfg.BudgetID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return summary, ctxErr
		}
		a.log.Debug().Err(err).Msg("fetch failed")
		a.printf("%s\n", describeFetchError(err, a.cfg.BudgetID))
	}
	if len(payees) == 0 {
		a.printf("No payees found or error occurred.\n")
		return summary, nil
	}

	ops := Plan(payees, a.cfg.Pattern)
	summary.Matched = len(ops)
	a.log.Debug().Int("payees", len(payees)).Int("matched", len(ops)).Msg("payees filtered")
	if len(ops) == 0 {
		a.printf("No payees found matching the pattern: %s\n", a.cfg.Pattern)
		return summary, nil
	}

	a.printf("Found %d payees matching the pattern:\n", len(ops))

	if a.cfg.DryRun {
		for _, op := range ops {
			a.printf("  - %s -> %s\n", op.Payee.Name, op.NewName)
		}
		a.printf("\nThis was a dry run. To actually rename the payees, add --no-dry-run\n")
		return summary, nil
	}

	return a.apply(ctx, ops, summary)
}

func (a *Agent) apply(ctx context.Context, ops []model.RenameOp, summary Summary) (Summary, error) {
	shouldPause := !a.cfg.SkipPause && len(ops) >= a.pacing.PauseThreshold()
	a.printPacingNotice(len(ops))

	breaker := a.newBreaker()
	for i, op := range ops {
		a.printf("  - %s -> %s\n", op.Payee.Name, op.NewName)

		summary.Attempted++
		_, err := breaker.Execute(func() (interface{}, error) {
			return nil, a.client.UpdatePayee(ctx, a.cfg.BudgetID, op.Payee.ID, op.NewName)
		})
		if err == nil {
			summary.Succeeded++
			a.printf("    renamed payee to: %s\n", op.NewName)
		} else {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			a.printf("    %s\n", describeUpdateError(err, op))
			if breaker.State() == gobreaker.StateOpen {
				summary.Aborted = true
				a.printf("Stopping after %d consecutive failures.\n", a.pacing.MaxConsecutiveFailures)
				a.printf("   Successfully renamed %d out of %d payees.\n", summary.Succeeded, summary.Attempted)
				a.printf("   This might be due to rate limiting or API issues.\n")
				return summary, nil
			}
		}

		if shouldPause && i < len(ops)-1 {
			a.printf("    Pausing for %s... (%d/%d completed)\n", a.pacing.Pause, i+1, len(ops))
			if err := a.sleep(ctx, a.pacing.Pause); err != nil {
				return summary, err
			}
			summary.Pauses++
		}
	}

	if summary.Succeeded == summary.Matched {
		a.printf("\nSuccessfully processed all %d payees!\n", summary.Succeeded)
	} else {
		a.printf("\nProcessed %d out of %d payees.\n", summary.Succeeded, summary.Matched)
		a.printf("   %d failed due to errors.\n", summary.Failed())
		a.printf("   Check the error messages above for details.\n")
	}
	a.log.Debug().
		Int("matched", summary.Matched).
		Int("succeeded", summary.Succeeded).
		Int("pauses", summary.Pauses).
		Msg("rename run finished")
	return summary, nil
}

// newBreaker trips after MaxConsecutiveFailures failed updates in a row; a
// success resets the count.
func (a *Agent) newBreaker() *gobreaker.CircuitBreaker {
	limit := uint32(a.pacing.MaxConsecutiveFailures)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payee-updates",
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= limit
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("update breaker state changed")
		},
	})
}

func (a *Agent) printPacingNotice(matched int) {
	switch {
	case a.cfg.SkipPause:
		a.printf("Skipping pauses between API calls (--skip-pause enabled)\n")
		a.printf("Warning: this may exceed the API rate limit if you have many payees!\n")
		a.log.Warn().Int("matched", matched).Int("hourly_quota", a.pacing.HourlyQuota).Msg("pacing disabled, quota may be exceeded")
	case matched < a.pacing.PauseThreshold():
		a.printf("No pauses needed - %d payees is under rate limit (%d)\n", matched, a.pacing.PauseThreshold())
	default:
		eta := time.Duration(matched-1) * a.pacing.Pause
		a.printf("YNAB API rate limit: %d requests/hour\n", a.pacing.HourlyQuota)
		a.printf("Estimated completion time: ~%dm %ds\n", int(eta/time.Minute), int(eta%time.Minute/time.Second))
		a.printf("    (%s pause between each rename to stay within limits)\n", a.pacing.Pause)
	}
	a.printf("\n")
}

func (a *Agent) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func describeFetchError(err error, budgetID string) string {
	switch {
	case errors.Is(err, ynab.ErrUnauthorized):
		return "Authentication failed. Please check your " + config.TokenEnvVar + "."
	case errors.Is(err, ynab.ErrForbidden):
		return "Access forbidden. Please check your token permissions."
	case errors.Is(err, ynab.ErrNotFound):
		return "Budget not found. Please check your budget ID: " + budgetID
	case errors.Is(err, ynab.ErrRateLimited):
		return "Rate limit exceeded. Maximum retries reached."
	case errors.Is(err, ynab.ErrConnection):
		return "Connection failed after all retries."
	case errors.Is(err, ynab.ErrTimeout):
		return "Request timed out after all retries."
	default:
		return fmt.Sprintf("Error fetching payees: %v", err)
	}
}

func describeUpdateError(err error, op model.RenameOp) string {
	id := op.Payee.ID
	switch {
	case errors.Is(err, ynab.ErrBadRequest):
		return fmt.Sprintf("Bad request for payee %s. Check payee name: '%s'", id, op.NewName)
	case errors.Is(err, ynab.ErrUnauthorized):
		return "Authentication failed. Please check your " + config.TokenEnvVar + "."
	case errors.Is(err, ynab.ErrForbidden):
		return "Access forbidden. Please check your token permissions."
	case errors.Is(err, ynab.ErrNotFound):
		return "Payee not found: " + id
	case errors.Is(err, ynab.ErrRateLimited):
		return fmt.Sprintf("Rate limit exceeded for payee %s. Maximum retries reached.", id)
	case errors.Is(err, ynab.ErrConnection):
		return fmt.Sprintf("Connection failed for payee %s after all retries.", id)
	case errors.Is(err, ynab.ErrTimeout):
		return fmt.Sprintf("Request timed out for payee %s after all retries.", id)
	}
	if code := ynab.StatusCode(err); code != 0 {
		return fmt.Sprintf("Error updating payee %s (HTTP %d): %v", id, code, err)
	}
	return fmt.Sprintf("Error updating payee %s: %v", id, err)
}
