package config

import (
	"errors"
	"fmt"
	"regexp"
)

// TokenEnvVar names the environment variable holding the YNAB bearer token.
const TokenEnvVar = "YNAB_TOKEN"

// DefaultPattern matches card payment prefixes such as "CARTE 04/01 ".
const DefaultPattern = `^CARTE \d{2}/\d{2} `

var (
	// ErrMissingToken is returned when YNAB_TOKEN is unset or empty.
	ErrMissingToken = errors.New(TokenEnvVar + " environment variable not set")
	// ErrInvalidPattern is returned when the payee pattern does not compile.
	ErrInvalidPattern = errors.New("invalid regex pattern")
	// ErrMissingBudget is returned for an empty budget ID.
	ErrMissingBudget = errors.New("budget ID must not be empty")
)

// RunConfig is everything one rename run needs. It is built once at startup
// and not modified afterwards.
type RunConfig struct {
	BudgetID  string
	Token     string
	Pattern   *regexp.Regexp
	DryRun    bool
	SkipPause bool
}

// TokenFromEnv reads the bearer token through lookup (normally os.LookupEnv).
func TokenFromEnv(lookup func(string) (string, bool)) (string, error) {
	token, ok := lookup(TokenEnvVar)
	if !ok || token == "" {
		return "", fmt.Errorf("%w; set it with: export %s='your_token_here'", ErrMissingToken, TokenEnvVar)
	}
	return token, nil
}

// NewRunConfig validates the inputs and compiles the payee pattern.
func NewRunConfig(budgetID, token, pattern string, dryRun, skipPause bool) (*RunConfig, error) {
	if budgetID == "" {
		return nil, ErrMissingBudget
	}
	if token == "" {
		return nil, ErrMissingToken
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}
	return &RunConfig{
		BudgetID:  budgetID,
		Token:     token,
		Pattern:   re,
		DryRun:    dryRun,
		SkipPause: skipPause,
	}, nil
}
