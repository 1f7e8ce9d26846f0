package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the public YNAB API root.
const DefaultBaseURL = "https://api.ynab.com/v1"

// Settings represents the optional YAML settings file. Every key has a
// default, so an empty or partial file is valid.
type Settings struct {
	API    APISettings    `yaml:"api"`
	Retry  RetrySettings  `yaml:"retry"`
	Pacing PacingSettings `yaml:"pacing"`
}

// APISettings locates the remote API.
type APISettings struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RetrySettings controls per-request retries.
type RetrySettings struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	RateLimitWait time.Duration `yaml:"rate_limit_wait"` // used when a 429 has no Retry-After
	BackoffBase   time.Duration `yaml:"backoff_base"`
}

// PacingSettings controls the pause between updates and the abort threshold.
type PacingSettings struct {
	HourlyQuota            int           `yaml:"hourly_quota"`
	Pause                  time.Duration `yaml:"pause"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
}

// PauseThreshold is the match count at which pacing kicks in. One request of
// the hourly quota is spent on the initial fetch.
func (p PacingSettings) PauseThreshold() int {
	return p.HourlyQuota - 1
}

// Default returns Settings matching the published YNAB limits.
func Default() *Settings {
	return &Settings{
		API: APISettings{
			BaseURL: DefaultBaseURL,
			Timeout: 30 * time.Second,
		},
		Retry: RetrySettings{
			MaxAttempts:   3,
			RateLimitWait: 60 * time.Second,
			BackoffBase:   time.Second,
		},
		Pacing: PacingSettings{
			HourlyQuota:            200,
			Pause:                  20 * time.Second,
			MaxConsecutiveFailures: 5,
		},
	}
}

// Load reads a settings file on top of the defaults and validates the result.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return s, nil
}

// Validate checks that every value is usable.
func (s *Settings) Validate() error {
	var errs []error
	if s.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url must not be empty"))
	}
	if s.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}
	if s.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if s.Retry.RateLimitWait < 0 {
		errs = append(errs, errors.New("retry.rate_limit_wait must not be negative"))
	}
	if s.Retry.BackoffBase < 0 {
		errs = append(errs, errors.New("retry.backoff_base must not be negative"))
	}
	if s.Pacing.HourlyQuota < 2 {
		errs = append(errs, errors.New("pacing.hourly_quota must be at least 2"))
	}
	if s.Pacing.Pause < 0 {
		errs = append(errs, errors.New("pacing.pause must not be negative"))
	}
	if s.Pacing.MaxConsecutiveFailures < 1 {
		errs = append(errs, errors.New("pacing.max_consecutive_failures must be at least 1"))
	}
	return errors.Join(errs...)
}
