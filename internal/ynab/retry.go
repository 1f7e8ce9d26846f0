package ynab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"
)

// RetryPolicy is shared by every API call. Attempts are counted across both
// rate-limit and transport retries.
type RetryPolicy struct {
	MaxAttempts   int
	RateLimitWait time.Duration // used when a 429 carries no usable Retry-After
	BackoffBase   time.Duration // transport retries wait BackoffBase * 2^attempt
}

// DefaultRetryPolicy allows 3 attempts, waits 60s on a bare 429 and backs
// off 1s, 2s, 4s on transport errors.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		RateLimitWait: 60 * time.Second,
		BackoffBase:   time.Second,
	}
}

// Backoff returns the wait after a transport error on the given 0-based attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BackoffBase << attempt
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryAfter parses a Retry-After header given as delay-seconds or an
// HTTP-date, falling back to def.
func retryAfter(h http.Header, now time.Time, def time.Duration) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return def
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return def
}

type transportKind int

const (
	transportOther transportKind = iota
	transportConnection
	transportTimeout
)

func classifyTransport(err error) transportKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return transportTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return transportTimeout
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr):
		return transportConnection
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return transportConnection
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return transportConnection
	}
	return transportOther
}

// do sends the request built by newReq under the retry policy. On success
// the caller owns the response body. desc names the call in log lines.
func (c *Client) do(ctx context.Context, desc string, newReq func(context.Context) (*http.Request, error)) (*http.Response, error) {
	p := c.policy
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		last := attempt == p.MaxAttempts-1

		req, err := newReq(ctx)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			kind := classifyTransport(err)
			if kind == transportOther {
				return nil, err
			}
			sentinel := ErrConnection
			if kind == transportTimeout {
				sentinel = ErrTimeout
			}
			c.log.Warn().
				Str("call", desc).
				Int("attempt", attempt+1).
				Int("max_attempts", p.MaxAttempts).
				Err(err).
				Msg(sentinel.Error())
			if last {
				return nil, fmt.Errorf("%w after %d attempts: %w", sentinel, p.MaxAttempts, err)
			}
			if err := c.sleep(ctx, p.Backoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp.Header, c.now(), p.RateLimitWait)
			statusErr := readStatusError(resp)
			if last {
				c.log.Error().Str("call", desc).Int("attempts", p.MaxAttempts).Msg("rate limit exceeded, maximum retries reached")
				return nil, statusErr
			}
			c.log.Warn().Str("call", desc).Dur("wait", wait).Msgf("rate limit exceeded, waiting %s", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			statusErr := readStatusError(resp)
			c.log.Debug().Str("call", desc).Int("status", resp.StatusCode).Msg("request failed")
			return nil, statusErr
		}

		c.log.Debug().Str("call", desc).Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("request succeeded")
		return resp, nil
	}
	return nil, fmt.Errorf("%s: no attempts allowed by retry policy", desc)
}
