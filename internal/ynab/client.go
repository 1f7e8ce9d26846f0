// Package ynab is a minimal client for the YNAB payee endpoints.
package ynab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ynab-tools/ynab-bulk-rename/internal/model"
)

// maxErrorBody caps how much of an error response is read for its detail.
const maxErrorBody = 64 << 10

// Client talks to the YNAB REST API with bearer-token auth. It is not safe
// for concurrent use; the rename tool drives it from a single goroutine.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	policy  RetryPolicy
	log     zerolog.Logger
	sleep   SleepFunc
	now     func() time.Time
}

// NewClient creates a Client rooted at baseURL (e.g. "https://api.ynab.com/v1").
// A nil httpClient uses http.DefaultClient.
func NewClient(baseURL, token string, httpClient *http.Client, policy RetryPolicy, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		policy:  policy,
		log:     logger.With().Str("component", "ynab").Logger(),
		sleep:   Sleep,
		now:     time.Now,
	}
}

type payeeJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type payeesResponse struct {
	Data struct {
		Payees []payeeJSON `json:"payees"`
	} `json:"data"`
}

type updatePayeeRequest struct {
	Payee struct {
		Name string `json:"name"`
	} `json:"payee"`
}

type errorResponse struct {
	Error struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Detail string `json:"detail"`
	} `json:"error"`
}

// FetchPayees returns every payee of the budget.
func (c *Client) FetchPayees(ctx context.Context, budgetID string) ([]model.Payee, error) {
	endpoint := c.baseURL + "/budgets/" + url.PathEscape(budgetID) + "/payees"

	resp, err := c.do(ctx, "fetch payees", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching payees for budget %s: %w", budgetID, err)
	}
	defer resp.Body.Close()

	var body payeesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding payees response: %w", err)
	}

	payees := make([]model.Payee, 0, len(body.Data.Payees))
	for _, p := range body.Data.Payees {
		payees = append(payees, model.Payee{ID: p.ID, Name: p.Name})
	}
	c.log.Debug().Str("budget_id", budgetID).Int("count", len(payees)).Msg("payees fetched")
	return payees, nil
}

// UpdatePayee renames a single payee. A nil error means the API accepted
// the change.
func (c *Client) UpdatePayee(ctx context.Context, budgetID, payeeID, name string) error {
	endpoint := c.baseURL + "/budgets/" + url.PathEscape(budgetID) + "/payees/" + url.PathEscape(payeeID)

	var payload updatePayeeRequest
	payload.Payee.Name = name
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payee update: %w", err)
	}

	resp, err := c.do(ctx, "update payee "+payeeID, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("updating payee %s: %w", payeeID, err)
	}
	drain(resp)
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
}

// readStatusError consumes and closes resp, returning a *StatusError that
// carries the API's error detail when the body has one.
func readStatusError(resp *http.Response) *StatusError {
	defer resp.Body.Close()
	se := &StatusError{StatusCode: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return se
	}
	var body errorResponse
	if json.Unmarshal(raw, &body) == nil && body.Error.Detail != "" {
		se.Detail = body.Error.Detail
	}
	return se
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
