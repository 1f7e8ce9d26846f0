package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ynab-tools/ynab-bulk-rename/internal/commands"
	"github.com/ynab-tools/ynab-bulk-rename/internal/config"
)

// fakeYNAB is a minimal stand-in for the payee endpoints.
type fakeYNAB struct {
	mu          sync.Mutex
	payees      []map[string]string
	fetchStatus int
	requests    int
	renamed     map[string]string
}

func (f *fakeYNAB) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	if r.Header.Get("Authorization") != "Bearer test-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if f.fetchStatus != 0 {
			w.WriteHeader(f.fetchStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"payees": f.payees},
		})
	case http.MethodPatch:
		var body struct {
			Payee struct {
				Name string `json:"name"`
			} `json:"payee"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if f.renamed == nil {
			f.renamed = map[string]string{}
		}
		f.renamed[filepath.Base(r.URL.Path)] = body.Payee.Name
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeYNAB) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeYNAB) renames() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.renamed))
	for id, name := range f.renamed {
		out[id] = name
	}
	return out
}

func scenarioPayees() []map[string]string {
	return []map[string]string{
		{"id": "p1", "name": "CARTE 04/01 STORE A"},
		{"id": "p2", "name": "CARTE 05/02 STORE B"},
		{"id": "p3", "name": "RENT"},
	}
}

// startFake serves api and writes a settings file pointing at it.
func startFake(t *testing.T, api *fakeYNAB) string {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	path := filepath.Join(t.TempDir(), "settings.yaml")
	settings := fmt.Sprintf("api:\n  base_url: %s/v1\n  timeout: 5s\nretry:\n  backoff_base: 1ms\n  rate_limit_wait: 1ms\n", server.URL)
	require.NoError(t, os.WriteFile(path, []byte(settings), 0o644))
	return path
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	cmd := commands.NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestRoot_DryRunScenario(t *testing.T) {
	t.Setenv("YNAB_TOKEN", "test-token")
	api := &fakeYNAB{payees: scenarioPayees()}
	settings := startFake(t, api)

	out, _, err := execute(t, context.Background(), "budget-1", "--config", settings)

	require.NoError(t, err)
	assert.Contains(t, out, "Budget ID: budget-1")
	assert.Contains(t, out, "Mode: DRY RUN")
	assert.Contains(t, out, "CARTE 04/01 STORE A -> STORE A")
	assert.Contains(t, out, "CARTE 05/02 STORE B -> STORE B")
	assert.NotContains(t, out, "RENT")
	assert.Contains(t, out, "This was a dry run")
	assert.Equal(t, 1, api.requestCount(), "only the fetch is sent")
	assert.Empty(t, api.renames())
}

func TestRoot_LiveRun(t *testing.T) {
	t.Setenv("YNAB_TOKEN", "test-token")
	api := &fakeYNAB{payees: scenarioPayees()}
	settings := startFake(t, api)

	out, _, err := execute(t, context.Background(), "budget-1", "--config", settings, "--no-dry-run")

	require.NoError(t, err)
	assert.Contains(t, out, "Mode: ACTUAL RENAME")
	assert.Contains(t, out, "No pauses needed - 2 payees is under rate limit (199)")
	assert.Contains(t, out, "Successfully processed all 2 payees!")
	assert.Equal(t, map[string]string{"p1": "STORE A", "p2": "STORE B"}, api.renames())
}

func TestRoot_CustomPattern(t *testing.T) {
	t.Setenv("YNAB_TOKEN", "test-token")
	api := &fakeYNAB{payees: []map[string]string{
		{"id": "p1", "name": "PAYMENT 01/02 GYM"},
		{"id": "p2", "name": "CARTE 04/01 STORE A"},
	}}
	settings := startFake(t, api)

	out, _, err := execute(t, context.Background(), "budget-1", "--config", settings, "-p", `^PAYMENT \d{2}/\d{2} `, "--no-dry-run")

	require.NoError(t, err)
	assert.Contains(t, out, "PAYMENT 01/02 GYM -> GYM")
	assert.Equal(t, map[string]string{"p1": "GYM"}, api.renames())
}

func TestRoot_FetchUnauthorizedIsNotFatal(t *testing.T) {
	t.Setenv("YNAB_TOKEN", "test-token")
	api := &fakeYNAB{fetchStatus: http.StatusUnauthorized}
	settings := startFake(t, api)

	out, _, err := execute(t, context.Background(), "budget-1", "--config", settings)

	require.NoError(t, err)
	assert.Contains(t, out, "Authentication failed. Please check your YNAB_TOKEN.")
	assert.Contains(t, out, "No payees found or error occurred.")
}

func TestRoot_MissingToken(t *testing.T) {
	t.Setenv("YNAB_TOKEN", "")
	api := &fakeYNAB{payees: scenarioPayees()}
	settings := startFake(t, api)

	_, _, err := execute(t, context.Background(), "budget-1", "--config", settings)

	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingToken)
	assert.Contains(t, err.Error(), "export YNAB_TOKEN=")
	assert.Zero(t, api.requestCount(), "no network activity without a token")
}

func TestRoot_InvalidPattern(t *testing.T) {
	t.Setenv("YNAB_TOKEN", "test-token")
	api := &fakeYNAB{payees: scenarioPayees()}
	settings := startFake(t, api)

	_, _, err := execute(t, context.Background(), "budget-1", "--config", settings, "--pattern", "^CARTE (")

	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidPattern)
	assert.Zero(t, api.requestCount())
}

func TestRoot_BadSettingsFile(t *testing.T) {
	t.Setenv("YNAB_TOKEN", "test-token")

	_, _, err := execute(t, context.Background(), "budget-1", "--config", filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRoot_RequiresBudgetID(t *testing.T) {
	t.Setenv("YNAB_TOKEN", "test-token")

	_, _, err := execute(t, context.Background())
	require.Error(t, err)
}

func TestRoot_Version(t *testing.T) {
	out, _, err := execute(t, context.Background(), "--version")

	require.NoError(t, err)
	assert.Contains(t, out, "ynab-bulk-rename version 0.1.0")
}

func TestRoot_Cancelled(t *testing.T) {
	t.Setenv("YNAB_TOKEN", "test-token")
	api := &fakeYNAB{payees: scenarioPayees()}
	settings := startFake(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := execute(t, ctx, "budget-1", "--config", settings, "--no-dry-run")

	require.Error(t, err)
	assert.ErrorIs(t, err, commands.ErrCancelled)
	assert.Empty(t, api.renames())
}

func TestRoot_VerboseLogsToStderr(t *testing.T) {
	t.Setenv("YNAB_TOKEN", "test-token")
	api := &fakeYNAB{payees: scenarioPayees()}
	settings := startFake(t, api)

	out, errOut, err := execute(t, context.Background(), "budget-1", "--config", settings, "-v")

	require.NoError(t, err)
	assert.Contains(t, errOut, "payees fetched")
	assert.NotContains(t, out, "payees fetched")
}
