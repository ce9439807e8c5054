package executor

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotdash/actionqueue/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHTTPExecutor_DryRun(t *testing.T) {
	var sawDryRunHeader bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawDryRunHeader = r.Header.Get("X-Dry-Run") == "true"

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	action := &models.Action{
		ID:   "action-1",
		Kind: models.ActionKindCXReply,
		Calls: []models.EndpointCall{
			{
				Name:     "send_reply",
				Endpoint: "/tickets/4821/reply",
				Method:   "POST",
				Payload:  map[string]any{"ticket_id": "4821", "body": "Restock lands Friday"},
			},
		},
	}

	executor := NewHTTPExecutor(server.URL, testLogger())

	err := executor.DryRun(context.Background(), action)
	require.NoError(t, err)
	assert.True(t, sawDryRunHeader)
	assert.Equal(t, models.DryRunSuccess, action.Calls[0].DryRunStatus)
}

func TestHTTPExecutor_DryRunSchemaRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	action := &models.Action{
		ID:   "action-2",
		Kind: models.ActionKindPricing,
		Calls: []models.EndpointCall{
			// Missing the required price field.
			{
				Name:     "update_price",
				Endpoint: "/products/42/price",
				Method:   "PUT",
				Payload:  map[string]any{"product_id": "42"},
			},
		},
	}

	executor := NewHTTPExecutor(server.URL, testLogger())

	err := executor.DryRun(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, models.DryRunFailed, action.Calls[0].DryRunStatus)
}

func TestHTTPExecutor_DryRunServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	action := &models.Action{
		ID:   "action-3",
		Kind: models.ActionKindGrowth,
		Calls: []models.EndpointCall{
			{Name: "launch", Endpoint: "/campaigns", Method: "POST", Payload: map[string]any{"name": "spring"}},
		},
	}

	executor := NewHTTPExecutor(server.URL, testLogger())

	err := executor.DryRun(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, models.DryRunFailed, action.Calls[0].DryRunStatus)
}

func TestHTTPExecutor_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-Dry-Run"))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	action := &models.Action{
		ID:   "action-4",
		Kind: models.ActionKindInventory,
		Calls: []models.EndpointCall{
			{
				Name:     "restock",
				Endpoint: "/inventory/sku-9",
				Method:   "POST",
				Payload:  map[string]any{"sku": "sku-9", "quantity": 12},
			},
		},
	}

	executor := NewHTTPExecutor(server.URL, testLogger())

	receipts, err := executor.Execute(context.Background(), action)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, "restock", receipts[0].CallName)
	assert.Equal(t, http.StatusCreated, receipts[0].StatusCode)
	assert.Contains(t, receipts[0].Response, "ok")
	assert.False(t, receipts[0].ExecutedAt.IsZero())
}

func TestHTTPExecutor_ExecuteStopsAtFirstFailure(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++

		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	action := &models.Action{
		ID:   "action-5",
		Kind: models.ActionKindMisc,
		Calls: []models.EndpointCall{
			{Name: "first", Endpoint: "/a", Method: "POST", Payload: map[string]any{}},
			{Name: "second", Endpoint: "/b", Method: "POST", Payload: map[string]any{}},
		},
	}

	executor := NewHTTPExecutor(server.URL, testLogger())

	receipts, err := executor.Execute(context.Background(), action)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	require.Len(t, receipts, 1)
	assert.Equal(t, "first", receipts[0].CallName)
}
