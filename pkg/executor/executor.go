// Package executor performs an Action's endpoint calls, first as simulated
// dry runs and then, after approval, for real.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hotdash/actionqueue/pkg/models"
)

// Executor runs an Action's endpoint calls.
type Executor interface {
	// DryRun simulates every call and records the outcome on each call's
	// DryRunStatus. Nothing is persisted; the caller saves the Action.
	DryRun(ctx context.Context, action *models.Action) error

	// Execute performs the calls for real and returns one receipt per call.
	// Execution stops at the first failing call so the rollback plan starts
	// from a known prefix.
	Execute(ctx context.Context, action *models.Action) ([]models.Receipt, error)
}

// HTTPExecutor performs endpoint calls against a base URL, typically the
// internal Shopify-admin proxy.
type HTTPExecutor struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPExecutor(baseURL string, logger *slog.Logger) *HTTPExecutor {
	return &HTTPExecutor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("module", "executor"),
	}
}

// validateCall checks one call's payload against the kind's schema.
func validateCall(kind models.ActionKind, call models.EndpointCall) error {
	payload := call.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schemaFor(kind)),
		gojsonschema.NewGoLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to validate call %q: %w", call.Name, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			details = append(details, resultErr.String())
		}

		return fmt.Errorf("call %q payload rejected: %s", call.Name, strings.Join(details, "; "))
	}

	return nil
}

func (e *HTTPExecutor) DryRun(ctx context.Context, action *models.Action) error {
	for i := range action.Calls {
		call := &action.Calls[i]

		if err := validateCall(action.Kind, *call); err != nil {
			call.DryRunStatus = models.DryRunFailed

			e.logger.WarnContext(ctx, "dry run rejected call",
				"action_id", action.ID, "call", call.Name, "error", err)

			continue
		}

		statusCode, _, err := e.do(ctx, *call, true)
		if err != nil || statusCode >= http.StatusBadRequest {
			call.DryRunStatus = models.DryRunFailed

			e.logger.WarnContext(ctx, "dry run failed",
				"action_id", action.ID, "call", call.Name, "status", statusCode, "error", err)

			continue
		}

		call.DryRunStatus = models.DryRunSuccess
	}

	return nil
}

func (e *HTTPExecutor) Execute(ctx context.Context, action *models.Action) ([]models.Receipt, error) {
	receipts := make([]models.Receipt, 0, len(action.Calls))

	for _, call := range action.Calls {
		if err := validateCall(action.Kind, call); err != nil {
			return receipts, err
		}

		statusCode, body, err := e.do(ctx, call, false)
		if err != nil {
			return receipts, fmt.Errorf("failed to execute call %q: %w", call.Name, err)
		}

		receipts = append(receipts, models.Receipt{
			CallName:   call.Name,
			StatusCode: statusCode,
			Response:   body,
			ExecutedAt: time.Now().UTC(),
		})

		if statusCode >= http.StatusBadRequest {
			return receipts, fmt.Errorf("call %q returned status %d", call.Name, statusCode)
		}
	}

	return receipts, nil
}

// do performs one call. Dry runs advertise themselves through a header so
// the receiving endpoint can validate without committing.
func (e *HTTPExecutor) do(ctx context.Context, call models.EndpointCall, dryRun bool) (int, string, error) {
	method := strings.ToUpper(call.Method)
	if method == "" {
		method = http.MethodPost
	}

	var bodyReader io.Reader

	if call.Payload != nil {
		payload, err := json.Marshal(call.Payload)
		if err != nil {
			return 0, "", fmt.Errorf("failed to marshal payload for call %q: %w", call.Name, err)
		}

		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+call.Endpoint, bodyReader)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request for call %q: %w", call.Name, err)
	}

	req.Header.Set("Content-Type", "application/json")

	if dryRun {
		req.Header.Set("X-Dry-Run", "true")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("request for call %q failed: %w", call.Name, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			e.logger.Error("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("failed to read response for call %q: %w", call.Name, err)
	}

	return resp.StatusCode, string(body), nil
}
