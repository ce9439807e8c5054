package attribution

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hotdash/actionqueue/pkg/models"
)

// Client is the analytics collaborator contract: one revenue-delta lookup
// per key and window.
type Client interface {
	QueryConversionsByKey(ctx context.Context, key string, window models.AttributionWindow) (float64, error)
}

// HTTPClient queries the internal analytics endpoint.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		// Per-query deadlines come from the caller's context; this timeout
		// is only a backstop against a hung connection.
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type conversionsResponse struct {
	RevenueDelta float64 `json:"revenue_delta"`
}

func (c *HTTPClient) QueryConversionsByKey(ctx context.Context, key string, window models.AttributionWindow) (float64, error) {
	query := url.Values{}
	query.Set("key", key)
	query.Set("window", string(window))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/conversions?"+query.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create conversions request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("conversions query failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("conversions query returned status %d", resp.StatusCode)
	}

	var payload conversionsResponse

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("failed to decode conversions response: %w", err)
	}

	return payload.RevenueDelta, nil
}
