// Package partner implements the outbound dispatch client: a plain HTTP
// client wrapped by a resilience decorator (bulkhead, retry, circuit
// breaker). The per-request timeout lives on the HTTP client itself.
package partner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/relaypoint/partner-hub/internal/application"
	"github.com/relaypoint/partner-hub/internal/config"
	"github.com/relaypoint/partner-hub/internal/contracts"
)

type HTTPPartnerClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(cfg config.PartnerConfig) *HTTPPartnerClient {
	return &HTTPPartnerClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.ConnTimeout,
		},
	}
}

var _ application.PartnerClient = (*HTTPPartnerClient)(nil)

// Send performs one outbound call. A reachable partner always yields a
// well-formed response regardless of status code; only transport-level
// problems come back as an error.
func (c *HTTPPartnerClient) Send(ctx context.Context, cmd contracts.DispatchToPartner) (*application.PartnerResponse, error) {
	url := cmd.Endpoint
	if !strings.HasPrefix(url, "http") {
		url = c.baseURL + cmd.Endpoint
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(cmd.Payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Correlation-Id", cmd.CorrelationID.String())

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error calling partner %s: %w", cmd.PartnerCode, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading partner response after %s: %w", time.Since(start), err)
	}

	return &application.PartnerResponse{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Body:       body,
		Attempts:   1,
	}, nil
}
