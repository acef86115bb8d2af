package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Veraticus/saffron/internal/common"
)

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: defaultHTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// postJSON sends body to url and returns the raw response body. Failures are
// wrapped in common.RetryableError: transport errors, 429 and 5xx retry, other
// statuses do not.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any, vendor string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, common.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, common.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &common.RetryableError{Err: fmt.Errorf("request failed: %w", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &common.RetryableError{Err: fmt.Errorf("failed to read response: %w", err), Retryable: true}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return respBody, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &common.RetryableError{Err: fmt.Errorf("%s API: %w", vendor, common.ErrRateLimit), Retryable: true}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &common.RetryableError{Err: fmt.Errorf("%s API error (status %d): %s", vendor, resp.StatusCode, string(respBody)), Retryable: true}
	default:
		return nil, common.Permanent(fmt.Errorf("%s API error (status %d): %s", vendor, resp.StatusCode, string(respBody)))
	}
}
