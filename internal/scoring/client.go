// Package scoring proxies email descriptions to an external scoring model.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Client struct {
	URL     string
	HTTP    *http.Client
	Retries int
}

func NewClient(url string, retries int) *Client {
	return &Client{
		URL:     url,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Retries: retries,
	}
}

type predictRequest struct {
	EmailDescription string `json:"email_description"`
}

// Predict posts the description and returns the scorer's JSON reply as-is.
// Connection errors and 5xx replies are retried with exponential backoff;
// other non-2xx replies fail immediately.
func (c *Client) Predict(ctx context.Context, description string) (json.RawMessage, error) {
	payload, err := json.Marshal(predictRequest{EmailDescription: description})
	if err != nil {
		return nil, err
	}

	var out json.RawMessage
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("scoring service returned %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return backoff.Permanent(fmt.Errorf("scoring service returned %d", resp.StatusCode))
		}
		if !json.Valid(body) {
			return backoff.Permanent(fmt.Errorf("scoring service returned invalid JSON"))
		}

		out = body
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond

	retries := c.Retries
	if retries < 0 {
		retries = 0
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)); err != nil {
		return nil, fmt.Errorf("predict score: %w", err)
	}

	return out, nil
}
