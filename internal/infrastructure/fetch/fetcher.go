package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dchistyakov/image-insight/internal/core/domain"
)

// Client retrieves raw image bytes from caller-supplied URLs. It never
// interprets the payload; decoding is downstream's job.
type Client struct {
	httpClient *http.Client
	maxBytes   int64
}

func New(timeout time.Duration, maxBytes int64) *Client {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
	}
}

func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrFetch, "build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrFetch, "fetch image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.WrapError(domain.ErrFetch, "fetch image", fmt.Errorf("status %s", resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, domain.WrapError(domain.ErrFetch, "read body", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, domain.WrapError(domain.ErrFetch, "read body", fmt.Errorf("response exceeds %d bytes", c.maxBytes))
	}
	return data, nil
}
