package tfl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/accidents-etl/internal/domain"
)

// Client fetches yearly accident records from the TfL AccidentStats API.
// It implements pipeline.Fetcher.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a client for baseURL. Requests are paced to ratePerSec and
// each one is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration, ratePerSec float64, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		logger:  logger,
	}
}

// Fetch returns every record for year. A failed request or a non-2xx response
// is logged and yields an empty slice so the caller can move on to the next
// year; only context cancellation is returned as an error.
func (c *Client) Fetch(ctx context.Context, year int) ([]domain.AccidentRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	records, err := c.fetch(ctx, year)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("fetch failed, skipping year", "year", year, "error", err)
		return nil, nil
	}
	return records, nil
}

func (c *Client) fetch(ctx context.Context, year int) ([]domain.AccidentRecord, error) {
	u := c.baseURL + "/" + strconv.Itoa(year)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("accident stats request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("accident stats API error: status %d: %s", resp.StatusCode, body)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var records []domain.AccidentRecord
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return records, nil
}
