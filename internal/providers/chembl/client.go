// Package chembl implements a REST client for the ChEMBL web services,
// covering molecule lookup by ChEMBL ID and 2D similarity search.
package chembl

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/ChemScreen/internal/config"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

const userAgent = "chemscreen/0.1.0"

// Client talks to the ChEMBL data API. All responses are JSON; paths are
// rooted at the configured base URL, e.g. https://www.ebi.ac.uk/chembl/api/data.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	logger       logging.Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// NewClient builds a ChEMBL client from provider configuration.
func NewClient(cfg config.ProviderConfig, logger logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "chembl base URL is required")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, errors.New(errors.ErrCodeValidation, "chembl base URL must be http or https")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = config.DefaultProviderTimeout
	}
	waitMin := cfg.RetryWaitMin
	if waitMin <= 0 {
		waitMin = 500 * time.Millisecond
	}
	waitMax := cfg.RetryWaitMax
	if waitMax <= 0 {
		waitMax = 5 * time.Second
	}

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger.Named("chembl"),
		retryMax:     cfg.MaxRetries,
		retryWaitMin: waitMin,
		retryWaitMax: waitMax,
	}, nil
}

// get performs one GET with retry, exponential backoff with jitter, and
// Retry-After handling, then decodes the JSON body into result.
func (c *Client) get(ctx context.Context, path string, query url.Values, result interface{}) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var lastErr error
	skipBackoff := false
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 && !skipBackoff {
			backoff := c.backoff(attempt)
			c.logger.Debug("retrying chembl request",
				logging.Int("attempt", attempt),
				logging.Duration("backoff", backoff),
				logging.String("path", path))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return wrapContextErr(ctx.Err(), path)
			}
		}
		skipBackoff = false

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "build chembl request")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return wrapContextErr(ctx.Err(), path)
			}
			lastErr = errors.Wrap(err, errors.ErrCodeProviderUnavailable, "chembl request failed").
				WithDetailf("path=%s", path)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.logger.Debug("chembl response",
			logging.String("path", path),
			logging.Int("status", resp.StatusCode),
			logging.Duration("elapsed", time.Since(start)))
		if readErr != nil {
			lastErr = errors.Wrap(readErr, errors.ErrCodeProviderBadResponse, "read chembl response")
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return errors.New(errors.ErrCodeProviderNotFound, "chembl resource not found").
				WithDetailf("path=%s", path)
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = errors.New(errors.ErrCodeProviderRateLimited, "chembl rate limited").
				WithDetailf("path=%s", path)
			if wait, ok := retryAfter(resp); ok && attempt < c.retryMax {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return wrapContextErr(ctx.Err(), path)
				}
				// The server already told us how long to hold off.
				skipBackoff = true
			}
			continue
		case resp.StatusCode >= 500:
			lastErr = errors.Newf(errors.ErrCodeProviderUnavailable, "chembl returned HTTP %d", resp.StatusCode).
				WithDetailf("path=%s", path)
			continue
		case resp.StatusCode >= 400:
			return errors.Newf(errors.ErrCodeProviderBadResponse, "chembl rejected request with HTTP %d", resp.StatusCode).
				WithDetailf("path=%s", path).
				WithDetailf("body=%s", truncate(string(body), 256))
		}

		if result != nil {
			if err := json.Unmarshal(body, result); err != nil {
				return errors.Wrap(err, errors.ErrCodeProviderBadResponse, "decode chembl response").
					WithDetailf("path=%s", path)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New(errors.ErrCodeProviderUnavailable, "chembl request exhausted retries").
			WithDetailf("path=%s", path)
	}
	return lastErr
}

func (c *Client) backoff(attempt int) time.Duration {
	backoff := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if backoff > c.retryWaitMax {
		backoff = c.retryWaitMax
	}
	jitter := time.Duration(rand.Int63n(int64(backoff/4) + 1))
	return backoff + jitter
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func wrapContextErr(err error, path string) error {
	if err == context.DeadlineExceeded {
		return errors.Wrap(err, errors.ErrCodeProviderTimeout, "chembl request timed out").
			WithDetailf("path=%s", path)
	}
	return errors.Wrap(err, errors.ErrCodeProviderUnavailable, "chembl request canceled").
		WithDetailf("path=%s", path)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
