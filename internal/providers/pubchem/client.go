// Package pubchem implements a client for the PubChem PUG REST API: CID
// resolution, compound property lookup, 2D similarity search, and PNG
// depiction rendering.
package pubchem

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

// Client talks to PUG REST. The base URL points at the /rest/pug root,
// e.g. https://pubchem.ncbi.nlm.nih.gov/rest/pug. PubChem enforces a 30
// second server-side limit per request, which the default request timeout
// mirrors.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	logger       logging.Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// fault is the PUG REST error envelope.
type fault struct {
	Fault struct {
		Code    string   `json:"Code"`
		Message string   `json:"Message"`
		Details []string `json:"Details"`
	} `json:"Fault"`
}

// NewClient builds a PubChem client from provider configuration.
func NewClient(cfg config.ProviderConfig, logger logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "pubchem base URL is required")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, errors.New(errors.ErrCodeValidation, "pubchem base URL must be http or https")
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
		logger:       logger.Named("pubchem"),
		retryMax:     cfg.MaxRetries,
		retryWaitMin: waitMin,
		retryWaitMax: waitMax,
	}, nil
}

// getJSON fetches a path and decodes the JSON body into result.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, result interface{}) error {
	body, err := c.getRaw(ctx, path, query, "application/json")
	if err != nil {
		return err
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return errors.Wrap(err, errors.ErrCodeProviderBadResponse, "decode pubchem response").
				WithDetailf("path=%s", path)
		}
	}
	return nil
}

// getRaw performs one GET with retry, backoff with jitter, and Retry-After
// handling, returning the response body.
func (c *Client) getRaw(ctx context.Context, path string, query url.Values, accept string) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var lastErr error
	skipBackoff := false
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 && !skipBackoff {
			backoff := c.backoff(attempt)
			c.logger.Debug("retrying pubchem request",
				logging.Int("attempt", attempt),
				logging.Duration("backoff", backoff),
				logging.String("path", path))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, wrapContextErr(ctx.Err(), path)
			}
		}
		skipBackoff = false

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "build pubchem request")
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", userAgent)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, wrapContextErr(ctx.Err(), path)
			}
			lastErr = errors.Wrap(err, errors.ErrCodeProviderUnavailable, "pubchem request failed").
				WithDetailf("path=%s", path)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.logger.Debug("pubchem response",
			logging.String("path", path),
			logging.Int("status", resp.StatusCode),
			logging.Duration("elapsed", time.Since(start)))
		if readErr != nil {
			lastErr = errors.Wrap(readErr, errors.ErrCodeProviderBadResponse, "read pubchem response")
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, errors.New(errors.ErrCodeProviderNotFound, faultMessage(body, "pubchem resource not found")).
				WithDetailf("path=%s", path)
		case resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode == http.StatusServiceUnavailable:
			// PUG REST signals throttling with both 429 and 503.
			lastErr = errors.New(errors.ErrCodeProviderRateLimited, "pubchem rate limited").
				WithDetailf("path=%s", path)
			if wait, ok := retryAfter(resp); ok && attempt < c.retryMax {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, wrapContextErr(ctx.Err(), path)
				}
				// The server already told us how long to hold off.
				skipBackoff = true
			}
			continue
		case resp.StatusCode >= 500:
			lastErr = errors.Newf(errors.ErrCodeProviderUnavailable, "pubchem returned HTTP %d", resp.StatusCode).
				WithDetailf("path=%s", path)
			continue
		case resp.StatusCode >= 400:
			return nil, errors.New(errors.ErrCodeProviderBadResponse, faultMessage(body, "pubchem rejected request")).
				WithDetailf("path=%s status=%d", path, resp.StatusCode)
		}

		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New(errors.ErrCodeProviderUnavailable, "pubchem request exhausted retries").
			WithDetailf("path=%s", path)
	}
	return nil, lastErr
}

func (c *Client) backoff(attempt int) time.Duration {
	backoff := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if backoff > c.retryWaitMax {
		backoff = c.retryWaitMax
	}
	jitter := time.Duration(rand.Int63n(int64(backoff/4) + 1))
	return backoff + jitter
}

func faultMessage(body []byte, fallback string) string {
	var f fault
	if err := json.Unmarshal(body, &f); err == nil && f.Fault.Message != "" {
		if len(f.Fault.Details) > 0 {
			return f.Fault.Message + ": " + f.Fault.Details[0]
		}
		return f.Fault.Message
	}
	return fallback
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
		return errors.Wrap(err, errors.ErrCodeProviderTimeout, "pubchem request timed out").
			WithDetailf("path=%s", path)
	}
	return errors.Wrap(err, errors.ErrCodeProviderUnavailable, "pubchem request canceled").
		WithDetailf("path=%s", path)
}
