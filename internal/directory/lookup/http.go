// Package lookup is the client for the external routing-code (IFSC)
// directory, plus the caching and circuit-breaking decorators the resolver
// sees it through.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pollbank/internal/directory/metrics"
	"pollbank/internal/directory/models"
)

// HTTPClient calls GET {baseURL}/{CODE}. The service answers 404 for codes it
// does not know and a JSON object with BANK, BRANCH and IFSC otherwise.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	retries    uint64
	backoff    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type HTTPOption func(*HTTPClient)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// WithRetries retries transport errors and 5xx answers up to n times with
// exponential backoff starting at base.
func WithRetries(n uint64, base time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		h.retries = n
		h.backoff = base
	}
}

func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTPClient) {
		h.logger = logger
	}
}

func WithHTTPMetrics(m *metrics.Metrics) HTTPOption {
	return func(h *HTTPClient) {
		h.metrics = m
	}
}

func NewHTTPClient(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		backoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type ifscResponse struct {
	Bank   string `json:"BANK"`
	Branch string `json:"BRANCH"`
	IFSC   string `json:"IFSC"`
}

var errServer = errors.New("routing lookup server error")

// Lookup returns nil, nil when the service does not know code.
func (h *HTTPClient) Lookup(ctx context.Context, code string) (*models.LookupResult, error) {
	start := time.Now()
	var result *models.LookupResult

	backoff := retry.WithMaxRetries(h.retries, retry.NewExponential(h.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := h.fetch(ctx, code)
		if err != nil {
			if errors.Is(err, errServer) || isTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})

	if h.metrics != nil {
		outcome := "found"
		switch {
		case err != nil:
			outcome = "error"
		case result == nil:
			outcome = "not_found"
		}
		h.metrics.ObserveLookup(start, outcome)
	}
	if err != nil {
		if h.logger != nil {
			h.logger.WarnContext(ctx, "routing lookup request failed",
				"routing_code", code,
				"error", err,
			)
		}
		return nil, err
	}
	return result, nil
}

func (h *HTTPClient) fetch(ctx context.Context, code string) (*models.LookupResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/"+url.PathEscape(code), nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", errServer, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("lookup unexpected status %d", resp.StatusCode)
	}

	var body ifscResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}
	routing := strings.TrimSpace(body.IFSC)
	if routing == "" {
		routing = code
	}
	return &models.LookupResult{
		BankName:    body.Bank,
		BranchName:  body.Branch,
		RoutingCode: routing,
	}, nil
}

func isTransient(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
