package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// HTTPOptions parameterise the JSON endpoint source.
type HTTPOptions struct {
	URL       string
	Token     string
	Timeout   time.Duration
	UserAgent string
}

// HTTP reads the percentage from a JSON endpoint shaped as
// {"percentage": 82.7, "observed_at": "2026-10-16T14:00:00-03:00"}.
type HTTP struct {
	opts   HTTPOptions
	logger zerolog.Logger
	client *http.Client
}

// NewHTTP constructs an HTTP source.
func NewHTTP(opts HTTPOptions, logger zerolog.Logger) *HTTP {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		opts:   opts,
		logger: logger.With().Str("component", "http_source").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

type percentageResponse struct {
	Percentage *decimal.Decimal `json:"percentage"`
	ObservedAt *time.Time       `json:"observed_at"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Fetch performs a GET and decodes the percentage.
func (h *HTTP) Fetch(ctx context.Context) (Sample, error) {
	if strings.TrimSpace(h.opts.URL) == "" {
		return Sample{}, fmt.Errorf("%w: source url not configured", ErrRetrieval)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.opts.URL, nil)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: build request: %v", ErrRetrieval, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "marginwatch/1.0")
	}
	if h.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.opts.Token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Sample{}, fmt.Errorf("%w: read body: %v", ErrRetrieval, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Sample{}, fmt.Errorf("%w: %v", ErrRetrieval, parseHTTPError(resp.StatusCode, payload))
	}

	var body percentageResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return Sample{}, fmt.Errorf("%w: decode body: %v", ErrRetrieval, err)
	}
	if body.Percentage == nil {
		return Sample{}, fmt.Errorf("%w: response has no percentage", ErrRetrieval)
	}
	if body.Percentage.IsNegative() {
		return Sample{}, fmt.Errorf("%w: negative percentage %s", ErrRetrieval, body.Percentage)
	}

	observed := time.Now()
	if body.ObservedAt != nil {
		observed = *body.ObservedAt
	}

	h.logger.Debug().Str("percentage", body.Percentage.String()).Time("observed_at", observed).Msg("percentage fetched")
	return Sample{Percentage: *body.Percentage, ObservedAt: observed}, nil
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("source error (%d): %s", status, apiErr.Error)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("source error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("source error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("source error (%d)", status)
}
