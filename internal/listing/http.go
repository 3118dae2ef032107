package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Compile-time interface compliance check.
var _ Client = (*HTTPClient)(nil)

// HTTPConfig holds listing client configuration.
type HTTPConfig struct {
	BaseURL      string        `yaml:"base_url"`      // Listing API root
	Token        string        `yaml:"token"`         // Bearer token, optional
	UserAgent    string        `yaml:"user_agent"`    // Sent on every request
	FetchTimeout time.Duration `yaml:"fetch_timeout"` // Per-request timeout
	PageLimit    int           `yaml:"page_limit"`    // Max items per page
}

// Validate validates and sets defaults for HTTPConfig.
func (c *HTTPConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	if c.UserAgent == "" {
		c.UserAgent = "streamwatch"
	}

	if c.FetchTimeout == 0 {
		c.FetchTimeout = 10 * time.Second
	}

	if c.PageLimit == 0 {
		c.PageLimit = 100
	}

	if c.FetchTimeout < 1*time.Second {
		return fmt.Errorf("fetch_timeout must be at least 1 second, got %v", c.FetchTimeout)
	}

	if c.PageLimit < 1 || c.PageLimit > 100 {
		return fmt.Errorf("page_limit must be in [1, 100], got %d", c.PageLimit)
	}

	return nil
}

// HTTPClient fetches listing pages from a JSON API.
type HTTPClient struct {
	config     *HTTPConfig
	logger     logrus.FieldLogger
	httpClient *http.Client
}

// NewHTTPClient creates a new listing client.
func NewHTTPClient(cfg *HTTPConfig, logger logrus.FieldLogger) (*HTTPClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &HTTPClient{
		config:     cfg,
		logger:     logger.WithField("component", "listing"),
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
	}, nil
}

// listingResponse is the wire format of a listing page.
type listingResponse struct {
	Items []listingItem `json:"items"`
}

type listingItem struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"` // anchor / fullname
	Kind       string          `json:"kind"`
	Author     string          `json:"author"`
	CreatedUTC float64         `json:"created_utc"`
	Data       json.RawMessage `json:"data"`
}

// Fetch retrieves one page of the named source, newest items first on the
// wire, returned in chronological order.
func (c *HTTPClient) Fetch(ctx context.Context, source string, cursor Cursor) (*Page, error) {
	reqURL := fmt.Sprintf(
		"%s/%s.json?limit=%d",
		c.config.BaseURL,
		url.PathEscape(source),
		c.config.PageLimit,
	)

	if !cursor.IsZero() {
		reqURL = fmt.Sprintf("%s&before=%s", reqURL, url.QueryEscape(cursor.Before))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Source: source, Err: err}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := KindTransient
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			kind = KindTimeout
		}

		return nil, &FetchError{Kind: kind, Source: source, Err: err}
	}
	defer resp.Body.Close()

	rateWindow := parseRateHeaders(resp.Header)

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(source, resp.StatusCode, rateWindow)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Source: source, RateWindow: rateWindow, Err: fmt.Errorf("read response: %w", err)}
	}

	var raw listingResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &FetchError{Kind: KindTransient, Source: source, RateWindow: rateWindow, Err: fmt.Errorf("parse JSON: %w", err)}
	}

	page := c.buildPage(&raw, cursor, rateWindow)

	c.logger.WithFields(logrus.Fields{
		"source": source,
		"items":  len(page.Items),
		"before": cursor.Before,
	}).Debug("Fetched listing page")

	return page, nil
}

// buildPage converts a wire response into a Page, reversing the API's
// newest-first ordering so items yield chronologically.
func (c *HTTPClient) buildPage(raw *listingResponse, cursor Cursor, rw *RateWindow) *Page {
	items := make([]Item, 0, len(raw.Items))

	for i := len(raw.Items) - 1; i >= 0; i-- {
		wire := raw.Items[i]

		anchor := wire.Name
		if anchor == "" {
			anchor = wire.ID
		}

		sec, frac := int64(wire.CreatedUTC), wire.CreatedUTC-float64(int64(wire.CreatedUTC))

		items = append(items, Item{
			ID:        wire.ID,
			Anchor:    anchor,
			Kind:      wire.Kind,
			Author:    wire.Author,
			CreatedAt: time.Unix(sec, int64(frac*float64(time.Second))).UTC(),
			Payload:   wire.Data,
		})
	}

	next := cursor
	if len(items) > 0 {
		next = Cursor{Before: items[len(items)-1].Anchor}
	}

	return &Page{Items: items, Next: next, RateWindow: rw}
}

// statusError maps a non-200 status onto the FetchError taxonomy.
func (c *HTTPClient) statusError(source string, status int, rw *RateWindow) error {
	fe := &FetchError{Source: source, StatusCode: status, RateWindow: rw}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		fe.Kind = KindUnauthorized
	case status == http.StatusNotFound || status == http.StatusBadRequest:
		// A 400 on an anchored fetch means the anchor no longer resolves.
		fe.Kind = KindNotFound
	case status == http.StatusTooManyRequests:
		fe.Kind = KindRateLimited
	default:
		fe.Kind = KindTransient
	}

	return fe
}

// parseRateHeaders extracts the rate-limit snapshot from response headers.
// Returns nil when the service sent none.
func parseRateHeaders(h http.Header) *RateWindow {
	remainingStr := h.Get("X-Ratelimit-Remaining")
	if remainingStr == "" {
		return nil
	}

	// Remaining may arrive as a float (Reddit does this).
	remainingF, err := strconv.ParseFloat(remainingStr, 64)
	if err != nil {
		return nil
	}

	used, _ := strconv.Atoi(h.Get("X-Ratelimit-Used"))
	resetSec, _ := strconv.Atoi(h.Get("X-Ratelimit-Reset"))

	remaining := int(remainingF)

	return &RateWindow{
		Capacity:  remaining + used,
		Remaining: remaining,
		Used:      used,
		ResetAt:   time.Now().Add(time.Duration(resetSec) * time.Second),
	}
}

// isTimeout reports whether err is a network timeout.
func isTimeout(err error) bool {
	var t interface{ Timeout() bool }

	return errors.As(err, &t) && t.Timeout()
}
