package hilltop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
	"github.com/couchcryptid/hilltop-site-loader/internal/observability"
)

// Request kinds, used as the metrics "request" label.
const (
	requestSiteList        = "site_list"
	requestMeasurementList = "measurement_list"
)

// maxBodyBytes caps a single response. Regional site lists are a few MB.
const maxBodyBytes = 64 << 20

// Client queries a Hilltop server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Hilltop client for a data.hts endpoint such as
// "https://hilltop.gw.govt.nz/data.hts".
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// SiteListURL returns the site list query with lat/long locations.
func (c *Client) SiteListURL() string {
	params := url.Values{
		"Service":  {"Hilltop"},
		"Request":  {"SiteList"},
		"Location": {"LatLong"},
	}
	return c.baseURL + "?" + encodeQuery(params)
}

// MeasurementListURL returns the measurement list query for one site.
func (c *Client) MeasurementListURL(site string) string {
	params := url.Values{
		"Service": {"Hilltop"},
		"Request": {"MeasurementList"},
		"Site":    {site},
	}
	return c.baseURL + "?" + encodeQuery(params)
}

// FetchSites fetches and parses the site list. Any failure is returned: without
// a site list there is nothing to enrich.
func (c *Client) FetchSites(ctx context.Context) ([]domain.Site, error) {
	root, err := c.fetch(ctx, c.SiteListURL(), requestSiteList)
	if err != nil {
		return nil, fmt.Errorf("fetch site list: %w", err)
	}
	sites, err := ParseSites(root)
	if err != nil {
		return nil, fmt.Errorf("parse site list: %w", err)
	}
	c.logger.Info("fetched site list", "sites", len(sites))
	return sites, nil
}

// ResolveMeasurement returns the first measurement name for a site. It never
// fails: fetch and parse errors degrade to an absent measurement tagged with
// the reason.
func (c *Client) ResolveMeasurement(ctx context.Context, site string) domain.Measurement {
	root, err := c.fetch(ctx, c.MeasurementListURL(site), requestMeasurementList)
	if err != nil {
		reason := domain.MeasurementUnreachable
		if errors.Is(err, domain.ErrParse) {
			reason = domain.MeasurementMalformed
		}
		c.logger.Warn("measurement list unavailable", "site", site, "reason", reason, "error", err)
		return domain.Absent(reason)
	}

	m := FirstMeasurement(root)
	if m.IsPresent() {
		c.logger.Debug("measurement found", "site", site, "measurement", m.Name)
	} else {
		c.logger.Debug("measurement not found", "site", site)
	}
	return m
}

// Fetch issues a single GET and parses the body as XML. Non-2xx responses and
// transport failures wrap domain.ErrHTTP; malformed bodies wrap domain.ErrParse.
func (c *Client) Fetch(ctx context.Context, fullURL string) (*Element, error) {
	return c.fetch(ctx, fullURL, "raw")
}

func (c *Client) fetch(ctx context.Context, fullURL, request string) (*Element, error) {
	start := time.Now()
	root, err := c.doRequest(ctx, fullURL)
	c.metrics.HilltopDuration.WithLabelValues(request).Observe(time.Since(start).Seconds())

	outcome := "success"
	switch {
	case errors.Is(err, domain.ErrParse):
		outcome = "parse_error"
	case err != nil:
		outcome = "http_error"
	}
	c.metrics.HilltopRequests.WithLabelValues(request, outcome).Inc()
	return root, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (*Element, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrHTTP, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrHTTP, resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrHTTP, err)
	}
	return ParseTree(body)
}

// encodeQuery encodes params with spaces as %20, the form Hilltop clients send.
func encodeQuery(params url.Values) string {
	return strings.ReplaceAll(params.Encode(), "+", "%20")
}
