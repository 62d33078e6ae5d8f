// Package wayback talks to the Internet Archive's availability and save endpoints.
package wayback

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-archiver/internal/archiver"
	"github.com/JakeFAU/wayback-archiver/internal/metrics"
)

const (
	// DefaultAvailabilityURL is the public availability API.
	DefaultAvailabilityURL = "https://archive.org/wayback/available"
	// DefaultSaveURL is the public capture endpoint; the target URL is appended to its path.
	DefaultSaveURL = "https://web.archive.org/save"
	// DefaultSnapshotPathPrefix is the path prefix of every snapshot URL.
	DefaultSnapshotPathPrefix = "/web"
	// DefaultUserAgent identifies the archiver to the service.
	DefaultUserAgent = "wayback-archiver/1.0 (+https://github.com/JakeFAU/wayback-archiver)"

	endpointAvailability = "availability"
	endpointSave         = "save"

	maxBodyBytes = 1 << 20
)

// Config controls the Wayback client.
type Config struct {
	AvailabilityURL    string
	SaveURL            string
	SnapshotPathPrefix string
	UserAgent          string
	Timeout            time.Duration
}

// Pacer delays outbound requests; see ratelimit.Limiter.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Client implements archiver.AvailabilityChecker and archiver.SnapshotRequester.
type Client struct {
	cfg        Config
	httpClient *http.Client
	pacer      Pacer
	logger     *zap.Logger
}

var (
	_ archiver.AvailabilityChecker = (*Client)(nil)
	_ archiver.SnapshotRequester   = (*Client)(nil)
)

// New builds a Client. A nil httpClient gets a pooled transport with cfg.Timeout; a nil pacer
// disables pacing.
func New(cfg Config, httpClient *http.Client, pacer Pacer, logger *zap.Logger) *Client {
	if cfg.AvailabilityURL == "" {
		cfg.AvailabilityURL = DefaultAvailabilityURL
	}
	if cfg.SaveURL == "" {
		cfg.SaveURL = DefaultSaveURL
	}
	if cfg.SnapshotPathPrefix == "" {
		cfg.SnapshotPathPrefix = DefaultSnapshotPathPrefix
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: newHTTPTransport(),
			Timeout:   cfg.Timeout,
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		pacer:      pacer,
		logger:     logger,
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}

// get issues a paced GET and records the response status. Redirects are followed by the
// underlying client; resp.Request.URL is the final location.
func (c *Client) get(ctx context.Context, endpoint, target, rawURL string) (*http.Response, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx, rawURL); err != nil {
			return nil, archiver.WrapError(archiver.KindTransport, target, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, archiver.WrapError(archiver.KindTransport, target, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveServiceResponse(endpoint, 0, time.Since(start))
		return nil, archiver.WrapError(archiver.KindTransport, target, err)
	}
	metrics.ObserveServiceResponse(endpoint, resp.StatusCode, time.Since(start))
	c.logger.Debug("service response",
		zap.String("endpoint", endpoint),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.String("final_url", resp.Request.URL.String()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

func (c *Client) saveURL(target string) string {
	return strings.TrimRight(c.cfg.SaveURL, "/") + "/" + target
}

func (c *Client) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Debug("close response body", zap.Error(err))
	}
}
