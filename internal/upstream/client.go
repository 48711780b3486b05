// Package upstream contains the origin API clients for CurseForge and
// Modrinth. Every call carries a bounded timeout and a small fixed retry
// budget shared by passthrough search and refresh actors.
//
// Error taxonomy:
//   - 404 → ErrNotFound (permanent)
//   - other 4xx → *ResponseError (permanent)
//   - 429, 5xx, transport errors → *UnavailableError (retried, then returned)
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxBody = 32 << 20

var upstreamReqs = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "upstream_requests_total",
		Help: "Origin API requests by upstream and status (\"error\" for transport failures).",
	},
	[]string{"upstream", "status"},
)

func init() {
	prometheus.MustRegister(upstreamReqs)
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Retries   uint
	UserAgent string
	Header    http.Header
	// Transport defaults to an otelhttp-wrapped http.DefaultTransport.
	Transport http.RoundTripper
	// BackOff defaults to an exponential backoff; tests use ZeroBackOff.
	BackOff func() backoff.BackOff
}

// Client is the shared HTTP core behind the per-registry clients.
type Client struct {
	name    string
	base    string
	hc      *http.Client
	header  http.Header
	retries uint
	backOff func() backoff.BackOff
}

func newClient(name string, o Options) *Client {
	tr := o.Transport
	if tr == nil {
		tr = otelhttp.NewTransport(http.DefaultTransport)
	}
	h := o.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if o.UserAgent != "" {
		h.Set("User-Agent", o.UserAgent)
	}
	h.Set("Accept", "application/json")
	retries := o.Retries
	if retries == 0 {
		retries = 1
	}
	bo := o.BackOff
	if bo == nil {
		bo = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		}
	}
	return &Client{
		name:    name,
		base:    strings.TrimRight(o.BaseURL, "/"),
		hc:      &http.Client{Timeout: o.Timeout, Transport: tr},
		header:  h,
		retries: retries,
		backOff: bo,
	}
}

// Name returns the upstream label ("curseforge" or "modrinth").
func (c *Client) Name() string { return c.name }

// call performs a request with retries and returns the raw body of a 2xx
// response.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		payload = b
	}
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	op := func() ([]byte, error) {
		return c.attempt(ctx, method, u, payload)
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxTries(c.retries),
	)
}

func (c *Client) attempt(ctx context.Context, method, u string, payload []byte) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header = c.header.Clone()
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		upstreamReqs.WithLabelValues(c.name, "error").Inc()
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, &UnavailableError{Upstream: c.name, Err: err}
	}
	defer resp.Body.Close()
	upstreamReqs.WithLabelValues(c.name, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &UnavailableError{Upstream: c.name, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(fmt.Errorf("%s %s: %w", c.name, req.URL.Path, ErrNotFound))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		ue := &UnavailableError{
			Upstream:   c.name,
			Status:     resp.StatusCode,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
		// Long waits are left to the job queue.
		if ue.RetryAfter > maxInlineRetryAfter {
			return nil, backoff.Permanent(ue)
		}
		return nil, ue
	default:
		return nil, backoff.Permanent(&ResponseError{Upstream: c.name, Status: resp.StatusCode, Body: snippet(data)})
	}
}

// maxInlineRetryAfter is the longest Retry-After the client waits out itself.
const maxInlineRetryAfter = 2 * time.Second

func retryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func snippet(b []byte) string {
	const n = 256
	if len(b) > n {
		return string(b[:n]) + "…"
	}
	return string(b)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	data, err := c.call(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return c.decode(path, data, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := c.call(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return c.decode(path, data, out)
}

func (c *Client) decode(path string, data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", c.name, path, ErrMalformed, err)
	}
	return nil
}
