// Package network fetches requests from the upstream GOPOS origin.
package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gopos/gopos-edge/internal/cachestorage"
	"github.com/gopos/gopos-edge/internal/errors"
	"github.com/gopos/gopos-edge/internal/logger"
	"golang.org/x/net/http/httpguts"
)

var (
	// ErrNetwork marks failures to obtain any response from the origin.
	ErrNetwork = errors.NewStd("network request failed")
	// ErrForeignTarget is returned for absolute request targets outside the
	// upstream origin. The fetcher never leaves its origin.
	ErrForeignTarget = errors.NewStd("request target outside upstream origin")
)

// Fetcher performs requests against the network.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*cachestorage.Response, error)
}

// hopHeaders are connection-scoped and never forwarded in either direction.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTPFetcher fetches from a single upstream origin over HTTP.
type HTTPFetcher struct {
	origin *url.URL
	client *http.Client
	log    logger.Logger
}

// Option customises an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *HTTPFetcher) { f.client.Transport = rt }
}

// NewHTTPFetcher creates a fetcher for origin. A zero timeout leaves the
// client without a deadline.
func NewHTTPFetcher(origin string, timeout time.Duration, log logger.Logger, opts ...Option) (*HTTPFetcher, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, errors.New(err).
			Component("network").
			Category(errors.CategoryConfiguration).
			Context("origin", origin).
			Build()
	}
	f := &HTTPFetcher{
		origin: u,
		client: &http.Client{Timeout: timeout},
		log:    log.Module("network"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Origin returns the upstream origin.
func (f *HTTPFetcher) Origin() *url.URL { return f.origin }

// Resolve turns a request target into an absolute upstream URL. Only the
// path and query of the target are kept. Absolute targets must already
// name the upstream origin.
func (f *HTTPFetcher) Resolve(target *url.URL) (*url.URL, error) {
	if target.IsAbs() && !SameOrigin(f.origin, target) {
		return nil, errors.New(ErrForeignTarget).
			Component("network").
			Category(errors.CategoryValidation).
			Context("url", target.String()).
			Build()
	}
	return f.origin.ResolveReference(&url.URL{
		Path:     target.Path,
		RawPath:  target.RawPath,
		RawQuery: target.RawQuery,
	}), nil
}

// Fetch sends req upstream and buffers the response. Only transport
// failures are errors; any HTTP status is a successful fetch.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*cachestorage.Response, error) {
	target, err := f.Resolve(req.URL)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil && req.Body != http.NoBody {
		body = req.Body
	}
	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, f.networkError(err, req.Method, target)
	}
	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	out.ContentLength = req.ContentLength
	removeHopHeaders(out.Header)
	out.Header.Del("Host")
	// the transport negotiates compression itself and hands back identity
	// bodies, which is what gets cached
	out.Header.Del("Accept-Encoding")

	start := time.Now()
	resp, err := f.client.Do(out)
	if err != nil {
		return nil, f.networkError(err, req.Method, target)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, f.networkError(err, req.Method, target)
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)

	final := target
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}

	f.log.Debug("fetched from origin",
		logger.String("method", req.Method),
		logger.String("url", target.String()),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)))

	return &cachestorage.Response{
		URL:        final.String(),
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Header:     header,
		Body:       data,
		Type:       f.classify(final),
	}, nil
}

func (f *HTTPFetcher) classify(final *url.URL) cachestorage.ResponseType {
	if SameOrigin(f.origin, final) {
		return cachestorage.ResponseTypeBasic
	}
	return cachestorage.ResponseTypeCORS
}

func (f *HTTPFetcher) networkError(err error, method string, target *url.URL) error {
	return errors.New(fmt.Errorf("%w: %w", ErrNetwork, err)).
		Component("network").
		Category(errors.CategoryNetwork).
		Context("method", method).
		Context("url", target.String()).
		Build()
}

// SameOrigin compares scheme, host and port.
func SameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(hostPort(a), hostPort(b))
}

func hostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return u.Hostname() + ":" + port
}

func statusText(resp *http.Response) string {
	// resp.Status is "200 OK"
	if _, text, ok := strings.Cut(resp.Status, " "); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// removeHopHeaders strips hop-by-hop headers including any named by the
// Connection header.
func removeHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for name := range strings.SplitSeq(v, ",") {
			name = strings.TrimSpace(name)
			if httpguts.ValidHeaderFieldName(name) {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
