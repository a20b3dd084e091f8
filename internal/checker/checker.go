package checker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ippool/internal/model"
)

const (
	DefaultTargetURL = "http://baidu.com"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/89.0.4389.114 Safari/537.36"
	DefaultTimeout   = 5 * time.Second
)

// Probe checks whether a single endpoint works as an HTTP proxy.
// A nil error means the endpoint is useful.
type Probe interface {
	Probe(ctx context.Context, e model.Endpoint) error
}

// ProbeFunc adapts a plain function to Probe.
type ProbeFunc func(ctx context.Context, e model.Endpoint) error

func (f ProbeFunc) Probe(ctx context.Context, e model.Endpoint) error {
	return f(ctx, e)
}

// Checker probes endpoints by sending one GET through them.
type Checker struct {
	TargetURL string
	UserAgent string
	Timeout   time.Duration
}

func NewChecker(targetURL string, timeout time.Duration) *Checker {
	if targetURL == "" {
		targetURL = DefaultTargetURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		TargetURL: targetURL,
		UserAgent: DefaultUserAgent,
		Timeout:   timeout,
	}
}

// Probe issues a GET to the target URL using e as the HTTP proxy.
// Any response counts as success regardless of its status code.
func (c *Checker) Probe(ctx context.Context, e model.Endpoint) error {
	proxyURL, err := url.Parse(e.URL())
	if err != nil {
		return fmt.Errorf("invalid proxy url: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyURL(proxyURL),
		// One request per transport, nothing to keep alive
		DisableKeepAlives: true,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   c.Timeout,
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.TargetURL, nil)
	if err != nil {
		return fmt.Errorf("bad request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", e, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	return nil
}
