package sources

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"ippool/internal/model"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultTimeout   = 20 * time.Second
)

func newClient(headers map[string]string) *resty.Client {
	c := resty.New().
		SetTimeout(defaultTimeout).
		SetHeader("User-Agent", defaultUserAgent)
	// Caller headers win, including a custom User-Agent.
	c.SetHeaders(headers)
	return c
}

// joinHostPort builds an endpoint from scraped cell text. Cells are
// trimmed and the port must be numeric.
func joinHostPort(host, port string) (model.Endpoint, bool) {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	if host == "" || port == "" {
		return "", false
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", false
	}
	return model.Endpoint(host + ":" + port), true
}

// parseEndpoint accepts a single "host:port" token.
func parseEndpoint(s string) (model.Endpoint, bool) {
	host, port, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return "", false
	}
	return joinHostPort(host, port)
}
