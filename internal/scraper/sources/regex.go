package sources

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-resty/resty/v2"

	"ippool/internal/model"
)

// RegexSource extracts proxies from a response body with a regular
// expression. The pattern has either one capture group holding
// "host:port" or two holding host and port.
type RegexSource struct {
	name   string
	url    string
	re     *regexp.Regexp
	client *resty.Client
}

func NewRegexSource(name, url, pattern string, headers map[string]string) (*RegexSource, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("source %s: bad pattern: %w", name, err)
	}
	if n := re.NumSubexp(); n != 1 && n != 2 {
		return nil, fmt.Errorf("source %s: pattern needs 1 or 2 capture groups, has %d", name, n)
	}
	return &RegexSource{
		name:   name,
		url:    url,
		re:     re,
		client: newClient(headers),
	}, nil
}

func (s *RegexSource) Name() string {
	return s.name
}

func (s *RegexSource) Fetch(ctx context.Context) ([]model.Endpoint, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode())
	}

	var endpoints []model.Endpoint
	for _, m := range s.re.FindAllSubmatch(resp.Body(), -1) {
		var (
			e  model.Endpoint
			ok bool
		)
		if len(m) == 2 {
			e, ok = parseEndpoint(string(m[1]))
		} else {
			e, ok = joinHostPort(string(m[1]), string(m[2]))
		}
		if ok {
			endpoints = append(endpoints, e)
		}
	}
	return endpoints, nil
}
