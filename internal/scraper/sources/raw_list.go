package sources

import (
	"bufio"
	"bytes"
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"ippool/internal/model"
)

// RawListSource scrapes proxies from a plain text list, one host:port per line.
type RawListSource struct {
	name   string
	url    string
	client *resty.Client
}

func NewRawListSource(name, url string) *RawListSource {
	return &RawListSource{
		name:   name,
		url:    url,
		client: newClient(nil),
	}
}

func (s *RawListSource) Name() string {
	return s.name
}

func (s *RawListSource) Fetch(ctx context.Context) ([]model.Endpoint, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode())
	}

	var endpoints []model.Endpoint
	scanner := bufio.NewScanner(bytes.NewReader(resp.Body()))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		// Some lists prefix entries with a scheme.
		line = bytes.TrimPrefix(line, []byte("http://"))

		if e, ok := parseEndpoint(string(line)); ok {
			endpoints = append(endpoints, e)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan error: %w", err)
	}

	return endpoints, nil
}
