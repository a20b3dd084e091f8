package model

import (
	"net"
	"strconv"
	"strings"
)

// Endpoint is a candidate proxy in "host:port" form.
type Endpoint string

// Valid reports whether e looks like a dialable host:port pair.
// Empty strings, embedded whitespace and out-of-range ports are rejected.
func (e Endpoint) Valid() bool {
	s := string(e)
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil || host == "" {
		return false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return false
	}
	return port > 0 && port <= 65535
}

// URL returns the proxy URL used to dial through the endpoint.
func (e Endpoint) URL() string {
	return "http://" + string(e)
}

// Host returns the host part, or the whole value if it has no port.
func (e Endpoint) Host() string {
	host, _, err := net.SplitHostPort(string(e))
	if err != nil {
		return string(e)
	}
	return host
}

// Dedup returns the unique endpoints of list in first-seen order.
func Dedup(list []Endpoint) []Endpoint {
	seen := make(map[Endpoint]struct{}, len(list))
	out := make([]Endpoint, 0, len(list))
	for _, e := range list {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Strings converts endpoints to plain strings.
func Strings(list []Endpoint) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = string(e)
	}
	return out
}
