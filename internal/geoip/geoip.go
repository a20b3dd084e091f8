package geoip

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"ippool/internal/model"
)

// Unknown is reported for hosts that are not IPs or not in the database.
const Unknown = "??"

type Service struct {
	db *geoip2.Reader
}

func New(dbPath string) (*Service, error) {
	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip db: %w", err)
	}

	return &Service{db: db}, nil
}

func (s *Service) Close() error {
	return s.db.Close()
}

func (s *Service) Lookup(ipStr string) (string, string, error) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "", "", fmt.Errorf("invalid IP address: %s", ipStr)
	}

	record, err := s.db.City(ip)
	if err != nil {
		return "", "", fmt.Errorf("geoip lookup failed: %w", err)
	}

	return record.Country.IsoCode, record.Country.Names["en"], nil
}

// Country returns the ISO code of the endpoint's host, or Unknown.
func (s *Service) Country(e model.Endpoint) string {
	iso, _, err := s.Lookup(e.Host())
	if err != nil || iso == "" {
		return Unknown
	}
	return iso
}

// CountByCountry tallies endpoints per ISO country code.
func (s *Service) CountByCountry(endpoints []model.Endpoint) map[string]int {
	counts := make(map[string]int)
	for _, e := range endpoints {
		counts[s.Country(e)]++
	}
	return counts
}
