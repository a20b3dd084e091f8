package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"ippool/internal/model"
)

// TableConfig describes a paginated HTML table of proxies.
type TableConfig struct {
	Name string
	// URLTemplate contains one %d verb replaced by the page number.
	URLTemplate string
	FirstPage   int
	LastPage    int
	// RowSelector matches one table row per proxy.
	RowSelector string
	// HostSelector and PortSelector are evaluated inside a row. When
	// PortSelector is empty the host cell must hold "host:port".
	HostSelector string
	PortSelector string
	// Parallelism bounds concurrent page requests.
	Parallelism int
	Delay       time.Duration
	UserAgent   string
}

// TableSource scrapes proxies out of paginated HTML tables.
type TableSource struct {
	cfg TableConfig
}

func NewTableSource(cfg TableConfig) *TableSource {
	if cfg.FirstPage <= 0 {
		cfg.FirstPage = 1
	}
	if cfg.LastPage < cfg.FirstPage {
		cfg.LastPage = cfg.FirstPage
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &TableSource{cfg: cfg}
}

func (s *TableSource) Name() string {
	return s.cfg.Name
}

func (s *TableSource) pageURL(page int) string {
	if !strings.Contains(s.cfg.URLTemplate, "%d") {
		return s.cfg.URLTemplate
	}
	return fmt.Sprintf(s.cfg.URLTemplate, page)
}

// Fetch visits every page and returns the rows it could parse. Failed pages
// are skipped; the fetch only fails when no page could be retrieved.
func (s *TableSource) Fetch(ctx context.Context) ([]model.Endpoint, error) {
	c := colly.NewCollector(
		colly.UserAgent(s.cfg.UserAgent),
		colly.Async(true),
		colly.StdlibContext(ctx),
	)
	c.DetectCharset = true
	c.SetRequestTimeout(defaultTimeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: s.cfg.Parallelism,
		Delay:       s.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("limit rule: %w", err)
	}

	var (
		mu        sync.Mutex
		endpoints []model.Endpoint
		pageErrs  []error
		pagesOK   int
	)

	c.OnHTML(s.cfg.RowSelector, func(e *colly.HTMLElement) {
		ep, ok := s.parseRow(e.DOM)
		if !ok {
			return
		}
		mu.Lock()
		endpoints = append(endpoints, ep)
		mu.Unlock()
	})

	c.OnScraped(func(r *colly.Response) {
		mu.Lock()
		pagesOK++
		mu.Unlock()
	})

	c.OnError(func(r *colly.Response, err error) {
		slog.Warn("Page scrape failed", "source", s.cfg.Name, "url", r.Request.URL.String(), "status", r.StatusCode, "error", err)
		mu.Lock()
		pageErrs = append(pageErrs, err)
		mu.Unlock()
	})

	var visitErrs []error
	for page := s.cfg.FirstPage; page <= s.cfg.LastPage; page++ {
		if err := c.Visit(s.pageURL(page)); err != nil {
			visitErrs = append(visitErrs, err)
		}
		if !strings.Contains(s.cfg.URLTemplate, "%d") {
			break
		}
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pagesOK == 0 {
		if err := errors.Join(append(visitErrs, pageErrs...)...); err != nil {
			return nil, fmt.Errorf("no page scraped: %w", err)
		}
		return nil, errors.New("no page scraped")
	}
	return endpoints, nil
}

func (s *TableSource) parseRow(row *goquery.Selection) (model.Endpoint, bool) {
	host := row.Find(s.cfg.HostSelector).First().Text()
	if s.cfg.PortSelector == "" {
		return parseEndpoint(host)
	}
	port := row.Find(s.cfg.PortSelector).First().Text()
	return joinHostPort(host, port)
}
