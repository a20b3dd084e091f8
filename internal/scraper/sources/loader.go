package sources

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ippool/internal/scraper"
)

const (
	TypeRaw   = "raw"
	TypeTable = "table"
	TypeRegex = "regex"
)

// Spec is one entry of a sources file.
type Spec struct {
	Name    string            `yaml:"name"`
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`

	// table
	Pages       []int         `yaml:"pages"` // [first, last]
	Row         string        `yaml:"row"`
	Host        string        `yaml:"host"`
	Port        string        `yaml:"port"`
	Parallelism int           `yaml:"parallelism"`
	Delay       time.Duration `yaml:"delay"`

	// regex
	Pattern string `yaml:"pattern"`
}

type file struct {
	Sources []Spec `yaml:"sources"`
}

// Load reads a YAML sources file and builds the sources it lists.
func Load(path string) ([]scraper.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s lists no sources", path)
	}
	return Build(f.Sources)
}

// Build turns specs into sources. Names must be unique.
func Build(specs []Spec) ([]scraper.Source, error) {
	seen := make(map[string]bool, len(specs))
	out := make([]scraper.Source, 0, len(specs))
	for i, sp := range specs {
		if sp.Name == "" {
			return nil, fmt.Errorf("source #%d: name is required", i)
		}
		if seen[sp.Name] {
			return nil, fmt.Errorf("source %s: duplicate name", sp.Name)
		}
		seen[sp.Name] = true
		if sp.URL == "" {
			return nil, fmt.Errorf("source %s: url is required", sp.Name)
		}

		src, err := build(sp)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func build(sp Spec) (scraper.Source, error) {
	switch sp.Type {
	case TypeRaw, "":
		return NewRawListSource(sp.Name, sp.URL), nil

	case TypeRegex:
		return NewRegexSource(sp.Name, sp.URL, sp.Pattern, sp.Headers)

	case TypeTable:
		if sp.Row == "" || sp.Host == "" {
			return nil, fmt.Errorf("source %s: table needs row and host selectors", sp.Name)
		}
		cfg := TableConfig{
			Name:         sp.Name,
			URLTemplate:  sp.URL,
			RowSelector:  sp.Row,
			HostSelector: sp.Host,
			PortSelector: sp.Port,
			Parallelism:  sp.Parallelism,
			Delay:        sp.Delay,
			UserAgent:    sp.Headers["User-Agent"],
		}
		switch len(sp.Pages) {
		case 0:
		case 2:
			cfg.FirstPage, cfg.LastPage = sp.Pages[0], sp.Pages[1]
		default:
			return nil, fmt.Errorf("source %s: pages must be [first, last]", sp.Name)
		}
		return NewTableSource(cfg), nil

	default:
		return nil, fmt.Errorf("source %s: unknown type %q", sp.Name, sp.Type)
	}
}
