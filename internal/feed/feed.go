// Package feed implements the store workers that pull competitor listings
// from the outside world. Three transports are supported: JSON search APIs
// over HTTP, CSV price lists over FTP, and XLSX price sheets on disk. The
// worker set is declared in a YAML registry file so stores can be added
// without a rebuild.
package feed

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/pricewise/pricewise/internal/scraper"
)

// StoreConfig declares one competitor store in the registry file.
type StoreConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // http, ftp, or xlsx

	// http
	Endpoint  string  `yaml:"endpoint,omitempty"`
	Rate      float64 `yaml:"rate,omitempty"`  // requests per second
	Burst     int     `yaml:"burst,omitempty"` // limiter burst
	UserAgent string  `yaml:"user_agent,omitempty"`

	// ftp
	URL string `yaml:"url,omitempty"`

	// xlsx
	Path  string `yaml:"path,omitempty"`
	Sheet string `yaml:"sheet,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"`
}

type registryFile struct {
	Stores []StoreConfig `yaml:"stores"`
}

// LoadRegistry reads the store registry file and builds a worker per entry.
func LoadRegistry(path string) ([]scraper.Worker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "feed: read registry")
	}

	var reg registryFile
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, eris.Wrap(err, "feed: parse registry")
	}
	if len(reg.Stores) == 0 {
		return nil, eris.Errorf("feed: registry %s declares no stores", path)
	}

	workers := make([]scraper.Worker, 0, len(reg.Stores))
	seen := make(map[string]struct{}, len(reg.Stores))
	for _, sc := range reg.Stores {
		if _, dup := seen[sc.Name]; dup {
			return nil, eris.Errorf("feed: duplicate store name %q", sc.Name)
		}
		seen[sc.Name] = struct{}{}

		w, err := BuildWorker(sc)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// BuildWorker constructs a worker from one registry entry.
func BuildWorker(sc StoreConfig) (scraper.Worker, error) {
	if sc.Name == "" {
		return nil, eris.New("feed: store entry without a name")
	}
	switch sc.Kind {
	case "http":
		return NewHTTPWorker(sc)
	case "ftp":
		return NewFTPWorker(sc)
	case "xlsx":
		return NewXLSXWorker(sc)
	default:
		return nil, eris.Errorf("feed: store %q has unknown kind %q", sc.Name, sc.Kind)
	}
}

// matchesQuery reports whether a listing title is relevant to a search query.
// Feeds that cannot search server-side (FTP, XLSX) filter their full price
// list through this. An empty query keeps everything.
func matchesQuery(query, title string) bool {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return true
	}
	title = strings.ToLower(title)
	for _, tok := range strings.Fields(query) {
		if strings.Contains(title, tok) {
			return true
		}
	}
	return false
}
