// Package source defines the discovery capability shared by every content
// source and the YAML file that lists them.
package source

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind selects the collector implementation for a source.
type Kind string

const (
	KindFeed Kind = "feed"
	KindPage Kind = "page"
)

// DefaultFeedLimit caps how many entries a feed contributes.
const DefaultFeedLimit = 20

// Record is one raw item as discovered, before normalization.
type Record struct {
	Link        string
	Title       string
	Summary     string
	Author      string
	Topic       string
	Source      string
	PublishedAt *time.Time
	// DateText is the free-text date of sources that expose only imprecise
	// dates. Records carrying it go through the same-day freshness gate.
	DateText      string
	ImpreciseDate bool
}

// Collector discovers raw records from one source.
type Collector interface {
	Name() string
	Discover(ctx context.Context) ([]Record, error)
}

// Spec is one entry of the sources file.
type Spec struct {
	Name  string `yaml:"name"`
	Kind  Kind   `yaml:"kind"`
	URL   string `yaml:"url"`
	Topic string `yaml:"topic"`
	Limit int    `yaml:"limit"`
}

// File is the YAML structure of the sources file:
//
//	sources:
//	  - name: techcrunch
//	    kind: feed
//	    url: https://techcrunch.com/feed/
type File struct {
	Sources []Spec `yaml:"sources"`
}

// LoadConfig reads and validates the sources file.
func LoadConfig(path string) ([]Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer f.Close()

	var file File
	if err := yaml.NewDecoder(f).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode sources file %s: %w", path, err)
	}
	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s lists no sources", path)
	}

	for i := range file.Sources {
		s := &file.Sources[i]
		s.Kind = Kind(strings.ToLower(string(s.Kind)))
		if s.URL == "" {
			return nil, fmt.Errorf("source %d (%s): url is required", i, s.Name)
		}
		switch s.Kind {
		case KindFeed, KindPage:
		case "":
			s.Kind = KindFeed
		default:
			return nil, fmt.Errorf("source %d (%s): unknown kind %q", i, s.Name, s.Kind)
		}
		if s.Name == "" {
			s.Name = s.URL
		}
		if s.Limit <= 0 {
			s.Limit = DefaultFeedLimit
		}
	}
	return file.Sources, nil
}
