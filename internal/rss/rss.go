// Package rss discovers candidates from RSS/Atom feeds.
package rss

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/deusflow/spectrumpost/internal/source"
)

// Collector reads one feed and returns its first Limit entries. Feeds are
// assumed to be recency-ordered, so no freshness gate applies to them.
type Collector struct {
	spec   source.Spec
	parser *gofeed.Parser
	log    *zap.Logger
}

var _ source.Collector = (*Collector)(nil)

// New builds a feed collector. A nil client uses http.DefaultClient.
func New(spec source.Spec, client *http.Client, userAgent string, log *zap.Logger) *Collector {
	parser := gofeed.NewParser()
	if client != nil {
		parser.Client = client
	}
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	if spec.Limit <= 0 {
		spec.Limit = source.DefaultFeedLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{spec: spec, parser: parser, log: log}
}

// Name returns the configured source name.
func (c *Collector) Name() string { return c.spec.Name }

// Discover downloads and parses the feed.
func (c *Collector) Discover(ctx context.Context) ([]source.Record, error) {
	feed, err := c.parser.ParseURLWithContext(c.spec.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", c.spec.URL, err)
	}

	records := make([]source.Record, 0, min(len(feed.Items), c.spec.Limit))
	for _, item := range feed.Items {
		if len(records) >= c.spec.Limit {
			break
		}
		records = append(records, toRecord(item, c.spec))
	}

	c.log.Info("Loaded feed entries",
		zap.String("source", c.spec.Name),
		zap.Int("entries", len(feed.Items)),
		zap.Int("kept", len(records)))
	return records, nil
}

func toRecord(item *gofeed.Item, spec source.Spec) source.Record {
	rec := source.Record{
		Link:        strings.TrimSpace(item.Link),
		Title:       strings.TrimSpace(item.Title),
		Summary:     strings.TrimSpace(item.Description),
		Topic:       spec.Topic,
		Source:      spec.Name,
		PublishedAt: item.PublishedParsed,
	}
	if item.Author != nil {
		rec.Author = strings.TrimSpace(item.Author.Name)
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		rec.Author = strings.TrimSpace(item.Authors[0].Name)
	}
	if rec.Topic == "" && len(item.Categories) > 0 {
		rec.Topic = item.Categories[0]
	}
	return rec
}
