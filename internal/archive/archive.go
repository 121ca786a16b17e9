// Package archive writes one JSON audit record per published post to a blob
// store.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/deusflow/spectrumpost/internal/news"
)

// TimestampLayout formats record timestamps and file names.
const TimestampLayout = "20060102_150405"

const contentTypeJSON = "application/json; charset=utf-8"

// Store persists one object and returns a URI for it.
type Store interface {
	PutObject(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

// Article is the candidate snapshot stored in a record.
type Article struct {
	Link        string `json:"link"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Topic       string `json:"topic"`
	Source      string `json:"source,omitempty"`
	Date        string `json:"date,omitempty"`
	ParsedDate  string `json:"parsed_date,omitempty"`
}

// Record is the archived outcome of one successful run.
type Record struct {
	Timestamp   string  `json:"timestamp"`
	RunID       string  `json:"run_id,omitempty"`
	Article     Article `json:"article"`
	PostContent string  `json:"post_content"`
	MediaURL    *string `json:"media_url"`
	Published   bool    `json:"published"`
}

// NewRecord snapshots a delivered post.
func NewRecord(at time.Time, runID string, c news.Candidate, postContent, mediaURL string) Record {
	rec := Record{
		Timestamp: at.Format(TimestampLayout),
		RunID:     runID,
		Article: Article{
			Link:        c.Identifier,
			Title:       c.Title,
			Description: c.Summary,
			Author:      c.Author,
			Topic:       c.Topic,
			Source:      c.Source,
			Date:        c.DateText,
			ParsedDate:  c.PublishedDate(),
		},
		PostContent: postContent,
		Published:   true,
	}
	if mediaURL != "" {
		rec.MediaURL = &mediaURL
	}
	return rec
}

// Writer names and encodes records.
type Writer struct {
	store  Store
	prefix string
	log    *zap.Logger
}

func NewWriter(store Store, prefix string, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{store: store, prefix: prefix, log: log}
}

// ObjectName returns the object path for a record timestamp.
func (w *Writer) ObjectName(timestamp string) string {
	name := fmt.Sprintf("article_%s.json", timestamp)
	if w.prefix == "" {
		return name
	}
	return path.Join(w.prefix, name)
}

// Write stores rec and returns the URI reported by the store.
func (w *Writer) Write(ctx context.Context, rec Record) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return "", fmt.Errorf("encode archive record: %w", err)
	}

	name := w.ObjectName(rec.Timestamp)
	uri, err := w.store.PutObject(ctx, name, contentTypeJSON, &buf)
	if err != nil {
		return "", fmt.Errorf("store archive record %s: %w", name, err)
	}
	w.log.Info("Article data saved", zap.String("uri", uri))
	return uri, nil
}
