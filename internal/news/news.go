// Package news turns raw discovered records into deduplicated candidates.
package news

import (
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deusflow/spectrumpost/internal/runctx"
	"github.com/deusflow/spectrumpost/internal/source"
)

// UnknownAuthor is used when a source does not name an author.
const UnknownAuthor = "Unknown"

// Candidate is one discovered item. Identifier is the canonical URL and the
// deduplication key.
type Candidate struct {
	Identifier  string     `json:"link"`
	Title       string     `json:"title"`
	Summary     string     `json:"description"`
	Author      string     `json:"author"`
	Topic       string     `json:"topic"`
	Source      string     `json:"source,omitempty"`
	DateText    string     `json:"date,omitempty"`
	PublishedAt *time.Time `json:"-"`
}

// PublishedDate renders PublishedAt as YYYY-MM-DD, or "" when unknown.
func (c Candidate) PublishedDate() string {
	if c.PublishedAt == nil {
		return ""
	}
	return c.PublishedAt.Format(time.DateOnly)
}

// Normalize converts raw records into candidates. Records without a usable
// link or title are dropped. Records with imprecise dates are kept only when
// their date resolves to the run's current date. The result is collapsed by
// identifier, first occurrence wins.
func Normalize(run *runctx.Run, records []source.Record) []Candidate {
	out := make([]Candidate, 0, len(records))
	for _, rec := range records {
		c, ok := normalizeOne(run, rec)
		if !ok {
			continue
		}
		out = append(out, c)
	}
	return Collapse(out)
}

func normalizeOne(run *runctx.Run, rec source.Record) (Candidate, bool) {
	link := canonicalURL(rec.Link)
	title := strings.Join(strings.Fields(rec.Title), " ")
	if link == "" || title == "" {
		run.Log.Debug("Dropping record without link or title", zap.String("link", rec.Link))
		return Candidate{}, false
	}

	c := Candidate{
		Identifier:  link,
		Title:       title,
		Summary:     strings.Join(strings.Fields(rec.Summary), " "),
		Author:      strings.TrimSpace(rec.Author),
		Topic:       strings.TrimSpace(rec.Topic),
		Source:      rec.Source,
		DateText:    rec.DateText,
		PublishedAt: rec.PublishedAt,
	}
	if c.Author == "" {
		c.Author = UnknownAuthor
	}

	if !rec.ImpreciseDate {
		return c, true
	}

	parsed, ok := ParseDate(rec.DateText, run.Today)
	if !ok {
		run.Log.Warn("Could not parse date", zap.String("date", rec.DateText), zap.String("title", title))
		return Candidate{}, false
	}
	if !run.SameDay(parsed) {
		run.Log.Debug("Skipping old article", zap.String("title", title), zap.String("date", rec.DateText))
		return Candidate{}, false
	}
	c.PublishedAt = &parsed
	return c, true
}

// Collapse removes later candidates sharing an identifier with an earlier one.
func Collapse(cands []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(cands))
	out := cands[:0:0]
	for _, c := range cands {
		if _, dup := seen[c.Identifier]; dup {
			continue
		}
		seen[c.Identifier] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Index is the read side of the idempotency store.
type Index interface {
	Contains(identifier string) bool
}

// Unpublished returns the candidates absent from idx, preserving order.
func Unpublished(cands []Candidate, idx Index) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if idx.Contains(c.Identifier) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// canonicalURL trims whitespace and drops fragments; it returns "" for links
// that are not absolute http(s) URLs.
func canonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
