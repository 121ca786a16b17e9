package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/spectrumpost/internal/source"
)

func feedXML(n int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/"><channel><title>Tech</title>`)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<item><title>Story %d</title><link>https://example.com/story-%d</link>`+
			`<description>Summary %d</description><dc:creator>Author %d</dc:creator>`+
			`<category>AI</category><pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate></item>`, i, i, i, i)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func TestDiscoverCapsEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML(25)))
	}))
	defer srv.Close()

	c := New(source.Spec{Name: "tc", Kind: source.KindFeed, URL: srv.URL}, srv.Client(), "test-agent", nil)
	records, err := c.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, records, source.DefaultFeedLimit)

	first := records[0]
	assert.Equal(t, "https://example.com/story-1", first.Link)
	assert.Equal(t, "Story 1", first.Title)
	assert.Equal(t, "Summary 1", first.Summary)
	assert.Equal(t, "Author 1", first.Author)
	assert.Equal(t, "AI", first.Topic)
	assert.Equal(t, "tc", first.Source)
	assert.False(t, first.ImpreciseDate)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, 2006, first.PublishedAt.Year())
	assert.Equal(t, "tc", c.Name())
}

func TestDiscoverHonoursLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(feedXML(8)))
	}))
	defer srv.Close()

	c := New(source.Spec{Name: "tc", URL: srv.URL, Limit: 3, Topic: "Tech"}, srv.Client(), "", nil)
	records, err := c.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Tech", records[2].Topic)
}

func TestDiscoverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(source.Spec{Name: "tc", URL: srv.URL}, srv.Client(), "", nil)
	_, err := c.Discover(context.Background())
	assert.Error(t, err)
}
