package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHTML(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractPrefersResponsiveGIF(t *testing.T) {
	page := `<html><head>
<meta property="og:image" content="/static/cover.jpg">
<script>var tracking = "ignored";</script>
</head><body>
<nav>Menu Home About</nav>
<article>
  <h1>Robots learn to walk</h1>
  <picture>
    <source srcset="/media/walk-small.webp 480w, /media/walk.gif 960w">
    <img src="/media/walk.jpg">
  </picture>
  <p>First paragraph.</p><p>Second   paragraph.</p>
</article>
<footer>Copyright</footer>
</body></html>`
	srv := serveHTML(t, page)

	art, err := NewExtractor(srv.Client(), "test-agent", nil).Extract(context.Background(), srv.URL+"/story")
	require.NoError(t, err)
	assert.Equal(t, "Robots learn to walk", art.Title)
	assert.Equal(t, "Robots learn to walk First paragraph. Second paragraph.", art.Body)
	assert.Equal(t, srv.URL+"/media/walk.gif", art.MediaURL)
	assert.True(t, art.Animated)
	assert.NotContains(t, art.Body, "Menu")
	assert.NotContains(t, art.Body, "tracking")
}

func TestExtractPlainGIFBeatsMetaImage(t *testing.T) {
	page := `<html><head><meta property="og:image" content="https://cdn.example/cover.jpg"></head>
<body><div class="post-content"><p>Body text.</p><img src="https://cdn.example/loop.GIF"></div></body></html>`
	srv := serveHTML(t, page)

	art, err := NewExtractor(srv.Client(), "", nil).Extract(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/loop.GIF", art.MediaURL)
	assert.True(t, art.Animated)
	assert.Equal(t, "Body text.", art.Body)
}

func TestExtractMetaImageFallback(t *testing.T) {
	page := `<html><head>
<meta name="twitter:image" content="/img/twitter.png">
</head><body><main><p>Main body.</p><img src="/img/inline.jpg" width="800" height="600"></main></body></html>`
	srv := serveHTML(t, page)

	art, err := NewExtractor(srv.Client(), "", nil).Extract(context.Background(), srv.URL+"/a/b")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/img/twitter.png", art.MediaURL)
	assert.False(t, art.Animated)
}

func TestExtractLargestDeclaredImage(t *testing.T) {
	page := `<html><body><article><p>Text.</p>
<img src="/icon.png" width="32" height="32">
<img src="/medium.jpg" width="400" height="300">
<img src="/large.jpg" width="1200" height="800">
</article></body></html>`
	srv := serveHTML(t, page)

	art, err := NewExtractor(srv.Client(), "", nil).Extract(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/large.jpg", art.MediaURL)
}

func TestExtractNoMedia(t *testing.T) {
	page := `<html><body><article><p>Only text here.</p><img src="/pixel.png" width="1" height="1"></article></body></html>`
	srv := serveHTML(t, page)

	art, err := NewExtractor(srv.Client(), "", nil).Extract(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, art.MediaURL)
	assert.Equal(t, "Only text here.", art.Body)
}

func TestExtractFallsBackToDocumentText(t *testing.T) {
	page := `<html><body><div><span>Loose</span> <span>words</span></div></body></html>`
	srv := serveHTML(t, page)

	art, err := NewExtractor(srv.Client(), "", nil).Extract(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, art.Body, "Loose")
	assert.Contains(t, art.Body, "words")
}

func TestExtractHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	_, err := NewExtractor(srv.Client(), "", nil).Extract(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "410")
}

func TestExtractIgnoresImagesOutsideContent(t *testing.T) {
	page := `<html><body>
<img id="a" src="x" width="300" height="200">
<img id="b" src="x" width="100" height="900">
<img id="c" src="x">
</body></html>`
	srv := serveHTML(t, page)
	art, err := NewExtractor(srv.Client(), "", nil).Extract(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, art.MediaURL)
}
