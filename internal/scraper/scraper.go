// Package scraper discovers candidates on topic listing pages and extracts
// body text and a representative media URL from article pages.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Article is the extracted content of one article page.
type Article struct {
	URL   string
	Title string
	Body  string
	// MediaURL is absolute, or "" when the page offered nothing usable.
	MediaURL string
	Animated bool
}

var contentSelectors = []string{
	"article",
	".article-content",
	".post-content",
	".entry-content",
	".content",
	"main",
}

var metaImageSelectors = []string{
	`meta[property="og:image"]`,
	`meta[name="twitter:image"]`,
	`meta[property="og:image:secure_url"]`,
}

var inlineImageSelectors = []string{
	".article-featured-image img",
	".post-featured-image img",
	".entry-featured-image img",
	".featured-image img",
	"article img",
	".article-content img",
	".post-content img",
	".entry-content img",
	"main img",
}

var srcsetSplit = regexp.MustCompile(`[,\s]+`)

const (
	minImageSide = 200
	maxPageBytes = 10 << 20
)

// Extractor fetches article pages.
type Extractor struct {
	client    *http.Client
	userAgent string
	log       *zap.Logger
}

// NewExtractor builds an extractor. A nil client gets a 30s timeout client.
func NewExtractor(client *http.Client, userAgent string, log *zap.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{client: client, userAgent: userAgent, log: log}
}

// Extract downloads pageURL and returns its body text and best media URL.
// An empty Body is not an error; the caller decides what that means.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	base := resp.Request.URL
	doc.Find("script, style, nav, header, footer, aside").Remove()

	article := &Article{
		URL:   base.String(),
		Title: strings.TrimSpace(doc.Find("h1").First().Text()),
		Body:  e.extractBody(doc, raw, base),
	}

	mediaURL, animated := findMedia(doc)
	if mediaURL != "" {
		if abs := resolve(base, mediaURL); abs != "" {
			article.MediaURL = abs
			article.Animated = animated
		}
	}

	e.log.Info("Extracted article",
		zap.String("url", article.URL),
		zap.Int("body_chars", len([]rune(article.Body))),
		zap.String("media_url", article.MediaURL),
		zap.Bool("animated", article.Animated))
	return article, nil
}

func (e *Extractor) extractBody(doc *goquery.Document, raw []byte, base *url.URL) string {
	for _, sel := range contentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			if text := collapse(spacedText(found)); text != "" {
				return text
			}
			break
		}
	}

	if art, err := readability.FromReader(bytes.NewReader(raw), base); err == nil {
		if text := collapse(art.TextContent); text != "" {
			e.log.Debug("Used readability fallback", zap.String("url", base.String()))
			return text
		}
	}

	return collapse(spacedText(doc.Selection))
}

// findMedia prefers an animated asset over a static image.
func findMedia(doc *goquery.Document) (string, bool) {
	if u := pictureGIF(doc); u != "" {
		return u, true
	}
	if u := imgGIF(doc); u != "" {
		return u, true
	}
	return mainImage(doc), false
}

func pictureGIF(doc *goquery.Document) string {
	var found string
	doc.Find("picture source").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		srcset, _ := s.Attr("srcset")
		if !strings.Contains(strings.ToLower(srcset), ".gif") {
			return true
		}
		for _, part := range srcsetSplit.Split(srcset, -1) {
			if strings.Contains(strings.ToLower(part), ".gif") {
				found = part
				return false
			}
		}
		return true
	})
	return found
}

func imgGIF(doc *goquery.Document) string {
	var found string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if strings.Contains(strings.ToLower(src), ".gif") {
			found = strings.TrimSpace(src)
			return false
		}
		return true
	})
	return found
}

func mainImage(doc *goquery.Document) string {
	for _, sel := range metaImageSelectors {
		if content, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(content) != "" {
			return strings.TrimSpace(content)
		}
	}

	for _, sel := range inlineImageSelectors {
		best, bestArea := "", -1
		doc.Find(sel).Each(func(_ int, img *goquery.Selection) {
			src := strings.TrimSpace(img.AttrOr("src", ""))
			if src == "" {
				return
			}
			area, ok := declaredArea(img)
			if !ok {
				return
			}
			if area > bestArea {
				best, bestArea = src, area
			}
		})
		if best != "" {
			return best
		}
	}
	return ""
}

// declaredArea returns the declared pixel area. Images without usable
// dimensions qualify with area 0; images smaller than 200x200 do not qualify.
func declaredArea(img *goquery.Selection) (int, bool) {
	w, errW := strconv.Atoi(strings.TrimSpace(img.AttrOr("width", "")))
	h, errH := strconv.Atoi(strings.TrimSpace(img.AttrOr("height", "")))
	if errW != nil || errH != nil {
		return 0, true
	}
	if w < minImageSide || h < minImageSide {
		return 0, false
	}
	return w * h, true
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

// spacedText joins every text node under sel with single spaces, so adjacent
// block elements do not run their words together.
func spacedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
