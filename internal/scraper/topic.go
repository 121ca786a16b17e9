package scraper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/deusflow/spectrumpost/internal/source"
)

var articleSelectors = []string{
	"article",
	".article-card",
	".post-card",
	".content-card",
	`[data-testid="article-card"]`,
}

var (
	titleSelectors  = []string{"h1", "h2", "h3", ".title", ".headline", `[data-testid="title"]`}
	linkSelectors   = []string{"a", ".link", `[data-testid="link"]`}
	descSelectors   = []string{".description", ".summary", ".excerpt", "p"}
	authorSelectors = []string{".author", ".byline", `[data-testid="author"]`}
	dateSelectors   = []string{
		".social-date", ".social-date__text",
		`[class*="date"]`,
		"time",
		".date", ".time", `[data-testid="date"]`,
		".article-date", ".post-date", ".published-date",
		".meta-date", ".timestamp", ".publish-date",
		".byline", ".author-info", ".meta",
	}
	excludedLinkParts = []string{"/topic/", "/type/"}
	cardClassPattern  = regexp.MustCompile(`article|post|content`)
)

// Scanned in order when no date element was found.
var inlineDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d+[hdm]\b`),
	regexp.MustCompile(`(?i)\d{1,2}\s+(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{4}`),
	regexp.MustCompile(`(?i)(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2},?\s+\d{4}`),
	regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}`),
	regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
	regexp.MustCompile(`(?i)(Today|Yesterday)`),
	regexp.MustCompile(`(?i)\d+\s+(hour|day|minute)s?\s+ago`),
}

// TopicCollector scrapes a topic listing page whose cards carry only
// imprecise dates. Its records go through the freshness gate.
type TopicCollector struct {
	spec      source.Spec
	userAgent string
	timeout   time.Duration
	log       *zap.Logger
}

var _ source.Collector = (*TopicCollector)(nil)

// NewTopicCollector builds a collector for one topic page.
func NewTopicCollector(spec source.Spec, userAgent string, timeout time.Duration, log *zap.Logger) *TopicCollector {
	if spec.Limit <= 0 {
		spec.Limit = source.DefaultFeedLimit
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TopicCollector{spec: spec, userAgent: userAgent, timeout: timeout, log: log}
}

// Name returns the configured source name.
func (c *TopicCollector) Name() string { return c.spec.Name }

// Discover fetches the topic page and extracts up to Limit cards.
func (c *TopicCollector) Discover(ctx context.Context) ([]source.Record, error) {
	opts := []colly.CollectorOption{colly.StdlibContext(ctx)}
	if c.userAgent != "" {
		opts = append(opts, colly.UserAgent(c.userAgent))
	}
	collector := colly.NewCollector(opts...)
	collector.SetRequestTimeout(c.timeout)

	var (
		records  []source.Record
		fetchErr error
		visited  bool
	)
	collector.OnHTML("html", func(e *colly.HTMLElement) {
		visited = true
		cards := findCards(e.DOM)
		c.log.Info("Found article cards", zap.String("source", c.spec.Name), zap.Int("cards", cards.Length()))
		cards.EachWithBreak(func(i int, card *goquery.Selection) bool {
			if i >= c.spec.Limit {
				return false
			}
			rec, ok := c.cardRecord(e, card)
			if ok {
				records = append(records, rec)
			}
			return true
		})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("fetch topic page %s (status %d): %w", c.spec.URL, status, err)
	})

	visitErr := collector.Visit(c.spec.URL)
	collector.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if visitErr != nil {
		return nil, fmt.Errorf("visit topic page %s: %w", c.spec.URL, visitErr)
	}
	if !visited {
		return nil, fmt.Errorf("topic page %s returned no HTML document", c.spec.URL)
	}
	return records, nil
}

func findCards(doc *goquery.Selection) *goquery.Selection {
	for _, sel := range articleSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return doc.Find("article, div").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return cardClassPattern.MatchString(class)
	})
}

func (c *TopicCollector) cardRecord(e *colly.HTMLElement, card *goquery.Selection) (source.Record, bool) {
	title := firstText(card, titleSelectors)
	if title == "" {
		return source.Record{}, false
	}
	link := cardLink(e, card)
	if link == "" {
		return source.Record{}, false
	}
	return source.Record{
		Link:          link,
		Title:         title,
		Summary:       firstText(card, descSelectors),
		Author:        firstText(card, authorSelectors),
		Topic:         c.spec.Topic,
		Source:        c.spec.Name,
		DateText:      cardDate(card),
		ImpreciseDate: true,
	}, true
}

func firstText(card *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if found := card.Find(sel).First(); found.Length() > 0 {
			return strings.Join(strings.Fields(found.Text()), " ")
		}
	}
	return ""
}

func cardLink(e *colly.HTMLElement, card *goquery.Selection) string {
	for _, sel := range linkSelectors {
		var link string
		card.Find(sel).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, ok := a.Attr("href")
			if !ok || strings.TrimSpace(href) == "" {
				return true
			}
			for _, part := range excludedLinkParts {
				if strings.Contains(href, part) {
					return true
				}
			}
			link = e.Request.AbsoluteURL(strings.TrimSpace(href))
			return link == ""
		})
		if link != "" {
			return link
		}
	}
	return ""
}

func cardDate(card *goquery.Selection) string {
	for _, sel := range dateSelectors {
		var text string
		card.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if dt, ok := el.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
				text = strings.TrimSpace(dt)
				return false
			}
			t := strings.TrimSpace(el.Text())
			if looksLikeDate(t) {
				text = t
				return false
			}
			return true
		})
		if text != "" {
			return text
		}
	}

	body := card.Text()
	for _, re := range inlineDatePatterns {
		if m := re.FindString(body); m != "" {
			return m
		}
	}
	return ""
}

func looksLikeDate(text string) bool {
	if len(text) <= 2 || !strings.ContainsAny(text, "0123456789") {
		return false
	}
	lower := strings.ToLower(text)
	return !strings.Contains(lower, "read") && !strings.Contains(lower, "ago")
}
