// Package post composes the publishable text for a candidate: it asks the
// completion service for prose within a length window and converts the
// result to Telegram HTML.
package post

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/deusflow/spectrumpost/internal/llm"
	"github.com/deusflow/spectrumpost/internal/news"
)

// Mode is how a post is delivered. Each mode has its own length ceiling.
type Mode int

const (
	ModeText Mode = iota
	ModePhoto
	ModeAnimation
)

const (
	CaptionCeiling = 1024
	TextCeiling    = 4096
)

func (m Mode) String() string {
	switch m {
	case ModePhoto:
		return "photo"
	case ModeAnimation:
		return "animation"
	default:
		return "text"
	}
}

// Ceiling is the rendered length the endpoint accepts in one message.
func (m Mode) Ceiling() int {
	if m == ModeText {
		return TextCeiling
	}
	return CaptionCeiling
}

// HasCaption reports whether the text travels as a media caption.
func (m Mode) HasCaption() bool { return m != ModeText }

// Budget is the length instruction given to the model.
type Budget struct {
	Min       int
	Max       int
	Hashtags  int
	BodyRunes int
}

// BudgetFor returns the window for a mode and 1-based attempt number. Caption
// windows shrink by 60 code points per recompose.
func BudgetFor(mode Mode, attempt int) Budget {
	if mode == ModeText {
		return Budget{Min: 1000, Max: 3000, Hashtags: 5, BodyRunes: 2900}
	}
	if attempt <= 1 {
		return Budget{Min: 700, Max: CaptionCeiling, Hashtags: 5, BodyRunes: 2900}
	}
	maxLen := 1000 - 60*(attempt-2)
	if maxLen < 100 {
		maxLen = 100
	}
	minLen := maxLen - 300
	if minLen < 200 {
		minLen = 200
	}
	if minLen > maxLen {
		minLen = maxLen
	}
	return Budget{Min: minLen, Max: maxLen, Hashtags: 3, BodyRunes: 1500}
}

// ErrEmptyDraft means the model returned nothing usable.
var ErrEmptyDraft = errors.New("empty draft")

// Request is one composition call.
type Request struct {
	Candidate news.Candidate
	Body      string
	Mode      Mode
	Attempt   int
}

// Draft is generated text bound to one candidate.
type Draft struct {
	// Raw is the model output after placeholder substitution.
	Raw string
	// Markup is Raw converted to Telegram HTML.
	Markup         string
	RenderedLength int
	Attempt        int
	Mode           Mode
	Budget         Budget
}

type Options struct {
	Audience        string
	Language        string
	LinkPlaceholder string
	MaxTokens       int
	Temperature     float64
}

const (
	DefaultAudience        = "a Telegram channel about AI and robotics technology"
	DefaultLanguage        = "English"
	DefaultLinkPlaceholder = "[link]"
)

type Composer struct {
	completer llm.Completer
	opts      Options
	log       *zap.Logger
}

func NewComposer(completer llm.Completer, opts Options, log *zap.Logger) *Composer {
	if opts.Audience == "" {
		opts.Audience = DefaultAudience
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.LinkPlaceholder == "" {
		opts.LinkPlaceholder = DefaultLinkPlaceholder
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{completer: completer, opts: opts, log: log}
}

// Compose generates a draft for req.
func (c *Composer) Compose(ctx context.Context, req Request) (Draft, error) {
	if req.Attempt < 1 {
		req.Attempt = 1
	}
	budget := BudgetFor(req.Mode, req.Attempt)

	text, err := c.completer.Complete(ctx, c.prompt(req, budget), llm.Options{
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return Draft{}, fmt.Errorf("generate post: %w", err)
	}
	text = llm.CleanText(text)
	if text == "" {
		return Draft{}, ErrEmptyDraft
	}
	text = strings.ReplaceAll(text, c.opts.LinkPlaceholder, req.Candidate.Identifier)

	markup := ToTelegramHTML(text)
	d := Draft{
		Raw:            text,
		Markup:         markup,
		RenderedLength: RenderedLength(markup),
		Attempt:        req.Attempt,
		Mode:           req.Mode,
		Budget:         budget,
	}
	c.log.Info("Composed post",
		zap.Int("attempt", d.Attempt),
		zap.Stringer("mode", d.Mode),
		zap.Int("rendered_length", d.RenderedLength),
		zap.Int("target_max", budget.Max))
	return d, nil
}

func (c *Composer) prompt(req Request, b Budget) string {
	short := ""
	if req.Mode.HasCaption() && req.Attempt > 1 {
		short = "very short "
	}
	return fmt.Sprintf(`Based on this article, create a %sshareable post for %s, %d to %d characters long including hashtags. Do not end the post with a question. Use at most %d hashtags. Keep the style informative and useful. Use markup (**bold**, *italic*, __underline__, ~~strikethrough~~, `+"`code`"+`, [text](url)), paragraph breaks and emoji; emoji read best at the start of a paragraph. Where the post links to the article, write %s. Check the character count at the end: %d to %d characters including hashtags. Write the post in %s. Output only the post itself.

Article title: %s

Article content: %s`,
		short, c.opts.Audience, b.Min, b.Max, b.Hashtags, c.opts.LinkPlaceholder,
		b.Min, b.Max, c.opts.Language, req.Candidate.Title, excerpt(req.Body, b.BodyRunes))
}

func excerpt(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
