// Package selection asks the completion service to pick the single most
// promising candidate out of a short list.
package selection

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/deusflow/spectrumpost/internal/llm"
	"github.com/deusflow/spectrumpost/internal/news"
)

const (
	// MaxCandidates is how many candidates the prompt enumerates.
	MaxCandidates = 10
	snippetRunes  = 200
	answerTokens  = 50
)

// DefaultAudience describes the channel the pick is made for.
const DefaultAudience = "a Telegram channel about AI and robotics technology"

// ErrNoSelection means the oracle answered that nothing is suitable, or there
// was nothing to choose from.
var ErrNoSelection = errors.New("no candidate selected")

var leadingNumber = regexp.MustCompile(`^\d+`)

// Choice is the outcome of a selection.
type Choice struct {
	Candidate news.Candidate
	// Index is the 1-based position in the prompt.
	Index int
	// Fallback is set when the answer was unusable and the first candidate
	// was taken instead.
	Fallback bool
}

type Options struct {
	Audience    string
	Temperature float64
}

type Oracle struct {
	completer llm.Completer
	opts      Options
	log       *zap.Logger
}

func New(completer llm.Completer, opts Options, log *zap.Logger) *Oracle {
	if opts.Audience == "" {
		opts.Audience = DefaultAudience
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Oracle{completer: completer, opts: opts, log: log}
}

// Select picks one of cands. Transport errors and unparsable answers fall back
// to the first candidate; an explicit "0" yields ErrNoSelection.
func (o *Oracle) Select(ctx context.Context, cands []news.Candidate) (Choice, error) {
	if len(cands) == 0 {
		o.log.Warn("No articles to select from")
		return Choice{}, ErrNoSelection
	}
	shown := cands
	if len(shown) > MaxCandidates {
		shown = shown[:MaxCandidates]
	}

	answer, err := o.completer.Complete(ctx, BuildPrompt(shown, o.opts.Audience), llm.Options{
		MaxTokens:   answerTokens,
		Temperature: o.opts.Temperature,
	})
	if err != nil {
		o.log.Warn("Selection oracle failed, taking first candidate", zap.Error(err))
		return Choice{Candidate: cands[0], Index: 1, Fallback: true}, nil
	}

	idx, ok := ParseAnswer(answer, len(shown))
	switch {
	case !ok:
		o.log.Warn("Oracle returned unusable answer, taking first candidate", zap.String("answer", answer))
		return Choice{Candidate: cands[0], Index: 1, Fallback: true}, nil
	case idx == 0:
		o.log.Info("Oracle found no suitable candidate")
		return Choice{}, ErrNoSelection
	}

	chosen := shown[idx-1]
	o.log.Info("AI selected article", zap.Int("index", idx), zap.String("title", chosen.Title))
	return Choice{Candidate: chosen, Index: idx}, nil
}

// ParseAnswer reads the leading integer of answer. ok is false when there is
// no number or it is outside 0..n.
func ParseAnswer(answer string, n int) (int, bool) {
	m := leadingNumber.FindString(llm.CleanText(answer))
	if m == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(m)
	if err != nil || idx < 0 || idx > n {
		return 0, false
	}
	return idx, true
}

// BuildPrompt enumerates cands with title, author, topic and a summary snippet.
func BuildPrompt(cands []news.Candidate, audience string) string {
	var list strings.Builder
	for i, c := range cands {
		fmt.Fprintf(&list, "%d. %s\n", i+1, c.Title)
		fmt.Fprintf(&list, "   Author: %s\n", c.Author)
		fmt.Fprintf(&list, "   Topic: %s\n", c.Topic)
		fmt.Fprintf(&list, "   Description: %s...\n\n", snippet(c.Summary))
	}

	return fmt.Sprintf(`You are an expert in technology and content. From the following list of articles pick ONE, the most interesting and shareable, to publish in %s.

Selection criteria:
- Potential to spread
- Interest for a broad audience
- Technological significance

Articles:
%s
Answer ONLY with the number of the chosen article (1-%d). If no article is suitable, answer "0".`, audience, list.String(), len(cands))
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) > snippetRunes {
		r = r[:snippetRunes]
	}
	return string(r)
}
