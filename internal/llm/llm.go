// Package llm defines the text-completion capability shared by the
// selection oracle and the post composer.
package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyResponse is returned by backends that got a reply with no text.
var ErrEmptyResponse = errors.New("empty completion")

// Options tune a single completion call. Zero values mean backend default.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Completer produces a completion for one prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string, opts Options) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}

// CleanText trims whitespace and a surrounding markdown code fence that some
// models wrap their answer in.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop a language tag such as ```html
		if !strings.ContainsAny(s[:nl], " \t") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
