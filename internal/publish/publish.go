// Package publish drives the compose and deliver cycle. A delivery rejected
// because the text is too long is recomposed with a tighter length budget;
// any other failure ends the cycle.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/deusflow/spectrumpost/internal/media"
	"github.com/deusflow/spectrumpost/internal/news"
	"github.com/deusflow/spectrumpost/internal/post"
	"github.com/deusflow/spectrumpost/internal/retry"
)

const DefaultMaxAttempts = 10

var (
	ErrDeliveryFailed       = errors.New("delivery failed")
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
	ErrCompositionFailed    = errors.New("composition failed")

	// errTooLong is the local preflight failure; it carries the same
	// signature the endpoint uses.
	errTooLong = errors.New("caption is too long")
)

// Attempt outcomes reported to the observer.
const (
	OutcomeDelivered = "delivered"
	OutcomeTooLong   = "too_long"
	OutcomeFailed    = "failed"
)

// Endpoint is the delivery service.
type Endpoint interface {
	SendAnimation(ctx context.Context, file io.Reader, fileName, caption string) error
	SendPhoto(ctx context.Context, file io.Reader, fileName, caption string) error
	SendText(ctx context.Context, text string) error
}

// Composer produces a draft for one attempt.
type Composer interface {
	Compose(ctx context.Context, req post.Request) (post.Draft, error)
}

// MediaSource re-acquires the media asset for later attempts.
type MediaSource interface {
	Fetch(ctx context.Context, rawURL string) (*media.Asset, error)
}

type Options struct {
	MaxAttempts int
	// Observe, when set, is told the outcome of every attempt.
	Observe func(mode post.Mode, outcome string)
}

// Request is everything one publication needs. Asset, when set, is used by
// the first attempt and is owned by the machine from then on.
type Request struct {
	Candidate news.Candidate
	Body      string
	MediaURL  string
	Asset     *media.Asset
}

// Result describes the delivered post.
type Result struct {
	Draft    post.Draft
	Attempts int
	Mode     post.Mode
	// MediaURL is set when the delivered post carried media.
	MediaURL string
}

type Machine struct {
	endpoint Endpoint
	composer Composer
	media    MediaSource
	opts     Options
	log      *zap.Logger
}

func New(endpoint Endpoint, composer Composer, mediaSource MediaSource, opts Options, log *zap.Logger) *Machine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{endpoint: endpoint, composer: composer, media: mediaSource, opts: opts, log: log}
}

// IsTooLong reports whether err is a length rejection.
func IsTooLong(err error) bool {
	if err == nil || errors.Is(err, ErrCompositionFailed) {
		return false
	}
	return errors.Is(err, errTooLong) || strings.Contains(strings.ToLower(err.Error()), "too long")
}

// Publish runs attempts until one is delivered. Every asset the machine holds
// is released before Publish returns, whatever the outcome.
func (m *Machine) Publish(ctx context.Context, req Request) (Result, error) {
	pending := req.Asset
	defer func() {
		if pending != nil {
			m.release(pending)
		}
	}()

	var res Result
	attempts, err := retry.WithRetry(ctx, retry.RetryConfig{MaxAttempts: m.opts.MaxAttempts}, IsTooLong, func(attempt int) error {
		asset := pending
		pending = nil
		if attempt > 1 && req.MediaURL != "" {
			asset = m.refetch(ctx, req.MediaURL)
		}
		if asset != nil {
			defer m.release(asset)
		}

		mode := ModeFor(asset)
		draft, err := m.composer.Compose(ctx, post.Request{
			Candidate: req.Candidate,
			Body:      req.Body,
			Mode:      mode,
			Attempt:   attempt,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCompositionFailed, err)
		}

		if err := m.deliver(ctx, mode, asset, draft); err != nil {
			if IsTooLong(err) {
				m.log.Warn("Caption too long, recreating post with shorter content",
					zap.Int("attempt", attempt),
					zap.Int("max_attempts", m.opts.MaxAttempts),
					zap.Int("rendered_length", draft.RenderedLength),
					zap.Error(err))
				m.observe(mode, OutcomeTooLong)
			} else {
				m.observe(mode, OutcomeFailed)
			}
			return err
		}

		m.observe(mode, OutcomeDelivered)
		res = Result{Draft: draft, Attempts: attempt, Mode: mode}
		if asset != nil {
			res.MediaURL = req.MediaURL
		}
		return nil
	})

	switch {
	case err == nil:
		m.log.Info("Successfully published post", zap.Int("attempts", attempts), zap.Stringer("mode", res.Mode))
		return res, nil
	case errors.Is(err, retry.ErrExhausted):
		return Result{Attempts: attempts}, fmt.Errorf("%w: %w", ErrRetryBudgetExhausted, err)
	case errors.Is(err, ErrCompositionFailed):
		return Result{Attempts: attempts}, err
	default:
		return Result{Attempts: attempts}, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
}

func (m *Machine) deliver(ctx context.Context, mode post.Mode, asset *media.Asset, draft post.Draft) error {
	if mode.HasCaption() && draft.RenderedLength > mode.Ceiling() {
		return fmt.Errorf("%w: %d > %d", errTooLong, draft.RenderedLength, mode.Ceiling())
	}

	switch mode {
	case post.ModeText:
		return m.endpoint.SendText(ctx, draft.Markup)
	default:
		f, err := asset.Open()
		if err != nil {
			return fmt.Errorf("open media: %w", err)
		}
		defer f.Close()
		if mode == post.ModeAnimation {
			return m.endpoint.SendAnimation(ctx, f, asset.FileName(), draft.Markup)
		}
		return m.endpoint.SendPhoto(ctx, f, asset.FileName(), draft.Markup)
	}
}

func (m *Machine) refetch(ctx context.Context, rawURL string) *media.Asset {
	if m.media == nil {
		return nil
	}
	asset, err := m.media.Fetch(ctx, rawURL)
	if err != nil {
		m.log.Warn("Failed to download media, will publish without it", zap.Error(err))
		return nil
	}
	return asset
}

func (m *Machine) release(asset *media.Asset) {
	if err := asset.Release(); err != nil {
		m.log.Warn("Could not delete temporary media file", zap.Error(err))
	}
}

func (m *Machine) observe(mode post.Mode, outcome string) {
	if m.opts.Observe != nil {
		m.opts.Observe(mode, outcome)
	}
}

// ModeFor picks the delivery mode an asset implies; nil means bare text.
func ModeFor(asset *media.Asset) post.Mode {
	switch {
	case asset == nil:
		return post.ModeText
	case asset.Animated():
		return post.ModeAnimation
	default:
		return post.ModePhoto
	}
}
