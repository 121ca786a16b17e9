// Package app runs one pass of the pipeline: discover, deduplicate, select,
// extract, fetch media, publish, then record the result.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/deusflow/spectrumpost/internal/archive"
	"github.com/deusflow/spectrumpost/internal/media"
	"github.com/deusflow/spectrumpost/internal/news"
	"github.com/deusflow/spectrumpost/internal/post"
	"github.com/deusflow/spectrumpost/internal/publish"
	"github.com/deusflow/spectrumpost/internal/runctx"
	"github.com/deusflow/spectrumpost/internal/scraper"
	"github.com/deusflow/spectrumpost/internal/selection"
	"github.com/deusflow/spectrumpost/internal/source"
)

var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrNoFreshCandidates = errors.New("no fresh candidates")
	ErrNoSelection       = selection.ErrNoSelection
	ErrExtractionFailed  = errors.New("extraction failed")
	ErrLedgerWrite       = errors.New("ledger write failed")

	ErrCompositionFailed    = publish.ErrCompositionFailed
	ErrDeliveryFailed       = publish.ErrDeliveryFailed
	ErrRetryBudgetExhausted = publish.ErrRetryBudgetExhausted
	// ErrMediaRejected never ends a run; it is logged and counted.
	ErrMediaRejected = media.ErrRejected
)

type Status string

const (
	StatusPublished Status = "published"
	StatusNoop      Status = "noop"
	StatusFailed    Status = "failed"
)

// Outcome is the single result of a run.
type Outcome struct {
	Status    Status
	RunID     string
	Candidate *news.Candidate
	Attempts  int
	// Draft is the composed post: delivered, or only logged on a dry run.
	Draft string
	Err   error
}

// ExitCode maps the outcome to a process exit status.
func (o Outcome) ExitCode() int {
	if o.Status == StatusFailed {
		return 1
	}
	return 0
}

// Ledger is the part of the idempotency store a run uses.
type Ledger interface {
	news.Index
	Add(ctx context.Context, identifier string) (bool, error)
}

type Selector interface {
	Select(ctx context.Context, cands []news.Candidate) (selection.Choice, error)
}

type Extractor interface {
	Extract(ctx context.Context, pageURL string) (*scraper.Article, error)
}

type Publisher interface {
	Publish(ctx context.Context, req publish.Request) (publish.Result, error)
}

type Archiver interface {
	Write(ctx context.Context, rec archive.Record) (string, error)
}

// Recorder receives run statistics.
type Recorder interface {
	ObserveCandidates(stage string, n int)
	ObserveMediaRejected(reason string)
	ObserveRun(outcome string, duration time.Duration, errText string)
}

// Deps are the collaborators of a run. Archive and Metrics may be nil.
type Deps struct {
	Collectors []source.Collector
	Ledger     Ledger
	Selector   Selector
	Extractor  Extractor
	Media      publish.MediaSource
	// Composer is only used by dry runs; Publisher composes otherwise.
	Composer  publish.Composer
	Publisher Publisher
	Archive   Archiver
	Metrics   Recorder
	Now       func() time.Time
}

type Options struct {
	// DryRun composes the post and stops before delivery.
	DryRun bool
}

// Run executes one pipeline pass. The ledger is written only after a
// confirmed delivery and is the run's single commit point.
func Run(ctx context.Context, run *runctx.Run, deps Deps, opts Options) Outcome {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := run.Log
	log.Info("Starting pipeline run", zap.Bool("dry_run", opts.DryRun))

	out := execute(ctx, run, deps, opts)
	out.RunID = run.ID

	duration := deps.Now().Sub(run.Started)
	errText := ""
	switch out.Status {
	case StatusPublished:
		log.Info("Run completed", zap.Duration("duration", duration), zap.Int("attempts", out.Attempts))
	case StatusNoop:
		if out.Err != nil {
			log.Info("Nothing published", zap.String("reason", out.Err.Error()))
		}
	case StatusFailed:
		errText = out.Err.Error()
		log.Error("Run failed", zap.Error(out.Err), zap.Duration("duration", duration))
	}
	if deps.Metrics != nil {
		deps.Metrics.ObserveRun(string(out.Status), duration, errText)
	}
	return out
}

func execute(ctx context.Context, run *runctx.Run, deps Deps, opts Options) Outcome {
	log := run.Log

	records, err := discover(ctx, log, deps.Collectors)
	if err != nil {
		return outcome(err)
	}
	candidates := news.Normalize(run, records)
	unpublished := news.Unpublished(candidates, deps.Ledger)
	log.Info("Candidates filtered",
		zap.Int("discovered", len(records)),
		zap.Int("fresh", len(candidates)),
		zap.Int("unpublished", len(unpublished)))
	observeCandidates(deps.Metrics, len(records), len(candidates), len(unpublished))
	if len(unpublished) == 0 {
		return outcome(ErrNoFreshCandidates)
	}

	choice, err := deps.Selector.Select(ctx, unpublished)
	if err != nil {
		return outcome(err)
	}
	cand := choice.Candidate
	log = log.With(zap.String("link", cand.Identifier))
	log.Info("Selected article", zap.String("title", cand.Title), zap.Bool("fallback", choice.Fallback))

	article, err := deps.Extractor.Extract(ctx, cand.Identifier)
	if err != nil {
		return withCandidate(outcome(fmt.Errorf("%w: %w", ErrExtractionFailed, err)), cand)
	}
	if article.Body == "" {
		return withCandidate(outcome(fmt.Errorf("%w: no article content", ErrExtractionFailed)), cand)
	}

	var asset *media.Asset
	if article.MediaURL != "" && deps.Media != nil {
		asset, err = deps.Media.Fetch(ctx, article.MediaURL)
		if err != nil {
			observeRejection(deps.Metrics, err)
			log.Warn("Continuing without media", zap.Error(err))
			asset = nil
		}
	}

	if opts.DryRun {
		return withCandidate(dryRun(ctx, log, deps.Composer, cand, article.Body, asset), cand)
	}

	res, err := deps.Publisher.Publish(ctx, publish.Request{
		Candidate: cand,
		Body:      article.Body,
		MediaURL:  article.MediaURL,
		Asset:     asset,
	})
	if err != nil {
		o := withCandidate(outcome(err), cand)
		o.Attempts = res.Attempts
		return o
	}

	// The post is out; a cancelled run must still record it.
	commitCtx := context.WithoutCancel(ctx)
	if _, err := deps.Ledger.Add(commitCtx, cand.Identifier); err != nil {
		log.Error("Post delivered but not recorded; it may be published again", zap.Error(err))
		o := withCandidate(outcome(fmt.Errorf("%w: %w", ErrLedgerWrite, err)), cand)
		o.Attempts = res.Attempts
		o.Draft = res.Draft.Markup
		return o
	}
	log.Info("Added URL to published list")

	if deps.Archive != nil {
		rec := archive.NewRecord(deps.Now(), run.ID, cand, res.Draft.Raw, res.MediaURL)
		if _, err := deps.Archive.Write(commitCtx, rec); err != nil {
			log.Error("Error saving article data", zap.Error(err))
		}
	}

	return Outcome{
		Status:    StatusPublished,
		Candidate: &cand,
		Attempts:  res.Attempts,
		Draft:     res.Draft.Markup,
	}
}

// discover fails only when every collector failed.
func discover(ctx context.Context, log *zap.Logger, collectors []source.Collector) ([]source.Record, error) {
	if len(collectors) == 0 {
		return nil, fmt.Errorf("%w: no sources configured", ErrSourceUnavailable)
	}
	var (
		records []source.Record
		errs    []error
	)
	for _, c := range collectors {
		recs, err := c.Discover(ctx)
		if err != nil {
			log.Error("Source failed", zap.String("source", c.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}
		log.Info("Source discovered", zap.String("source", c.Name()), zap.Int("records", len(recs)))
		records = append(records, recs...)
	}
	if len(errs) == len(collectors) {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, errors.Join(errs...))
	}
	return records, nil
}

func dryRun(ctx context.Context, log *zap.Logger, composer publish.Composer, cand news.Candidate, body string, asset *media.Asset) Outcome {
	mode := publish.ModeFor(asset)
	if asset != nil {
		defer func() {
			if err := asset.Release(); err != nil {
				log.Warn("Could not delete temporary media file", zap.Error(err))
			}
		}()
	}
	if composer == nil {
		return outcome(fmt.Errorf("%w: no composer configured", ErrCompositionFailed))
	}
	draft, err := composer.Compose(ctx, post.Request{Candidate: cand, Body: body, Mode: mode, Attempt: 1})
	if err != nil {
		return outcome(fmt.Errorf("%w: %w", ErrCompositionFailed, err))
	}
	log.Info("Dry run, skipping delivery",
		zap.Stringer("mode", mode),
		zap.Int("rendered_length", draft.RenderedLength),
		zap.String("post", draft.Markup))
	return Outcome{Status: StatusNoop, Attempts: 1, Draft: draft.Markup}
}

func outcome(err error) Outcome {
	return Outcome{Status: classify(err), Err: err}
}

func classify(err error) Status {
	switch {
	case err == nil:
		return StatusPublished
	case errors.Is(err, ErrNoFreshCandidates), errors.Is(err, ErrNoSelection):
		return StatusNoop
	default:
		return StatusFailed
	}
}

func withCandidate(o Outcome, c news.Candidate) Outcome {
	o.Candidate = &c
	return o
}

func observeCandidates(r Recorder, discovered, fresh, unpublished int) {
	if r == nil {
		return
	}
	r.ObserveCandidates("discovered", discovered)
	r.ObserveCandidates("fresh", fresh)
	r.ObserveCandidates("unpublished", unpublished)
}

func observeRejection(r Recorder, err error) {
	if r == nil {
		return
	}
	reason := media.ReasonDownload
	var rej *media.RejectError
	if errors.As(err, &rej) {
		reason = rej.Reason
	}
	r.ObserveMediaRejected(reason)
}
