package app

import (
	"context"
	"fmt"
	"net/http"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/deusflow/spectrumpost/internal/archive"
	"github.com/deusflow/spectrumpost/internal/config"
	"github.com/deusflow/spectrumpost/internal/gemini"
	"github.com/deusflow/spectrumpost/internal/llm"
	"github.com/deusflow/spectrumpost/internal/media"
	"github.com/deusflow/spectrumpost/internal/metrics"
	"github.com/deusflow/spectrumpost/internal/openrouter"
	"github.com/deusflow/spectrumpost/internal/post"
	"github.com/deusflow/spectrumpost/internal/publish"
	"github.com/deusflow/spectrumpost/internal/rss"
	"github.com/deusflow/spectrumpost/internal/scraper"
	"github.com/deusflow/spectrumpost/internal/selection"
	"github.com/deusflow/spectrumpost/internal/source"
	"github.com/deusflow/spectrumpost/internal/storage"
	"github.com/deusflow/spectrumpost/internal/telegram"
)

// OpenLedger opens and loads the configured idempotency store.
func OpenLedger(ctx context.Context, cfg config.LedgerConfig, log *zap.Logger) (storage.Ledger, error) {
	var ledger storage.Ledger
	switch cfg.Backend {
	case config.LedgerPostgres:
		pl, err := storage.OpenPostgresLedger(ctx, cfg.DSN, log.Named("ledger"))
		if err != nil {
			return nil, err
		}
		ledger = pl
	case config.LedgerFile, "":
		ledger = storage.NewFileLedger(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
	if err := ledger.Load(ctx); err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return ledger, nil
}

// NewCompleter builds the configured text-completion backend. The returned
// func releases its connections.
func NewCompleter(ctx context.Context, cfg config.OracleConfig, log *zap.Logger) (llm.Completer, func(), error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		c, err := gemini.NewClient(ctx, cfg.APIKey, cfg.Model, log.Named("gemini"))
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case config.ProviderOpenRouter, "":
		c, err := openrouter.NewClient(openrouter.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			HTTPClient: &http.Client{Timeout: cfg.Timeout},
		}, log.Named("openrouter"))
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}

// NewCollectors builds one collector per configured source.
func NewCollectors(specs []source.Spec, cfg config.DiscoveryConfig, log *zap.Logger) []source.Collector {
	client := &http.Client{Timeout: cfg.Timeout}
	collectors := make([]source.Collector, 0, len(specs))
	for _, spec := range specs {
		named := log.Named("source").With(zap.String("source", spec.Name))
		switch spec.Kind {
		case source.KindPage:
			collectors = append(collectors, scraper.NewTopicCollector(spec, cfg.UserAgent, cfg.Timeout, named))
		default:
			collectors = append(collectors, rss.New(spec, client, cfg.UserAgent, named))
		}
	}
	return collectors
}

// NewArchiver builds the archive writer, or nil when archiving is off.
func NewArchiver(ctx context.Context, cfg config.ArchiveConfig, log *zap.Logger) (*archive.Writer, func(), error) {
	noop := func() {}
	var store archive.Store
	closer := noop
	switch cfg.Backend {
	case config.ArchiveNone:
		return nil, noop, nil
	case config.ArchiveLocal, "":
		s, err := archive.NewLocalStore(cfg.Dir)
		if err != nil {
			return nil, noop, err
		}
		store = s
	case config.ArchiveGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("create storage client: %w", err)
		}
		s, err := archive.NewGCSStore(client, cfg.Bucket)
		if err != nil {
			client.Close()
			return nil, noop, err
		}
		store = s
		closer = func() { _ = client.Close() }
	case config.ArchiveMinio:
		s, err := archive.NewMinioStore(ctx, archive.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
			Bucket:    cfg.Bucket,
		})
		if err != nil {
			return nil, noop, err
		}
		store = s
	default:
		return nil, noop, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
	return archive.NewWriter(store, cfg.Prefix, log.Named("archive")), closer, nil
}

// Build wires every collaborator of a run from cfg. The ledger is loaded
// here, once per run. The returned func closes what Build opened.
func Build(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *zap.Logger) (Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	specs, err := source.LoadConfig(cfg.SourcesFile)
	if err != nil {
		return Deps{}, cleanup, err
	}

	ledger, err := OpenLedger(ctx, cfg.Ledger, log)
	if err != nil {
		return Deps{}, cleanup, err
	}
	closers = append(closers, func() {
		if err := ledger.Close(); err != nil {
			log.Warn("Failed to close ledger", zap.Error(err))
		}
	})

	completer, closeCompleter, err := NewCompleter(ctx, cfg.Oracle, log)
	if err != nil {
		return Deps{}, cleanup, err
	}
	closers = append(closers, closeCompleter)

	tg, err := telegram.NewClient(telegram.Config{
		Token:      cfg.Telegram.Token,
		ChatID:     cfg.Telegram.ChatID,
		APIBase:    cfg.Telegram.APIBase,
		Timeout:    cfg.Telegram.Timeout,
		ChunkSize:  cfg.Telegram.ChunkSize,
		ChunkPause: cfg.Telegram.ChunkPause,
	}, nil, log.Named("telegram"))
	if err != nil {
		return Deps{}, cleanup, err
	}

	archiver, closeArchive, err := NewArchiver(ctx, cfg.Archive, log)
	if err != nil {
		return Deps{}, cleanup, err
	}
	closers = append(closers, closeArchive)

	composer := post.NewComposer(completer, post.Options{
		Audience:        cfg.Oracle.Audience,
		Language:        cfg.Post.Language,
		LinkPlaceholder: cfg.Post.LinkPlaceholder,
		MaxTokens:       cfg.Oracle.MaxTokens,
		Temperature:     cfg.Oracle.Temperature,
	}, log.Named("composer"))

	fetcher := media.NewFetcher(media.Config{
		DownloadTimeout:  cfg.Media.DownloadTimeout,
		MinBytes:         cfg.Media.MinBytes,
		MaxAnimatedBytes: cfg.Media.MaxAnimatedBytes,
		SmallWebPBytes:   cfg.Media.SmallWebPBytes,
		MaxDimension:     cfg.Media.MaxDimension,
		UserAgent:        cfg.Media.UserAgent,
		TempDir:          cfg.Media.TempDir,
	}, nil, log.Named("media"))

	pubOpts := publish.Options{MaxAttempts: cfg.Post.MaxAttempts}
	if m != nil {
		pubOpts.Observe = func(mode post.Mode, outcome string) {
			m.ObservePublishAttempt(mode.String(), outcome)
		}
	}

	deps := Deps{
		Collectors: NewCollectors(specs, cfg.Discovery, log),
		Ledger:     ledger,
		Selector: selection.New(completer, selection.Options{
			Audience:    cfg.Oracle.Audience,
			Temperature: cfg.Oracle.Temperature,
		}, log.Named("selection")),
		Extractor: scraper.NewExtractor(&http.Client{Timeout: cfg.Discovery.Timeout}, cfg.Discovery.UserAgent, log.Named("extractor")),
		Media:     fetcher,
		Composer:  composer,
		Publisher: publish.New(tg, composer, fetcher, pubOpts, log.Named("publish")),
	}
	if archiver != nil {
		deps.Archive = archiver
	}
	if m != nil {
		deps.Metrics = m
	}
	return deps, cleanup, nil
}
