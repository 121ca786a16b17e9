package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"
)

// Fetcher downloads and validates media assets.
type Fetcher struct {
	client *http.Client
	cfg    Config
	log    *zap.Logger
}

// NewFetcher builds a fetcher. A nil client gets one with the configured
// download timeout.
func NewFetcher(cfg Config, client *http.Client, log *zap.Logger) *Fetcher {
	cfg = cfg.withDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.DownloadTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{client: client, cfg: cfg, log: log}
}

// Fetch downloads rawURL and returns an accepted asset, or a *RejectError.
// A rejected payload never leaves a file behind.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Asset, error) {
	f.log.Info("Downloading media", zap.String("url", rawURL))

	ctx, cancel := context.WithTimeout(ctx, f.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, reject(ReasonDownload, "build request: %v", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "image/gif,*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, reject(ReasonDownload, "%v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, reject(ReasonDownload, "HTTP %d", resp.StatusCode)
	}

	limit := f.cfg.MaxAnimatedBytes
	if f.cfg.MaxBytes > limit {
		limit = f.cfg.MaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, reject(ReasonDownload, "read body: %v", err)
	}

	contentType := resp.Header.Get("Content-Type")
	asset, payload, err := f.validate(rawURL, contentType, data)
	if err != nil {
		f.log.Warn("Media rejected", zap.String("url", rawURL), zap.Error(err))
		return nil, err
	}
	if err := f.store(asset, payload); err != nil {
		return nil, err
	}
	f.log.Info("Media accepted",
		zap.String("format", string(asset.Format)),
		zap.Int64("size", asset.Size),
		zap.Bool("transcoded", asset.Transcoded),
		zap.String("path", asset.Path))
	return asset, nil
}

// validate applies the acceptance policy to a downloaded payload and returns
// the asset metadata with the bytes to store.
func (f *Fetcher) validate(rawURL, contentType string, data []byte) (*Asset, []byte, error) {
	size := int64(len(data))
	hint := ExtensionHint(contentType, rawURL)

	if size < f.cfg.MinBytes {
		return nil, nil, reject(ReasonTooSmall, "%d bytes", size)
	}
	if hint == ".gif" && size > f.cfg.MaxAnimatedBytes {
		return nil, nil, reject(ReasonTooLarge, "animated payload over %d bytes", f.cfg.MaxAnimatedBytes)
	}
	if size > f.cfg.MaxBytes {
		return nil, nil, reject(ReasonTooLarge, "payload over %d bytes", f.cfg.MaxBytes)
	}

	format, mime := Sniff(data)
	asset := &Asset{SourceURL: rawURL, DeclaredContentType: contentType, Format: format, Size: size}

	if hint == ".gif" && format != FormatGIF {
		if format != FormatWebP {
			return nil, nil, reject(ReasonMismatch, "named as gif but sniffed %s", mime)
		}
		f.log.Warn("File has .gif extension but is WebP, converting to PNG", zap.String("url", rawURL))
		out, bounds, err := WebPToPNG(data)
		if err != nil {
			return nil, nil, reject(ReasonDecode, "%v", err)
		}
		asset.Format, asset.Size, asset.Transcoded = FormatPNG, int64(len(out)), true
		asset.Width, asset.Height = bounds.Dx(), bounds.Dy()
		return asset, out, nil
	}

	switch format {
	case FormatGIF:
		info, err := inspectGIF(data)
		if err != nil {
			return nil, nil, reject(ReasonDecode, "gif: %v", err)
		}
		asset.Frames, asset.Width, asset.Height = info.frames, info.width, info.height
		if info.frames <= 1 {
			f.log.Warn("GIF file is not animated", zap.String("url", rawURL))
		} else {
			f.log.Info("Valid animated GIF", zap.Int("frames", info.frames))
		}
		if info.width > f.cfg.MaxDimension || info.height > f.cfg.MaxDimension {
			f.log.Warn("GIF dimensions too large", zap.Int("width", info.width), zap.Int("height", info.height))
		}
		return asset, data, nil

	case FormatWebP:
		if hint == ".webp" && size < f.cfg.SmallWebPBytes {
			out, bounds, err := WebPToPNG(data)
			if err != nil {
				f.log.Warn("Failed to convert WebP to PNG, keeping original", zap.Error(err))
			} else {
				asset.Format, asset.Size, asset.Transcoded = FormatPNG, int64(len(out)), true
				asset.Width, asset.Height = bounds.Dx(), bounds.Dy()
				return asset, out, nil
			}
		}

	case FormatPNG, FormatJPEG:

	default:
		return nil, nil, reject(ReasonFormat, "sniffed %s", mime)
	}

	if w, h, ok := dimensions(data); ok {
		asset.Width, asset.Height = w, h
	}
	return asset, data, nil
}

func (f *Fetcher) store(asset *Asset, payload []byte) error {
	file, err := os.CreateTemp(f.cfg.TempDir, "spectrumpost-*"+asset.Format.Ext())
	if err != nil {
		return fmt.Errorf("create media file: %w", err)
	}
	if _, err := file.Write(payload); err != nil {
		file.Close()
		os.Remove(file.Name())
		return fmt.Errorf("write media file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return fmt.Errorf("close media file: %w", err)
	}
	asset.Path = file.Name()
	return nil
}
