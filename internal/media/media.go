// Package media downloads, validates and normalizes the single media asset
// attached to a post.
package media

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Format is a sniffed encoding.
type Format string

const (
	FormatGIF  Format = "gif"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// Ext returns the file extension used for a format.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case "":
		return ""
	default:
		return "." + string(f)
	}
}

// Rejection reasons.
const (
	ReasonDownload = "download"
	ReasonTooSmall = "too_small"
	ReasonTooLarge = "too_large"
	ReasonMismatch = "format_mismatch"
	ReasonFormat   = "unsupported_format"
	ReasonDecode   = "decode"
)

// ErrRejected matches every asset rejection.
var ErrRejected = errors.New("media rejected")

// RejectError describes why an asset was not accepted.
type RejectError struct {
	Reason string
	Detail string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("media rejected (%s): %s", e.Reason, e.Detail)
}

func (e *RejectError) Is(target error) bool { return target == ErrRejected }

func reject(reason, format string, args ...any) error {
	return &RejectError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Config holds the acceptance policy.
type Config struct {
	DownloadTimeout  time.Duration
	MinBytes         int64
	MaxAnimatedBytes int64
	// MaxBytes caps any other download.
	MaxBytes       int64
	SmallWebPBytes int64
	MaxDimension   int
	UserAgent      string
	// TempDir holds downloaded files; "" means os.TempDir().
	TempDir string
}

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultConfig returns the standard policy.
func DefaultConfig() Config {
	return Config{
		DownloadTimeout:  30 * time.Second,
		MinBytes:         100,
		MaxAnimatedBytes: 50 << 20,
		MaxBytes:         50 << 20,
		SmallWebPBytes:   50_000,
		MaxDimension:     2000,
		UserAgent:        DefaultUserAgent,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = d.DownloadTimeout
	}
	if c.MinBytes <= 0 {
		c.MinBytes = d.MinBytes
	}
	if c.MaxAnimatedBytes <= 0 {
		c.MaxAnimatedBytes = d.MaxAnimatedBytes
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = d.MaxBytes
	}
	if c.SmallWebPBytes <= 0 {
		c.SmallWebPBytes = d.SmallWebPBytes
	}
	if c.MaxDimension <= 0 {
		c.MaxDimension = d.MaxDimension
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	return c
}

// Asset is a validated payload stored in a local temporary file. The file is
// owned by whoever holds the Asset and must be released exactly once.
type Asset struct {
	SourceURL           string
	DeclaredContentType string
	Format              Format
	Size                int64
	Width               int
	Height              int
	Frames              int
	Transcoded          bool
	Path                string

	once       sync.Once
	releaseErr error
}

// Animated reports whether the asset goes out as an animation.
func (a *Asset) Animated() bool { return a.Format == FormatGIF }

// FileName is the upload name presented to the endpoint.
func (a *Asset) FileName() string { return "media" + a.Format.Ext() }

// Open opens the stored payload for reading.
func (a *Asset) Open() (*os.File, error) { return os.Open(a.Path) }

// Release removes the stored payload. Later calls return the first result.
func (a *Asset) Release() error {
	a.once.Do(func() {
		if a.Path == "" {
			return
		}
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.releaseErr = fmt.Errorf("remove %s: %w", a.Path, err)
		}
	})
	return a.releaseErr
}
