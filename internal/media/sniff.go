package media

import (
	"bytes"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var sniffable = map[string]Format{
	"image/gif":  FormatGIF,
	"image/png":  FormatPNG,
	"image/jpeg": FormatJPEG,
	"image/webp": FormatWebP,
}

// Sniff returns the accepted format encoded in data, or "" with the detected
// MIME type when it is something else.
func Sniff(data []byte) (Format, string) {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if f, ok := sniffable[m.String()]; ok {
			return f, mt.String()
		}
	}
	return "", mt.String()
}

// ExtensionHint guesses the extension a payload claims to have. A ".gif"
// anywhere in the URL wins, then the declared content type, then the URL
// path suffix, then a default.
func ExtensionHint(contentType, rawURL string) string {
	lowerURL := strings.ToLower(rawURL)
	if strings.Contains(lowerURL, ".gif") {
		return ".gif"
	}

	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "video"):
		switch {
		case strings.Contains(ct, "webm"):
			return ".webm"
		case strings.Contains(ct, "avi"):
			return ".avi"
		default:
			return ".mp4"
		}
	case strings.Contains(ct, "image"):
		switch {
		case strings.Contains(ct, "jpeg"), strings.Contains(ct, "jpg"):
			return ".jpg"
		case strings.Contains(ct, "png"):
			return ".png"
		case strings.Contains(ct, "gif"):
			return ".gif"
		case strings.Contains(ct, "webp"):
			return ".webp"
		default:
			return ".jpg"
		}
	}

	path := lowerURL
	if u, err := url.Parse(rawURL); err == nil {
		path = strings.ToLower(u.Path)
	}
	for _, ext := range []string{".mp4", ".webm", ".avi", ".png", ".gif", ".webp"} {
		if strings.HasSuffix(path, ext) {
			return ext
		}
	}
	if strings.HasSuffix(path, ".jpg") || strings.HasSuffix(path, ".jpeg") {
		return ".jpg"
	}

	if strings.Contains(lowerURL, "video") {
		return ".mp4"
	}
	return ".jpg"
}

type gifInfo struct {
	frames        int
	width, height int
}

func inspectGIF(data []byte) (gifInfo, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return gifInfo{}, err
	}
	return gifInfo{frames: len(g.Image), width: g.Config.Width, height: g.Config.Height}, nil
}

func dimensions(data []byte) (int, int, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}
