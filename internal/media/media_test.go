package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// 1x1 lossless WebP, padded past the minimum size. The RIFF header length
// still covers only the real image, so decoders ignore the padding.
func webpPayload(t *testing.T) []byte {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString("UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA==")
	require.NoError(t, err)
	return append(raw, make([]byte, 200)...)
}

func gifPayload(t *testing.T, frames, side int) []byte {
	t.Helper()
	g := &gif.GIF{}
	for i := 0; i < frames; i++ {
		img := image.NewPaletted(image.Rect(0, 0, side, side), palette.Plan9)
		for x := 0; x < side; x++ {
			img.SetColorIndex(x, x%side, uint8((x+i*7)%len(palette.Plan9)))
		}
		g.Image = append(g.Image, img)
		g.Delay = append(g.Delay, 10)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))
	return buf.Bytes()
}

func pngPayload(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type mediaServer struct {
	*httptest.Server
	gotUA, gotAccept string
}

func serve(t *testing.T, contentType string, body []byte) *mediaServer {
	t.Helper()
	ms := &mediaServer{}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ms.gotUA = r.Header.Get("User-Agent")
		ms.gotAccept = r.Header.Get("Accept")
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(ms.Close)
	return ms
}

func fetcher(t *testing.T, cfg Config) *Fetcher {
	cfg.TempDir = t.TempDir()
	return NewFetcher(cfg, nil, nil)
}

func TestFetchRejectsTinyPayload(t *testing.T) {
	srv := serve(t, "image/gif", gifPayload(t, 2, 8)[:99])
	_, err := fetcher(t, Config{}).Fetch(context.Background(), srv.URL+"/pixel.gif")
	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonTooSmall, rej.Reason)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestFetchRejectsOversizedAnimation(t *testing.T) {
	payload := gifPayload(t, 3, 32)
	srv := serve(t, "image/gif", payload)
	_, err := fetcher(t, Config{MaxAnimatedBytes: int64(len(payload) - 1)}).Fetch(context.Background(), srv.URL+"/big.gif")
	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonTooLarge, rej.Reason)
}

func TestFetchAcceptsAnimatedGIF(t *testing.T) {
	dir := t.TempDir()
	srv := serve(t, "image/gif", gifPayload(t, 3, 16))
	f := NewFetcher(Config{TempDir: dir}, nil, nil)

	asset, err := f.Fetch(context.Background(), srv.URL+"/loop.gif")
	require.NoError(t, err)
	assert.Equal(t, FormatGIF, asset.Format)
	assert.True(t, asset.Animated())
	assert.Equal(t, 3, asset.Frames)
	assert.Equal(t, 16, asset.Width)
	assert.Equal(t, "media.gif", asset.FileName())
	assert.Equal(t, DefaultUserAgent, srv.gotUA)
	assert.Equal(t, "image/gif,*/*", srv.gotAccept)

	_, err = os.Stat(asset.Path)
	require.NoError(t, err)
	require.NoError(t, asset.Release())
	require.NoError(t, asset.Release())
	_, err = os.Stat(asset.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestFetchSingleFrameGIFStillAccepted(t *testing.T) {
	srv := serve(t, "image/gif", gifPayload(t, 1, 16))
	asset, err := fetcher(t, Config{}).Fetch(context.Background(), srv.URL+"/still.gif")
	require.NoError(t, err)
	defer asset.Release()
	assert.Equal(t, 1, asset.Frames)
}

func TestFetchTranscodesWebPNamedAsGIF(t *testing.T) {
	srv := serve(t, "image/gif", webpPayload(t))
	asset, err := fetcher(t, Config{}).Fetch(context.Background(), srv.URL+"/fake.gif")
	require.NoError(t, err)
	defer asset.Release()

	assert.Equal(t, FormatPNG, asset.Format)
	assert.True(t, asset.Transcoded)
	assert.False(t, asset.Animated())

	stored, err := os.ReadFile(asset.Path)
	require.NoError(t, err)
	format, _ := Sniff(stored)
	assert.Equal(t, FormatPNG, format)
	img, err := png.Decode(bytes.NewReader(stored))
	require.NoError(t, err)
	_, _, _, a := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), a)
}

func TestFetchRejectsOtherMismatch(t *testing.T) {
	srv := serve(t, "image/gif", pngPayload(t))
	_, err := fetcher(t, Config{}).Fetch(context.Background(), srv.URL+"/liar.gif")
	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonMismatch, rej.Reason)
}

func TestFetchSmallWebPConverted(t *testing.T) {
	srv := serve(t, "image/webp", webpPayload(t))
	asset, err := fetcher(t, Config{}).Fetch(context.Background(), srv.URL+"/thumb")
	require.NoError(t, err)
	defer asset.Release()
	assert.Equal(t, FormatPNG, asset.Format)
	assert.True(t, asset.Transcoded)
}

func TestFetchLargeWebPKept(t *testing.T) {
	srv := serve(t, "image/webp", webpPayload(t))
	asset, err := fetcher(t, Config{SmallWebPBytes: 10}).Fetch(context.Background(), srv.URL+"/hero")
	require.NoError(t, err)
	defer asset.Release()
	assert.Equal(t, FormatWebP, asset.Format)
	assert.False(t, asset.Transcoded)
}

// corruptWebP has a valid RIFF/WEBP container around a VP8 chunk of junk.
func corruptWebP(size int) []byte {
	body := bytes.Repeat([]byte{0xAB}, size-20)
	out := []byte("RIFF")
	out = binary.LittleEndian.AppendUint32(out, uint32(size-8))
	out = append(out, "WEBPVP8 "...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

func TestFetchCorruptSmallWebPKept(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	payload := corruptWebP(320)
	srv := serve(t, "image/webp", payload)
	f := NewFetcher(Config{TempDir: t.TempDir()}, nil, zap.New(core))

	asset, err := f.Fetch(context.Background(), srv.URL+"/broken.webp")
	require.NoError(t, err)
	defer asset.Release()
	assert.Equal(t, FormatWebP, asset.Format)
	assert.False(t, asset.Transcoded)
	assert.Equal(t, int64(len(payload)), asset.Size)

	stored, err := os.ReadFile(asset.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, stored)
	assert.Equal(t, 1, logs.FilterMessage("Failed to convert WebP to PNG, keeping original").Len())
}

func TestFetchWarnsOnOversizedGIFDimensions(t *testing.T) {
	g := &gif.GIF{}
	for i := 0; i < 2; i++ {
		img := image.NewPaletted(image.Rect(0, 0, 2001, 1), palette.Plan9)
		img.SetColorIndex(i, 0, uint8(i+1))
		g.Image = append(g.Image, img)
		g.Delay = append(g.Delay, 10)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))

	core, logs := observer.New(zap.WarnLevel)
	srv := serve(t, "image/gif", buf.Bytes())
	f := NewFetcher(Config{TempDir: t.TempDir()}, nil, zap.New(core))

	asset, err := f.Fetch(context.Background(), srv.URL+"/wide.gif")
	require.NoError(t, err)
	defer asset.Release()
	assert.Equal(t, FormatGIF, asset.Format)
	assert.Equal(t, 2001, asset.Width)
	assert.Equal(t, 1, logs.FilterMessage("GIF dimensions too large").Len())
}

func TestFetchStaticPNG(t *testing.T) {
	srv := serve(t, "", pngPayload(t))
	asset, err := fetcher(t, Config{}).Fetch(context.Background(), srv.URL+"/cover.png")
	require.NoError(t, err)
	defer asset.Release()
	assert.Equal(t, FormatPNG, asset.Format)
	assert.Equal(t, 64, asset.Width)
	assert.Equal(t, 48, asset.Height)
	assert.Equal(t, "media.png", asset.FileName())
}

func TestFetchRejectsUnsupported(t *testing.T) {
	body := bytes.Repeat([]byte("<html><body>not an image</body></html>\n"), 10)
	srv := serve(t, "text/html", body)
	_, err := fetcher(t, Config{}).Fetch(context.Background(), srv.URL+"/page")
	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonFormat, rej.Reason)
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	_, err := fetcher(t, Config{}).Fetch(context.Background(), srv.URL+"/x.jpg")
	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonDownload, rej.Reason)
}

func TestRejectedFetchLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	srv := serve(t, "image/gif", pngPayload(t))
	_, err := NewFetcher(Config{TempDir: dir}, nil, nil).Fetch(context.Background(), srv.URL+"/liar.gif")
	require.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtensionHint(t *testing.T) {
	tests := []struct {
		ct, url, want string
	}{
		{"image/jpeg", "https://cdn.example/anim.gif?w=800", ".gif"},
		{"image/png", "https://cdn.example/a", ".png"},
		{"image/webp", "https://cdn.example/a", ".webp"},
		{"image/svg+xml", "https://cdn.example/a", ".jpg"},
		{"video/webm", "https://cdn.example/a", ".webm"},
		{"", "https://cdn.example/a.webp", ".webp"},
		{"", "https://cdn.example/a.JPEG", ".jpg"},
		{"application/octet-stream", "https://cdn.example/video/123", ".mp4"},
		{"", "https://cdn.example/img/123", ".jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.url+tt.ct, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtensionHint(tt.ct, tt.url))
		})
	}
}
