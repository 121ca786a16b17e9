// Package telegram is a small Bot API client covering the three delivery
// modes: animation with caption, photo with caption, and plain text.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/deusflow/spectrumpost/internal/post"
)

const DefaultAPIBase = "https://api.telegram.org"

type Config struct {
	Token   string
	ChatID  string
	APIBase string
	Timeout time.Duration
	// ChunkSize is the longest text sent in one message.
	ChunkSize  int
	ChunkPause time.Duration
}

// APIError is a Bot API failure. Description carries Telegram's own text,
// e.g. "Bad Request: message caption is too long".
type APIError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (status %d): %s", e.Method, e.StatusCode, e.Description)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewClient(cfg Config, httpClient *http.Client, log *zap.Logger) (*Client, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, errors.New("telegram token and chat id are required")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 4096
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.ChunkPause > 0 {
		limit = rate.Every(cfg.ChunkPause)
	}
	return &Client{cfg: cfg, http: httpClient, limiter: rate.NewLimiter(limit, 1), log: log}, nil
}

// SendAnimation uploads an animation with an HTML caption.
func (c *Client) SendAnimation(ctx context.Context, file io.Reader, fileName, caption string) error {
	c.log.Info("Publishing animation", zap.String("file", fileName))
	return c.upload(ctx, "sendAnimation", "animation", file, fileName, caption)
}

// SendPhoto uploads a photo with an HTML caption.
func (c *Client) SendPhoto(ctx context.Context, file io.Reader, fileName, caption string) error {
	c.log.Info("Publishing photo", zap.String("file", fileName))
	return c.upload(ctx, "sendPhoto", "photo", file, fileName, caption)
}

// SendText sends HTML text with link previews enabled. Text longer than the
// chunk size goes out as successive messages, paced by the chunk pause.
func (c *Client) SendText(ctx context.Context, text string) error {
	chunks := post.Chunk(text, c.cfg.ChunkSize)
	c.log.Info("Publishing text", zap.Int("chunks", len(chunks)))
	for i, chunk := range chunks {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait before chunk %d: %w", i+1, err)
		}
		if err := c.sendMessage(ctx, chunk); err != nil {
			if i == 0 {
				return err
			}
			c.log.Warn("Text partially published", zap.Int("delivered", i), zap.Int("chunks", len(chunks)))
			return fmt.Errorf("%d of %d chunks delivered: %w", i, len(chunks), err)
		}
	}
	return nil
}

func (c *Client) sendMessage(ctx context.Context, text string) error {
	payload := map[string]any{
		"chat_id":                  c.cfg.ChatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, "sendMessage")
}

func (c *Client) upload(ctx context.Context, method, field string, file io.Reader, fileName, caption string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"chat_id":    c.cfg.ChatID,
		"caption":    caption,
		"parse_mode": "HTML",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile(field, fileName)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy media: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), &buf)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, method)
}

func (c *Client) do(req *http.Request, method string) error {
	resp, err := c.http.Do(req)
	if err != nil {
		// the token is part of the URL, keep it out of logs
		return fmt.Errorf("telegram %s request: %s", method, c.redact(err.Error()))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read telegram response: %w", err)
	}
	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{Method: method, StatusCode: resp.StatusCode, Description: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode telegram response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !out.OK {
		apiErr := &APIError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			ErrorCode:   out.ErrorCode,
			Description: out.Description,
		}
		if out.Parameters != nil {
			apiErr.RetryAfter = out.Parameters.RetryAfter
		}
		return apiErr
	}
	c.log.Debug("Telegram call succeeded", zap.String("method", method))
	return nil
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(c.cfg.APIBase, "/"), c.cfg.Token, method)
}

func (c *Client) redact(s string) string {
	return strings.ReplaceAll(s, c.cfg.Token, "<token>")
}
