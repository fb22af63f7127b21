// Package inference talks to an Ollama-compatible vision model.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/ReceiptDrop/internal/apperr"
	"github.com/dharsanguruparan/ReceiptDrop/internal/config"
)

const maxErrorBody = 512

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

// ChatResponse is the non-streaming /api/chat envelope.
type ChatResponse struct {
	Model      string      `json:"model"`
	CreatedAt  time.Time   `json:"created_at"`
	Message    chatMessage `json:"message"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason"`
}

// Client calls POST {host}/api/chat with one image per request.
type Client struct {
	http        *http.Client
	endpoint    string
	model       string
	temperature float64
	timeout     time.Duration
	log         *slog.Logger
}

// New builds a Client from the Ollama config. A nil logger uses slog.Default.
func New(cfg config.OllamaConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:        &http.Client{},
		endpoint:    strings.TrimRight(cfg.Host, "/") + "/api/chat",
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		log:         logger,
	}
}

// Extract sends image with the fixed Prompt and returns the reply content.
// Every failure is an apperr.ErrInference.
func (c *Client) Extract(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", apperr.Inference("empty image", nil)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	rid := uuid.NewString()
	start := time.Now()
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role:    "user",
			Content: Prompt,
			Images:  []string{base64.StdEncoding.EncodeToString(image)},
		}},
		Stream:  false,
		Options: chatOptions{Temperature: c.temperature},
	}
	bs, err := json.Marshal(body)
	if err != nil {
		return "", apperr.Inference("encode request", err)
	}

	c.log.Info("inference.extract.start", "req_id", rid, "model", c.model, "image_bytes", len(image))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bs))
	if err != nil {
		return "", apperr.Inference("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("inference.extract.send_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if errors.Is(err, context.DeadlineExceeded) {
			return "", apperr.Inference(fmt.Sprintf("model call timed out after %s", c.timeout), err)
		}
		return "", apperr.Inference("call model", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.log.Warn("inference.extract.body_close_error", "req_id", rid, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Inference("read response", err)
	}
	if resp.StatusCode/100 != 2 {
		c.log.Error("inference.extract.bad_status", "req_id", rid, "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())
		return "", apperr.Inference(fmt.Sprintf("model returned status %d", resp.StatusCode), errors.New(truncate(raw)))
	}

	var out ChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", apperr.Inference("decode response", err)
	}
	content := strings.TrimSpace(out.Message.Content)
	if content == "" {
		return "", apperr.Inference("empty model response", nil)
	}

	c.log.Info("inference.extract.ok",
		"req_id", rid,
		"model", out.Model,
		"done_reason", out.DoneReason,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func truncate(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
