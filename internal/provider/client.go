// Package provider holds the HTTP clients for the external text
// services: an OpenAI-compatible chat-completions endpoint used for
// extraction and hierarchy inference, and an embeddings endpoint used
// for normalization and semantic search. Both apply a per-call timeout
// and retry transient failures with exponential backoff.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/skillgraph/skillgraph/internal/metrics"
)

// Completer sends a prompt to the LLM and returns its raw text output.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Embedder maps each input text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// maxEmbedBatch caps the number of inputs per embeddings request.
const maxEmbedBatch = 128

// Options configures a Client.
type Options struct {
	BaseURL     string // OpenAI-compatible API base, e.g. https://api.openai.com/v1
	APIKey      string
	Model       string // chat model
	EmbedModel  string // embeddings model
	Temperature float64
	Timeout     time.Duration // per-call HTTP timeout
	EmbedRPS    float64       // embeddings rate limit, 0 = unlimited
	Retry       RetryConfig
}

// Client implements Completer and Embedder against an OpenAI-compatible
// API.
type Client struct {
	opts    Options
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewClient creates a provider client. Zero option fields get sane
// defaults.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.EmbedModel == "" {
		opts.EmbedModel = "text-embedding-3-small"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Retry == (RetryConfig{}) {
		opts.Retry = DefaultRetryConfig
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.EmbedRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.EmbedRPS), 1)
	}
	return &Client{
		opts:    opts,
		httpc:   &http.Client{Timeout: opts.Timeout},
		limiter: limiter,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a prompt and returns the model's text output with
// markdown fences stripped.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	metrics.LLMCalls.Inc()

	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	req := chatRequest{
		Model:       c.opts.Model,
		Messages:    messages,
		Temperature: c.opts.Temperature,
	}

	out, err := retryDo(ctx, c.opts.Retry, func() (string, error) {
		var resp chatResponse
		if err := c.postJSON(ctx, "/chat/completions", req, &resp); err != nil {
			return "", err
		}
		if resp.Error.Message != "" {
			return "", fmt.Errorf("provider error: %s", resp.Error.Message)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("provider returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		metrics.LLMErrors.Inc()
		return "", err
	}
	return StripFences(out), nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed returns one vector per input text, in input order. Requests are
// chunked and rate-limited; the response is demultiplexed by the index
// field the API emits.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))
		chunk := texts[start:end]

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		metrics.EmbedCalls.Inc()

		req := embedRequest{Model: c.opts.EmbedModel, Input: chunk}
		resp, err := retryDo(ctx, c.opts.Retry, func() (embedResponse, error) {
			var r embedResponse
			if err := c.postJSON(ctx, "/embeddings", req, &r); err != nil {
				return embedResponse{}, err
			}
			if r.Error.Message != "" {
				return embedResponse{}, fmt.Errorf("provider error: %s", r.Error.Message)
			}
			if len(r.Data) != len(chunk) {
				return embedResponse{}, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(r.Data), len(chunk))
			}
			return r, nil
		})
		if err != nil {
			metrics.EmbedErrors.Inc()
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}

		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(chunk) {
				return nil, fmt.Errorf("embeddings: index %d out of range", d.Index)
			}
			out[start+d.Index] = d.Embedding
		}
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if isRetryableStatus(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &httpStatusError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// StripFences removes markdown code fences from LLM output.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
