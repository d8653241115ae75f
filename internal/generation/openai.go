package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint,
// typically a local llama.cpp or Ollama server.
type OpenAIConfig struct {
	APIBase      string
	APIKey       string
	Model        string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
	ExtraHeaders map[string]string
}

// OpenAIBackend makes direct HTTP calls to an OpenAI-compatible endpoint and
// requests JSON output.
type OpenAIBackend struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

// NewOpenAIBackend applies defaults: a local Ollama base, 512 max tokens and
// a two-minute timeout.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	if cfg.APIBase == "" {
		cfg.APIBase = "http://localhost:11434/v1"
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OpenAIBackend{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

func (b *OpenAIBackend) Model() string { return b.cfg.Model }

// openAIRespBody is the subset of the chat completion response we read.
type openAIRespBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (b *OpenAIBackend) Complete(ctx context.Context, p Prompt) (Output, error) {
	body := map[string]any{
		"model": b.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": p.System},
			{"role": "user", "content": p.Transcript},
		},
		"max_tokens":      b.cfg.MaxTokens,
		"temperature":     b.cfg.Temperature,
		"response_format": map[string]string{"type": "json_object"},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return Output{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.APIBase+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return Output{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}
	for k, v := range b.cfg.ExtraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return Output{}, fmt.Errorf("%w: %s unreachable: %v", ErrModelUnavailable, b.cfg.APIBase, err)
		}
		return Output{}, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Output{}, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusServiceUnavailable:
		return Output{}, fmt.Errorf("%w: HTTP %d: %s", ErrModelUnavailable, resp.StatusCode, friendlyHTTPError(resp.StatusCode, raw))
	case resp.StatusCode != http.StatusOK:
		return Output{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, friendlyHTTPError(resp.StatusCode, raw))
	}

	var parsed openAIRespBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Output{}, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Output{}, fmt.Errorf("empty choices in response")
	}
	return Output{
		Text:         parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

func friendlyHTTPError(code int, body []byte) string {
	if code == http.StatusTooManyRequests {
		return "rate limit exceeded"
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
