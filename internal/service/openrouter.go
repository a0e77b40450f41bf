package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jmwagner/plausch/internal/config"
	"github.com/jmwagner/plausch/internal/domain"
)

// OpenRouterService talks to an OpenAI-compatible chat completions API.
// It serves both collaborators of the core: the streaming model backend
// and the title generator.
type OpenRouterService struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOpenRouterService(apiKey, model string) *OpenRouterService {
	return &OpenRouterService{
		apiKey:     apiKey,
		baseURL:    "https://openrouter.ai/api/v1",
		model:      model,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
	}
}

// WithBaseURL overrides the API endpoint, used in tests.
func (s *OpenRouterService) WithBaseURL(u string) *OpenRouterService {
	s.baseURL = u
	return s
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Usage       *usageOpts    `json:"usage,omitempty"`
}

type usageOpts struct {
	Include bool `json:"include"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatStream opens a streaming completion for the given history and
// returns the raw server-sent-event body. The caller owns the reader
// and must close it. Non-success responses surface as errors, never as
// a silent empty stream.
func (s *OpenRouterService) ChatStream(ctx context.Context, messages []ChatMessage, temperature *float64) (io.ReadCloser, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: temperature,
		Stream:      true,
		Usage:       &usageOpts{Include: true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return nil, fmt.Errorf("rate limited by OpenRouter (429)")
		case http.StatusServiceUnavailable:
			return nil, fmt.Errorf("OpenRouter service unavailable (503)")
		}
		return nil, fmt.Errorf("stream request failed (%d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	return resp.Body, nil
}

// GenerateTitle asks the model for a short session title. Any
// non-success response, malformed body or empty result is an error; the
// caller is expected to fall back locally.
func (s *OpenRouterService) GenerateTitle(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, config.TitleTimeout)
	defer cancel()

	temp := 0.2
	payload, err := json.Marshal(chatRequest{
		Model:       s.model,
		Messages:    []ChatMessage{{Role: "user", Content: prompt}},
		Temperature: &temp,
		MaxTokens:   config.TitleMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("title request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("title request failed (%d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", domain.ErrEmptyTitleResult
	}
	return parsed.Choices[0].Message.Content, nil
}
