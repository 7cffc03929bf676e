// Package oracle decides due pools: both auditors read the same sanitized
// evidence, and only unanimous approval pays out.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/parapool/agent/internal/circuitbreaker"
)

// LLMClient is one chat-style completion call. Both auditors go through
// it with independent invocations.
type LLMClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// HTTPLLMClient speaks the OpenAI-compatible chat completions surface.
type HTTPLLMClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	breaker *circuitbreaker.Breaker
}

// NewHTTPLLMClient builds the client. baseURL defaults to the OpenAI API.
func NewHTTPLLMClient(baseURL, apiKey, model string, timeout time.Duration) *HTTPLLMClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPLLMClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		breaker: circuitbreaker.New("llm", 3, 5*time.Minute),
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
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements LLMClient. Temperature is pinned to zero: the oracle
// wants the most deterministic read available.
func (c *HTTPLLMClient) Complete(ctx context.Context, system, user string) (string, error) {
	var out string
	err := c.breaker.Do(func() error {
		body, err := json.Marshal(chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
		})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		var parsed chatResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return fmt.Errorf("LLM response decode: %w", err)
		}
		if parsed.Error != nil {
			return fmt.Errorf("LLM API error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("LLM returned no choices")
		}
		out = parsed.Choices[0].Message.Content
		return nil
	})
	return out, err
}
