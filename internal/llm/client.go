// Package llm holds a minimal client for OpenAI-compatible chat
// completion endpoints. No streaming, no tools; the responder only needs
// one completion per cycle, and a failed call simply means no reply.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/apperrors"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the provider-neutral completion request. The API key is
// per tenant and travels with the request, not the client.
type ChatRequest struct {
	APIKey      string
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the trimmed completion result.
type ChatResponse struct {
	Content      string
	FinishReason string
	PromptTokens int
	OutputTokens int
}

// ClientInterface lets the responder be tested with a fake model.
type ClientInterface interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Client talks to one OpenAI-compatible base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a chat-completions client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Newer model families reject the temperature parameter and renamed the
// token limit to max_completion_tokens. Matching is by substring because
// providers keep minting dated variants of the same family.
var restrictedModelFamilies = []string{"gpt-5", "o1", "o3", "o4"}

// usesRestrictedParams reports whether the model belongs to a family with
// the reduced sampling parameter surface.
func usesRestrictedParams(model string) bool {
	lower := strings.ToLower(model)
	for _, family := range restrictedModelFamilies {
		if strings.Contains(lower, family) {
			return true
		}
	}
	return false
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model               string        `json:"model"`
	Messages            []wireMessage `json:"messages"`
	Temperature         *float64      `json:"temperature,omitempty"`
	MaxTokens           *int          `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int          `json:"max_completion_tokens,omitempty"`
}

type wireResponse struct {
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
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Chat runs one non-streaming completion. Errors are not retried here:
// the caller turns any failure into a skipped reply and the debounce
// machinery will produce a fresh attempt on the next inbound message.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key for completion request", apperrors.ErrConfigMissing)
	}

	body := wireRequest{
		Model:    req.Model,
		Messages: make([]wireMessage, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}
	if usesRestrictedParams(req.Model) {
		if req.MaxTokens > 0 {
			body.MaxCompletionTokens = &req.MaxTokens
		}
	} else {
		body.Temperature = &req.Temperature
		if req.MaxTokens > 0 {
			body.MaxTokens = &req.MaxTokens
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read completion response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: completion endpoint returned %d", apperrors.ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.FromContext(ctx).Warn("Completion endpoint returned non-2xx",
			zap.Int("status", resp.StatusCode),
			zap.String("model", req.Model),
			zap.ByteString("body", truncate(raw, 512)),
		)
		return nil, fmt.Errorf("%w: completion endpoint returned %d", apperrors.ErrProvider, resp.StatusCode)
	}

	var decoded wireResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrProvider, decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion returned no choices", apperrors.ErrProvider)
	}

	choice := decoded.Choices[0]
	return &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		PromptTokens: decoded.Usage.PromptTokens,
		OutputTokens: decoded.Usage.CompletionTokens,
	}, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
