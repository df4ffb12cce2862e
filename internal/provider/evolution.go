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

	"go.uber.org/zap"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/apperrors"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
)

// EvolutionClient sends through an Evolution API bridge. Endpoints are
// instance-scoped: /message/sendText/{instance} and friends, authenticated
// with a shared apikey header.
type EvolutionClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewEvolutionClient creates a client for one Evolution deployment.
func NewEvolutionClient(baseURL, apiKey string, timeout time.Duration) *EvolutionClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &EvolutionClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type evolutionSendResponse struct {
	Key struct {
		ID        string `json:"id"`
		RemoteJid string `json:"remoteJid"`
	} `json:"key"`
	Status string `json:"status"`
}

// Send delivers one message through the channel's instance.
func (c *EvolutionClient) Send(ctx context.Context, channel *model.Channel, msg OutboundMessage) (string, error) {
	var path string
	var payload map[string]interface{}

	switch msg.Type {
	case model.MessageTypeText, model.MessageTypeSystem, "":
		path = "/message/sendText/" + channel.InstanceKey
		payload = map[string]interface{}{
			"number": msg.To,
			"text":   msg.Content,
		}
	case model.MessageTypeAudio:
		path = "/message/sendWhatsAppAudio/" + channel.InstanceKey
		payload = map[string]interface{}{
			"number": msg.To,
			"audio":  msg.MediaURL,
		}
	default:
		// image, video, document, sticker all go through sendMedia.
		path = "/message/sendMedia/" + channel.InstanceKey
		payload = map[string]interface{}{
			"number":    msg.To,
			"mediatype": msg.Type,
			"media":     msg.MediaURL,
			"caption":   msg.Content,
		}
	}

	raw, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return "", err
	}

	var decoded evolutionSendResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode evolution send response: %w", err)
	}
	if decoded.Key.ID == "" {
		return "", fmt.Errorf("%w: evolution send returned no message id", apperrors.ErrProvider)
	}
	return decoded.Key.ID, nil
}

// DeleteMessage revokes a message for everyone.
func (c *EvolutionClient) DeleteMessage(ctx context.Context, channel *model.Channel, externalID, to string) error {
	payload := map[string]interface{}{
		"id":        externalID,
		"remoteJid": to,
		"fromMe":    true,
	}
	_, err := c.do(ctx, http.MethodDelete, "/chat/deleteMessageForEveryone/"+channel.InstanceKey, payload)
	return err
}

func (c *EvolutionClient) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode evolution request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build evolution request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: evolution request failed: %w", apperrors.ErrProvider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read evolution response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.FromContext(ctx).Warn("Evolution API returned non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: evolution returned %d", apperrors.ErrProvider, resp.StatusCode)
	}
	return raw, nil
}
