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

// MetaClient sends through the Meta Graph API. The same wire format
// serves WhatsApp Cloud and Instagram messaging; the channel's
// InstanceKey holds the phone-number or IG business account ID and
// AccessToken the per-tenant token.
type MetaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMetaClient creates a Graph API client.
func NewMetaClient(baseURL string, timeout time.Duration) *MetaClient {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v21.0"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MetaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type metaSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send delivers one message through the channel's Graph API endpoint.
func (c *MetaClient) Send(ctx context.Context, channel *model.Channel, msg OutboundMessage) (string, error) {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                msg.To,
	}
	if channel.Provider == model.ProviderInstagram {
		payload["messaging_product"] = "instagram"
	}

	switch msg.Type {
	case model.MessageTypeText, model.MessageTypeSystem, "":
		payload["type"] = "text"
		payload["text"] = map[string]interface{}{"body": msg.Content}
	case model.MessageTypeImage:
		payload["type"] = "image"
		payload["image"] = map[string]interface{}{"link": msg.MediaURL, "caption": msg.Content}
	case model.MessageTypeAudio:
		payload["type"] = "audio"
		payload["audio"] = map[string]interface{}{"link": msg.MediaURL}
	case model.MessageTypeVideo:
		payload["type"] = "video"
		payload["video"] = map[string]interface{}{"link": msg.MediaURL, "caption": msg.Content}
	case model.MessageTypeDocument:
		payload["type"] = "document"
		payload["document"] = map[string]interface{}{"link": msg.MediaURL, "caption": msg.Content}
	default:
		return "", fmt.Errorf("%w: unsupported outbound type %q for meta", apperrors.ErrBadRequest, msg.Type)
	}

	raw, err := c.do(ctx, channel, "/"+channel.InstanceKey+"/messages", payload)
	if err != nil {
		return "", err
	}

	var decoded metaSendResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode meta send response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("%w: meta error %d: %s", apperrors.ErrProvider, decoded.Error.Code, decoded.Error.Message)
	}
	if len(decoded.Messages) == 0 {
		return "", fmt.Errorf("%w: meta send returned no message id", apperrors.ErrProvider)
	}
	return decoded.Messages[0].ID, nil
}

// DeleteMessage is a no-op: the Graph API offers no revoke endpoint for
// business-initiated messages, so the soft-delete stays local.
func (c *MetaClient) DeleteMessage(ctx context.Context, channel *model.Channel, externalID, to string) error {
	logger.FromContext(ctx).Debug("Meta provider does not support message revoke, local delete only",
		zap.String("external_id", externalID))
	return nil
}

func (c *MetaClient) do(ctx context.Context, channel *model.Channel, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode meta request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build meta request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+channel.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: meta request failed: %w", apperrors.ErrProvider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read meta response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.FromContext(ctx).Warn("Meta Graph API returned non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: meta returned %d", apperrors.ErrProvider, resp.StatusCode)
	}
	return raw, nil
}
