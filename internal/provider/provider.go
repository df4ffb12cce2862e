// Package provider holds the outbound messaging clients. Each messaging
// channel carries a provider tag; the registry maps the tag to the client
// that knows the wire format.
package provider

import (
	"context"
	"fmt"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/apperrors"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
)

// OutboundMessage is the provider-neutral send request.
type OutboundMessage struct {
	// To is the recipient external key (phone number or scoped user ID).
	To      string
	Content string
	// Type is one of the model.MessageType values. Non-text types carry
	// MediaURL; Content becomes the caption where supported.
	Type     string
	MediaURL string
}

// Sender delivers messages through one provider's API.
type Sender interface {
	// Send returns the provider message ID on success.
	Send(ctx context.Context, channel *model.Channel, msg OutboundMessage) (externalID string, err error)
	// DeleteMessage revokes a message for everyone where the provider
	// supports it.
	DeleteMessage(ctx context.Context, channel *model.Channel, externalID, to string) error
}

// Registry dispatches on the channel's provider tag.
type Registry struct {
	senders map[string]Sender
}

// NewRegistry builds a registry from explicit tag/sender pairs.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

// Register binds a provider tag to a sender. The Meta client serves both
// the whatsapp cloud and instagram tags.
func (r *Registry) Register(providerTag string, sender Sender) {
	r.senders[providerTag] = sender
}

// For returns the sender for a channel.
func (r *Registry) For(channel *model.Channel) (Sender, error) {
	sender, ok := r.senders[channel.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: no sender registered for provider %q", apperrors.ErrConfigMissing, channel.Provider)
	}
	return sender, nil
}
