// Package adapter normalizes provider webhook payloads into the
// pipeline's event types. The variant set is closed: dispatch is by the
// channel's provider tag, never by payload shape sniffing.
package adapter

import (
	"fmt"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/apperrors"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
)

// Adapter turns one raw webhook body into zero or more inbound events.
// A body that carries no messages (delivery receipts, presence pings)
// normalizes to an empty slice, not an error.
type Adapter interface {
	Normalize(raw []byte) ([]model.InboundEvent, error)
}

// Placeholder content for media messages whose caption is absent, and
// for subtypes the pipeline does not render.
const (
	placeholderImage    = "📷 Imagem"
	placeholderAudio    = "🎤 Áudio"
	placeholderVideo    = "🎥 Vídeo"
	placeholderDocument = "📄 Documento"
	placeholderSticker  = "💌 Figurinha"
	placeholderUnknown  = "[mensagem não suportada]"
)

func placeholderFor(messageType string) string {
	switch messageType {
	case model.MessageTypeImage:
		return placeholderImage
	case model.MessageTypeAudio:
		return placeholderAudio
	case model.MessageTypeVideo:
		return placeholderVideo
	case model.MessageTypeDocument:
		return placeholderDocument
	case model.MessageTypeSticker:
		return placeholderSticker
	default:
		return placeholderUnknown
	}
}

// Registry maps provider tags to adapters.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(providerTag string, a Adapter) {
	r.adapters[providerTag] = a
}

// For returns the adapter for a provider tag.
func (r *Registry) For(providerTag string) (Adapter, error) {
	a, ok := r.adapters[providerTag]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter registered for provider %q", apperrors.ErrConfigMissing, providerTag)
	}
	return a, nil
}
