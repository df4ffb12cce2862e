package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
)

func TestEvolutionNormalizeTextMessage(t *testing.T) {
	payload := []byte(`{
		"event": "messages.upsert",
		"instance": "inst-1",
		"data": {
			"key": {"remoteJid": "5511999990000@s.whatsapp.net", "fromMe": false, "id": "BAE5F1"},
			"pushName": "Carla",
			"message": {"conversation": "Oi, quanto custa?"},
			"messageTimestamp": 1700000000
		}
	}`)

	events, err := NewEvolutionAdapter().Normalize(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "5511999990000", event.ExternalKey)
	assert.Equal(t, "BAE5F1", event.ExternalID)
	assert.Equal(t, "inst-1", event.ChannelInstanceKey)
	assert.Equal(t, "Carla", event.PushName)
	assert.Equal(t, "Oi, quanto custa?", event.Content)
	assert.Equal(t, model.MessageTypeText, event.Type)
	assert.False(t, event.FromMe)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), event.SentAt)
	assert.NotEmpty(t, event.RawPayload)
}

func TestEvolutionNormalizeExtendedText(t *testing.T) {
	payload := []byte(`{
		"event": "messages.upsert",
		"instance": "inst-1",
		"data": {
			"key": {"remoteJid": "5511999990000@s.whatsapp.net", "id": "BAE5F2"},
			"message": {"extendedTextMessage": {"text": "segue o link"}}
		}
	}`)

	events, err := NewEvolutionAdapter().Normalize(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "segue o link", events[0].Content)
	assert.Equal(t, model.MessageTypeText, events[0].Type)
}

func TestEvolutionNormalizeImageWithoutCaption(t *testing.T) {
	payload := []byte(`{
		"event": "messages.upsert",
		"instance": "inst-1",
		"data": {
			"key": {"remoteJid": "5511999990000@s.whatsapp.net", "id": "BAE5F3"},
			"message": {"imageMessage": {"url": "https://cdn.example.com/a.jpg"}}
		}
	}`)

	events, err := NewEvolutionAdapter().Normalize(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, placeholderImage, events[0].Content)
	assert.Equal(t, model.MessageTypeImage, events[0].Type)
	assert.Equal(t, "https://cdn.example.com/a.jpg", events[0].MediaURL)
}

func TestEvolutionNormalizeEcho(t *testing.T) {
	payload := []byte(`{
		"event": "messages.upsert",
		"instance": "inst-1",
		"data": {
			"key": {"remoteJid": "5511999990000@s.whatsapp.net", "fromMe": true, "id": "BAE5F4"},
			"message": {"conversation": "Respondido pelo celular"}
		}
	}`)

	events, err := NewEvolutionAdapter().Normalize(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].FromMe)
}

func TestEvolutionNormalizeIgnoresOtherEvents(t *testing.T) {
	payload := []byte(`{"event": "contacts.update", "instance": "inst-1", "data": {}}`)

	events, err := NewEvolutionAdapter().Normalize(payload)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEvolutionNormalizeMissingKeyYieldsNothing(t *testing.T) {
	payload := []byte(`{"event": "messages.upsert", "instance": "inst-1", "data": {"message": {"conversation": "oi"}}}`)

	events, err := NewEvolutionAdapter().Normalize(payload)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEvolutionIsStatusEvent(t *testing.T) {
	a := NewEvolutionAdapter()
	assert.True(t, a.IsStatusEvent([]byte(`{"event": "connection.update"}`)))
	assert.True(t, a.IsStatusEvent([]byte(`{"event": "qrcode.updated"}`)))
	assert.False(t, a.IsStatusEvent([]byte(`{"event": "messages.upsert"}`)))
	assert.False(t, a.IsStatusEvent([]byte(`not json`)))
}

func TestEvolutionNormalizeStatusConnection(t *testing.T) {
	a := NewEvolutionAdapter()

	tests := []struct {
		state      string
		wantStatus string
	}{
		{"open", model.ChannelConnected},
		{"close", model.ChannelDisconnected},
		{"connecting", model.ChannelAwaiting},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			payload := []byte(`{
				"event": "connection.update",
				"instance": "inst-1",
				"data": {"state": "` + tt.state + `", "wuid": "5511888880000@s.whatsapp.net"}
			}`)
			status, err := a.NormalizeStatus(payload)
			require.NoError(t, err)
			require.NotNil(t, status)
			assert.Equal(t, "inst-1", status.ChannelInstanceKey)
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, "5511888880000", status.PhoneNumber)
		})
	}
}

func TestEvolutionNormalizeStatusQRCode(t *testing.T) {
	payload := []byte(`{
		"event": "qrcode.updated",
		"instance": "inst-1",
		"data": {"qrcode": {"pairingCode": "ABCD-1234"}}
	}`)

	status, err := NewEvolutionAdapter().NormalizeStatus(payload)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, model.ChannelAwaiting, status.Status)
	assert.Equal(t, "ABCD-1234", status.PairingCode)
}
