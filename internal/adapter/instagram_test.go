package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
)

func TestInstagramNormalizeTextMessage(t *testing.T) {
	payload := []byte(`{
		"object": "instagram",
		"entry": [{
			"id": "ig-account-1",
			"messaging": [{
				"sender": {"id": "ig-user-9"},
				"recipient": {"id": "ig-account-1"},
				"timestamp": 1700000000500,
				"message": {"mid": "mid.1", "text": "Esse produto ainda tem?"}
			}]
		}]
	}`)

	events, err := NewInstagramAdapter().Normalize(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "ig-user-9", event.ExternalKey)
	assert.Equal(t, "mid.1", event.ExternalID)
	assert.Equal(t, "ig-account-1", event.ChannelInstanceKey)
	assert.Equal(t, "Esse produto ainda tem?", event.Content)
	assert.Equal(t, model.MessageTypeText, event.Type)
	assert.False(t, event.FromMe)
	assert.Equal(t, time.Unix(1700000000, 500000000).UTC(), event.SentAt)
}

func TestInstagramNormalizeEcho(t *testing.T) {
	payload := []byte(`{
		"entry": [{
			"id": "ig-account-1",
			"messaging": [{
				"sender": {"id": "ig-account-1"},
				"recipient": {"id": "ig-user-9"},
				"timestamp": 1700000000500,
				"message": {"mid": "mid.2", "text": "Tem sim!", "is_echo": true}
			}]
		}]
	}`)

	events, err := NewInstagramAdapter().Normalize(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].FromMe)
	// Echoes stay attributed to the contact's thread, not the page.
	assert.Equal(t, "ig-user-9", events[0].ExternalKey)
}

func TestInstagramNormalizeAttachmentWithoutText(t *testing.T) {
	payload := []byte(`{
		"entry": [{
			"id": "ig-account-1",
			"messaging": [{
				"sender": {"id": "ig-user-9"},
				"recipient": {"id": "ig-account-1"},
				"timestamp": 1700000000500,
				"message": {"mid": "mid.3", "attachments": [{"type": "image", "payload": {"url": "https://cdn.example.com/i.jpg"}}]}
			}]
		}]
	}`)

	events, err := NewInstagramAdapter().Normalize(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, placeholderImage, events[0].Content)
	assert.Equal(t, model.MessageTypeImage, events[0].Type)
	assert.Equal(t, "https://cdn.example.com/i.jpg", events[0].MediaURL)
}

func TestInstagramNormalizeSkipsNonMessageEvents(t *testing.T) {
	payload := []byte(`{
		"entry": [{
			"id": "ig-account-1",
			"messaging": [{
				"sender": {"id": "ig-user-9"},
				"recipient": {"id": "ig-account-1"},
				"timestamp": 1700000000500
			}]
		}]
	}`)

	events, err := NewInstagramAdapter().Normalize(payload)
	require.NoError(t, err)
	assert.Empty(t, events)
}
