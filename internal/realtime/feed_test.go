package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickbite/chat-service/internal/models"
)

func TestDecodeInsertPayload(t *testing.T) {
	payload := []byte(`{
		"id": "5d1c3b0a-8c53-4d2c-9f1e-111111111111",
		"chat_room_id": "5d1c3b0a-8c53-4d2c-9f1e-222222222222",
		"sender_id": "5d1c3b0a-8c53-4d2c-9f1e-333333333333",
		"sender_type": "deliverer",
		"content": "almost there",
		"message_type": "text",
		"metadata": {},
		"created_at": "2026-08-31T10:11:12.123456+00:00",
		"read_at": null
	}`)

	msg, err := decodeInsertPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, "5d1c3b0a-8c53-4d2c-9f1e-111111111111", msg.ID)
	assert.Equal(t, "5d1c3b0a-8c53-4d2c-9f1e-222222222222", msg.ChatRoomID)
	assert.Equal(t, models.RoleDeliverer, msg.SenderType)
	assert.Equal(t, "almost there", msg.Content)
	assert.Nil(t, msg.ReadAt)
	assert.Equal(t, 2026, msg.CreatedAt.Year())
}

func TestDecodeInsertPayloadTimestampVariants(t *testing.T) {
	// Rendering differs with column type and server locale settings.
	variants := []string{
		"2026-08-31T10:11:12.123456+00:00",
		"2026-08-31T10:11:12+00",
		"2026-08-31T10:11:12.123456",
		"2026-08-31T10:11:12Z",
	}

	for _, ts := range variants {
		parsed, err := parsePgTime(ts)
		require.NoError(t, err, "timestamp %q", ts)
		assert.Equal(t, time.August, parsed.Month())
	}
}

func TestDecodeInsertPayloadReadAtSet(t *testing.T) {
	payload := []byte(`{
		"id": "a", "chat_room_id": "b", "sender_id": "c",
		"sender_type": "customer", "content": "hi", "message_type": "text",
		"metadata": {"source":"mobile"},
		"created_at": "2026-08-31T10:11:12+00",
		"read_at": "2026-08-31T10:12:00+00"
	}`)

	msg, err := decodeInsertPayload(payload)
	require.NoError(t, err)
	require.NotNil(t, msg.ReadAt)
	assert.True(t, msg.ReadAt.After(msg.CreatedAt))
	assert.JSONEq(t, `{"source":"mobile"}`, string(msg.Metadata))
}

func TestDecodeInsertPayloadRejectsIncomplete(t *testing.T) {
	_, err := decodeInsertPayload([]byte(`{"content": "hi"}`))
	assert.Error(t, err, "missing ids")

	_, err = decodeInsertPayload([]byte(`{"id":"a","chat_room_id":"b","created_at":"yesterday"}`))
	assert.Error(t, err, "unparseable timestamp")

	_, err = decodeInsertPayload([]byte(`not json`))
	assert.Error(t, err)
}

func TestMemoryFeedRoutesByRoom(t *testing.T) {
	feed := NewMemoryFeed()

	var gotA, gotB []string
	subA, err := feed.Subscribe("room-a", func(m *models.Message) { gotA = append(gotA, m.ID) })
	require.NoError(t, err)
	_, err = feed.Subscribe("room-b", func(m *models.Message) { gotB = append(gotB, m.ID) })
	require.NoError(t, err)

	feed.Publish(&models.Message{ID: "m1", ChatRoomID: "room-a"})
	feed.Publish(&models.Message{ID: "m2", ChatRoomID: "room-b"})
	feed.Publish(&models.Message{ID: "m3", ChatRoomID: "room-a"})

	assert.Equal(t, []string{"m1", "m3"}, gotA)
	assert.Equal(t, []string{"m2"}, gotB)

	feed.Unsubscribe(subA)
	feed.Publish(&models.Message{ID: "m4", ChatRoomID: "room-a"})
	assert.Equal(t, []string{"m1", "m3"}, gotA, "no delivery after unsubscribe")
}

func TestMemoryFeedUnsubscribeIsNilAndDoubleSafe(t *testing.T) {
	feed := NewMemoryFeed()

	feed.Unsubscribe(nil)

	sub, err := feed.Subscribe("room-a", func(*models.Message) {})
	require.NoError(t, err)
	feed.Unsubscribe(sub)
	feed.Unsubscribe(sub)

	assert.Equal(t, 0, feed.SubscriberCount("room-a"))
}

func TestMemoryFeedRejectsInvalidSubscription(t *testing.T) {
	feed := NewMemoryFeed()

	_, err := feed.Subscribe("", func(*models.Message) {})
	assert.Error(t, err)

	_, err = feed.Subscribe("room-a", nil)
	assert.Error(t, err)
}
