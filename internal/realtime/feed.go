package realtime

import (
	"quickbite/chat-service/internal/models"
)

// MessageHandler processes one inserted message. Handlers are invoked in
// the order the transport delivers events; delivery is at-least-once and
// redelivery after reconnects is possible, so consumers de-duplicate by
// message id.
type MessageHandler func(*models.Message)

// MessageFeed delivers message-insert events scoped to a single chat
// room. Any transport can satisfy it: Postgres LISTEN/NOTIFY, a vendor
// SDK channel, or an in-process bus.
type MessageFeed interface {
	// Subscribe registers a handler for inserts into the given room and
	// returns a handle for teardown.
	Subscribe(chatRoomID string, handler MessageHandler) (*Subscription, error)

	// Unsubscribe tears down a subscription. Calling it with a nil or
	// already-closed handle is a no-op.
	Unsubscribe(sub *Subscription)
}

// Subscription is a handle to one active per-room subscription.
type Subscription struct {
	id         uint64
	chatRoomID string
}

// ChatRoomID reports the room the subscription was opened against.
func (s *Subscription) ChatRoomID() string {
	if s == nil {
		return ""
	}
	return s.chatRoomID
}
