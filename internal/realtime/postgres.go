package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"quickbite/chat-service/internal/models"
)

// channelMessageInserted is the NOTIFY channel raised by the
// messages_notify_insert trigger on every row insert.
const channelMessageInserted = "message_inserted"

const (
	minReconnectInterval = 2 * time.Second
	maxReconnectInterval = time.Minute
	pingInterval         = 90 * time.Second
)

// PostgresFeed implements MessageFeed on top of Postgres LISTEN/NOTIFY.
// One pq.Listener serves all rooms; payloads carry the inserted row as
// JSON and are dispatched to handlers registered for that room.
type PostgresFeed struct {
	listener *pq.Listener
	logger   *logrus.Logger

	mu     sync.Mutex
	subs   map[string]map[uint64]MessageHandler
	nextID uint64

	done     chan struct{}
	doneOnce sync.Once
}

func NewPostgresFeed(dsn string, logger *logrus.Logger) (*PostgresFeed, error) {
	listener := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.WithError(err).Warn("Realtime listener event")
			}
		})

	if err := listener.Listen(channelMessageInserted); err != nil {
		listener.Close()
		return nil, fmt.Errorf("listen on %s: %w", channelMessageInserted, err)
	}

	f := &PostgresFeed{
		listener: listener,
		logger:   logger,
		subs:     make(map[string]map[uint64]MessageHandler),
		done:     make(chan struct{}),
	}

	go f.dispatch()
	return f, nil
}

func (f *PostgresFeed) Subscribe(chatRoomID string, handler MessageHandler) (*Subscription, error) {
	if chatRoomID == "" {
		return nil, fmt.Errorf("chat room id is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	sub := &Subscription{id: f.nextID, chatRoomID: chatRoomID}

	if f.subs[chatRoomID] == nil {
		f.subs[chatRoomID] = make(map[uint64]MessageHandler)
	}
	f.subs[chatRoomID][sub.id] = handler

	return sub, nil
}

func (f *PostgresFeed) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	handlers, ok := f.subs[sub.chatRoomID]
	if !ok {
		return
	}
	delete(handlers, sub.id)
	if len(handlers) == 0 {
		delete(f.subs, sub.chatRoomID)
	}
}

func (f *PostgresFeed) Close() error {
	f.doneOnce.Do(func() {
		close(f.done)
	})
	return f.listener.Close()
}

func (f *PostgresFeed) dispatch() {
	for {
		select {
		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnect marker; missed rows are recovered by the
				// next full reload, not replayed here.
				continue
			}
			msg, err := decodeInsertPayload([]byte(n.Extra))
			if err != nil {
				f.logger.WithError(err).Error("Failed to decode realtime payload")
				continue
			}
			f.deliver(msg)
		case <-time.After(pingInterval):
			if err := f.listener.Ping(); err != nil {
				f.logger.WithError(err).Warn("Realtime listener ping failed")
			}
		case <-f.done:
			return
		}
	}
}

func (f *PostgresFeed) deliver(msg *models.Message) {
	f.mu.Lock()
	var handlers []MessageHandler
	for _, h := range f.subs[msg.ChatRoomID] {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

// insertPayload mirrors the row_to_json output of the messages table.
// Timestamps arrive as strings and are parsed leniently since their
// rendering depends on the column type.
type insertPayload struct {
	ID          string          `json:"id"`
	ChatRoomID  string          `json:"chat_room_id"`
	SenderID    string          `json:"sender_id"`
	SenderType  string          `json:"sender_type"`
	Content     string          `json:"content"`
	MessageType string          `json:"message_type"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   string          `json:"created_at"`
	ReadAt      *string         `json:"read_at"`
}

func decodeInsertPayload(data []byte) (*models.Message, error) {
	var p insertPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.ID == "" || p.ChatRoomID == "" {
		return nil, fmt.Errorf("payload missing id or chat_room_id")
	}

	createdAt, err := parsePgTime(p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	msg := &models.Message{
		ID:          p.ID,
		ChatRoomID:  p.ChatRoomID,
		SenderID:    p.SenderID,
		SenderType:  models.SenderRole(p.SenderType),
		Content:     p.Content,
		MessageType: p.MessageType,
		Metadata:    p.Metadata,
		CreatedAt:   createdAt,
	}

	if p.ReadAt != nil {
		readAt, err := parsePgTime(*p.ReadAt)
		if err != nil {
			return nil, fmt.Errorf("parse read_at: %w", err)
		}
		msg.ReadAt = &readAt
	}

	return msg, nil
}

var pgTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
}

func parsePgTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range pgTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
