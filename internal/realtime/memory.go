package realtime

import (
	"fmt"
	"sync"

	"quickbite/chat-service/internal/models"
)

// MemoryFeed is an in-process MessageFeed. It backs tests and embedded
// setups where all writers share one process.
type MemoryFeed struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]MessageHandler
	nextID uint64
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		subs: make(map[string]map[uint64]MessageHandler),
	}
}

func (f *MemoryFeed) Subscribe(chatRoomID string, handler MessageHandler) (*Subscription, error) {
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

func (f *MemoryFeed) Unsubscribe(sub *Subscription) {
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

// Publish delivers a message to every handler subscribed to its room.
func (f *MemoryFeed) Publish(msg *models.Message) {
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

// SubscriberCount reports how many handlers are registered for a room.
func (f *MemoryFeed) SubscriberCount(chatRoomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[chatRoomID])
}
