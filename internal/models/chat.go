package models

import (
	"encoding/json"
	"time"
)

// SenderRole identifies which side of the conversation wrote a message.
type SenderRole string

const (
	RoleCustomer  SenderRole = "customer"
	RoleDeliverer SenderRole = "deliverer"
)

// ChatRoomTypeDeliverer is the only room type in the current scope.
const ChatRoomTypeDeliverer = "deliverer"

// MessageTypeText is the only message kind in the current scope.
const MessageTypeText = "text"

// OrderStatusDelivered is the terminal order status; a room whose order
// reached it no longer accepts sends and moves to chat history.
const OrderStatusDelivered = "delivered"

// ChatRoom is one conversation between a customer and a deliverer,
// scoped to a single order. At most one active room exists per
// (customer, order) pair.
type ChatRoom struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	CustomerID  string    `json:"customer_id"`
	DelivererID string    `json:"deliverer_id"`
	OrderID     string    `json:"order_id"`
	CreatedAt   time.Time `json:"created_at"`
	IsActive    bool      `json:"is_active"`

	// OrderStatus is the latest status of the scoped order, joined in
	// for display. Empty when the order has no status rows yet.
	OrderStatus string `json:"order_status,omitempty"`
}

// Delivered reports whether the room's order has reached its terminal
// status. Callers must check this before offering the send action.
func (r *ChatRoom) Delivered() bool {
	return r.OrderStatus == OrderStatusDelivered
}

type Message struct {
	ID          string          `json:"id"`
	ChatRoomID  string          `json:"chat_room_id"`
	SenderID    string          `json:"sender_id"`
	SenderType  SenderRole      `json:"sender_type"`
	Content     string          `json:"content"`
	MessageType string          `json:"message_type"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ReadAt      *time.Time      `json:"read_at,omitempty"`
}
