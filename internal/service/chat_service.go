package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"quickbite/chat-service/internal/models"
	"quickbite/chat-service/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MaxMessageLength caps message content, counted in characters.
const MaxMessageLength = 500

type ChatService interface {
	OpenChatRoom(ctx context.Context, customerID, delivererID, orderID string) (*models.ChatRoom, error)
	CloseChatRoom(ctx context.Context, chatRoomID string) error
	ChatRoom(ctx context.Context, chatRoomID string) (*models.ChatRoom, error)
	ActiveChatRoom(ctx context.Context, customerID string) (*models.ChatRoom, error)
	Messages(ctx context.Context, chatRoomID string, limit int) ([]*models.Message, error)
	SendMessage(ctx context.Context, chatRoomID, senderID, content string, role models.SenderRole) (*models.Message, error)
	DelivererActiveOrders(ctx context.Context, delivererID string) ([]*models.ChatRoom, error)
	DelivererChatHistory(ctx context.Context, delivererID string) ([]*models.ChatRoom, error)
	MarkAllRead(ctx context.Context, chatRoomID, userID string) (int, error)
	UnreadCount(ctx context.Context, userID string) int
}

type chatService struct {
	repository repository.ChatRepository
	logger     *logrus.Logger
}

func NewChatService(repo repository.ChatRepository, logger *logrus.Logger) ChatService {
	return &chatService{
		repository: repo,
		logger:     logger,
	}
}

func (s *chatService) OpenChatRoom(ctx context.Context, customerID, delivererID, orderID string) (*models.ChatRoom, error) {
	if customerID == "" || delivererID == "" || orderID == "" {
		return nil, fmt.Errorf("customer, deliverer and order ids are required")
	}
	if customerID == delivererID {
		return nil, fmt.Errorf("cannot open chat room with yourself")
	}

	room := &models.ChatRoom{
		ID:          uuid.New().String(),
		Type:        models.ChatRoomTypeDeliverer,
		CustomerID:  customerID,
		DelivererID: delivererID,
		OrderID:     orderID,
	}

	if err := s.repository.CreateChatRoom(ctx, room); err != nil {
		s.logger.WithError(err).Error("Failed to open chat room")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"chat_room_id": room.ID,
		"customer_id":  customerID,
		"deliverer_id": delivererID,
		"order_id":     orderID,
	}).Info("Chat room opened")

	return room, nil
}

func (s *chatService) CloseChatRoom(ctx context.Context, chatRoomID string) error {
	room, err := s.repository.GetChatRoomByID(ctx, chatRoomID)
	if err != nil {
		return fmt.Errorf("chat room not found")
	}

	if err := s.repository.DeactivateChatRoom(ctx, chatRoomID); err != nil {
		s.logger.WithError(err).Error("Failed to deactivate chat room")
		return err
	}

	if err := s.repository.AppendOrderStatus(ctx, room.OrderID, models.OrderStatusDelivered); err != nil {
		s.logger.WithError(err).Error("Failed to append delivered status")
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"chat_room_id": chatRoomID,
		"order_id":     room.OrderID,
	}).Info("Chat room closed")

	return nil
}

func (s *chatService) ChatRoom(ctx context.Context, chatRoomID string) (*models.ChatRoom, error) {
	room, err := s.repository.GetChatRoomByID(ctx, chatRoomID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get chat room")
		return nil, err
	}

	return room, nil
}

// ActiveChatRoom returns the customer's most recently created active
// room, or nil when none exists.
func (s *chatService) ActiveChatRoom(ctx context.Context, customerID string) (*models.ChatRoom, error) {
	room, err := s.repository.GetActiveChatRoom(ctx, customerID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get active chat room")
		return nil, err
	}

	return room, nil
}

func (s *chatService) Messages(ctx context.Context, chatRoomID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	messages, err := s.repository.GetMessages(ctx, chatRoomID, limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get chat messages")
		return nil, err
	}

	return messages, nil
}

func (s *chatService) SendMessage(ctx context.Context, chatRoomID, senderID, content string, role models.SenderRole) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("message content is empty")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, fmt.Errorf("message content exceeds %d characters", MaxMessageLength)
	}
	if role != models.RoleCustomer && role != models.RoleDeliverer {
		return nil, fmt.Errorf("unknown sender role %q", role)
	}

	room, err := s.repository.GetChatRoomByID(ctx, chatRoomID)
	if err != nil {
		return nil, fmt.Errorf("chat room not found")
	}

	if room.CustomerID != senderID && room.DelivererID != senderID {
		return nil, fmt.Errorf("user is not a participant in this chat room")
	}

	msg := &models.Message{
		ID:          uuid.New().String(),
		ChatRoomID:  chatRoomID,
		SenderID:    senderID,
		SenderType:  role,
		Content:     content,
		MessageType: models.MessageTypeText,
	}

	if err := s.repository.CreateMessage(ctx, msg); err != nil {
		s.logger.WithError(err).Error("Failed to send message")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"message_id":   msg.ID,
		"chat_room_id": chatRoomID,
		"sender_id":    senderID,
	}).Info("Message sent")

	return msg, nil
}

// DelivererActiveOrders returns the deliverer's rooms whose order has
// not been delivered yet. The status split happens client-side on the
// joined status rather than in SQL.
func (s *chatService) DelivererActiveOrders(ctx context.Context, delivererID string) ([]*models.ChatRoom, error) {
	rooms, err := s.repository.GetDelivererChatRooms(ctx, delivererID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get deliverer chat rooms")
		return nil, err
	}

	var active []*models.ChatRoom
	for _, room := range rooms {
		if !room.Delivered() {
			active = append(active, room)
		}
	}

	return active, nil
}

func (s *chatService) DelivererChatHistory(ctx context.Context, delivererID string) ([]*models.ChatRoom, error) {
	rooms, err := s.repository.GetDelivererChatRooms(ctx, delivererID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get deliverer chat history")
		return nil, err
	}

	var history []*models.ChatRoom
	for _, room := range rooms {
		if room.Delivered() {
			history = append(history, room)
		}
	}

	return history, nil
}

func (s *chatService) MarkAllRead(ctx context.Context, chatRoomID, userID string) (int, error) {
	room, err := s.repository.GetChatRoomByID(ctx, chatRoomID)
	if err != nil {
		return 0, fmt.Errorf("chat room not found")
	}

	if room.CustomerID != userID && room.DelivererID != userID {
		return 0, fmt.Errorf("user is not a participant in this chat room")
	}

	count, err := s.repository.MarkMessagesAsRead(ctx, chatRoomID, userID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to mark messages as read")
		return 0, err
	}

	return count, nil
}

// UnreadCount fails soft to 0: callers render it as a badge and treat a
// store error the same as an empty inbox.
func (s *chatService) UnreadCount(ctx context.Context, userID string) int {
	count, err := s.repository.UnreadCount(ctx, userID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get unread count")
		return 0
	}

	return count
}
