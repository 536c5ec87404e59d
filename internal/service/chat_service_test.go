package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickbite/chat-service/internal/models"
)

type fakeRepository struct {
	rooms          map[string]*models.ChatRoom
	delivererRooms []*models.ChatRoom
	created        []*models.Message
	createErr      error
	unread         int
	unreadErr      error
	markedCount    int
	lastLimit      int
	statusAppends  []string
	deactivated    []string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{rooms: make(map[string]*models.ChatRoom)}
}

func (f *fakeRepository) CreateChatRoom(ctx context.Context, room *models.ChatRoom) error {
	room.CreatedAt = time.Now()
	room.IsActive = true
	f.rooms[room.ID] = room
	return nil
}

func (f *fakeRepository) GetChatRoomByID(ctx context.Context, id string) (*models.ChatRoom, error) {
	room, ok := f.rooms[id]
	if !ok {
		return nil, fmt.Errorf("chat room not found")
	}
	return room, nil
}

func (f *fakeRepository) GetActiveChatRoom(ctx context.Context, customerID string) (*models.ChatRoom, error) {
	for _, room := range f.rooms {
		if room.CustomerID == customerID && room.IsActive {
			return room, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) GetDelivererChatRooms(ctx context.Context, delivererID string) ([]*models.ChatRoom, error) {
	return f.delivererRooms, nil
}

func (f *fakeRepository) DeactivateChatRoom(ctx context.Context, roomID string) error {
	f.deactivated = append(f.deactivated, roomID)
	return nil
}

func (f *fakeRepository) AppendOrderStatus(ctx context.Context, orderID, status string) error {
	f.statusAppends = append(f.statusAppends, orderID+":"+status)
	return nil
}

func (f *fakeRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	if f.createErr != nil {
		return f.createErr
	}
	msg.CreatedAt = time.Now()
	f.created = append(f.created, msg)
	return nil
}

func (f *fakeRepository) GetMessages(ctx context.Context, chatRoomID string, limit int) ([]*models.Message, error) {
	f.lastLimit = limit
	return nil, nil
}

func (f *fakeRepository) MarkMessagesAsRead(ctx context.Context, chatRoomID, userID string) (int, error) {
	count := f.markedCount
	f.markedCount = 0 // the SQL filter leaves nothing unread afterwards
	return count, nil
}

func (f *fakeRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	if f.unreadErr != nil {
		return 0, f.unreadErr
	}
	return f.unread, nil
}

func (f *fakeRepository) InitializeTables() error { return nil }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func seedRoom(repo *fakeRepository, id string) *models.ChatRoom {
	room := &models.ChatRoom{
		ID:          id,
		Type:        models.ChatRoomTypeDeliverer,
		CustomerID:  "customer-1",
		DelivererID: "deliverer-1",
		OrderID:     "order-1",
		IsActive:    true,
	}
	repo.rooms[id] = room
	return room
}

func TestSendMessageRejectsBlankContent(t *testing.T) {
	repo := newFakeRepository()
	seedRoom(repo, "room-1")
	svc := NewChatService(repo, quietLogger())

	for _, content := range []string{"", "   ", "\t\n"} {
		_, err := svc.SendMessage(context.Background(), "room-1", "customer-1", content, models.RoleCustomer)
		assert.Error(t, err)
	}
	assert.Empty(t, repo.created, "no row is written for blank content")
}

func TestSendMessageRejectsOverlongContent(t *testing.T) {
	repo := newFakeRepository()
	seedRoom(repo, "room-1")
	svc := NewChatService(repo, quietLogger())

	_, err := svc.SendMessage(context.Background(), "room-1", "customer-1",
		strings.Repeat("a", MaxMessageLength+1), models.RoleCustomer)
	assert.Error(t, err)
	assert.Empty(t, repo.created)

	// Exactly at the cap is fine; the cap counts characters, not bytes.
	_, err = svc.SendMessage(context.Background(), "room-1", "customer-1",
		strings.Repeat("ü", MaxMessageLength), models.RoleCustomer)
	assert.NoError(t, err)
	assert.Len(t, repo.created, 1)
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	repo := newFakeRepository()
	seedRoom(repo, "room-1")
	svc := NewChatService(repo, quietLogger())

	_, err := svc.SendMessage(context.Background(), "room-1", "stranger", "hello", models.RoleCustomer)
	assert.Error(t, err)
	assert.Empty(t, repo.created)
}

func TestSendMessageFillsDefaults(t *testing.T) {
	repo := newFakeRepository()
	seedRoom(repo, "room-1")
	svc := NewChatService(repo, quietLogger())

	msg, err := svc.SendMessage(context.Background(), "room-1", "deliverer-1", "on my way", models.RoleDeliverer)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, models.MessageTypeText, msg.MessageType)
	assert.Equal(t, models.RoleDeliverer, msg.SenderType)
	assert.Nil(t, msg.ReadAt)
}

func TestMessagesLimitClamped(t *testing.T) {
	repo := newFakeRepository()
	svc := NewChatService(repo, quietLogger())

	_, err := svc.Messages(context.Background(), "room-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 50, repo.lastLimit)

	_, err = svc.Messages(context.Background(), "room-1", 500)
	require.NoError(t, err)
	assert.Equal(t, 100, repo.lastLimit)
}

func TestDelivererRoomsSplitByStatus(t *testing.T) {
	repo := newFakeRepository()
	inFlight := &models.ChatRoom{ID: "room-a", OrderID: "order-a", OrderStatus: "on_the_way"}
	done := &models.ChatRoom{ID: "room-b", OrderID: "order-b", OrderStatus: models.OrderStatusDelivered}
	repo.delivererRooms = []*models.ChatRoom{inFlight, done}
	svc := NewChatService(repo, quietLogger())

	active, err := svc.DelivererActiveOrders(context.Background(), "deliverer-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "room-a", active[0].ID)

	history, err := svc.DelivererChatHistory(context.Background(), "deliverer-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "room-b", history[0].ID)

	// The room moves lists once its order is delivered.
	inFlight.OrderStatus = models.OrderStatusDelivered

	active, err = svc.DelivererActiveOrders(context.Background(), "deliverer-1")
	require.NoError(t, err)
	assert.Empty(t, active)

	history, err = svc.DelivererChatHistory(context.Background(), "deliverer-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestMarkAllReadIdempotent(t *testing.T) {
	repo := newFakeRepository()
	seedRoom(repo, "room-1")
	repo.markedCount = 3
	svc := NewChatService(repo, quietLogger())

	count, err := svc.MarkAllRead(context.Background(), "room-1", "customer-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = svc.MarkAllRead(context.Background(), "room-1", "customer-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count, "second pass updates zero rows")
}

func TestMarkAllReadRejectsNonParticipant(t *testing.T) {
	repo := newFakeRepository()
	seedRoom(repo, "room-1")
	svc := NewChatService(repo, quietLogger())

	_, err := svc.MarkAllRead(context.Background(), "room-1", "stranger")
	assert.Error(t, err)
}

func TestUnreadCountFailsSoftToZero(t *testing.T) {
	repo := newFakeRepository()
	repo.unread = 4
	svc := NewChatService(repo, quietLogger())

	assert.Equal(t, 4, svc.UnreadCount(context.Background(), "customer-1"))

	repo.unreadErr = fmt.Errorf("aggregate unavailable")
	assert.Equal(t, 0, svc.UnreadCount(context.Background(), "customer-1"))
}

func TestOpenChatRoomValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := NewChatService(repo, quietLogger())

	_, err := svc.OpenChatRoom(context.Background(), "u1", "u1", "order-1")
	assert.Error(t, err, "self-chat is rejected")

	_, err = svc.OpenChatRoom(context.Background(), "", "deliverer-1", "order-1")
	assert.Error(t, err)

	room, err := svc.OpenChatRoom(context.Background(), "customer-1", "deliverer-1", "order-1")
	require.NoError(t, err)
	assert.True(t, room.IsActive)
	assert.Equal(t, models.ChatRoomTypeDeliverer, room.Type)
}

func TestCloseChatRoomRecordsDelivery(t *testing.T) {
	repo := newFakeRepository()
	seedRoom(repo, "room-1")
	svc := NewChatService(repo, quietLogger())

	err := svc.CloseChatRoom(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"room-1"}, repo.deactivated)
	assert.Equal(t, []string{"order-1:delivered"}, repo.statusAppends)

	err = svc.CloseChatRoom(context.Background(), "missing")
	assert.Error(t, err)
}
