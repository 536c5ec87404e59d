package api

import (
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"quickbite/chat-service/internal/models"
	"quickbite/chat-service/internal/realtime"
	"quickbite/chat-service/internal/service"
)

// WSHandler relays a room's realtime insert events to websocket
// clients. It is a second consumer of the message feed next to the
// session controller.
type WSHandler struct {
	svc       service.ChatService
	feed      realtime.MessageFeed
	jwtSecret string
	logger    *logrus.Logger
}

func NewWSHandler(svc service.ChatService, feed realtime.MessageFeed, jwtSecret string, logger *logrus.Logger) *WSHandler {
	return &WSHandler{svc: svc, feed: feed, jwtSecret: jwtSecret, logger: logger}
}

// Upgrade authenticates the token query param, checks room membership
// and hands the connection to the relay loop.
// GET /ws/rooms/:id?token=...
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		return c.Status(401).JSON(fiber.Map{"error": "token required"})
	}

	userID, _, err := ParseUserToken(token, h.jwtSecret)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
	}

	chatRoomID := c.Params("id")
	room, err := h.svc.ChatRoom(c.Context(), chatRoomID)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "chat room not found"})
	}
	if room.CustomerID != userID && room.DelivererID != userID {
		return c.Status(403).JSON(fiber.Map{"error": "not a participant"})
	}

	c.Locals("user_id", userID)
	c.Locals("chat_room_id", chatRoomID)
	return websocket.New(h.handleConnection)(c)
}

func (h *WSHandler) handleConnection(c *websocket.Conn) {
	chatRoomID, _ := c.Locals("chat_room_id").(string)

	send := make(chan []byte, 64)
	sub, err := h.feed.Subscribe(chatRoomID, func(msg *models.Message) {
		data, err := json.Marshal(msg)
		if err != nil {
			return
		}
		select {
		case send <- data:
		default:
			// Slow client; it recovers via a full reload.
		}
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to subscribe websocket client")
		c.Close()
		return
	}
	defer h.feed.Unsubscribe(sub)

	// Reader loop only detects disconnects; the stream is one-way.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-send:
			c.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
