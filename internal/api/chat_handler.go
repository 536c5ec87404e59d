package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"quickbite/chat-service/internal/models"
	"quickbite/chat-service/internal/service"
)

type ChatHandler struct {
	svc    service.ChatService
	logger *logrus.Logger
}

func NewChatHandler(svc service.ChatService, logger *logrus.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// ActiveRoom returns the customer's active chat room, or null when none
// exists.
// GET /api/v1/chat/room
func (h *ChatHandler) ActiveRoom(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	room, err := h.svc.ActiveChatRoom(c.Context(), userID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load chat room"})
	}

	return c.JSON(fiber.Map{"room": room})
}

// Messages returns a room's messages ascending by creation time.
// GET /api/v1/chat/rooms/:id/messages?limit=50
func (h *ChatHandler) Messages(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	chatRoomID := c.Params("id")

	room, err := h.svc.ChatRoom(c.Context(), chatRoomID)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "chat room not found"})
	}
	if room.CustomerID != userID && room.DelivererID != userID {
		return c.Status(403).JSON(fiber.Map{"error": "not a participant"})
	}

	limit := c.QueryInt("limit", 50)
	messages, err := h.svc.Messages(c.Context(), chatRoomID, limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load messages"})
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	return c.JSON(fiber.Map{"messages": messages})
}

type postMessageRequest struct {
	Content string `json:"content"`
}

// PostMessage sends a message to a room. Sends are refused once the
// room's order is delivered.
// POST /api/v1/chat/rooms/:id/messages
func (h *ChatHandler) PostMessage(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	role, _ := c.Locals("role").(string)
	chatRoomID := c.Params("id")

	var req postMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return c.Status(400).JSON(fiber.Map{"error": "content is required"})
	}

	room, err := h.svc.ChatRoom(c.Context(), chatRoomID)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "chat room not found"})
	}
	if room.Delivered() {
		return c.Status(409).JSON(fiber.Map{"error": "order already delivered"})
	}

	msg, err := h.svc.SendMessage(c.Context(), chatRoomID, userID, content, models.SenderRole(role))
	if err != nil {
		h.logger.WithError(err).Error("Failed to send message via API")
		return c.Status(500).JSON(fiber.Map{"error": "failed to send message"})
	}

	return c.Status(201).JSON(fiber.Map{"message": msg})
}

// MarkRead marks every message in the room not sent by the caller as
// read. Idempotent.
// POST /api/v1/chat/rooms/:id/read
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	chatRoomID := c.Params("id")

	count, err := h.svc.MarkAllRead(c.Context(), chatRoomID, userID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to mark messages read"})
	}

	return c.JSON(fiber.Map{"marked_count": count})
}

// UnreadCount returns the caller's unread badge value.
// GET /api/v1/chat/unread-count
func (h *ChatHandler) UnreadCount(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	return c.JSON(fiber.Map{"count": h.svc.UnreadCount(c.Context(), userID)})
}

// DelivererActive lists the deliverer's rooms for in-flight orders.
// GET /api/v1/deliverer/rooms/active
func (h *ChatHandler) DelivererActive(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	rooms, err := h.svc.DelivererActiveOrders(c.Context(), userID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load active orders"})
	}
	if rooms == nil {
		rooms = []*models.ChatRoom{}
	}

	return c.JSON(fiber.Map{"rooms": rooms})
}

// DelivererHistory lists the deliverer's rooms for delivered orders.
// GET /api/v1/deliverer/rooms/history
func (h *ChatHandler) DelivererHistory(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	rooms, err := h.svc.DelivererChatHistory(c.Context(), userID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load chat history"})
	}
	if rooms == nil {
		rooms = []*models.ChatRoom{}
	}

	return c.JSON(fiber.Map{"rooms": rooms})
}

type openRoomRequest struct {
	CustomerID  string `json:"customer_id"`
	DelivererID string `json:"deliverer_id"`
	OrderID     string `json:"order_id"`
}

// OpenRoom creates the room when the order system assigns a deliverer.
// POST /internal/v1/rooms
func (h *ChatHandler) OpenRoom(c *fiber.Ctx) error {
	var req openRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	room, err := h.svc.OpenChatRoom(c.Context(), req.CustomerID, req.DelivererID, req.OrderID)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(201).JSON(fiber.Map{"room": room})
}

// CloseRoom deactivates the room and records the delivered status when
// the order completes.
// POST /internal/v1/rooms/:id/close
func (h *ChatHandler) CloseRoom(c *fiber.Ctx) error {
	chatRoomID := c.Params("id")

	if err := h.svc.CloseChatRoom(c.Context(), chatRoomID); err != nil {
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"ok": true})
}
