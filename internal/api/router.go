package api

import (
	"github.com/gofiber/fiber/v2"
)

// Register wires every route onto the fiber app.
func Register(app *fiber.App, chat *ChatHandler, ws *WSHandler, jwtSecret, serverKey string) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1 := app.Group("/api/v1", Auth(jwtSecret))
	v1.Get("/chat/room", chat.ActiveRoom)
	v1.Get("/chat/rooms/:id/messages", chat.Messages)
	v1.Post("/chat/rooms/:id/messages", chat.PostMessage)
	v1.Post("/chat/rooms/:id/read", chat.MarkRead)
	v1.Get("/chat/unread-count", chat.UnreadCount)
	v1.Get("/deliverer/rooms/active", chat.DelivererActive)
	v1.Get("/deliverer/rooms/history", chat.DelivererHistory)

	internal := app.Group("/internal/v1", ServerKey(serverKey))
	internal.Post("/rooms", chat.OpenRoom)
	internal.Post("/rooms/:id/close", chat.CloseRoom)

	app.Get("/ws/rooms/:id", ws.Upgrade)
}
