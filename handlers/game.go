package handlers

import (
	"game-match-server/middleware"
	"game-match-server/services"
	"game-match-server/ws"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func SetupGameRoutes(app *fiber.App, roomService *services.RoomService, gateway *ws.Gateway) {
	app.Post("/rooms", roomService.CreateRoom)
	app.Get("/rooms/:key", roomService.GetRoom)

	// The websocket handler reads user_id from the connection locals, so
	// the identity middleware has to run before the upgrade.
	app.Use("/ws", middleware.UserContextMiddleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(gateway.Handle))
}
