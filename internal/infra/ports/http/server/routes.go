package server

import (
	"github.com/labstack/echo/v4"

	"github.com/MiiZZo/voicechat/internal/application/config"
	"github.com/MiiZZo/voicechat/internal/infra/ports/http/handlers"
)

func New(
	cfg *config.Config,
	roomHandler *handlers.RoomHandler,
	iceHandler *handlers.IceHandler,
	wsHandler *handlers.WebSocketHandler,
) *echo.Echo {
	e := echo.New()

	e.HideBanner = true

	api := e.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ws", wsHandler.Handle)

			v1.GET("/ice", iceHandler.IceServers)

			v1.POST("/rooms", roomHandler.CreateRoomHandler)
		}
	}

	e.Static("/", cfg.StaticDir)

	return e
}
