package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/MiiZZo/voicechat/internal/domain/models"
)

type RoomHandler struct{}

func NewRoomHandler() *RoomHandler {
	return &RoomHandler{}
}

// CreateRoomHandler выдает сгенерированный room id. Комната не
// регистрируется: она появится в реестре с первым join и исчезнет с
// последним выходом.
func (h *RoomHandler) CreateRoomHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"roomId": models.GenerateRoomID()})
}
