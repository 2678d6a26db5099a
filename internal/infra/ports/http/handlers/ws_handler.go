package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/MiiZZo/voicechat/internal/application/config"
	"github.com/MiiZZo/voicechat/internal/application/constant"
	"github.com/MiiZZo/voicechat/internal/application/metric"
	"github.com/MiiZZo/voicechat/internal/domain/events"
	"github.com/MiiZZo/voicechat/internal/infra/adapters/memory"
	"github.com/MiiZZo/voicechat/internal/usecase"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// Хватает для WebRTC SDP сообщений.
	maxMessageSize = 64 * 1024
)

type WebSocketHandler struct {
	upgrader *websocket.Upgrader

	connRepo         memory.ConnectionRepository
	signalingUsecase usecase.SignalingUsecase
}

func NewWebSocketHandler(
	cfg *config.Config,
	connRepo memory.ConnectionRepository,
	signalingUsecase usecase.SignalingUsecase,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		connRepo:         connRepo,
		signalingUsecase: signalingUsecase,
	}
}

func (h *WebSocketHandler) Handle(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("WebSocket upgrade error", slog.Any(constant.Error, err))
		return err
	}
	defer ws.Close()

	connID := uuid.NewString()

	h.connRepo.Add(connID, ws)
	metric.IncrementWSActiveConnections()

	defer func() {
		h.signalingUsecase.HandleDisconnect(connID)
		h.connRepo.Remove(connID)
		metric.DecrementWSActiveConnections()
	}()

	slog.Info("WebSocket connection established", slog.String(constant.UserID, connID))

	ws.SetReadLimit(maxMessageSize)

	if err = ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-c.Request().Context().Done():
				return
			}
		}
	}()

	// Клиент узнает собственный connection id из первого события.
	if msg, err := events.NewMessage(events.TypeConnected, events.ConnectedEvent{UserID: connID}); err == nil {
		h.connRepo.Write(connID, msg)
	}

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("webSocket read error", slog.Any(constant.Error, err))
			}

			return nil
		}

		var msg events.Message
		if err = json.Unmarshal(raw, &msg); err != nil {
			metric.RecordRejected("bad_envelope")
			slog.Error("unmarshal websocket message", slog.Any(constant.Error, err))
			continue
		}

		h.handleMessage(connID, msg)
	}
}

func (h *WebSocketHandler) handleMessage(connID string, msg events.Message) {
	switch msg.Type {
	case events.TypeJoinRoom:
		var join events.JoinRoomEvent
		if err := json.Unmarshal(msg.Data, &join); err != nil {
			metric.RecordRejected("bad_join")
			slog.Error("unmarshal join event", slog.Any(constant.Error, err))
			return
		}

		h.signalingUsecase.HandleJoin(connID, join)

	case events.TypeSignal:
		var signal events.SignalEvent
		if err := json.Unmarshal(msg.Data, &signal); err != nil {
			metric.RecordRejected("bad_signal")
			slog.Error("unmarshal signal event", slog.Any(constant.Error, err))
			return
		}

		h.signalingUsecase.HandleSignal(connID, signal)

	default:
		metric.RecordRejected("unknown_type")
		slog.Warn("unknown message type",
			slog.String("type", msg.Type),
			slog.String(constant.UserID, connID),
		)
	}
}
