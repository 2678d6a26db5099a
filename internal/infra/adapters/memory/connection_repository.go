package memory

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/MiiZZo/voicechat/internal/application/constant"
	"github.com/MiiZZo/voicechat/internal/domain/events"
)

// ConnectionRepository интерфейс для работы с активными WebSocket
// сессиями в памяти.
type ConnectionRepository interface {
	Add(connID string, conn *websocket.Conn)
	Remove(connID string)

	// Write отправляет событие соединению. Отсутствующий получатель
	// не является ошибкой: сообщение молча отбрасывается.
	Write(connID string, msg events.Message) bool
}

type safeWS struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type connectionRepository struct {
	// conns хранит map[conn_id]*ws.conn
	conns map[string]*safeWS

	mu sync.RWMutex
}

func NewConnectionRepository() ConnectionRepository {
	return &connectionRepository{
		conns: make(map[string]*safeWS, 10),
	}
}

func (c *connectionRepository) Add(connID string, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conns[connID] = &safeWS{conn: conn}
}

func (c *connectionRepository) Remove(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.conns, connID)
}

func (c *connectionRepository) Write(connID string, msg events.Message) bool {
	safews, ok := c.getSafeWS(connID)
	if !ok {
		return false
	}

	safews.mu.Lock()
	defer safews.mu.Unlock()

	if err := safews.conn.WriteJSON(msg); err != nil {
		slog.Error("write to websocket", slog.Any(constant.Error, err), slog.String(constant.UserID, connID))
		return false
	}

	return true
}

func (c *connectionRepository) getSafeWS(connID string) (*safeWS, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	conn, ok := c.conns[connID]
	return conn, ok
}
