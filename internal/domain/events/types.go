package events

import "encoding/json"

// Типы событий протокола сигналинга.
const (
	TypeJoinRoom     = "join-room"
	TypeConnected    = "connected"
	TypeParticipants = "room-participants"
	TypeUserJoined   = "user-joined"
	TypeUserLeft     = "user-left"
	TypeSignal       = "signal"
	TypeError        = "error"
)

// Message - общее событие. Конверт для всех сообщений relay <-> client.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinRoomEvent - запрос на подключение к комнате.
type JoinRoomEvent struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// ConnectedEvent - выдается сразу после апгрейда, несет id соединения.
type ConnectedEvent struct {
	UserID string `json:"userId"`
}

// UserJoinedEvent - новый участник комнаты.
type UserJoinedEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// UserLeftEvent - участник покинул комнату.
type UserLeftEvent struct {
	UserID string `json:"userId"`
}

// SignalEvent - запрос на пересылку негоциационного payload.
// Signal не интерпретируется relay-сервером.
type SignalEvent struct {
	TargetUserID string          `json:"targetUserId"`
	Signal       json.RawMessage `json:"signal"`
	RoomID       string          `json:"roomId"`
}

// SignalForwardEvent - пересланный payload на стороне получателя.
type SignalForwardEvent struct {
	Signal     json.RawMessage `json:"signal"`
	FromUserID string          `json:"fromUserId"`
}

// NewMessage собирает конверт с сериализованным payload.
func NewMessage(eventType string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{Type: eventType, Data: data}, nil
}
