package constant

// Общие ключи для slog атрибутов.
const (
	Error    = "error"
	UserID   = "user_id"
	UserName = "user_name"
	RoomID   = "room_id"
	State    = "state"
)
