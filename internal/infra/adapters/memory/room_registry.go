package memory

import (
	"sync"

	"github.com/MiiZZo/voicechat/internal/domain/models"
)

// RoomRegistry интерфейс для работы с активными комнатами в памяти.
// Реестр авторитетен для членства: все мутации (вход, выход, удаление
// пустой комнаты) сериализованы одним мьютексом и возвращают снапшоты,
// поэтому сетевой ввод-вывод никогда не выполняется под блокировкой.
type RoomRegistry interface {
	// Join переводит соединение в комнату. Выход из предыдущей комнаты,
	// создание новой и вставка участника происходят атомарно.
	Join(roomID string, member models.Member) JoinResult

	// Leave убирает соединение из его комнаты, удаляя опустевшую комнату.
	Leave(connID string) (LeaveResult, bool)

	// Members возвращает снапшот участников комнаты.
	Members(roomID string) []models.Member

	// Size возвращает количество комнат и участников для метрик.
	Size() (rooms, members int)
}

// JoinResult снапшот состояния после входа в комнату.
type JoinResult struct {
	// Members - участники комнаты, включая вошедшего.
	Members []models.Member

	// Previous - комната, которую соединение неявно покинуло, если была.
	Previous *LeaveResult
}

// LeaveResult снапшот состояния после выхода из комнаты.
type LeaveResult struct {
	RoomID    string
	Member    models.Member
	Remaining []models.Member
}

type roomRegistry struct {
	// rooms хранит map[room_id]map[conn_id]Member
	rooms map[string]map[string]models.Member

	// sessions хранит map[conn_id]room_id
	sessions map[string]string

	mu sync.Mutex
}

func NewRoomRegistry() RoomRegistry {
	return &roomRegistry{
		rooms:    make(map[string]map[string]models.Member),
		sessions: make(map[string]string),
	}
}

func (r *roomRegistry) Join(roomID string, member models.Member) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result JoinResult

	if prev, ok := r.leaveLocked(member.ID); ok {
		result.Previous = &prev
	}

	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[string]models.Member)
		r.rooms[roomID] = room
	}

	room[member.ID] = member
	r.sessions[member.ID] = roomID

	result.Members = membersSnapshot(room)

	return result
}

func (r *roomRegistry) Leave(connID string) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(connID)
}

func (r *roomRegistry) leaveLocked(connID string) (LeaveResult, bool) {
	roomID, ok := r.sessions[connID]
	if !ok {
		return LeaveResult{}, false
	}

	delete(r.sessions, connID)

	room, ok := r.rooms[roomID]
	if !ok {
		return LeaveResult{}, false
	}

	member := room[connID]
	delete(room, connID)

	if len(room) == 0 {
		delete(r.rooms, roomID)
	}

	return LeaveResult{
		RoomID:    roomID,
		Member:    member,
		Remaining: membersSnapshot(room),
	}, true
}

func (r *roomRegistry) Members(roomID string) []models.Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	return membersSnapshot(r.rooms[roomID])
}

func (r *roomRegistry) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.rooms), len(r.sessions)
}

func membersSnapshot(room map[string]models.Member) []models.Member {
	members := make([]models.Member, 0, len(room))
	for _, m := range room {
		members = append(members, m)
	}

	return members
}
