package usecase

import (
	"log/slog"

	"github.com/MiiZZo/voicechat/internal/application/constant"
	"github.com/MiiZZo/voicechat/internal/application/metric"
	"github.com/MiiZZo/voicechat/internal/domain/events"
	"github.com/MiiZZo/voicechat/internal/domain/models"
	"github.com/MiiZZo/voicechat/internal/infra/adapters/memory"
)

// SignalingUsecase реализует операции relay-сервера: по одной на каждый
// тип входящего сообщения. Некорректные сообщения отбрасываются с error
// событием отправителю и никогда не валят процесс.
type SignalingUsecase interface {
	HandleJoin(connID string, ev events.JoinRoomEvent)
	HandleSignal(connID string, ev events.SignalEvent)
	HandleDisconnect(connID string)
}

type signalingUsecase struct {
	registry memory.RoomRegistry
	connRepo memory.ConnectionRepository
}

func NewSignalingUsecase(
	registry memory.RoomRegistry,
	connRepo memory.ConnectionRepository,
) SignalingUsecase {
	return &signalingUsecase{
		registry: registry,
		connRepo: connRepo,
	}
}

func (s *signalingUsecase) HandleJoin(connID string, ev events.JoinRoomEvent) {
	roomID, err := models.NormalizeRoomID(ev.RoomID)
	if err != nil {
		metric.RecordRejected("bad_room_id")
		s.sendError(connID, err.Error())
		return
	}

	if err := models.ValidateUsername(ev.Username); err != nil {
		metric.RecordRejected("bad_username")
		s.sendError(connID, err.Error())
		return
	}

	member := models.Member{ID: connID, Username: ev.Username}

	result := s.registry.Join(roomID, member)

	slog.Info("member joined room",
		slog.String(constant.UserID, connID),
		slog.String(constant.UserName, ev.Username),
		slog.String(constant.RoomID, roomID),
	)

	// Неявный выход из предыдущей комнаты.
	if prev := result.Previous; prev != nil && prev.RoomID != roomID {
		s.notifyLeft(*prev)
	}

	s.send(connID, events.TypeParticipants, participantNames(result.Members, connID))

	joined := events.UserJoinedEvent{UserID: connID, Username: ev.Username}

	for _, m := range result.Members {
		if m.ID == connID {
			continue
		}

		s.send(m.ID, events.TypeUserJoined, joined)

		// Пересчитанный список рассылается всем, чтобы представление
		// оставалось консистентным при чередовании сообщений.
		s.send(m.ID, events.TypeParticipants, participantNames(result.Members, m.ID))
	}

	metric.SetRegistrySize(s.registry.Size())
}

func (s *signalingUsecase) HandleSignal(connID string, ev events.SignalEvent) {
	if ev.TargetUserID == "" {
		metric.RecordRejected("missing_target")
		s.sendError(connID, "targetUserId is required")
		return
	}

	forward := events.SignalForwardEvent{
		Signal:     ev.Signal,
		FromUserID: connID,
	}

	// Пересылается только адресату; отсутствующий адресат - не ошибка,
	// негоциация на стороне отправителя отвалится по таймауту.
	if s.send(ev.TargetUserID, events.TypeSignal, forward) {
		metric.RecordSignal("forwarded")
	} else {
		metric.RecordSignal("dropped")
	}
}

func (s *signalingUsecase) HandleDisconnect(connID string) {
	result, ok := s.registry.Leave(connID)
	if !ok {
		return
	}

	slog.Info("member left room",
		slog.String(constant.UserID, connID),
		slog.String(constant.RoomID, result.RoomID),
	)

	s.notifyLeft(result)

	metric.SetRegistrySize(s.registry.Size())
}

func (s *signalingUsecase) notifyLeft(result memory.LeaveResult) {
	left := events.UserLeftEvent{UserID: result.Member.ID}

	for _, m := range result.Remaining {
		s.send(m.ID, events.TypeUserLeft, left)
		s.send(m.ID, events.TypeParticipants, participantNames(result.Remaining, m.ID))
	}
}

func (s *signalingUsecase) send(connID, eventType string, payload any) bool {
	msg, err := events.NewMessage(eventType, payload)
	if err != nil {
		slog.Error("marshal event", slog.Any(constant.Error, err))
		return false
	}

	return s.connRepo.Write(connID, msg)
}

func (s *signalingUsecase) sendError(connID, message string) {
	s.send(connID, events.TypeError, message)
}

// participantNames собирает имена участников без самого получателя.
func participantNames(members []models.Member, excludeID string) []string {
	names := make([]string, 0, len(members))
	for _, m := range members {
		if m.ID == excludeID {
			continue
		}

		names = append(names, m.Username)
	}

	return names
}
