package usecase

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/MiiZZo/voicechat/internal/domain/events"
	"github.com/MiiZZo/voicechat/internal/infra/adapters/memory"
)

// fakeConnRepo записывает отправленные сообщения по conn_id вместо
// записи в реальный websocket.
type fakeConnRepo struct {
	mu   sync.Mutex
	sent map[string][]events.Message
}

func newFakeConnRepo() *fakeConnRepo {
	return &fakeConnRepo{sent: make(map[string][]events.Message)}
}

func (f *fakeConnRepo) Add(connID string, conn *websocket.Conn) {}

func (f *fakeConnRepo) Remove(connID string) {}

func (f *fakeConnRepo) Write(connID string, msg events.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent[connID] = append(f.sent[connID], msg)

	return true
}

func (f *fakeConnRepo) messages(connID string) []events.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]events.Message(nil), f.sent[connID]...)
}

func (f *fakeConnRepo) lastOfType(t *testing.T, connID, eventType string) events.Message {
	t.Helper()

	var found *events.Message
	for _, msg := range f.messages(connID) {
		if msg.Type == eventType {
			m := msg
			found = &m
		}
	}

	if found == nil {
		t.Fatalf("no %q message sent to %s", eventType, connID)
	}

	return *found
}

func (f *fakeConnRepo) countOfType(connID, eventType string) int {
	n := 0
	for _, msg := range f.messages(connID) {
		if msg.Type == eventType {
			n++
		}
	}

	return n
}

func decode[T any](t *testing.T, msg events.Message) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		t.Fatalf("unmarshal %q payload: %v", msg.Type, err)
	}

	return v
}

func newTestUsecase() (SignalingUsecase, *fakeConnRepo, memory.RoomRegistry) {
	registry := memory.NewRoomRegistry()
	repo := newFakeConnRepo()

	return NewSignalingUsecase(registry, repo), repo, registry
}

func TestHandleJoinFirstMemberGetsEmptyList(t *testing.T) {
	uc, repo, _ := newTestUsecase()

	uc.HandleJoin("a", events.JoinRoomEvent{RoomID: "room01", Username: "alice"})

	msg := repo.lastOfType(t, "a", events.TypeParticipants)

	names := decode[[]string](t, msg)
	if len(names) != 0 {
		t.Errorf("first member should see an empty list, got %v", names)
	}
}

func TestHandleJoinNotifiesExistingMembers(t *testing.T) {
	uc, repo, _ := newTestUsecase()

	uc.HandleJoin("a", events.JoinRoomEvent{RoomID: "room01", Username: "alice"})
	uc.HandleJoin("b", events.JoinRoomEvent{RoomID: "room01", Username: "bob"})

	joined := decode[events.UserJoinedEvent](t, repo.lastOfType(t, "a", events.TypeUserJoined))
	if joined.UserID != "b" || joined.Username != "bob" {
		t.Errorf("unexpected user-joined payload %+v", joined)
	}

	// Вошедший видит список без себя.
	namesB := decode[[]string](t, repo.lastOfType(t, "b", events.TypeParticipants))
	if len(namesB) != 1 || namesB[0] != "alice" {
		t.Errorf("joiner should see [alice], got %v", namesB)
	}

	// Существующий участник получает пересчитанный список без себя.
	namesA := decode[[]string](t, repo.lastOfType(t, "a", events.TypeParticipants))
	if len(namesA) != 1 || namesA[0] != "bob" {
		t.Errorf("existing member should see [bob], got %v", namesA)
	}

	// Никто не получает user-joined про самого себя.
	if n := repo.countOfType("b", events.TypeUserJoined); n != 0 {
		t.Errorf("joiner should not receive user-joined about itself, got %d", n)
	}
}

func TestHandleJoinNormalizesRoomID(t *testing.T) {
	uc, repo, registry := newTestUsecase()

	uc.HandleJoin("a", events.JoinRoomEvent{RoomID: "room01", Username: "alice"})
	uc.HandleJoin("b", events.JoinRoomEvent{RoomID: "ROOM01", Username: "bob"})

	if members := registry.Members("ROOM01"); len(members) != 2 {
		t.Errorf("case variants should land in one room, got %+v", members)
	}

	if n := repo.countOfType("a", events.TypeError); n != 0 {
		t.Errorf("unexpected error events: %d", n)
	}
}

func TestHandleJoinRejectsBadRoomID(t *testing.T) {
	uc, repo, registry := newTestUsecase()

	uc.HandleJoin("a", events.JoinRoomEvent{RoomID: "bad room!", Username: "alice"})

	if n := repo.countOfType("a", events.TypeError); n != 1 {
		t.Fatalf("expected one error event, got %d", n)
	}

	rooms, _ := registry.Size()
	if rooms != 0 {
		t.Error("rejected join must not create a room")
	}
}

func TestHandleJoinRejectsBadUsername(t *testing.T) {
	uc, repo, registry := newTestUsecase()

	uc.HandleJoin("a", events.JoinRoomEvent{RoomID: "room01", Username: "x"})

	if n := repo.countOfType("a", events.TypeError); n != 1 {
		t.Fatalf("expected one error event, got %d", n)
	}

	rooms, _ := registry.Size()
	if rooms != 0 {
		t.Error("rejected join must not create a room")
	}
}

func TestHandleJoinSwitchesRoom(t *testing.T) {
	uc, repo, registry := newTestUsecase()

	uc.HandleJoin("a", events.JoinRoomEvent{RoomID: "room01", Username: "alice"})
	uc.HandleJoin("b", events.JoinRoomEvent{RoomID: "room01", Username: "bob"})
	uc.HandleJoin("a", events.JoinRoomEvent{RoomID: "room02", Username: "alice"})

	left := decode[events.UserLeftEvent](t, repo.lastOfType(t, "b", events.TypeUserLeft))
	if left.UserID != "a" {
		t.Errorf("expected user-left about a, got %+v", left)
	}

	names := decode[[]string](t, repo.lastOfType(t, "b", events.TypeParticipants))
	if len(names) != 0 {
		t.Errorf("b should be alone after the switch, got %v", names)
	}

	if members := registry.Members("ROOM02"); len(members) != 1 || members[0].ID != "a" {
		t.Errorf("expected a in ROOM02, got %+v", members)
	}
}

func TestHandleSignalForwardsToTargetOnly(t *testing.T) {
	uc, repo, _ := newTestUsecase()

	uc.HandleJoin("a", events.JoinRoomEvent{RoomID: "room01", Username: "alice"})
	uc.HandleJoin("b", events.JoinRoomEvent{RoomID: "room01", Username: "bob"})
	uc.HandleJoin("c", events.JoinRoomEvent{RoomID: "room01", Username: "carol"})

	payload := json.RawMessage(`{"kind":"offer","sdp":"v=0"}`)

	uc.HandleSignal("a", events.SignalEvent{TargetUserID: "b", Signal: payload, RoomID: "room01"})

	forward := decode[events.SignalForwardEvent](t, repo.lastOfType(t, "b", events.TypeSignal))

	if forward.FromUserID != "a" {
		t.Errorf("expected fromUserId a, got %q", forward.FromUserID)
	}

	if string(forward.Signal) != string(payload) {
		t.Errorf("signal payload must pass through unchanged, got %s", forward.Signal)
	}

	if n := repo.countOfType("c", events.TypeSignal); n != 0 {
		t.Errorf("signal must reach the target only, c got %d", n)
	}
}

func TestHandleSignalRequiresTarget(t *testing.T) {
	uc, repo, _ := newTestUsecase()

	uc.HandleJoin("a", events.JoinRoomEvent{RoomID: "room01", Username: "alice"})

	uc.HandleSignal("a", events.SignalEvent{Signal: json.RawMessage(`{}`)})

	if n := repo.countOfType("a", events.TypeError); n != 1 {
		t.Errorf("expected one error event, got %d", n)
	}
}

func TestHandleSignalToAbsentTargetIsSilent(t *testing.T) {
	uc, repo, _ := newTestUsecase()

	uc.HandleJoin("a", events.JoinRoomEvent{RoomID: "room01", Username: "alice"})

	uc.HandleSignal("a", events.SignalEvent{TargetUserID: "ghost", Signal: json.RawMessage(`{}`)})

	if n := repo.countOfType("a", events.TypeError); n != 0 {
		t.Errorf("absent target is not an error to the sender, got %d error events", n)
	}
}

func TestHandleDisconnectNotifiesRemaining(t *testing.T) {
	uc, repo, registry := newTestUsecase()

	uc.HandleJoin("a", events.JoinRoomEvent{RoomID: "room01", Username: "alice"})
	uc.HandleJoin("b", events.JoinRoomEvent{RoomID: "room01", Username: "bob"})

	uc.HandleDisconnect("a")

	left := decode[events.UserLeftEvent](t, repo.lastOfType(t, "b", events.TypeUserLeft))
	if left.UserID != "a" {
		t.Errorf("expected user-left about a, got %+v", left)
	}

	names := decode[[]string](t, repo.lastOfType(t, "b", events.TypeParticipants))
	if len(names) != 0 {
		t.Errorf("b should be alone, got %v", names)
	}

	rooms, members := registry.Size()
	if rooms != 1 || members != 1 {
		t.Errorf("expected size (1, 1), got (%d, %d)", rooms, members)
	}
}

func TestHandleDisconnectLastMemberDeletesRoom(t *testing.T) {
	uc, _, registry := newTestUsecase()

	uc.HandleJoin("a", events.JoinRoomEvent{RoomID: "room01", Username: "alice"})
	uc.HandleDisconnect("a")

	rooms, members := registry.Size()
	if rooms != 0 || members != 0 {
		t.Errorf("expected empty registry, got (%d, %d)", rooms, members)
	}
}

func TestHandleDisconnectWithoutJoin(t *testing.T) {
	uc, repo, _ := newTestUsecase()

	// Не должен паниковать и ничего не рассылает.
	uc.HandleDisconnect("ghost")

	if len(repo.messages("ghost")) != 0 {
		t.Error("disconnect of unknown connection must not send anything")
	}
}
