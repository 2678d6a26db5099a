package mesh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MiiZZo/voicechat/internal/domain/events"
)

const transportWriteWait = 10 * time.Second

// Transport is a bidirectional event channel to the relay. Events is
// closed when the connection is torn down; Err then reports the cause,
// nil for a caller-initiated Close.
type Transport interface {
	Send(msg events.Message) error
	Events() <-chan events.Message
	Err() error
	Close() error
}

// DialFunc opens a transport to the relay. Swappable in tests.
type DialFunc func(ctx context.Context, url string) (Transport, error)

type wsTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	events  chan events.Message

	errMu     sync.Mutex
	err       error
	intending bool

	closeOnce sync.Once
}

// Dial connects to the relay websocket endpoint.
func Dial(ctx context.Context, rawURL string) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	t := &wsTransport{
		conn:   conn,
		events: make(chan events.Message, 16),
	}

	go t.readLoop()

	return t, nil
}

func (t *wsTransport) Send(msg events.Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(transportWriteWait)); err != nil {
		return err
	}

	if err := t.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write to relay: %w", err)
	}

	return nil
}

func (t *wsTransport) Events() <-chan events.Message {
	return t.events
}

func (t *wsTransport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *wsTransport) Close() error {
	var err error

	t.closeOnce.Do(func() {
		t.errMu.Lock()
		t.intending = true
		t.errMu.Unlock()

		t.writeMu.Lock()
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(transportWriteWait),
		)
		t.writeMu.Unlock()

		err = t.conn.Close()
	})

	return err
}

func (t *wsTransport) readLoop() {
	defer close(t.events)

	for {
		var msg events.Message
		if err := t.conn.ReadJSON(&msg); err != nil {
			t.errMu.Lock()
			if !t.intending {
				t.err = err
			}
			t.errMu.Unlock()

			return
		}

		t.events <- msg
	}
}
