package session

import (
	"context"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/wendychen0731/chat-app/internal/logging"
)

const writeTimeout = 10 * time.Second

// Dialer returns a DialFunc connecting to the server's websocket endpoint.
func Dialer(url string, logger *logging.Logger) DialFunc {
	return func(ctx context.Context, onEvent func([]byte), onClose func(error)) (Transport, error) {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}

		t := &wsTransport{conn: conn, logger: logger}
		go t.readLoop(onEvent, onClose)
		return t, nil
	}
}

type wsTransport struct {
	conn    *ws.Conn
	logger  *logging.Logger
	writeMu sync.Mutex
	once    sync.Once
}

func (t *wsTransport) readLoop(onEvent func([]byte), onClose func(error)) {
	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseAbnormalClosure, ws.CloseNormalClosure) {
				t.logger.Error("websocket unexpected close error", "error", err)
			} else {
				t.logger.Info("websocket connection closed", "error", err)
			}
			onClose(err)
			return
		}
		onEvent(message)
	}
}

func (t *wsTransport) Send(ctx context.Context, payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteMessage(ws.TextMessage, payload)
}

func (t *wsTransport) Close() error {
	var err error
	t.once.Do(func() {
		t.writeMu.Lock()
		t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		t.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}
