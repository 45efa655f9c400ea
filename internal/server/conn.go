package server

import (
	"context"
	"errors"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/wendychen0731/chat-app/internal/logging"
)

type Options struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
}

func DefaultOptions() Options {
	return Options{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  512 * 1024, // 512KB
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// wsConn is one accepted websocket session. Send enqueues on a buffered
// channel drained by the write pump, so no caller ever blocks on peer I/O.
type wsConn struct {
	id       string
	ctx      context.Context
	conn     *ws.Conn
	cancel   context.CancelFunc
	logger   *logging.Logger
	options  Options
	sendChan chan []byte
	mutex    sync.RWMutex
	closed   bool
}

func newConn(conn *ws.Conn, logger *logging.Logger, options Options) *wsConn {
	ctx, cancel := context.WithCancel(context.Background())
	id := xid.New().String()

	return &wsConn{
		id:       id,
		ctx:      ctx,
		conn:     conn,
		cancel:   cancel,
		logger:   logger.WithFields(map[string]any{"conn_id": id}),
		options:  options,
		sendChan: make(chan []byte, 256),
	}
}

func (c *wsConn) ID() string {
	return c.id
}

// Send enqueues one frame. The read lock is held across the channel send so
// Close cannot tear the channel down mid-enqueue.
func (c *wsConn) Send(ctx context.Context, message []byte) error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.closed {
		return errors.New("connection is closed")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return errors.New("connection context done")
	case c.sendChan <- message:
		return nil
	default:
		return errors.New("send channel full or blocked")
	}
}

func (c *wsConn) Close() error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil
	}
	c.closed = true
	c.mutex.Unlock()

	c.logger.Info("closing websocket connection")

	c.cancel()

	if err := c.conn.Close(); err != nil {
		c.logger.Debug("error closing websocket connection", "error", err)
		return err
	}

	return nil
}

// readPump reads frames and hands them to dispatch until the peer goes away.
func (c *wsConn) readPump(ctx context.Context, dispatch func(ctx context.Context, raw []byte)) {
	defer c.logger.Debug("read pump stopped")

	c.conn.SetReadLimit(c.options.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.options.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.options.ReadTimeout))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ctx.Done():
			return
		default:
			messageType, message, err := c.conn.ReadMessage()
			if err != nil {
				if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseAbnormalClosure) {
					c.logger.Error("websocket unexpected close error", "error", err)
				} else {
					c.logger.Info("websocket connection closed", "error", err)
				}
				return
			}

			if messageType != ws.TextMessage && messageType != ws.BinaryMessage {
				continue
			}

			dispatch(ctx, message)
		}
	}
}

// writePump drains the send channel and keeps the idle timeout fed with
// pings. Without the pings a silently-dead peer would hold its binding
// forever.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.options.PingInterval)
	defer func() {
		ticker.Stop()
		c.logger.Debug("write pump stopped")
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			return
		case message := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			if err := c.conn.WriteMessage(ws.TextMessage, message); err != nil {
				c.logger.Error("websocket write error", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				c.logger.Info("ping failed", "error", err)
				return
			}
		}
	}
}
