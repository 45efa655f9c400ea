// Package server accepts websocket sessions and feeds their frames to the
// router. The transport owns framing and liveness; everything about what a
// frame means lives in the router.
package server

import (
	"context"
	"net/http"

	ws "github.com/gorilla/websocket"

	"github.com/wendychen0731/chat-app/internal/logging"
	"github.com/wendychen0731/chat-app/internal/registry"
	"github.com/wendychen0731/chat-app/internal/router"
)

type Handler struct {
	upgrader ws.Upgrader
	reg      *registry.Registry
	router   *router.Router
	logger   *logging.Logger
	options  Options
}

func NewHandler(reg *registry.Registry, rt *router.Router, logger *logging.Logger, options Options) *Handler {
	upgrader := ws.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // cross-origin access is unrestricted
		},
		ReadBufferSize:  options.ReadBufferSize,
		WriteBufferSize: options.WriteBufferSize,
	}

	return &Handler{
		upgrader: upgrader,
		reg:      reg,
		router:   rt,
		logger:   logger,
		options:  options,
	}
}

// ServeWS upgrades the request and runs the session until the peer goes
// away, then drives the leave path exactly once.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", "error", err)
		return
	}

	conn := newConn(socket, h.logger, h.options)
	h.logger.Info("websocket connection established", "conn_id", conn.ID())

	h.reg.Register(conn)

	// carry the conn-scoped logger so router error logs name the connection
	reqCtx := logging.WithLogger(r.Context(), conn.logger)

	go conn.writePump()
	conn.readPump(reqCtx, func(ctx context.Context, raw []byte) {
		h.router.Dispatch(ctx, conn, raw)
	})

	h.router.Disconnect(reqCtx, conn)
	conn.Close()
}
