package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"machinepulse/internal/fanout"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsHandler upgrades the connection and attaches it to the fan-out hub. The
// stream starts empty; only events emitted after the upgrade are delivered.
func wsHandler(hub *fanout.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		sub := hub.Subscribe(uuid.New().String())
		fanout.NewClient(hub, sub, conn, logger).Start()
		logger.Debug("websocket connected",
			zap.String("subscriber", sub.ID()),
			zap.String("remote", conn.RemoteAddr().String()))
	}
}
