package handler

import (
	"strings"
	"time"

	"github.com/cembakir/veriflow/internal/broadcast"
	"github.com/cembakir/veriflow/internal/domain"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	progressWriteTimeout = 5 * time.Second
	progressPingInterval = 30 * time.Second
)

// RegisterProgressRoutes exposes the live progress stream for a batch over a
// websocket. Events are best-effort: a client only sees progress published
// while it is connected.
func RegisterProgressRoutes(router fiber.Router, broadcaster *broadcast.Broadcaster, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	v1 := router.Group("/v1")
	v1.Use("/batches/:id/progress", upgradeRequired)
	v1.Get("/batches/:id/progress", websocket.New(progressStream(broadcaster, logger)))
}

func upgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func progressStream(broadcaster *broadcast.Broadcaster, logger *zap.Logger) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		defer conn.Close()

		batchID := strings.TrimSpace(conn.Params("id"))
		if batchID == "" {
			return
		}

		sink := make(chan domain.ProgressEvent, broadcast.SinkBuffer)
		broadcaster.Subscribe(batchID, sink)
		defer broadcaster.Unsubscribe(batchID, sink)

		// Drain the read side so close frames from the client are seen.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(progressPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-closed:
				return
			case <-ticker.C:
				deadline := time.Now().Add(progressWriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case ev := <-sink:
				_ = conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
				if err := conn.WriteJSON(ev); err != nil {
					logger.Debug("progress stream write failed",
						zap.String("batchId", batchID),
						zap.Error(err),
					)
					return
				}

				if ev.Status != domain.ProgressStatusProcessing {
					deadline := time.Now().Add(progressWriteTimeout)
					_ = conn.WriteControl(
						websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ev.Status),
						deadline,
					)
					return
				}
			}
		}
	}
}
