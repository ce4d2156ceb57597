package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WatchRoulette streams wheel notifications over a websocket.
// With ?session=<id> only that session's spins and ledger resets are streamed.
func (a *API) WatchRoulette(c *gin.Context) {
	number, err := pathInt(c, "number")
	if err != nil {
		fail(c, err)
		return
	}

	channel := a.rouletteChannel(number)
	if session := c.Query("session"); session != "" {
		channel = a.sessionChannel(session, number)
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	sub := a.redis.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		fail(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.ErrorContext(ctx, "ws: upgrade failed", "channel", channel, "error", err)
		return
	}
	defer conn.Close()

	slog.InfoContext(ctx, "ws: watching", "channel", channel)

	// Reader only handles control frames and notices the client going away.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "ws: closed", "channel", channel)
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				slog.ErrorContext(ctx, "ws: write failed", "channel", channel, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
