package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rafaaw/ActivityPro-sub000/broadcast"
	"github.com/rafaaw/ActivityPro-sub000/models"
)

// UserLookup resolves the authenticated user to derive the subscription
// scope. Satisfied by repository.UsersRepository.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int) (*models.Collaborator, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and bridges a broadcast subscription to
// it. The scope is derived from the authenticated user: admins get the
// unscoped administrator channel (or a sector channel with ?sector=own),
// everyone else their own sector. JWT is not parsed here; the auth
// middleware must have set userId in the context.
func ServeWS(hub *broadcast.Broadcaster, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetInt("userId")
		if userID == 0 {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		user, err := users.GetUserByID(c.Request.Context(), userID)
		if err != nil || user == nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		scope := broadcast.Scope{SectorID: user.SectorID}
		if user.IsAdmin && c.Query("sector") != "own" {
			scope = broadcast.Scope{Admin: true}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "err", err)
			return
		}
		sub := hub.Subscribe(scope)

		// Reader goroutine: only pongs and closes are expected from clients.
		go func() {
			defer func() {
				hub.Unsubscribe(sub)
				_ = conn.Close()
			}()
			conn.SetReadLimit(1024)
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		// Writer loop (same goroutine); exits when the subscription closes.
		for msg := range sub.C() {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
		_ = conn.Close()
	}
}
