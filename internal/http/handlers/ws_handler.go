package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/http/middleware"
)

// Connect authenticates the handshake and hands the connection to the
// realtime layer. The bearer token comes from the Authorization header or the
// token query parameter; failures are answered with 401 before any upgrade.
// It is mounted outside the API group, so it is not part of the REST docs.
func (h *Handlers) Connect(c *gin.Context) {
	if h.rt == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "realtime endpoint disabled")
		return
	}
	uid, err := h.rt.Authenticate(c.Request)
	if err != nil {
		c.Header("WWW-Authenticate", `Bearer realm="ws"`)
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing or invalid bearer token")
		return
	}
	c.Set(middleware.UserIDKey, uid)

	if err := h.rt.Serve(c.Writer, c.Request, uid); err != nil {
		// The upgrader has already answered the client.
		middleware.LoggerFrom(c).Warn().Err(err).Str("user_id", uid).Msg("websocket upgrade failed")
		c.Abort()
	}
}
