package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/auth"
)

// UserIDKey is the Gin context key holding the authenticated user id.
const UserIDKey = "userID"

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Authenticate requires a valid "Authorization: Bearer <token>" header. On
// success the user id is stored under UserIDKey and added to the
// request-scoped logger; otherwise the request is aborted with 401.
func Authenticate(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := v.Verify(auth.BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			LoggerFrom(c).Debug().Err(err).Msg("authentication failed")
			c.Header("WWW-Authenticate", `Bearer realm="api"`)
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}

		c.Set(UserIDKey, uid)
		lg := LoggerFrom(c).With().Str("user_id", uid).Logger()
		c.Set(loggerKey, &lg)
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" when the request did not
// pass through Authenticate.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(UserIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
