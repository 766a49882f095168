// Package auth verifies the bearer tokens presented on REST calls and on the
// WebSocket handshake. Tokens are HS256 JWTs whose "id" claim (or "sub" as a
// fallback) carries the user identity.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-dm-backend/internal/sysutil"
)

// ErrUnauthorized is returned for missing, malformed, expired or otherwise
// invalid tokens.
var ErrUnauthorized = errors.New("unauthorized")

// Claims is the token payload.
type Claims struct {
	UserID any `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// identity returns the user id from the "id" claim, falling back to "sub".
func (c *Claims) identity() string {
	switch v := c.UserID.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.TrimSpace(c.Subject)
}

// JWT signs and verifies tokens with a shared HMAC secret.
type JWT struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// New returns a JWT helper. When issuer is non-empty it is stamped on issued
// tokens and required on verified ones.
func New(secret, issuer string) *JWT {
	return &JWT{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for userID that expires after ttl.
func (j *JWT) Issue(userID string, ttl time.Duration) (string, error) {
	now := j.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Verify parses and validates token and returns the user identity it carries.
func (j *JWT) Verify(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	id := claims.identity()
	if id == "" {
		return "", fmt.Errorf("%w: token has no user id", ErrUnauthorized)
	}
	return id, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <t>" value.
func BearerToken(header string) string {
	const prefix = "bearer "
	h := strings.TrimSpace(header)
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// TokenFromRequest returns the bearer token from the Authorization header,
// or from the "token" query parameter for clients (browsers) that cannot set
// headers on a WebSocket handshake.
func TokenFromRequest(r *http.Request) string {
	return sysutil.FirstNonEmpty(
		BearerToken(r.Header.Get("Authorization")),
		r.URL.Query().Get("token"),
	)
}
