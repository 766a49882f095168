package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func lastLogLine(t *testing.T, raw string) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("bad log line %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestRedactPII(t *testing.T) {
	in := "mail bob@example.com id 123e4567-e89b-12d3-a456-426614174000 call +1 555-123-4567"
	out := redactPII(in)
	for _, leak := range []string{"bob@example.com", "123e4567", "555-123-4567"} {
		if strings.Contains(out, leak) {
			t.Fatalf("%q leaked in %q", leak, out)
		}
	}
	if !strings.Contains(out, "[REDACTED:id]") || !strings.Contains(out, "[REDACTED:email]") {
		t.Fatalf("missing markers in %q", out)
	}
}

func TestScrubQuery_MasksTokens(t *testing.T) {
	mask := lowerSet([]string{"token", "access_token"}, nil)
	got := scrubQuery("token=eyJabc.def&peer=bob&ACCESS_TOKEN=x", mask)
	if strings.Contains(got, "eyJabc") || strings.Contains(got, "=x") {
		t.Fatalf("token leaked: %q", got)
	}
	if !strings.Contains(got, "peer=bob") {
		t.Fatalf("unmasked param lost: %q", got)
	}
	if scrubQuery("", mask) != "" {
		t.Fatal("empty query should stay empty")
	}
}

func TestRedactingLogger_MasksCredentialsAndLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	req := httptest.NewRequest(http.MethodGet, "/ws?token=secret-jwt", nil)
	req.Header.Set("Authorization", "Bearer secret-jwt")
	req.Header.Set("Sec-WebSocket-Protocol", "bearer, secret-jwt")
	req.Header.Set("X-Api-Key", "k-123")
	req.Header.Set("X-Note", "reach me at alice@example.com")
	r.ServeHTTP(httptest.NewRecorder(), req)

	raw := buf.String()
	if strings.Contains(raw, "secret-jwt") || strings.Contains(raw, "k-123") || strings.Contains(raw, "alice@example.com") {
		t.Fatalf("credentials leaked into log: %s", raw)
	}
	line := lastLogLine(t, raw)
	if line["level"] != "info" || line["path"] != "/ws" {
		t.Fatalf("unexpected line: %v", line)
	}

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	if lvl := lastLogLine(t, buf.String())["level"]; lvl != "warn" {
		t.Fatalf("4xx level = %v", lvl)
	}

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	if lvl := lastLogLine(t, buf.String())["level"]; lvl != "error" {
		t.Fatalf("5xx level = %v", lvl)
	}
}

func TestRedactingLogger_CarriesUserIDFromAuthenticate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}), Authenticate(stubVerifier{"tok": "alice"}))
	r.GET("/me", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer tok")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if uid := lastLogLine(t, buf.String())["user_id"]; uid != "alice" {
		t.Fatalf("user_id = %v", uid)
	}
}
