package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/auth"
	"github.com/tbourn/go-dm-backend/internal/config"
	"github.com/tbourn/go-dm-backend/internal/http/middleware"
	"github.com/tbourn/go-dm-backend/internal/repo"
	"github.com/tbourn/go-dm-backend/internal/services"
)

type fakeSessions int

func (f fakeSessions) Count() int { return int(f) }

type fakeQueue bool

func (f fakeQueue) Connected() bool { return bool(f) }

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   10,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		WS:          config.WSConfig{Path: "/ws"},
	}
}

// newTestRouter wires a real MessageService over a temporary SQLite file
// and returns the engine plus a token issuer.
func newTestRouter(t *testing.T, cfg config.Config, deps Deps) (*gin.Engine, *auth.JWT) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "router.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	jwt := auth.New("router-secret", "")
	deps.Messages = &services.MessageService{DB: db}
	deps.Verifier = jwt

	r := gin.New()
	RegisterRoutes(r, deps, cfg)
	return r, jwt
}

func bearer(t *testing.T, jwt *auth.JWT, uid string) string {
	t.Helper()
	tok, err := jwt.Issue(uid, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return "Bearer " + tok
}

func TestRegisterRoutes_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newTestRouter(t, testConfig(), Deps{Sessions: fakeSessions(3), Queue: fakeQueue(false)})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("health json: %v", err)
	}
	if body["status"] != "degraded" || body["sessions"] != float64(3) || body["queue_connected"] != false {
		t.Fatalf("unexpected health body: %v", body)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("swagger must be off by default, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newTestRouter(t, cfg, Deps{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_APIRequiresBearer(t *testing.T) {
	r, _ := newTestRouter(t, testConfig(), Deps{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/unread-count", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	// No realtime handler: the WebSocket route is not mounted.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unmounted /ws, got %d", w.Code)
	}
}

func TestRegisterRoutes_SendReplayAndHistory(t *testing.T) {
	r, jwt := newTestRouter(t, testConfig(), Deps{})
	alice := bearer(t, jwt, "alice")

	post := func(key string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", bytes.NewBufferString(`{"receiverId":"bob","content":"hello"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", alice)
		req.Header.Set(middleware.HeaderIdempotencyKey, key)
		r.ServeHTTP(w, req)
		return w
	}

	first := post("k-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("send: %d %s", first.Code, first.Body.String())
	}
	if exp := first.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(exp, middleware.HeaderIdempotencyReplayed) {
		t.Fatalf("replay header not exposed: %q", exp)
	}

	second := post("k-1")
	if second.Code != http.StatusOK || second.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay: %d %q", second.Code, second.Header().Get(middleware.HeaderIdempotencyReplayed))
	}
	b1, _ := io.ReadAll(first.Body)
	b2, _ := io.ReadAll(second.Body)
	var m1, m2 struct {
		Message struct{ ID string } `json:"message"`
	}
	_ = json.Unmarshal(b1, &m1)
	_ = json.Unmarshal(b2, &m2)
	if m1.Message.ID == "" || m1.Message.ID != m2.Message.ID {
		t.Fatalf("replay returned a different message: %q vs %q", m1.Message.ID, m2.Message.ID)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/alice/messages", nil)
	req.Header.Set("Authorization", bearer(t, jwt, "bob"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == "" {
		t.Fatalf("history: %d etag=%q", w.Code, w.Header().Get("ETag"))
	}
	if cc := w.Header().Get("Cache-Control"); cc != "private, must-revalidate" {
		t.Fatalf("history cache-control=%q", cc)
	}
	var hist struct {
		Pagination struct{ Total int64 } `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil || hist.Pagination.Total != 1 {
		t.Fatalf("history body %s", w.Body.String())
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
