package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/http/middleware"
	"github.com/tbourn/go-dm-backend/internal/repo"
	"github.com/tbourn/go-dm-backend/internal/services"
)

// ---------- test plumbing ----------

type stubMsgSvc struct {
	send     func(ctx context.Context, senderID, key, receiverID, content string, typ domain.MessageType) (*domain.Message, bool, error)
	get      func(ctx context.Context, userID, id string) (*domain.Message, error)
	recall   func(ctx context.Context, id, requester string) (*domain.Message, error)
	history  func(ctx context.Context, userID, peerID string, page, pageSize int) ([]domain.Message, int64, error)
	stats    func(ctx context.Context, userID, peerID string) (int64, *time.Time, error)
	markRead func(ctx context.Context, userID, peerID string) (int, error)
	unread   func(ctx context.Context, userID string) (int64, error)
	convs    func(ctx context.Context, userID string, limit int) ([]repo.ConversationRow, error)
}

func (s stubMsgSvc) SendIdempotent(ctx context.Context, senderID, key, receiverID, content string, typ domain.MessageType) (*domain.Message, bool, error) {
	return s.send(ctx, senderID, key, receiverID, content, typ)
}
func (s stubMsgSvc) Get(ctx context.Context, userID, id string) (*domain.Message, error) {
	return s.get(ctx, userID, id)
}
func (s stubMsgSvc) Recall(ctx context.Context, id, requester string) (*domain.Message, error) {
	return s.recall(ctx, id, requester)
}
func (s stubMsgSvc) History(ctx context.Context, userID, peerID string, page, pageSize int) ([]domain.Message, int64, error) {
	return s.history(ctx, userID, peerID, page, pageSize)
}
func (s stubMsgSvc) ConversationStats(ctx context.Context, userID, peerID string) (int64, *time.Time, error) {
	if s.stats == nil {
		return 0, nil, errors.New("no stats")
	}
	return s.stats(ctx, userID, peerID)
}
func (s stubMsgSvc) MarkConversationRead(ctx context.Context, userID, peerID string) (int, error) {
	return s.markRead(ctx, userID, peerID)
}
func (s stubMsgSvc) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.unread(ctx, userID)
}
func (s stubMsgSvc) Conversations(ctx context.Context, userID string, limit int) ([]repo.ConversationRow, error) {
	return s.convs(ctx, userID, limit)
}

// newRouter mounts the handlers behind a fake authentication step that
// trusts the X-Test-User header.
func newRouter(svc MessageService, rt Realtime) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(svc, rt)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/ws", h.Connect)

	api := r.Group("/")
	api.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, c.GetHeader("X-Test-User"))
		c.Next()
	})
	api.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	api.POST("/messages", h.SendMessage)
	api.GET("/messages/:id", h.GetMessage)
	api.POST("/messages/:id/recall", h.RecallMessage)
	api.GET("/conversations", h.ListConversations)
	api.GET("/conversations/:peerId/messages", h.ListMessages)
	api.POST("/conversations/:peerId/read", h.MarkConversationRead)
	api.GET("/unread-count", h.UnreadCount)
	return r
}

func do(r *gin.Engine, method, path, user string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return er.Code
}

func msg(id string) *domain.Message {
	return &domain.Message{ID: id, SenderID: "alice", ReceiverID: "bob", Content: "hi", Type: domain.TypeText, Status: domain.StatusSent}
}

// ---------- send ----------

func TestSendMessage_CreatedAndReplayed(t *testing.T) {
	var gotKey, gotContent, gotSender string
	var gotType domain.MessageType
	svc := stubMsgSvc{send: func(_ context.Context, sender, key, receiver, content string, typ domain.MessageType) (*domain.Message, bool, error) {
		gotSender, gotKey, gotContent, gotType = sender, key, content, typ
		return msg("m1"), key == "again", nil
	}}
	r := newRouter(svc, nil)

	w := do(r, http.MethodPost, "/messages", "alice", gin.H{"receiverId": "bob", "content": "  a\r\n\r\n\r\n\r\nb  ", "messageType": "image"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if gotSender != "alice" || gotContent != "a\n\nb" || gotType != domain.TypeImage || gotKey != "" {
		t.Fatalf("service got sender=%q content=%q type=%q key=%q", gotSender, gotContent, gotType, gotKey)
	}
	if w.Header().Get(middleware.HeaderIdempotencyReplayed) != "" {
		t.Fatalf("fresh send must not be marked replayed")
	}
	var resp MessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Message == nil || resp.Message.ID != "m1" {
		t.Fatalf("bad body %s (%v)", w.Body.String(), err)
	}

	w = do(r, http.MethodPost, "/messages", "alice", gin.H{"receiverId": "bob", "content": "a"}, map[string]string{middleware.HeaderIdempotencyKey: "again"})
	if w.Code != http.StatusOK || w.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay: status=%d header=%q", w.Code, w.Header().Get(middleware.HeaderIdempotencyReplayed))
	}
	if gotKey != "again" {
		t.Fatalf("key not forwarded: %q", gotKey)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	called := false
	svc := stubMsgSvc{send: func(context.Context, string, string, string, string, domain.MessageType) (*domain.Message, bool, error) {
		called = true
		return nil, false, services.ErrInvalidType
	}}
	r := newRouter(svc, nil)

	cases := []struct {
		name string
		body any
		code int
		err  string
	}{
		{"missing receiver", gin.H{"content": "x"}, http.StatusBadRequest, ErrCodeBadRequest},
		{"blank content", gin.H{"receiverId": "bob", "content": " \n\n "}, http.StatusBadRequest, ErrCodeBadRequest},
		{"too long", gin.H{"receiverId": "bob", "content": strings.Repeat("x", 4001)}, http.StatusBadRequest, ErrCodeContentTooLong},
		{"not json", "nope", http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/messages", "alice", tc.body, nil)
			if w.Code != tc.code || errCode(t, w) != tc.err {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
	if called {
		t.Fatalf("service reached despite invalid input")
	}

	w := do(r, http.MethodPost, "/messages", "alice", gin.H{"receiverId": "bob", "content": "x", "messageType": "gif"}, nil)
	if w.Code != http.StatusBadRequest || errCode(t, w) != ErrCodeBadRequest {
		t.Fatalf("service validation error: %d %s", w.Code, w.Body.String())
	}
}

func TestSendMessage_ServiceFailureIs500(t *testing.T) {
	svc := stubMsgSvc{send: func(context.Context, string, string, string, string, domain.MessageType) (*domain.Message, bool, error) {
		return nil, false, errors.New("disk full")
	}}
	w := do(newRouter(svc, nil), http.MethodPost, "/messages", "alice", gin.H{"receiverId": "bob", "content": "x"}, nil)
	if w.Code != http.StatusInternalServerError || errCode(t, w) != ErrCodeSendFailed {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}

// ---------- single message + recall ----------

func TestGetMessage(t *testing.T) {
	svc := stubMsgSvc{get: func(_ context.Context, uid, id string) (*domain.Message, error) {
		if uid != "alice" || id != "m1" {
			return nil, services.ErrMessageNotFound
		}
		return msg("m1"), nil
	}}
	r := newRouter(svc, nil)

	if w := do(r, http.MethodGet, "/messages/m1", "alice", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("owner: %d", w.Code)
	}
	w := do(r, http.MethodGet, "/messages/m1", "mallory", nil, nil)
	if w.Code != http.StatusNotFound || errCode(t, w) != ErrCodeNotFound {
		t.Fatalf("stranger: %d %s", w.Code, w.Body.String())
	}
}

func TestRecallMessage_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		body string
	}{
		{nil, http.StatusOK, ""},
		{services.ErrRecallWindowExpired, http.StatusConflict, ErrCodeRecallWindowExpired},
		{services.ErrForbidden, http.StatusForbidden, ErrCodeForbidden},
		{services.ErrMessageNotFound, http.StatusNotFound, ErrCodeNotFound},
		{errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		var requester string
		svc := stubMsgSvc{recall: func(_ context.Context, id, req string) (*domain.Message, error) {
			requester = req
			if tc.err != nil {
				return nil, tc.err
			}
			m := msg(id)
			m.IsRecalled = true
			m.Content = domain.RecalledPlaceholder
			return m, nil
		}}
		w := do(newRouter(svc, nil), http.MethodPost, "/messages/m1/recall", "alice", nil, nil)
		if w.Code != tc.code {
			t.Fatalf("err=%v: status=%d", tc.err, w.Code)
		}
		if requester != "alice" {
			t.Fatalf("requester=%q", requester)
		}
		if tc.body != "" && errCode(t, w) != tc.body {
			t.Fatalf("err=%v: body=%s", tc.err, w.Body.String())
		}
	}
}

// ---------- conversations ----------

func TestListMessages_PaginationAndETag(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var gotPage, gotSize int
	svc := stubMsgSvc{
		stats: func(_ context.Context, uid, peer string) (int64, *time.Time, error) { return 45, &ts, nil },
		history: func(_ context.Context, uid, peer string, page, size int) ([]domain.Message, int64, error) {
			if uid != "alice" || peer != "bob" {
				t.Fatalf("history args %q %q", uid, peer)
			}
			gotPage, gotSize = page, size
			return []domain.Message{*msg("m2"), *msg("m1")}, 45, nil
		},
	}
	r := newRouter(svc, nil)

	w := do(r, http.MethodGet, "/conversations/bob/messages?page=2&page_size=500", "alice", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if gotPage != 2 || gotSize != 100 {
		t.Fatalf("pagination not clamped: %d %d", gotPage, gotSize)
	}
	var resp ListMessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Pagination.TotalPages != 1 || resp.Pagination.HasNext || len(resp.Messages) != 2 {
		t.Fatalf("unexpected page %+v", resp.Pagination)
	}

	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"messages:alice:bob:45:`) {
		t.Fatalf("etag=%q", etag)
	}

	gotPage = 0
	w = do(r, http.MethodGet, "/conversations/bob/messages?page=2&page_size=500", "alice", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified || gotPage != 0 {
		t.Fatalf("expected 304 without history call, got %d (page %d)", w.Code, gotPage)
	}

	w = do(r, http.MethodGet, "/conversations/bob/messages?page=1", "alice", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("other page must not match etag: %d", w.Code)
	}
}

func TestListMessages_BlankPeer(t *testing.T) {
	svc := stubMsgSvc{history: func(context.Context, string, string, int, int) ([]domain.Message, int64, error) {
		return nil, 0, services.ErrInvalidReceiver
	}}
	w := do(newRouter(svc, nil), http.MethodGet, "/conversations/%20/messages", "alice", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Header().Get("ETag") != "" {
		t.Fatalf("no etag expected when stats fail")
	}
}

func TestListConversations(t *testing.T) {
	var gotLimit int
	svc := stubMsgSvc{convs: func(_ context.Context, uid string, limit int) ([]repo.ConversationRow, error) {
		gotLimit = limit
		return []repo.ConversationRow{{PeerID: "bob", LastMessage: *msg("m9"), Unread: 2}}, nil
	}}
	w := do(newRouter(svc, nil), http.MethodGet, "/conversations?limit=5", "alice", nil, nil)
	if w.Code != http.StatusOK || gotLimit != 5 {
		t.Fatalf("status=%d limit=%d", w.Code, gotLimit)
	}
	var resp ConversationsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Conversations) != 1 || resp.Conversations[0].PeerID != "bob" || resp.Conversations[0].Unread != 2 {
		t.Fatalf("unexpected %+v", resp)
	}
}

func TestMarkConversationReadAndUnreadCount(t *testing.T) {
	svc := stubMsgSvc{
		markRead: func(_ context.Context, uid, peer string) (int, error) {
			if uid != "bob" || peer != "alice" {
				t.Fatalf("args %q %q", uid, peer)
			}
			return 3, nil
		},
		unread: func(_ context.Context, uid string) (int64, error) {
			if uid == "broken" {
				return 0, errors.New("db")
			}
			return 7, nil
		},
	}
	r := newRouter(svc, nil)

	w := do(r, http.MethodPost, "/conversations/alice/read", "bob", nil, nil)
	var mr MarkReadResponse
	if w.Code != http.StatusOK || json.Unmarshal(w.Body.Bytes(), &mr) != nil || mr.Updated != 3 {
		t.Fatalf("mark read: %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/unread-count", "bob", nil, nil)
	var uc UnreadCountResponse
	if w.Code != http.StatusOK || json.Unmarshal(w.Body.Bytes(), &uc) != nil || uc.Unread != 7 {
		t.Fatalf("unread: %d %s", w.Code, w.Body.String())
	}

	if w := do(r, http.MethodGet, "/unread-count", "broken", nil, nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("unread failure: %d", w.Code)
	}
}

// ---------- helpers ----------

func TestSanitizeContent(t *testing.T) {
	if got := sanitizeContent("\r\n hi\r\rthere\n\n\n\nend \n"); got != "hi\n\nthere\n\nend" {
		t.Fatalf("got %q", got)
	}
}

func TestDiscoverMaxContentRunes(t *testing.T) {
	if got := discoverMaxContentRunes(stubMsgSvc{}); got != 4000 {
		t.Fatalf("fallback=%d", got)
	}
	if got := discoverMaxContentRunes(&services.MessageService{MaxContentRunes: 10}); got != 10 {
		t.Fatalf("configured=%d", got)
	}
}
