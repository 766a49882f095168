// Message HTTP handlers.
//
// This file exposes REST endpoints for direct messages:
//   - POST /messages                          (send, Idempotency-Key supported)
//   - GET  /messages/{id}                     (fetch one message)
//   - POST /messages/{id}/recall              (recall within the window)
//   - GET  /conversations                     (latest message per peer)
//   - GET  /conversations/{peerId}/messages   (paginated history, ETag)
//   - POST /conversations/{peerId}/read       (acknowledge all unread)
//   - GET  /unread-count
//
// Live notifications (new_message, message_read, message_recalled) are
// emitted by the service exactly as for WebSocket-originated operations.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/http/middleware"
	"github.com/tbourn/go-dm-backend/internal/repo"
	"github.com/tbourn/go-dm-backend/internal/services"
	"github.com/tbourn/go-dm-backend/internal/utils"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for sending a direct message.
type SendMessageRequest struct {
	// ReceiverID is the recipient's user id.
	ReceiverID string `json:"receiverId" binding:"required,max=64" example:"bob"`
	// Content is the message body. Line endings are normalized before sending.
	Content string `json:"content" binding:"required" example:"see you at 6?"`
	// MessageType defaults to "text".
	MessageType domain.MessageType `json:"messageType,omitempty" enums:"text,image,voice,video" example:"text"`
}

// MessageResponse wraps a single message.
type MessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains a page of conversation messages and
// pagination metadata. Messages are ordered newest first.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// Conversation is one entry of the conversation list.
type Conversation struct {
	PeerID      string         `json:"peerId" example:"bob"`
	LastMessage domain.Message `json:"lastMessage"`
	Unread      int64          `json:"unread" example:"2"`
}

// ConversationsResponse lists the caller's conversations.
type ConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

// MarkReadResponse reports how many messages were acknowledged.
type MarkReadResponse struct {
	Updated int `json:"updated" example:"3"`
}

// UnreadCountResponse carries the caller's unread total.
type UnreadCountResponse struct {
	Unread int64 `json:"unread" example:"5"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two,
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxContentRunes inspects the concrete MessageService for a
// configured content-length limit, falling back to a conservative default.
func discoverMaxContentRunes(msgSvc MessageService) int {
	const fallback = 4000
	if ms, ok := msgSvc.(*services.MessageService); ok && ms.MaxContentRunes > 0 {
		return ms.MaxContentRunes
	}
	return fallback
}

// failService maps service errors onto the HTTP error envelope.
func failService(c *gin.Context, err error, fallbackCode string) {
	switch {
	case errors.Is(err, services.ErrMessageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrRecallWindowExpired):
		fail(c, http.StatusConflict, ErrCodeRecallWindowExpired, err.Error())
	case errors.Is(err, services.ErrTooLong):
		fail(c, http.StatusBadRequest, ErrCodeContentTooLong, err.Error())
	case errors.Is(err, services.ErrEmptyContent),
		errors.Is(err, services.ErrInvalidReceiver),
		errors.Is(err, services.ErrInvalidType):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "request cancelled")
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a direct message
// @Description Persists a message and delivers it live or queues it for the receiver.
// @Description Supports idempotency via the Idempotency-Key header (same key → same message).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
//
// @Success     201  {object}  handlers.MessageResponse  "Message sent"
// @Success     200  {object}  handlers.MessageResponse  "Replayed result"
// @Failure     400  {object}  handlers.ErrorResponse    "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse    "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse    "Internal error"
// @Router      /messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "receiverId and content required")
		return
	}

	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	if maxRunes := discoverMaxContentRunes(h.msgSvc); utf8.RuneCountInString(content) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeContentTooLong, fmt.Sprintf("content too long: max %d runes", maxRunes))
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	m, replayed, err := h.msgSvc.SendIdempotent(c.Request.Context(), userID(c), key, req.ReceiverID, content, req.MessageType)
	if err != nil {
		failService(c, err, ErrCodeSendFailed)
		return
	}

	if replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		ok(c, http.StatusOK, MessageResponse{Message: m})
		return
	}
	ok(c, http.StatusCreated, MessageResponse{Message: m})
}

// GetMessage godoc
// @ID          getMessage
// @Summary     Get a message
// @Description Returns a message the caller sent or received.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Message ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.MessageResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Router      /messages/{id} [get]
func (h *Handlers) GetMessage(c *gin.Context) {
	m, err := h.msgSvc.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: m})
}

// RecallMessage godoc
// @ID          recallMessage
// @Summary     Recall a message
// @Description Withdraws a message sent by the caller within the recall window.
// @Description Recalling an already recalled message succeeds.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Message ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.MessageResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not the sender"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Recall window expired"
// @Router      /messages/{id}/recall [post]
func (h *Handlers) RecallMessage(c *gin.Context) {
	m, err := h.msgSvc.Recall(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: m})
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations
// @Description Returns the latest visible message per peer, most recent first.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       limit  query  int  false  "Maximum conversations"  minimum(1) maximum(200) default(50)
// @Success     200  {object}  handlers.ConversationsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	rows, err := h.msgSvc.Conversations(c.Request.Context(), userID(c), utils.AtoiDefault(c.Query("limit"), 0))
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ConversationsResponse{
		Conversations: lo.Map(rows, func(r repo.ConversationRow, _ int) Conversation {
			return Conversation{PeerID: r.PeerID, LastMessage: r.LastMessage, Unread: r.Unread}
		}),
	})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Conversation history
// @Description Returns a page of the conversation with peerId, newest first.
// @Description Responds 304 when If-None-Match matches the current ETag.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
//
// @Param       peerId     path   string  true  "Peer user ID"
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Success     304  {string} string "Not modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{peerId}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	uid, peer := userID(c), strings.TrimSpace(c.Param("peerId"))
	pg := pageFromQuery(c)

	// ETag pre-check (best effort). Page parameters are part of the tag so
	// different pages never share a validator.
	if count, maxTS, err := h.msgSvc.ConversationStats(ctx, uid, peer); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"messages:%s:%s:%d:%d:%d:%d"`, uid, peer, count, ts, pg.Number, pg.Size)
		c.Header("ETag", etag)
		c.Header("Cache-Control", "private, must-revalidate")
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.msgSvc.History(ctx, uid, peer, pg.Number, pg.Size)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: newPagination(pg, total),
	})
}

// MarkConversationRead godoc
// @ID          markConversationRead
// @Summary     Mark a conversation read
// @Description Acknowledges every unread message received from peerId. The
// @Description sender is notified per message when online.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       peerId  path  string  true  "Peer user ID"
// @Success     200  {object}  handlers.MarkReadResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations/{peerId}/read [post]
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	n, err := h.msgSvc.MarkConversationRead(c.Request.Context(), userID(c), strings.TrimSpace(c.Param("peerId")))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Updated: n})
}

// UnreadCount godoc
// @ID          unreadCount
// @Summary     Unread message count
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.UnreadCountResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /unread-count [get]
func (h *Handlers) UnreadCount(c *gin.Context) {
	n, err := h.msgSvc.UnreadCount(c.Request.Context(), userID(c))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, UnreadCountResponse{Unread: n})
}
