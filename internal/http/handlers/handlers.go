// Package handlers exposes the REST surface of the direct-message backend
// and the WebSocket upgrade endpoint.
//
// Handlers are transport-thin: they validate input, call the message
// service, and translate results into HTTP responses (including conditional
// responses and idempotent replays). Every route expects Authenticate to
// have stored the caller's user id upstream.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/http/middleware"
	"github.com/tbourn/go-dm-backend/internal/repo"
	"github.com/tbourn/go-dm-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// MessageService defines the message operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MessageService interface {
	// SendIdempotent sends a message, replaying the stored result when key
	// was already used by senderID. An empty key always sends.
	SendIdempotent(ctx context.Context, senderID, key, receiverID, content string, typ domain.MessageType) (*domain.Message, bool, error)
	// Get returns a message visible to userID.
	Get(ctx context.Context, userID, messageID string) (*domain.Message, error)
	// Recall withdraws a message sent by requesterID within the recall window.
	Recall(ctx context.Context, messageID, requesterID string) (*domain.Message, error)
	// History returns a page of the conversation between userID and peerID.
	History(ctx context.Context, userID, peerID string, page, pageSize int) ([]domain.Message, int64, error)
	// ConversationStats returns the size and last modification of a conversation.
	ConversationStats(ctx context.Context, userID, peerID string) (int64, *time.Time, error)
	// MarkConversationRead acknowledges every unread message from peerID.
	MarkConversationRead(ctx context.Context, userID, peerID string) (int, error)
	// UnreadCount returns the number of messages userID has not read.
	UnreadCount(ctx context.Context, userID string) (int64, error)
	// Conversations lists userID's conversations, most recent first.
	Conversations(ctx context.Context, userID string, limit int) ([]repo.ConversationRow, error)
}

// Realtime upgrades authenticated requests to WebSocket sessions.
type Realtime interface {
	Authenticate(r *http.Request) (string, error)
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	msgSvc MessageService
	rt     Realtime
}

// New constructs a Handlers instance bound to the given services. rt may be
// nil when the WebSocket endpoint is not mounted.
func New(msgSvc MessageService, rt Realtime) *Handlers {
	return &Handlers{msgSvc: msgSvc, rt: rt}
}

// userID returns the authenticated caller.
func userID(c *gin.Context) string { return middleware.UserID(c) }

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(p utils.Page, total int64) Pagination {
	return Pagination{
		Page:       p.Number,
		PageSize:   p.Size,
		Total:      total,
		TotalPages: p.TotalPages(total),
		HasNext:    p.HasNext(total),
	}
}

// pageFromQuery reads page and page_size (default 20, capped at 100).
func pageFromQuery(c *gin.Context) utils.Page {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"), 20, 100)
}
