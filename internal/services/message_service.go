// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the lifecycle of direct messages. It validates inputs, persists
// messages, attempts live delivery through Presence and falls back to the
// offline Queue, and drives the status machine (sent -> delivered -> read)
// together with the one-way recall flag.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include message/user identifiers and pagination parameters where applicable.

package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/protocol"
	"github.com/tbourn/go-dm-backend/internal/repo"
	"github.com/tbourn/go-dm-backend/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultRecallWindow is how long after creation a sender may recall.
	DefaultRecallWindow = 120 * time.Second

	maxReceiverLen       = 64
	defaultConversations = 50
	maxConversations     = 200
	defaultPageSize      = 20
	maxPageSize          = 100
)

// Presence delivers frames to live sessions.
//
// Route reports whether the frame was written to a live session for userID.
// Exclusive runs fn under userID's serialization lock, the same lock held
// while a connecting session drains its offline queue.
type Presence interface {
	Route(ctx context.Context, userID string, f protocol.Outbound) bool
	Exclusive(userID string, fn func())
}

// Queue parks frames for users without a live session.
type Queue interface {
	Enqueue(ctx context.Context, userID string, env domain.OfflineEnvelope) error
}

// MessageService coordinates message persistence, delivery and acknowledgement.
type MessageService struct {
	DB       *gorm.DB
	Presence Presence
	Queue    Queue

	// Optional guards
	MaxContentRunes int
	RecallWindow    time.Duration
	IdempotencyTTL  time.Duration

	// Now is the clock used for timestamps and the recall window.
	Now func() time.Time

	locks utils.KeyedMutex
}

func (s *MessageService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *MessageService) recallWindow() time.Duration {
	if s.RecallWindow > 0 {
		return s.RecallWindow
	}
	return DefaultRecallWindow
}

// Send validates and persists a message from senderID to receiverID, then
// delivers it live or parks it in the receiver's offline queue. The sender
// is acknowledged with message_sent carrying the resulting status.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID, content string, typ domain.MessageType) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("user.id", senderID),
			attribute.String("receiver.id", receiverID),
		),
	)
	defer span.End()

	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" || len(receiverID) > maxReceiverLen {
		return nil, ErrInvalidReceiver
	}
	if typ == "" {
		typ = domain.TypeText
	}
	if !typ.Valid() {
		return nil, ErrInvalidType
	}
	content = norm.NFC.String(strings.TrimSpace(content))
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrTooLong
	}

	m, err := repo.CreateMessage(ctx, s.DB, senderID, receiverID, content, typ, s.now())
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("message.id", m.ID))

	delivered := false
	s.exclusive(receiverID, func() {
		live := *m
		live.Status = domain.StatusDelivered
		if delivered = s.route(ctx, receiverID, protocol.NewMessage(live)); !delivered {
			s.enqueue(ctx, receiverID, m.ID, protocol.NewMessage(*m))
		}
	})

	if delivered {
		now := s.now()
		changed, err := repo.AdvanceStatus(ctx, s.DB, m.ID, domain.StatusDelivered, now)
		switch {
		case err != nil:
			log.Error().Err(err).Str("message_id", m.ID).Msg("mark delivered after live send")
		case changed:
			m.Status = domain.StatusDelivered
			m.UpdatedAt = now
		default:
			// The receiver already acknowledged it as read.
			if cur, gerr := repo.GetMessage(ctx, s.DB, m.ID); gerr == nil {
				m = cur
			}
		}
	}
	span.SetAttributes(attribute.String("message.status", string(m.Status)))

	s.route(ctx, senderID, protocol.MessageSent(m.ID, m.Status))
	return m, nil
}

// SendIdempotent behaves like Send but, when key is non-empty, remembers the
// created message under (senderID, key). A retry with the same key returns
// the original message and replayed=true without sending again.
func (s *MessageService) SendIdempotent(ctx context.Context, senderID, key, receiverID, content string, typ domain.MessageType) (m *domain.Message, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key != "" {
		if prev, ok := s.lookupIdempotent(ctx, senderID, key); ok {
			return prev, true, nil
		}
	}

	m, err = s.Send(ctx, senderID, receiverID, content, typ)
	if err != nil || key == "" {
		return m, false, err
	}

	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if cerr := repo.SaveIdempotency(ctx, s.DB, domain.NewIdempotency(senderID, key, m.ID, s.now(), ttl)); cerr != nil {
		if errors.Is(cerr, repo.ErrDuplicate) {
			// A concurrent request with the same key won; serve its message.
			if prev, ok := s.lookupIdempotent(ctx, senderID, key); ok {
				return prev, true, nil
			}
		}
		log.Warn().Err(cerr).Str("user_id", senderID).Str("message_id", m.ID).Msg("store idempotency record")
	}
	return m, false, nil
}

// IdempotencyExists reports whether a live record exists for (userID, key).
func (s *MessageService) IdempotencyExists(ctx context.Context, userID, key string, now time.Time) (bool, error) {
	_, err := repo.FindIdempotency(ctx, s.DB, userID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// PurgeIdempotency removes expired idempotency records.
func (s *MessageService) PurgeIdempotency(ctx context.Context) (int64, error) {
	return repo.PurgeIdempotency(ctx, s.DB, s.now())
}

func (s *MessageService) lookupIdempotent(ctx context.Context, userID, key string) (*domain.Message, bool) {
	rec, err := repo.FindIdempotency(ctx, s.DB, userID, key, s.now())
	if err != nil {
		return nil, false
	}
	m, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if err != nil {
		return nil, false
	}
	return m, true
}

// MarkDelivered advances a message to delivered without notifying anyone.
// It is used after a queued new_message reaches its receiver on reconnect.
func (s *MessageService) MarkDelivered(ctx context.Context, messageID string) error {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "MarkDelivered",
		trace.WithAttributes(attribute.String("message.id", messageID)),
	)
	defer span.End()

	_, err := repo.AdvanceStatus(ctx, s.DB, messageID, domain.StatusDelivered, s.now())
	return err
}

// MarkRead records that readerID has read messageID. Only the receiver may
// do so. The sender is told with message_read when, and only when, the
// status actually moved to read; repeated acknowledgements are no-ops.
func (s *MessageService) MarkRead(ctx context.Context, messageID, readerID string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.String("user.id", readerID),
		),
	)
	defer span.End()

	m, changed, err := s.markRead(ctx, messageID, readerID)
	span.SetAttributes(attribute.Bool("status.changed", changed))
	return m, err
}

func (s *MessageService) markRead(ctx context.Context, messageID, readerID string) (*domain.Message, bool, error) {
	unlock := s.locks.Lock(messageID)
	defer unlock()

	m, err := s.load(ctx, messageID)
	if err != nil {
		return nil, false, err
	}
	if m.ReceiverID != readerID {
		return nil, false, ErrForbidden
	}

	now := s.now()
	changed, err := repo.AdvanceStatus(ctx, s.DB, m.ID, domain.StatusRead, now)
	if err != nil {
		return nil, false, err
	}
	if changed {
		m.Status = domain.StatusRead
		m.UpdatedAt = now
		s.route(ctx, m.SenderID, protocol.MessageRead(m.ID))
	}
	return m, changed, nil
}

// Recall withdraws a message sent by requesterID within the recall window.
// The content is replaced by the placeholder, the receiver is notified live
// or through the offline queue, and the requester gets recall_success.
// Recalling an already-recalled message succeeds without a second notice.
func (s *MessageService) Recall(ctx context.Context, messageID, requesterID string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Recall",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.String("user.id", requesterID),
		),
	)
	defer span.End()

	unlock := s.locks.Lock(messageID)
	defer unlock()

	m, err := s.load(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != requesterID {
		return nil, ErrForbidden
	}

	if !m.IsRecalled {
		now := s.now()
		if now.Sub(m.CreatedAt) > s.recallWindow() {
			return nil, ErrRecallWindowExpired
		}
		changed, err := repo.MarkRecalled(ctx, s.DB, m.ID, now)
		if err != nil {
			return nil, err
		}
		m.IsRecalled = true
		m.Content = domain.RecalledPlaceholder
		if changed {
			m.UpdatedAt = now
			s.exclusive(m.ReceiverID, func() {
				f := protocol.MessageRecalled(m.ID)
				if !s.route(ctx, m.ReceiverID, f) {
					s.enqueue(ctx, m.ReceiverID, m.ID, f)
				}
			})
		}
	}

	s.route(ctx, requesterID, protocol.RecallSuccess(m.ID))
	return m, nil
}

// Get returns a message visible to userID (sender or receiver). Messages the
// user does not participate in are reported as not found.
func (s *MessageService) Get(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	m, err := s.load(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !m.Involves(userID) {
		return nil, ErrMessageNotFound
	}
	return m, nil
}

// History returns the non-recalled messages between userID and peerID,
// newest first, with the total count.
func (s *MessageService) History(ctx context.Context, userID, peerID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("peer.id", peerID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		return nil, 0, ErrInvalidReceiver
	}
	pg := utils.NewPage(page, pageSize, defaultPageSize, maxPageSize)

	total, err := repo.CountConversation(ctx, s.DB, userID, peerID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListConversationPage(ctx, s.DB, userID, peerID, pg.Offset(), pg.Size)
	return items, total, err
}

// ConversationStats exposes the count and latest update of a conversation
// for conditional responses.
func (s *MessageService) ConversationStats(ctx context.Context, userID, peerID string) (int64, *time.Time, error) {
	return repo.ConversationStats(ctx, s.DB, userID, peerID)
}

// MarkConversationRead marks every unread message peerID sent to userID as
// read, notifying the sender for each one that changed. It returns how many
// messages moved to read.
func (s *MessageService) MarkConversationRead(ctx context.Context, userID, peerID string) (int, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "MarkConversationRead",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("peer.id", peerID),
		),
	)
	defer span.End()

	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		return 0, ErrInvalidReceiver
	}
	ids, err := repo.UnreadIDsFrom(ctx, s.DB, userID, peerID)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, id := range ids {
		_, changed, err := s.markRead(ctx, id, userID)
		if errors.Is(err, ErrMessageNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}
	span.SetAttributes(attribute.Int("messages.read", n))
	return n, nil
}

// UnreadCount returns how many messages userID received that are neither
// read nor recalled.
func (s *MessageService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "UnreadCount",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return repo.CountUnread(ctx, s.DB, userID)
}

// Conversations lists userID's conversations, most recently active first.
// limit is clamped to [1, 200]; zero or negative selects 50.
func (s *MessageService) Conversations(ctx context.Context, userID string, limit int) ([]repo.ConversationRow, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Conversations",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if limit <= 0 {
		limit = defaultConversations
	}
	return repo.ListConversations(ctx, s.DB, userID, lo.Clamp(limit, 1, maxConversations))
}

func (s *MessageService) load(ctx context.Context, id string) (*domain.Message, error) {
	m, err := repo.GetMessage(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	return m, err
}

func (s *MessageService) exclusive(userID string, fn func()) {
	if s.Presence == nil {
		fn()
		return
	}
	s.Presence.Exclusive(userID, fn)
}

func (s *MessageService) route(ctx context.Context, userID string, f protocol.Outbound) bool {
	if s.Presence == nil {
		return false
	}
	return s.Presence.Route(ctx, userID, f)
}

// enqueue parks f for userID. Failures are logged and swallowed: the message
// itself is already persisted and stays reachable through history.
func (s *MessageService) enqueue(ctx context.Context, userID, messageID string, f protocol.Outbound) {
	if s.Queue == nil {
		log.Warn().Str("user_id", userID).Str("kind", f.Type).Msg("no offline queue configured; frame dropped")
		return
	}
	payload, err := protocol.Encode(f)
	if err != nil {
		log.Error().Err(err).Str("kind", f.Type).Msg("encode offline frame")
		return
	}
	env := domain.OfflineEnvelope{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       f.Type,
		MessageID:  messageID,
		Payload:    payload,
		EnqueuedAt: s.now(),
	}
	if err := s.Queue.Enqueue(ctx, userID, env); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("message_id", messageID).Str("kind", f.Type).Msg("offline enqueue failed")
	}
}
