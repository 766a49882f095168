// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
//
// Status and recall transitions are single conditional UPDATEs so that two
// writers racing on the same row can never move a message backwards or
// recall it twice; callers learn from the returned bool whether their write
// was the one that applied.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-dm-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateMessage inserts a new message with status sent.
func CreateMessage(ctx context.Context, db *gorm.DB, senderID, receiverID, content string, typ domain.MessageType, now time.Time) (*domain.Message, error) {
	m := &domain.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Type:       typ,
		Status:     domain.StatusSent,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// AdvanceStatus moves a message to status `to` only if its current status is
// strictly lower. It reports whether the row changed.
func AdvanceStatus(ctx context.Context, db *gorm.DB, id string, to domain.MessageStatus, now time.Time) (bool, error) {
	below := to.Below()
	if len(below) == 0 {
		return false, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND status IN ?", id, below).
		Updates(map[string]any{"status": to, "updated_at": now.UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkRecalled sets the recall flag and swaps the content for the placeholder
// in one statement. It reports whether this call performed the recall.
func MarkRecalled(ctx context.Context, db *gorm.DB, id string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND is_recalled = ?", id, false).
		Updates(map[string]any{
			"is_recalled": true,
			"content":     domain.RecalledPlaceholder,
			"updated_at":  now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UnreadIDsFrom lists, oldest first, the ids of messages senderID sent to
// readerID that have not reached read yet.
func UnreadIDsFrom(ctx context.Context, db *gorm.DB, readerID, senderID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND status IN ?", senderID, readerID, domain.StatusRead.Below()).
		Order("created_at ASC, id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// CountUnread counts messages received by userID that are neither read nor recalled.
func CountUnread(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("receiver_id = ? AND status <> ? AND is_recalled = ?", userID, domain.StatusRead, false).
		Count(&total).Error
	return total, err
}

// whereConversation matches the messages exchanged between a and b in either direction.
func whereConversation(q *gorm.DB, a, b string) *gorm.DB {
	return q.Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))", a, b, b, a)
}

// CountConversation returns the number of visible (non-recalled) messages
// between userID and peerID.
func CountConversation(ctx context.Context, db *gorm.DB, userID, peerID string) (int64, error) {
	var total int64
	err := whereConversation(db.WithContext(ctx).Model(&domain.Message{}), userID, peerID).
		Where("is_recalled = ?", false).
		Count(&total).Error
	return total, err
}

// ListConversationPage returns visible messages between userID and peerID,
// newest first (CreatedAt DESC, ID DESC).
func ListConversationPage(ctx context.Context, db *gorm.DB, userID, peerID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := whereConversation(db.WithContext(ctx), userID, peerID).
		Where("is_recalled = ?", false).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ConversationRow is one entry of a user's conversation list.
type ConversationRow struct {
	PeerID      string
	LastMessage domain.Message
	Unread      int64
}

const latestPerPeerSQL = `
SELECT id FROM (
	SELECT id, created_at,
		ROW_NUMBER() OVER (
			PARTITION BY CASE WHEN sender_id = @user THEN receiver_id ELSE sender_id END
			ORDER BY created_at DESC, id DESC
		) AS rn
	FROM messages
	WHERE (sender_id = @user OR receiver_id = @user) AND is_recalled = 0
) WHERE rn = 1
ORDER BY created_at DESC, id DESC
LIMIT @limit`

// ListConversations returns the latest visible message per peer for userID,
// most recent conversation first, together with the per-peer unread count.
func ListConversations(ctx context.Context, db *gorm.DB, userID string, limit int) ([]ConversationRow, error) {
	db = db.WithContext(ctx)

	var ids []string
	if err := db.Raw(latestPerPeerSQL, map[string]any{"user": userID, "limit": limit}).Scan(&ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []ConversationRow{}, nil
	}

	var msgs []domain.Message
	if err := db.Where("id IN ?", ids).Order("created_at DESC, id DESC").Find(&msgs).Error; err != nil {
		return nil, err
	}

	var counts []struct {
		SenderID string
		N        int64
	}
	err := db.Model(&domain.Message{}).
		Select("sender_id, COUNT(*) AS n").
		Where("receiver_id = ? AND status <> ? AND is_recalled = ?", userID, domain.StatusRead, false).
		Group("sender_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	unread := make(map[string]int64, len(counts))
	for _, c := range counts {
		unread[c.SenderID] = c.N
	}

	out := make([]ConversationRow, 0, len(msgs))
	for _, m := range msgs {
		peer := m.Peer(userID)
		out = append(out, ConversationRow{PeerID: peer, LastMessage: m, Unread: unread[peer]})
	}
	return out, nil
}
