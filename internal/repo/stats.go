package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-dm-backend/internal/domain"
)

// ConversationStats returns how many messages userID and peerID exchanged
// (recalled ones included) and the latest UpdatedAt among them, in one
// query. Sends, status changes and recalls all move the timestamp, which
// makes the pair usable as a validator for history responses.
//
// An empty conversation yields (0, nil, nil).
func ConversationStats(ctx context.Context, db *gorm.DB, userID, peerID string) (int64, *time.Time, error) {
	// MAX(updated_at) comes back as TEXT from SQLite; ordering and taking
	// the first row keeps the column's DATETIME type.
	var rows []struct {
		Total     int64
		UpdatedAt time.Time
	}
	err := whereConversation(db.WithContext(ctx).Model(&domain.Message{}), userID, peerID).
		Select("COUNT(*) OVER () AS total, updated_at").
		Order("updated_at DESC").
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return 0, nil, err
	}
	if len(rows) == 0 {
		return 0, nil, nil
	}
	last := rows[0].UpdatedAt
	return rows[0].Total, &last, nil
}
