package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-dm-backend/internal/domain"
)

// ErrDuplicate is returned by SaveIdempotency when (user, key) is already taken.
var ErrDuplicate = errors.New("idempotency key already used")

// purgeBatch bounds how many rows one DELETE statement removes so the purge
// never holds the write lock for long.
const purgeBatch = 500

// FindIdempotency returns the live record for (userID, key) or ErrNotFound.
func FindIdempotency(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (*domain.Idempotency, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where(&domain.Idempotency{UserID: userID, Key: key}).
		Where("expires_at > ?", now.UTC()).
		Take(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveIdempotency stores rec unless a record with the same (user, key)
// exists, in which case ErrDuplicate is returned and nothing is written.
//
// An expired record with the same key is replaced.
func SaveIdempotency(ctx context.Context, db *gorm.DB, rec *domain.Idempotency) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(&domain.Idempotency{UserID: rec.UserID, Key: rec.Key}).
			Where("expires_at <= ?", rec.CreatedAt).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDuplicate
		}
		return nil
	})
}

// PurgeIdempotency deletes records that expired at or before now and
// returns how many were removed.
func PurgeIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	var total int64
	for {
		sub := db.Model(&domain.Idempotency{}).
			Select("rowid").
			Where("expires_at <= ?", now.UTC()).
			Limit(purgeBatch)
		res := db.WithContext(ctx).Where("rowid IN (?)", sub).Delete(&domain.Idempotency{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
		if res.RowsAffected < purgeBatch {
			return total, nil
		}
	}
}
