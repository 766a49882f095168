package domain

import "time"

// Idempotency remembers which message a send with a given Idempotency-Key
// produced. The (UserID, Key) pair is the primary key, so a key is private
// to the sender that used it.
type Idempotency struct {
	UserID    string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Key       string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	MessageID string    `gorm:"type:TEXT NOT NULL;index:idx_idem_message"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index:idx_idem_expires"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency_keys" }

// NewIdempotency builds a record for messageID that stays live for ttl
// after now.
func NewIdempotency(userID, key, messageID string, now time.Time, ttl time.Duration) *Idempotency {
	now = now.UTC()
	return &Idempotency{
		UserID:    userID,
		Key:       key,
		MessageID: messageID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Live reports whether the record still answers replays at now.
func (i *Idempotency) Live(now time.Time) bool { return now.Before(i.ExpiresAt) }
