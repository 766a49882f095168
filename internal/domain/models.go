// Package domain defines the persistence models for direct messages and the
// envelopes parked for offline recipients. Message is mapped with GORM and
// forms the core data layer of the delivery backend.
package domain

import (
	"encoding/json"
	"time"
)

// MessageStatus is the delivery state of a message. It only moves forward:
// sent -> delivered -> read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses along the forward-only lifecycle. Unknown values rank 0.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the known statuses.
func (s MessageStatus) Valid() bool { return s.Rank() > 0 }

// Below returns every known status ranked strictly lower than s.
func (s MessageStatus) Below() []MessageStatus {
	out := make([]MessageStatus, 0, 2)
	for _, c := range []MessageStatus{StatusSent, StatusDelivered, StatusRead} {
		if c.Rank() < s.Rank() {
			out = append(out, c)
		}
	}
	return out
}

// MessageType is the content kind carried by a message.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeVoice MessageType = "voice"
	TypeVideo MessageType = "video"
)

// Valid reports whether t is a supported content kind.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeVoice, TypeVideo:
		return true
	}
	return false
}

// RecalledPlaceholder replaces the content of a recalled message.
const RecalledPlaceholder = "[message recalled]"

// Message is a single direct message between two users.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - SenderID / ReceiverID: participants; indexed as a pair for history scans.
//   - Content: message body, replaced by RecalledPlaceholder on recall.
//   - Type: content kind (text, image, voice, video).
//   - Status: delivery state, forward-only.
//   - IsRecalled: one-way recall flag.
//   - CreatedAt: set once at persist time; the recall window is measured from it.
//   - UpdatedAt: bumped on every status or recall transition.
type Message struct {
	ID         string        `json:"id"         gorm:"type:char(36);primaryKey"`
	SenderID   string        `json:"senderId"   gorm:"type:varchar(64);not null;index:idx_msg_pair,priority:1"`
	ReceiverID string        `json:"receiverId" gorm:"type:varchar(64);not null;index:idx_msg_pair,priority:2;index:idx_msg_receiver_status,priority:1"`
	Content    string        `json:"content"    gorm:"type:text;not null"`
	Type       MessageType   `json:"type"       gorm:"type:varchar(16);not null;default:'text';check:type IN ('text','image','voice','video')"`
	Status     MessageStatus `json:"status"     gorm:"type:varchar(16);not null;default:'sent';check:status IN ('sent','delivered','read');index:idx_msg_receiver_status,priority:2"`
	IsRecalled bool          `json:"isRecalled" gorm:"not null;default:false"`
	CreatedAt  time.Time     `json:"createdAt"  gorm:"index:idx_msg_pair,priority:3"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Involves reports whether userID is the sender or the receiver.
func (m Message) Involves(userID string) bool {
	return userID != "" && (m.SenderID == userID || m.ReceiverID == userID)
}

// Peer returns the other participant from userID's point of view.
func (m Message) Peer(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// OfflineEnvelope is an outbound frame parked for a recipient that had no
// live session when it was routed. Envelopes are drained in insertion order
// on the recipient's next connect.
type OfflineEnvelope struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Kind       string          `json:"kind"`
	MessageID  string          `json:"messageId,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}
