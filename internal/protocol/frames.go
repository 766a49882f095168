// Package protocol defines the JSON frames exchanged over the realtime
// WebSocket connection. Every frame is an object with a "type" field; the
// remaining fields depend on the type.
package protocol

import (
	"github.com/tbourn/go-dm-backend/internal/domain"
)

// Inbound frame types.
const (
	TypeTextMessage   = "text_message"
	TypeMessageRead   = "message_read"
	TypeMessageRecall = "message_recall"
)

// Outbound frame types. message_read is shared with the inbound side: the
// client sends it as an acknowledgement and the sender receives it as a
// read receipt.
const (
	TypeNewMessage      = "new_message"
	TypeMessageSent     = "message_sent"
	TypeMessageRecalled = "message_recalled"
	TypeRecallSuccess   = "recall_success"
	TypeRecallFailed    = "recall_failed"
	TypeReadFailed      = "read_failed"
)

// Failure reasons carried by recall_failed and read_failed.
const (
	ReasonForbidden     = "Forbidden"
	ReasonWindowExpired = "WindowExpired"
)

// TextMessage asks the server to send a direct message.
type TextMessage struct {
	ReceiverID  string `json:"receiverId"  validate:"required,max=64"`
	Content     string `json:"content"     validate:"required"`
	MessageType string `json:"messageType" validate:"omitempty,oneof=text image voice video"`
}

// ReadAck acknowledges that the receiver has read a message.
type ReadAck struct {
	MessageID string `json:"messageId" validate:"required,max=64"`
}

// RecallRequest asks the server to recall a message the caller sent.
type RecallRequest struct {
	MessageID string `json:"messageId" validate:"required,max=64"`
}

// Outbound is the single shape of every server-to-client frame. Unused
// fields are omitted from the encoding.
type Outbound struct {
	Type      string          `json:"type"`
	MessageID string          `json:"messageId,omitempty"`
	Status    string          `json:"status,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Message   *domain.Message `json:"message,omitempty"`
}

// NewMessage carries a message to its receiver.
func NewMessage(m domain.Message) Outbound {
	return Outbound{Type: TypeNewMessage, Message: &m}
}

// MessageSent acknowledges a send to the sender with the resulting status.
func MessageSent(id string, st domain.MessageStatus) Outbound {
	return Outbound{Type: TypeMessageSent, MessageID: id, Status: string(st)}
}

// MessageRead is the read receipt sent to the original sender.
func MessageRead(id string) Outbound {
	return Outbound{Type: TypeMessageRead, MessageID: id}
}

// MessageRecalled tells the receiver a message was withdrawn.
func MessageRecalled(id string) Outbound {
	return Outbound{Type: TypeMessageRecalled, MessageID: id}
}

// RecallSuccess acknowledges a recall to the requester.
func RecallSuccess(id string) Outbound {
	return Outbound{Type: TypeRecallSuccess, MessageID: id}
}

// RecallFailed reports why a recall was refused.
func RecallFailed(id, reason string) Outbound {
	return Outbound{Type: TypeRecallFailed, MessageID: id, Reason: reason}
}

// ReadFailed reports why a read acknowledgement was refused.
func ReadFailed(id, reason string) Outbound {
	return Outbound{Type: TypeReadFailed, MessageID: id, Reason: reason}
}
