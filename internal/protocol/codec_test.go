package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-dm-backend/internal/domain"
)

func TestPeekType(t *testing.T) {
	req := require.New(t)

	typ, err := PeekType([]byte(`{"type":"text_message","receiverId":"b"}`))
	req.NoError(err)
	req.Equal(TypeTextMessage, typ)

	for _, raw := range []string{`not json`, `{}`, `{"type":"  "}`, `[1,2]`} {
		_, err := PeekType([]byte(raw))
		req.Truef(errors.Is(err, ErrMalformed), "raw=%s err=%v", raw, err)
	}
}

func TestDecode_TextMessage(t *testing.T) {
	req := require.New(t)

	m, err := Decode[TextMessage]([]byte(`{"type":"text_message","receiverId":"bob","content":"hi"}`))
	req.NoError(err)
	req.Equal("bob", m.ReceiverID)
	req.Equal("hi", m.Content)
	req.Empty(m.MessageType)

	m, err = Decode[TextMessage]([]byte(`{"receiverId":"bob","content":"pic","messageType":"image"}`))
	req.NoError(err)
	req.Equal("image", m.MessageType)

	bad := []string{
		`{"content":"hi"}`,     // no receiver
		`{"receiverId":"bob"}`, // no content
		`{"receiverId":"bob","content":"x","messageType":"gif"}`, // unknown kind
		`{"receiverId":42,"content":"x"}`,                        // wrong JSON type
	}
	for _, raw := range bad {
		_, err := Decode[TextMessage]([]byte(raw))
		req.Truef(errors.Is(err, ErrMalformed), "raw=%s err=%v", raw, err)
	}
}

func TestDecode_AckFrames(t *testing.T) {
	req := require.New(t)

	r, err := Decode[ReadAck]([]byte(`{"type":"message_read","messageId":"m1"}`))
	req.NoError(err)
	req.Equal("m1", r.MessageID)

	_, err = Decode[RecallRequest]([]byte(`{"type":"message_recall"}`))
	req.ErrorIs(err, ErrMalformed)
}

func TestEncode_OmitsUnusedFields(t *testing.T) {
	req := require.New(t)

	b, err := Encode(MessageSent("m1", domain.StatusDelivered))
	req.NoError(err)
	req.JSONEq(`{"type":"message_sent","messageId":"m1","status":"delivered"}`, string(b))

	b, err = Encode(RecallFailed("m2", ReasonWindowExpired))
	req.NoError(err)
	req.JSONEq(`{"type":"recall_failed","messageId":"m2","reason":"WindowExpired"}`, string(b))

	b, err = Encode(NewMessage(domain.Message{ID: "m3", SenderID: "a", ReceiverID: "b", Content: "hi", Type: domain.TypeText, Status: domain.StatusSent}))
	req.NoError(err)
	var got struct {
		Type    string         `json:"type"`
		Message domain.Message `json:"message"`
	}
	req.NoError(json.Unmarshal(b, &got))
	req.Equal(TypeNewMessage, got.Type)
	req.Equal("m3", got.Message.ID)
	req.Equal("hi", got.Message.Content)
}
