package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/tbourn/go-dm-backend/internal/auth"
	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/protocol"
	"github.com/tbourn/go-dm-backend/internal/queue"
	"github.com/tbourn/go-dm-backend/internal/services"
)

// Lifecycle is the message state machine the handler dispatches into.
type Lifecycle interface {
	Send(ctx context.Context, senderID, receiverID, content string, typ domain.MessageType) (*domain.Message, error)
	MarkRead(ctx context.Context, messageID, readerID string) (*domain.Message, error)
	Recall(ctx context.Context, messageID, requesterID string) (*domain.Message, error)
	MarkDelivered(ctx context.Context, messageID string) error
	Get(ctx context.Context, userID, messageID string) (*domain.Message, error)
}

// Drainer empties a user's offline queue.
type Drainer interface {
	Drain(ctx context.Context, userID string, deliver func(domain.OfflineEnvelope) error) (queue.DrainResult, error)
}

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Verify(token string) (string, error)
}

// Options tune the transport.
type Options struct {
	WriteTimeout   time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxFrameBytes  int64
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 64 << 10
	}
	return o
}

type frameFunc func(ctx context.Context, s *Session, raw []byte) error

// Handler runs the protocol for every connection: handshake, registration
// and offline drain, then a read loop dispatching frames by type.
type Handler struct {
	reg   *Registry
	svc   Lifecycle
	queue Drainer
	auth  Authenticator
	opts  Options

	upgrader websocket.Upgrader
	dispatch map[string]frameFunc
}

// NewHandler wires a Handler. q may be nil, in which case nothing is drained.
func NewHandler(reg *Registry, svc Lifecycle, q Drainer, a Authenticator, opts Options) *Handler {
	h := &Handler{
		reg:   reg,
		svc:   svc,
		queue: q,
		auth:  a,
		opts:  opts.withDefaults(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	h.dispatch = map[string]frameFunc{
		protocol.TypeTextMessage:   h.onTextMessage,
		protocol.TypeMessageRead:   h.onMessageRead,
		protocol.TypeMessageRecall: h.onMessageRecall,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || lo.Contains(h.opts.AllowedOrigins, origin)
}

// Authenticate extracts the handshake token (Authorization header, then the
// token query parameter) and verifies it.
func (h *Handler) Authenticate(r *http.Request) (string, error) {
	tok := auth.TokenFromRequest(r)
	if tok == "" {
		return "", auth.ErrUnauthorized
	}
	return h.auth.Verify(tok)
}

// Serve upgrades the request and runs the session for userID until the
// connection ends. Upgrade failures have already been answered by the
// upgrader when an error is returned.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	// Frames run to completion even if the client goes away mid-frame.
	ctx := context.WithoutCancel(r.Context())

	s := NewSession(userID, conn, h.opts.WriteTimeout)
	s.log.Info().Msg("session connected")

	h.connect(ctx, s)
	defer h.disconnect(s)

	go h.keepalive(s)
	h.readLoop(ctx, s)
	return nil
}

// connect registers s, closes the session it displaced and drains the
// user's offline queue, all under the user's lock so no enqueue can slip in
// between the drain and the registration becoming visible.
func (h *Handler) connect(ctx context.Context, s *Session) {
	h.reg.Exclusive(s.UserID, func() {
		if prev := h.reg.Register(s.UserID, s); prev != nil {
			prev.log.Info().Str("replaced_by", s.ID).Msg("session replaced")
			prev.Close(CloseSessionReplaced, "session replaced")
		}
		// A second pass picks up anything parked by a path that raced the
		// first one without holding the lock.
		for pass := 0; pass < 2; pass++ {
			if n := h.drain(ctx, s); n == 0 {
				break
			}
		}
	})
}

// drain replays the queued frames to s and returns how many envelopes were
// processed. A failed drain reports zero: the list may still hold what was
// just sent, so another pass would send it twice.
func (h *Handler) drain(ctx context.Context, s *Session) int {
	if h.queue == nil {
		return 0
	}
	res, err := h.queue.Drain(ctx, s.UserID, func(env domain.OfflineEnvelope) error {
		payload := env.Payload
		if env.Kind == protocol.TypeNewMessage && env.MessageID != "" {
			payload = h.redactIfRecalled(ctx, s, env)
		}
		if err := s.WriteRaw(payload); err != nil {
			return err
		}
		if env.Kind == protocol.TypeNewMessage && env.MessageID != "" {
			if err := h.svc.MarkDelivered(ctx, env.MessageID); err != nil {
				s.log.Error().Err(err).Str("message_id", env.MessageID).Msg("mark delivered on drain")
			}
		}
		return nil
	})
	switch {
	case errors.Is(err, queue.ErrUnavailable):
		s.log.Warn().Msg("offline queue unavailable; drain deferred to next connect")
		return 0
	case err != nil:
		s.log.Error().Err(err).Int("delivered", res.Delivered).Msg("offline drain failed")
		return 0
	case res.Delivered+res.Failed > 0:
		s.log.Info().Int("delivered", res.Delivered).Int("dropped", res.Failed).Msg("offline queue drained")
	}
	return res.Delivered + res.Failed
}

// redactIfRecalled returns the queued new_message payload, re-encoded with
// the placeholder when the message was recalled after it was parked.
func (h *Handler) redactIfRecalled(ctx context.Context, s *Session, env domain.OfflineEnvelope) []byte {
	m, err := h.svc.Get(ctx, s.UserID, env.MessageID)
	if err != nil || !m.IsRecalled {
		return env.Payload
	}
	var f protocol.Outbound
	if err := json.Unmarshal(env.Payload, &f); err != nil || f.Message == nil {
		return env.Payload
	}
	f.Message.Content = m.Content
	f.Message.IsRecalled = true
	b, err := protocol.Encode(f)
	if err != nil {
		return env.Payload
	}
	return b
}

func (h *Handler) disconnect(s *Session) {
	h.reg.Unregister(s.UserID, s)
	s.Close(websocket.CloseNormalClosure, "")
	s.log.Info().Msg("session disconnected")
}

func (h *Handler) keepalive(s *Session) {
	t := time.NewTicker(h.opts.PingPeriod)
	defer t.Stop()
	for {
		select {
		case <-s.Done():
			return
		case <-t.C:
			if err := s.Ping(); err != nil {
				s.log.Debug().Err(err).Msg("ping failed")
				s.Close(websocket.CloseGoingAway, "ping failed")
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, s *Session) {
	c := s.conn
	c.SetReadLimit(h.opts.MaxFrameBytes)
	_ = c.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		mt, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, CloseSessionReplaced) && s.Alive() {
				s.log.Warn().Err(err).Msg("read failed")
			}
			return
		}
		if mt != websocket.TextMessage {
			s.log.Warn().Int("message_type", mt).Msg("non-text frame ignored")
			continue
		}
		h.handleFrame(ctx, s, raw)
	}
}

// handleFrame dispatches one frame. Errors and panics stay contained to the
// frame: the connection keeps reading.
func (h *Handler) handleFrame(ctx context.Context, s *Session, raw []byte) {
	typ := "unknown"
	defer func() {
		if r := recover(); r != nil {
			frames.WithLabelValues(typ, "panic").Inc()
			s.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Str("frame_type", typ).Msg("frame handler panicked")
		}
	}()

	t, err := protocol.PeekType(raw)
	if err != nil {
		frames.WithLabelValues(typ, "malformed").Inc()
		s.log.Warn().Err(err).Msg("malformed frame dropped")
		return
	}
	fn, ok := h.dispatch[t]
	if !ok {
		frames.WithLabelValues(typ, "unknown").Inc()
		s.log.Warn().Str("frame_type", t).Msg("unknown frame type ignored")
		return
	}
	typ = t

	err = fn(ctx, s, raw)
	switch {
	case err == nil:
		frames.WithLabelValues(typ, "ok").Inc()
	case errors.Is(err, protocol.ErrMalformed):
		frames.WithLabelValues(typ, "malformed").Inc()
		s.log.Warn().Err(err).Str("frame_type", typ).Msg("malformed frame dropped")
	case isRejection(err):
		frames.WithLabelValues(typ, "rejected").Inc()
		s.log.Info().Err(err).Str("frame_type", typ).Msg("frame rejected")
	default:
		frames.WithLabelValues(typ, "error").Inc()
		s.log.Error().Err(err).Str("frame_type", typ).Msg("frame failed")
	}
}

// isRejection reports errors caused by the request rather than the server.
func isRejection(err error) bool {
	return lo.ContainsBy([]error{
		services.ErrMessageNotFound,
		services.ErrForbidden,
		services.ErrRecallWindowExpired,
		services.ErrEmptyContent,
		services.ErrTooLong,
		services.ErrInvalidReceiver,
		services.ErrInvalidType,
	}, func(target error) bool { return errors.Is(err, target) })
}

func (h *Handler) onTextMessage(ctx context.Context, s *Session, raw []byte) error {
	f, err := protocol.Decode[protocol.TextMessage](raw)
	if err != nil {
		return err
	}
	_, err = h.svc.Send(ctx, s.UserID, f.ReceiverID, f.Content, domain.MessageType(f.MessageType))
	return err
}

func (h *Handler) onMessageRead(ctx context.Context, s *Session, raw []byte) error {
	f, err := protocol.Decode[protocol.ReadAck](raw)
	if err != nil {
		return err
	}
	_, err = h.svc.MarkRead(ctx, f.MessageID, s.UserID)
	if errors.Is(err, services.ErrForbidden) {
		h.reply(s, protocol.ReadFailed(f.MessageID, protocol.ReasonForbidden))
	}
	return err
}

func (h *Handler) onMessageRecall(ctx context.Context, s *Session, raw []byte) error {
	f, err := protocol.Decode[protocol.RecallRequest](raw)
	if err != nil {
		return err
	}
	_, err = h.svc.Recall(ctx, f.MessageID, s.UserID)
	switch {
	case errors.Is(err, services.ErrForbidden):
		h.reply(s, protocol.RecallFailed(f.MessageID, protocol.ReasonForbidden))
	case errors.Is(err, services.ErrRecallWindowExpired):
		h.reply(s, protocol.RecallFailed(f.MessageID, protocol.ReasonWindowExpired))
	}
	return err
}

func (h *Handler) reply(s *Session, f protocol.Outbound) {
	if err := s.Send(f); err != nil {
		s.log.Debug().Err(err).Str("frame_type", f.Type).Msg("reply not written")
	}
}
