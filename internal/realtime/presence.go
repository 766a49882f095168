package realtime

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-dm-backend/internal/protocol"
)

// PresenceRouter writes frames to users that have a live session.
type PresenceRouter struct {
	reg *Registry
}

// NewPresenceRouter returns a router over reg.
func NewPresenceRouter(reg *Registry) *PresenceRouter {
	return &PresenceRouter{reg: reg}
}

// Route writes f to userID's session and reports whether it was written.
// No session, a dead session or a failed write all count as offline. Route
// does not take the user's lock; callers that must order routing against a
// connecting drain wrap it in Exclusive.
func (p *PresenceRouter) Route(ctx context.Context, userID string, f protocol.Outbound) bool {
	_, span := otel.Tracer("realtime/PresenceRouter").Start(ctx, "Route",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("frame.type", f.Type),
		),
	)
	defer span.End()

	s, ok := p.reg.Lookup(userID)
	if !ok || !s.Alive() {
		deliveries.WithLabelValues("offline").Inc()
		span.SetAttributes(attribute.String("delivery", "offline"))
		return false
	}
	if err := s.Send(f); err != nil {
		s.log.Warn().Err(err).Str("frame_type", f.Type).Msg("live delivery failed")
		deliveries.WithLabelValues("failed").Inc()
		span.SetAttributes(attribute.String("delivery", "failed"))
		return false
	}
	deliveries.WithLabelValues("live").Inc()
	span.SetAttributes(attribute.String("delivery", "live"))
	return true
}

// Exclusive runs fn under userID's serialization lock.
func (p *PresenceRouter) Exclusive(userID string, fn func()) {
	p.reg.Exclusive(userID, fn)
}
