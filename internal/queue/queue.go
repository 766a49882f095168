package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-dm-backend/internal/domain"
)

// OfflineQueue appends and drains per-user envelope lists through a Handle.
type OfflineQueue struct {
	handle *Handle
	prefix string
}

// New returns an OfflineQueue that names each user's list prefix+userID.
func New(h *Handle, prefix string) *OfflineQueue {
	return &OfflineQueue{handle: h, prefix: prefix}
}

// Key returns the list name for userID.
func (q *OfflineQueue) Key(userID string) string { return q.prefix + userID }

// Enqueue appends env to userID's list.
func (q *OfflineQueue) Enqueue(ctx context.Context, userID string, env domain.OfflineEnvelope) error {
	s, err := q.handle.Store()
	if err != nil {
		return err
	}
	item, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := s.Push(ctx, q.Key(userID), item); err != nil {
		return fmt.Errorf("enqueue for %s: %w", userID, err)
	}
	enqueued.WithLabelValues(env.Kind).Inc()
	return nil
}

// DrainResult summarizes one Drain call.
type DrainResult struct {
	Delivered int
	Failed    int
}

// Drain reads the whole list for userID in insertion order, calls deliver
// for each envelope and then clears the list, whether or not every delivery
// succeeded. Envelopes whose delivery failed, and items that no longer
// decode, are lost; they are counted as failed and logged.
func (q *OfflineQueue) Drain(ctx context.Context, userID string, deliver func(domain.OfflineEnvelope) error) (DrainResult, error) {
	var res DrainResult
	s, err := q.handle.Store()
	if err != nil {
		return res, err
	}
	key := q.Key(userID)
	items, err := s.Range(ctx, key)
	if err != nil {
		return res, fmt.Errorf("range %s: %w", key, err)
	}
	if len(items) == 0 {
		return res, nil
	}

	for i, item := range items {
		var env domain.OfflineEnvelope
		if jerr := json.Unmarshal(item, &env); jerr != nil {
			res.Failed++
			log.Warn().Err(jerr).Str("user_id", userID).Int("position", i).Msg("offline envelope undecodable; dropped")
			continue
		}
		if derr := deliver(env); derr != nil {
			res.Failed++
			log.Warn().Err(derr).Str("user_id", userID).Str("envelope_id", env.ID).Str("kind", env.Kind).Msg("offline envelope delivery failed")
			continue
		}
		res.Delivered++
	}
	drained.WithLabelValues("delivered").Add(float64(res.Delivered))
	drained.WithLabelValues("dropped").Add(float64(res.Failed))

	if err := s.DeleteAll(ctx, key); err != nil {
		return res, fmt.Errorf("clear %s: %w", key, err)
	}
	if res.Failed > 0 {
		log.Error().Str("user_id", userID).Int("delivered", res.Delivered).Int("dropped", res.Failed).Msg("offline queue drained with losses")
	}
	return res, nil
}

// Pending returns the number of queued envelopes for userID.
func (q *OfflineQueue) Pending(ctx context.Context, userID string) (int, error) {
	s, err := q.handle.Store()
	if err != nil {
		return 0, err
	}
	items, err := s.Range(ctx, q.Key(userID))
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
