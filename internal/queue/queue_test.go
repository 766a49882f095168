package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-dm-backend/internal/domain"
)

func TestHandle_TwoStates(t *testing.T) {
	req := require.New(t)
	h := NewHandle()

	_, err := h.Store()
	req.ErrorIs(err, ErrUnavailable)
	req.False(h.Connected())

	s := newBadger(t)
	req.Nil(h.Connect(s))
	got, err := h.Store()
	req.NoError(err)
	req.Same(s, got.(*BadgerStore))
	req.Equal(1.0, testutil.ToFloat64(backendConnected))

	prev := h.Disconnect()
	req.Same(s, prev.(*BadgerStore))
	req.False(h.Connected())
	req.Equal(0.0, testutil.ToFloat64(backendConnected))
	req.Nil(h.Disconnect())
}

func TestOfflineQueue_Unavailable(t *testing.T) {
	q := New(NewHandle(), "offline_messages:")
	ctx := context.Background()

	require.ErrorIs(t, q.Enqueue(ctx, "bob", env("1")), ErrUnavailable)
	_, err := q.Drain(ctx, "bob", func(domain.OfflineEnvelope) error { return nil })
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = q.Pending(ctx, "bob")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOfflineQueue_DrainDeliversInOrderThenClears(t *testing.T) {
	req := require.New(t)
	h := NewHandle()
	h.Connect(newBadger(t))
	q := New(h, "offline_messages:")
	ctx := context.Background()

	req.Equal("offline_messages:bob", q.Key("bob"))
	for _, id := range []string{"1", "2", "3"} {
		req.NoError(q.Enqueue(ctx, "bob", env(id)))
	}
	n, err := q.Pending(ctx, "bob")
	req.NoError(err)
	req.Equal(3, n)

	var seen []string
	res, err := q.Drain(ctx, "bob", func(e domain.OfflineEnvelope) error {
		seen = append(seen, e.ID)
		return nil
	})
	req.NoError(err)
	req.Equal(DrainResult{Delivered: 3}, res)
	req.Equal([]string{"1", "2", "3"}, seen)

	n, err = q.Pending(ctx, "bob")
	req.NoError(err)
	req.Zero(n)

	// a second drain finds nothing and does not call deliver
	res, err = q.Drain(ctx, "bob", func(domain.OfflineEnvelope) error {
		t.Fatalf("deliver called on empty queue")
		return nil
	})
	req.NoError(err)
	req.Equal(DrainResult{}, res)
}

func TestOfflineQueue_DrainClearsEvenWhenDeliveryFails(t *testing.T) {
	req := require.New(t)
	s, _ := newMiniRedis(t)
	h := NewHandle()
	h.Connect(s)
	q := New(h, "offline_messages:")
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		req.NoError(q.Enqueue(ctx, "bob", env(id)))
	}
	before := testutil.ToFloat64(drained.WithLabelValues("dropped"))

	res, err := q.Drain(ctx, "bob", func(e domain.OfflineEnvelope) error {
		if e.ID == "2" {
			return errors.New("socket closed")
		}
		return nil
	})
	req.NoError(err)
	req.Equal(DrainResult{Delivered: 2, Failed: 1}, res)
	req.Equal(before+1, testutil.ToFloat64(drained.WithLabelValues("dropped")))

	n, err := q.Pending(ctx, "bob")
	req.NoError(err)
	req.Zero(n, "list cleared regardless of the failed delivery")
}

func TestOfflineQueue_DrainSkipsUndecodableItems(t *testing.T) {
	req := require.New(t)
	s, mr := newMiniRedis(t)
	h := NewHandle()
	h.Connect(s)
	q := New(h, "offline_messages:")
	ctx := context.Background()

	_, err := mr.RPush(q.Key("bob"), "{not json")
	req.NoError(err)
	req.NoError(q.Enqueue(ctx, "bob", env("2")))

	var seen []string
	res, err := q.Drain(ctx, "bob", func(e domain.OfflineEnvelope) error {
		seen = append(seen, e.ID)
		return nil
	})
	req.NoError(err)
	req.Equal(DrainResult{Delivered: 1, Failed: 1}, res)
	req.Equal([]string{"2"}, seen, "valid envelopes behind a bad item still arrive")

	n, err := q.Pending(ctx, "bob")
	req.NoError(err)
	req.Zero(n, "bad item cleared with the rest")
}

// failingClear wraps a Store whose DeleteAll always fails.
type failingClear struct{ Store }

func (failingClear) DeleteAll(context.Context, string) error { return errors.New("disk full") }

func TestOfflineQueue_DrainReportsClearFailure(t *testing.T) {
	req := require.New(t)
	h := NewHandle()
	h.Connect(failingClear{newBadger(t)})
	q := New(h, "offline_messages:")
	ctx := context.Background()

	req.NoError(q.Enqueue(ctx, "bob", env("1")))
	res, err := q.Drain(ctx, "bob", func(domain.OfflineEnvelope) error { return nil })
	req.ErrorContains(err, "disk full")
	req.Equal(1, res.Delivered)
}
