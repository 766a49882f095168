package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// OpenFunc opens a fresh backend connection.
type OpenFunc func(ctx context.Context) (Store, error)

// Backoff returns the delay before retry number attempt (1-based).
type Backoff func(attempt int) time.Duration

// DefaultBackoff waits attempt seconds, capped at five.
func DefaultBackoff(attempt int) time.Duration {
	d := time.Duration(attempt) * time.Second
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// Connector drives a Handle between its two states. Connect opens the
// backend with bounded retries; Run pings the active backend periodically,
// disconnects it on failure and reconnects when it comes back.
type Connector struct {
	Open           OpenFunc
	Handle         *Handle
	Attempts       int
	Backoff        Backoff
	HealthInterval time.Duration
	Name           string
}

// Connect tries to open the backend up to Attempts times. On success the
// handle is connected; on failure it stays disconnected and the last error
// is returned.
func (c *Connector) Connect(ctx context.Context) error {
	attempts := c.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := c.Backoff
	if backoff == nil {
		backoff = DefaultBackoff
	}

	var lastErr error
	for n := 1; n <= attempts; n++ {
		s, err := c.Open(ctx)
		if err == nil {
			c.install(s)
			log.Info().Str("backend", c.Name).Int("attempt", n).Msg("offline queue connected")
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Str("backend", c.Name).Int("attempt", n).Int("max_attempts", attempts).Msg("offline queue connect failed")
		if n == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(n)):
		}
	}
	return fmt.Errorf("offline queue %s: giving up after %d attempts: %w", c.Name, attempts, lastErr)
}

func (c *Connector) install(s Store) {
	if prev := c.Handle.Connect(s); prev != nil && prev != s {
		_ = prev.Close()
	}
}

// Run monitors backend health until ctx is done, then disconnects and
// closes the active store.
func (c *Connector) Run(ctx context.Context) {
	interval := c.HealthInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	defer func() {
		if s := c.Handle.Disconnect(); s != nil {
			_ = s.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}

// Check runs one health probe: a connected backend that fails PING is
// disconnected; a disconnected handle gets one reopen attempt.
func (c *Connector) Check(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if s, err := c.Handle.Store(); err == nil {
		if perr := s.Ping(pctx); perr != nil {
			log.Error().Err(perr).Str("backend", c.Name).Msg("offline queue unhealthy, disconnecting")
			if prev := c.Handle.Disconnect(); prev != nil {
				_ = prev.Close()
			}
		}
		return
	}

	s, err := c.Open(pctx)
	if err != nil {
		log.Debug().Err(err).Str("backend", c.Name).Msg("offline queue still unavailable")
		return
	}
	c.install(s)
	log.Info().Str("backend", c.Name).Msg("offline queue reconnected")
}
