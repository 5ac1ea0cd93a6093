// Package counter increments Redis counters at most once per unique event.
//
// Each (counter key, event id) pair owns a dedup marker. Recording an event
// watches the marker, and only when it is absent sets it with an expiry and
// increments the counter in the same MULTI/EXEC. A concurrent writer touching
// the marker aborts the transaction, and the attempt is retried with
// exponential backoff up to a fixed number of attempts.
//
// Markers expire, so an event replayed after the expiry window is counted
// again.
package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"lamed/internal/core"
	"lamed/internal/keys"
	"lamed/internal/metrics"
)

const (
	DefaultExpiry          = 24 * time.Hour
	DefaultMaxAttempts     = 50
	DefaultInitialInterval = 5 * time.Millisecond
	DefaultMaxInterval     = 200 * time.Millisecond
)

// Option customizes a Store.
type Option func(*Store)

// WithExpiry sets the lifetime of dedup markers.
func WithExpiry(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithRetry bounds the optimistic transaction loop.
func WithRetry(maxAttempts int, initial, max time.Duration) Option {
	return func(s *Store) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if initial > 0 {
			s.initialInterval = initial
		}
		if max > 0 {
			s.maxInterval = max
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// WithMetrics sets the collectors updated by the store.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Store records unique events against counters.
type Store struct {
	client          redis.UniversalClient
	expiry          time.Duration
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	log             zerolog.Logger
	metrics         *metrics.Metrics
}

// New creates a Store over client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:          client,
		expiry:          DefaultExpiry,
		maxAttempts:     DefaultMaxAttempts,
		initialInterval: DefaultInitialInterval,
		maxInterval:     DefaultMaxInterval,
		log:             zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	return s
}

func (s *Store) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialInterval
	b.MaxInterval = s.maxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.maxAttempts-1)), ctx)
}

// RecordOnce increments key unless eventID was already counted against it
// while its marker is alive. It reports whether this call did the increment.
// Repeating a call is never an error.
func (s *Store) RecordOnce(ctx context.Context, key keys.CounterKey, eventID string) (bool, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordDuration.Observe(time.Since(start).Seconds())
	}()

	marker := keys.Marker(key, eventID)
	log := s.log.With().Str("key", string(key)).Str("marker", marker).Logger()
	log.Debug().Str("uuid", eventID).Msg("adding event")

	var recorded bool
	txf := func(tx *redis.Tx) error {
		recorded = false
		err := tx.Get(ctx, marker).Err()
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, marker, "1", s.expiry)
			pipe.Incr(ctx, string(key))
			return nil
		})
		if err == nil {
			recorded = true
		}
		return err
	}

	attempt := func() error {
		err := s.client.Watch(ctx, txf, marker)
		if errors.Is(err, redis.TxFailedErr) {
			s.metrics.TxConflicts.Inc()
			log.Debug().Msg("watch conflict")
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	err := backoff.Retry(attempt, s.backOff(ctx))
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, redis.TxFailedErr):
		s.metrics.RetriesExhausted.Inc()
		log.Error().Int("attempts", s.maxAttempts).Msg("gave up on contended event")
		return false, fmt.Errorf("%w: %s after %d attempts", core.ErrRetriesExhausted, key, s.maxAttempts)
	default:
		log.Error().Err(err).Msg("failed to record event")
		return false, fmt.Errorf("%w: record %s: %v", core.ErrBackendUnavailable, key, err)
	}

	if !recorded {
		s.metrics.EventsDuplicate.Inc()
		log.Debug().Msg("event already recorded")
		return false, nil
	}
	s.metrics.EventsRecorded.Inc()
	log.Info().Msg("recorded event")
	return true, nil
}

// Count returns the current value of key, zero when it was never incremented.
func (s *Store) Count(ctx context.Context, key keys.CounterKey) (int64, error) {
	n, err := s.client.Get(ctx, string(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: get %s: %v", core.ErrBackendUnavailable, key, err)
	}
	return n, nil
}
