package experiment

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"lamed/internal/core"
	"lamed/internal/keys"
	"lamed/internal/metrics"
)

// Lifecycle removes experiments together with their counters.
type Lifecycle struct {
	client   redis.UniversalClient
	registry *Registry
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

func NewLifecycle(client redis.UniversalClient, registry *Registry, log zerolog.Logger, m *metrics.Metrics) *Lifecycle {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Lifecycle{client: client, registry: registry, log: log, metrics: m}
}

// Delete removes experiment, its counters and its index entries in one
// MULTI/EXEC. It reports false without touching anything when experiment is
// not registered. Dedup markers are left to expire on their own.
func (l *Lifecycle) Delete(ctx context.Context, ns keys.Namespace, experiment string) (bool, error) {
	exists, err := l.registry.ExperimentExists(ctx, ns, experiment)
	if err != nil {
		return false, err
	}
	if !exists {
		l.log.Debug().Str("experiment", experiment).Msg("experiment not registered")
		return false, nil
	}

	counterKeys, err := l.registry.CounterKeys(ctx, ns, experiment)
	if err != nil {
		return false, err
	}

	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range counterKeys {
			pipe.SRem(ctx, ns.CounterKeys(), string(k))
			pipe.Del(ctx, string(k))
		}
		pipe.Del(ctx, ns.ExperimentCounterKeys(experiment))
		pipe.SRem(ctx, ns.Experiments(), experiment)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: delete %s: %v", core.ErrBackendUnavailable, experiment, err)
	}

	l.metrics.ExperimentsDeleted.Inc()
	l.log.Info().
		Str("namespace", string(ns)).
		Str("experiment", experiment).
		Int("counters", len(counterKeys)).
		Msg("deleted experiment")
	return true, nil
}
