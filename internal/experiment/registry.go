package experiment

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"lamed/internal/core"
	"lamed/internal/keys"
)

// Registry indexes which experiments and counter keys exist per namespace.
type Registry struct {
	client redis.UniversalClient
	log    zerolog.Logger
}

func NewRegistry(client redis.UniversalClient, log zerolog.Logger) *Registry {
	return &Registry{client: client, log: log}
}

// RegisterCounterKey adds experiment and key to the namespace indices. It runs
// before the increment so a counter is discoverable as soon as any event for
// it starts processing.
func (r *Registry) RegisterCounterKey(ctx context.Context, ns keys.Namespace, experiment string, key keys.CounterKey) error {
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, ns.Experiments(), experiment)
		pipe.SAdd(ctx, ns.CounterKeys(), string(key))
		pipe.SAdd(ctx, ns.ExperimentCounterKeys(experiment), string(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: register %s: %v", core.ErrBackendUnavailable, key, err)
	}
	r.log.Debug().Str("experiment", experiment).Str("key", string(key)).Msg("registered counter key")
	return nil
}

// ListExperiments returns the experiments named by scope, in scope order and
// without checking them against the registry, or every registered experiment
// sorted by name when scope is empty.
func (r *Registry) ListExperiments(ctx context.Context, ns keys.Namespace, scope string) ([]string, error) {
	if names := core.SplitScope(scope); names != nil {
		return names, nil
	}
	names, err := r.client.SMembers(ctx, ns.Experiments()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list experiments: %v", core.ErrBackendUnavailable, err)
	}
	sort.Strings(names)
	return names, nil
}

// ExperimentExists reports whether experiment is registered in ns.
func (r *Registry) ExperimentExists(ctx context.Context, ns keys.Namespace, experiment string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, ns.Experiments(), experiment).Result()
	if err != nil {
		return false, fmt.Errorf("%w: lookup %s: %v", core.ErrBackendUnavailable, experiment, err)
	}
	return ok, nil
}

// CounterKeys returns the counter keys registered for experiment.
func (r *Registry) CounterKeys(ctx context.Context, ns keys.Namespace, experiment string) ([]keys.CounterKey, error) {
	members, err := r.client.SMembers(ctx, ns.ExperimentCounterKeys(experiment)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: counter keys of %s: %v", core.ErrBackendUnavailable, experiment, err)
	}
	out := make([]keys.CounterKey, len(members))
	for i, m := range members {
		out[i] = keys.CounterKey(m)
	}
	return out, nil
}
