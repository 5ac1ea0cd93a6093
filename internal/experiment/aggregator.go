package experiment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"lamed/internal/core"
	"lamed/internal/keys"
)

// Aggregator rebuilds goal reports from raw counters.
type Aggregator struct {
	client   redis.UniversalClient
	registry *Registry
}

func NewAggregator(client redis.UniversalClient, registry *Registry) *Aggregator {
	return &Aggregator{client: client, registry: registry}
}

// Tally reads every counter registered for experiment.
func (a *Aggregator) Tally(ctx context.Context, ns keys.Namespace, experiment string) (Tally, error) {
	counterKeys, err := a.registry.CounterKeys(ctx, ns, experiment)
	if err != nil {
		return nil, err
	}
	tally := make(Tally, len(counterKeys))
	if len(counterKeys) == 0 {
		return tally, nil
	}

	cmds := make([]*redis.StringCmd, len(counterKeys))
	_, err = a.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range counterKeys {
			cmds[i] = pipe.Get(ctx, string(k))
		}
		return nil
	})
	// Per-command replies (nil, WRONGTYPE) are classified below.
	var reply redis.Error
	if err != nil && !errors.As(err, &reply) {
		return nil, fmt.Errorf("%w: read counters of %s: %v", core.ErrBackendUnavailable, experiment, err)
	}

	for i, k := range counterKeys {
		event, variant, err := ns.ParseCounter(experiment, k)
		if err != nil {
			return nil, err
		}
		var n int64
		v, err := cmds[i].Result()
		switch {
		case errors.Is(err, redis.Nil):
		case wrongType(err):
			return nil, fmt.Errorf("%w: %s is not a counter: %v", core.ErrCorruptCounterKey, k, err)
		case err != nil:
			return nil, fmt.Errorf("%w: read %s: %v", core.ErrBackendUnavailable, k, err)
		default:
			n, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s holds %q", core.ErrCorruptCounterKey, k, v)
			}
		}
		tally[Cell{Event: event, Variant: variant}] = n
	}
	return tally, nil
}

func wrongType(err error) bool {
	var reply redis.Error
	return errors.As(err, &reply) && strings.HasPrefix(reply.Error(), "WRONGTYPE")
}

// Goals returns the goal reports of experiment. An experiment without
// counters yields an empty list.
func (a *Aggregator) Goals(ctx context.Context, ns keys.Namespace, experiment string) ([]core.GoalReport, error) {
	tally, err := a.Tally(ctx, ns, experiment)
	if err != nil {
		return nil, err
	}
	return Reports(tally), nil
}

// All returns the goal reports of every experiment in scope, or of every
// registered experiment when scope is empty.
func (a *Aggregator) All(ctx context.Context, ns keys.Namespace, scope string) (core.AllResult, error) {
	result := core.AllResult{}
	if scope != "" {
		result.Meta.Scope = &scope
	}

	names, err := a.registry.ListExperiments(ctx, ns, scope)
	if err != nil {
		return core.AllResult{}, err
	}
	result.Experiments = make([]core.ExperimentResult, 0, len(names))
	for _, name := range names {
		goals, err := a.Goals(ctx, ns, name)
		if err != nil {
			return core.AllResult{}, err
		}
		result.Experiments = append(result.Experiments, core.ExperimentResult{Experiment: name, Goals: goals})
	}
	return result, nil
}
