package experiment

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lamed/internal/core"
	"lamed/internal/keys"
	"lamed/internal/metrics"
)

const ns = keys.Namespace("alephbet")

type fixture struct {
	mr         *miniredis.Miniredis
	client     *redis.Client
	registry   *Registry
	aggregator *Aggregator
	lifecycle  *Lifecycle
	metrics    *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	m := metrics.New(nil)
	registry := NewRegistry(client, zerolog.Nop())
	return &fixture{
		mr:         mr,
		client:     client,
		registry:   registry,
		aggregator: NewAggregator(client, registry),
		lifecycle:  NewLifecycle(client, registry, zerolog.Nop(), m),
		metrics:    m,
	}
}

// seed registers and sets a counter the way tracking does.
func (f *fixture) seed(t *testing.T, experiment, event, variant string, n int64) keys.CounterKey {
	t.Helper()
	ctx := context.Background()
	key := ns.Counter(experiment, event, variant)
	require.NoError(t, f.registry.RegisterCounterKey(ctx, ns, experiment, key))
	require.NoError(t, f.client.IncrBy(ctx, string(key), n).Err())
	return key
}

func TestRegisterCounterKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := ns.Counter("button", "participate", "red")

	require.NoError(t, f.registry.RegisterCounterKey(ctx, ns, "button", key))
	// Idempotent.
	require.NoError(t, f.registry.RegisterCounterKey(ctx, ns, "button", key))

	assert.True(t, f.mr.Exists("alephbet:experiments"))
	members, err := f.mr.Members("alephbet:counter_keys")
	require.NoError(t, err)
	assert.Equal(t, []string{string(key)}, members)
	members, err = f.mr.Members("alephbet:button:counter_keys")
	require.NoError(t, err)
	assert.Equal(t, []string{string(key)}, members)

	ok, err := f.registry.ExperimentExists(ctx, ns, "button")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.registry.ExperimentExists(ctx, ns, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListExperiments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "zeta", "participate", "A", 1)
	f.seed(t, "alpha", "participate", "A", 1)

	names, err := f.registry.ListExperiments(ctx, ns, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)

	// Scope is returned as given, unknown names included.
	names, err = f.registry.ListExperiments(ctx, ns, "zeta,ghost")
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "ghost"}, names)

	names, err = f.registry.ListExperiments(ctx, keys.Namespace("other"), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestGoals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "button", "participate", "A", 5)
	f.seed(t, "button", "participate", "B", 3)
	f.seed(t, "button", "signup", "A", 2)

	goals, err := f.aggregator.Goals(ctx, ns, "button")
	require.NoError(t, err)
	assert.Equal(t, []core.GoalReport{
		{Goal: "signup", Results: []core.VariantResult{
			{Label: "A", Successes: 2, Trials: 5},
			{Label: "B", Successes: 0, Trials: 3},
		}},
	}, goals)
}

func TestGoalsRegisteredButNotIncremented(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "button", "participate", "A", 2)
	require.NoError(t, f.registry.RegisterCounterKey(ctx, ns, "button", ns.Counter("button", "signup", "A")))

	goals, err := f.aggregator.Goals(ctx, ns, "button")
	require.NoError(t, err)
	assert.Equal(t, []core.GoalReport{
		{Goal: "signup", Results: []core.VariantResult{{Label: "A", Successes: 0, Trials: 2}}},
	}, goals)
}

func TestGoalsEmptyExperiment(t *testing.T) {
	f := newFixture(t)

	goals, err := f.aggregator.Goals(context.Background(), ns, "nothing")
	require.NoError(t, err)
	assert.NotNil(t, goals)
	assert.Empty(t, goals)
}

func TestGoalsCorruptIndex(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "button", "participate", "A", 1)
	_, err := f.mr.SetAdd("alephbet:button:counter_keys", "alephbet:counters:button:broken")
	require.NoError(t, err)

	_, err = f.aggregator.Goals(context.Background(), ns, "button")
	assert.ErrorIs(t, err, core.ErrCorruptCounterKey)
}

func TestGoalsNonIntegerCounter(t *testing.T) {
	f := newFixture(t)
	key := f.seed(t, "button", "participate", "A", 1)
	require.NoError(t, f.mr.Set(string(key), "many"))

	_, err := f.aggregator.Goals(context.Background(), ns, "button")
	assert.ErrorIs(t, err, core.ErrCorruptCounterKey)
}

func TestGoalsWrongTypeCounter(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "button", "participate", "A", 1)
	key := f.seed(t, "button", "signup", "A", 1)
	f.mr.Del(string(key))
	_, err := f.mr.SetAdd(string(key), "x")
	require.NoError(t, err)

	_, err = f.aggregator.Goals(context.Background(), ns, "button")
	assert.ErrorIs(t, err, core.ErrCorruptCounterKey)
	assert.NotErrorIs(t, err, core.ErrBackendUnavailable)
}

func TestGoalsBackendUnavailable(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	_, err := f.aggregator.Goals(context.Background(), ns, "button")
	assert.ErrorIs(t, err, core.ErrBackendUnavailable)
}

func TestAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "e1", "participate", "A", 1)
	f.seed(t, "e1", "signup", "A", 1)
	f.seed(t, "e2", "participate", "A", 2)
	f.seed(t, "e2", "click", "A", 1)
	f.seed(t, "e3", "participate", "A", 3)
	f.seed(t, "e3", "click", "A", 3)

	all, err := f.aggregator.All(ctx, ns, "")
	require.NoError(t, err)
	assert.Nil(t, all.Meta.Scope)
	require.Len(t, all.Experiments, 3)
	assert.Equal(t, "e1", all.Experiments[0].Experiment)

	scoped, err := f.aggregator.All(ctx, ns, "e1,e2")
	require.NoError(t, err)
	require.NotNil(t, scoped.Meta.Scope)
	assert.Equal(t, "e1,e2", *scoped.Meta.Scope)
	assert.Equal(t, []core.ExperimentResult{
		{Experiment: "e1", Goals: []core.GoalReport{
			{Goal: "signup", Results: []core.VariantResult{{Label: "A", Successes: 1, Trials: 1}}},
		}},
		{Experiment: "e2", Goals: []core.GoalReport{
			{Goal: "click", Results: []core.VariantResult{{Label: "A", Successes: 1, Trials: 2}}},
		}},
	}, scoped.Experiments)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	k1 := f.seed(t, "button", "participate", "A", 5)
	k2 := f.seed(t, "button", "signup", "A", 2)
	keep := f.seed(t, "banner", "participate", "A", 1)

	deleted, err := f.lifecycle.Delete(ctx, ns, "button")
	require.NoError(t, err)
	assert.True(t, deleted)

	names, err := f.registry.ListExperiments(ctx, ns, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"banner"}, names)

	members, err := f.mr.Members("alephbet:counter_keys")
	require.NoError(t, err)
	assert.Equal(t, []string{string(keep)}, members)

	assert.False(t, f.mr.Exists(string(k1)))
	assert.False(t, f.mr.Exists(string(k2)))
	assert.False(t, f.mr.Exists("alephbet:button:counter_keys"))
	assert.True(t, f.mr.Exists(string(keep)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ExperimentsDeleted))

	goals, err := f.aggregator.Goals(ctx, ns, "button")
	require.NoError(t, err)
	assert.Empty(t, goals)
}

func TestDeleteUnregistered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "banner", "participate", "A", 1)
	before := f.mr.Keys()

	deleted, err := f.lifecycle.Delete(ctx, ns, "button")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, before, f.mr.Keys())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ExperimentsDeleted))
}

func TestDeleteKeepsMarkers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.seed(t, "button", "participate", "A", 1)
	marker := keys.Marker(key, "event-1")
	require.NoError(t, f.mr.Set(marker, "1"))

	_, err := f.lifecycle.Delete(ctx, ns, "button")
	require.NoError(t, err)
	assert.True(t, f.mr.Exists(marker))
}
