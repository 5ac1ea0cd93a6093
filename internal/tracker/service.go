package tracker

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"lamed/internal/core"
	"lamed/internal/counter"
	"lamed/internal/experiment"
	"lamed/internal/keys"
	"lamed/internal/metrics"
)

// Service exposes the track, experiment, all and delete operations.
type Service struct {
	defaultNamespace string
	registry         *experiment.Registry
	counters         *counter.Store
	aggregator       *experiment.Aggregator
	lifecycle        *experiment.Lifecycle
	log              zerolog.Logger
}

// Config holds the injected settings of a Service.
type Config struct {
	DefaultNamespace string
	CounterOptions   []counter.Option
	Logger           zerolog.Logger
	Metrics          *metrics.Metrics
}

// NewService wires the components over one backend client.
func NewService(client redis.UniversalClient, cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	opts := append([]counter.Option{counter.WithLogger(cfg.Logger), counter.WithMetrics(m)}, cfg.CounterOptions...)

	registry := experiment.NewRegistry(client, cfg.Logger)
	return &Service{
		defaultNamespace: core.NamespaceOrDefault(cfg.DefaultNamespace),
		registry:         registry,
		counters:         counter.New(client, opts...),
		aggregator:       experiment.NewAggregator(client, registry),
		lifecycle:        experiment.NewLifecycle(client, registry, cfg.Logger, m),
		log:              cfg.Logger,
	}
}

func (s *Service) namespace(ns string) keys.Namespace {
	if ns == "" {
		return keys.Namespace(s.defaultNamespace)
	}
	return keys.Namespace(ns)
}

// Track records one event. The counter key is registered before the
// increment; a repeated uuid is silently ignored.
func (s *Service) Track(ctx context.Context, req core.TrackRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	ns := s.namespace(req.Namespace)
	key := ns.Counter(req.Experiment, req.Event, req.Variant)

	if err := s.registry.RegisterCounterKey(ctx, ns, req.Experiment, key); err != nil {
		return err
	}
	_, err := s.counters.RecordOnce(ctx, key, req.UUID)
	return err
}

// Experiment returns the goal reports of one experiment.
func (s *Service) Experiment(ctx context.Context, req core.ExperimentRequest) ([]core.GoalReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.aggregator.Goals(ctx, s.namespace(req.Namespace), req.Experiment)
}

// All returns the goal reports of every experiment in scope.
func (s *Service) All(ctx context.Context, req core.AllRequest) (core.AllResult, error) {
	if err := req.Validate(); err != nil {
		return core.AllResult{}, err
	}
	return s.aggregator.All(ctx, s.namespace(req.Namespace), req.Scope)
}

// Delete removes an experiment with its counters. Deleting an unknown
// experiment is not an error.
func (s *Service) Delete(ctx context.Context, req core.DeleteRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	_, err := s.lifecycle.Delete(ctx, s.namespace(req.Namespace), req.Experiment)
	return err
}
