// Package handler dispatches JSON events to tracker operations, the way an
// event-triggered function receives them.
package handler

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"lamed/internal/core"
	"lamed/internal/tracker"
)

// Operation names accepted by Invoke.
const (
	OpTrack      = "track"
	OpExperiment = "experiment"
	OpAll        = "all"
	OpDelete     = "delete"
)

// Operations lists every operation name in a stable order.
var Operations = []string{OpTrack, OpExperiment, OpAll, OpDelete}

// Handler decodes events, runs the operation and encodes its result.
type Handler struct {
	service *tracker.Service
	log     zerolog.Logger
}

func New(service *tracker.Service, log zerolog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Invoke runs op with the JSON event in payload. Operations without a result
// return JSON null.
func (h *Handler) Invoke(ctx context.Context, op string, payload []byte) ([]byte, error) {
	log := h.log.With().Str("op", op).Logger()

	result, err := h.dispatch(ctx, op, payload)
	if err != nil {
		log.Error().Err(err).Msg("operation failed")
		return nil, err
	}

	out, err := sonic.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s result: %w", op, err)
	}
	return out, nil
}

func (h *Handler) dispatch(ctx context.Context, op string, payload []byte) (any, error) {
	switch op {
	case OpTrack:
		var req core.TrackRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return nil, h.service.Track(ctx, req)
	case OpExperiment:
		var req core.ExperimentRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return h.service.Experiment(ctx, req)
	case OpAll:
		var req core.AllRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		all, err := h.service.All(ctx, req)
		if err != nil {
			return nil, err
		}
		return all.Records(), nil
	case OpDelete:
		var req core.DeleteRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return nil, h.service.Delete(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownOperation, op)
	}
}

func decode(payload []byte, dest any) error {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if err := sonic.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	return nil
}
