// Package netshim implements the optional latency/jitter/drop stage of
// spec.md §4.7, placed in front of a submission path. It is generic
// over the wrapped action's result type (spec.md §9 supplemented
// feature: "implemented as a generic func(ctx, func() (R, error))
// (Outcome[R], error)-shaped wrapper so any submission path... can be
// wrapped without duplicating latency/jitter/drop logic per caller"),
// since Go has no generic methods — Invoke is a free function taking
// the shim as its first argument.
package netshim

import (
	"context"
	"time"

	"clobcore/internal/prng"
)

// Config holds the shim's three knobs.
type Config struct {
	BaseLatencyMs   float64
	JitterMs        float64 // symmetric: sampled latency is base ± jitter
	PacketLossRate  float64 // in [0,1]
	Source          *prng.Source
}

func (c Config) withDefaults() Config {
	if c.Source == nil {
		c.Source = prng.New(0)
	}
	return c
}

// Shim samples drop and latency from a dedicated derived PRNG stream, so
// its randomness never collides with a book's skip-list stream (spec.md
// §5 "The network shim and skip list each own a PRNG").
type Shim struct {
	cfg Config
}

// New constructs a shim.
func New(cfg Config) *Shim {
	return &Shim{cfg: cfg.withDefaults()}
}

// Outcome is the result of one invocation through the shim.
type Outcome[R any] struct {
	Delivered bool
	LatencyMs float64
	Result    R
}

// Invoke samples a drop, then (if not dropped) sleeps the sampled
// latency before calling action. A dropped invocation never calls
// action — the engine is never touched for a dropped message (spec.md
// §7 "Network shim drop").
func Invoke[R any](ctx context.Context, s *Shim, action func() (R, error)) (Outcome[R], error) {
	if s.cfg.Source.Bool(s.cfg.PacketLossRate) {
		return Outcome[R]{Delivered: false}, nil
	}

	latencyMs := s.sampleLatencyMs()
	if latencyMs > 0 {
		timer := time.NewTimer(time.Duration(latencyMs * float64(time.Millisecond)))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Outcome[R]{}, ctx.Err()
		}
	}

	result, err := action()
	return Outcome[R]{Delivered: true, LatencyMs: latencyMs, Result: result}, err
}

func (s *Shim) sampleLatencyMs() float64 {
	jitter := int(s.cfg.JitterMs)
	if jitter <= 0 {
		if s.cfg.BaseLatencyMs < 0 {
			return 0
		}
		return s.cfg.BaseLatencyMs
	}
	sample := s.cfg.Source.Range(-jitter, jitter)
	latency := s.cfg.BaseLatencyMs + float64(sample)
	if latency < 0 {
		return 0
	}
	return latency
}
