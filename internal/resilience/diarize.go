package resilience

import (
	"context"

	"github.com/solinvox/medscribe/pkg/provider/diarize"
)

// DiarizeGuard wraps a [diarize.Provider] with a [CircuitBreaker]. While the
// breaker is open, calls return [ErrCircuitOpen] immediately; the pipeline
// treats that like any other chunk failure and moves on, so a dead backend
// costs one fast rejection per chunk instead of a full timeout.
type DiarizeGuard struct {
	inner   diarize.Provider
	breaker *CircuitBreaker
}

// NewDiarizeGuard wraps inner with a breaker built from cfg.
func NewDiarizeGuard(inner diarize.Provider, cfg CircuitBreakerConfig) *DiarizeGuard {
	if cfg.Name == "" {
		cfg.Name = "diarizer"
	}
	return &DiarizeGuard{
		inner:   inner,
		breaker: NewCircuitBreaker(cfg),
	}
}

// Diarize implements [diarize.Provider].
func (g *DiarizeGuard) Diarize(ctx context.Context, req diarize.Request) (*diarize.Result, error) {
	var res *diarize.Result
	err := g.breaker.Execute(func() error {
		var innerErr error
		res, innerErr = g.inner.Diarize(ctx, req)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SubmitFinalChunk implements [diarize.Provider]. Final submissions share the
// breaker with regular chunks — if the backend is down at stop time, the
// finalizer marks the consultation failed right away and the real-time
// transcript is kept.
func (g *DiarizeGuard) SubmitFinalChunk(ctx context.Context, req diarize.FinalChunkRequest) (*diarize.FinalChunkAck, error) {
	var ack *diarize.FinalChunkAck
	err := g.breaker.Execute(func() error {
		var innerErr error
		ack, innerErr = g.inner.SubmitFinalChunk(ctx, req)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return ack, nil
}

// BreakerState returns the current state of the underlying breaker.
func (g *DiarizeGuard) BreakerState() State {
	return g.breaker.State()
}
