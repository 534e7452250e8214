// Package mock provides an in-memory mock implementation of the
// [diarize.Provider] interface for use in unit tests.
//
// The mock is safe for concurrent use. Results can be scripted per chunk
// index; every call is recorded so tests can assert on ordering and
// arguments.
package mock

import (
	"context"
	"sync"

	"github.com/solinvox/medscribe/pkg/provider/diarize"
)

// Provider is a mock implementation of [diarize.Provider].
//
// Diarize returns, in order of preference: the per-index result from
// ResultsByIndex, DiarizeResult, or an empty result. Set DiarizeError (or a
// per-index error in ErrorsByIndex) to simulate chunk failures.
type Provider struct {
	mu sync.Mutex

	// ResultsByIndex scripts per-chunk results keyed by chunk index.
	ResultsByIndex map[int]*diarize.Result

	// ErrorsByIndex scripts per-chunk errors keyed by chunk index.
	ErrorsByIndex map[int]error

	// DiarizeResult is the fallback result when no per-index entry exists.
	DiarizeResult *diarize.Result

	// DiarizeError is the fallback error when no per-index entry exists.
	DiarizeError error

	// DiarizeCalls records all Diarize invocations in order.
	DiarizeCalls []diarize.Request

	// DiarizeBarrier, when non-nil, is closed-over by Diarize: the call
	// blocks until the channel is closed or the context is cancelled. Tests
	// use it to hold a chunk in flight.
	DiarizeBarrier chan struct{}

	// FinalAck is returned by SubmitFinalChunk. Defaults to an accepted ack.
	FinalAck *diarize.FinalChunkAck

	// FinalError is returned by SubmitFinalChunk.
	FinalError error

	// FinalCalls records all SubmitFinalChunk invocations in order.
	FinalCalls []diarize.FinalChunkRequest
}

// Diarize implements [diarize.Provider].
func (p *Provider) Diarize(ctx context.Context, req diarize.Request) (*diarize.Result, error) {
	p.mu.Lock()
	p.DiarizeCalls = append(p.DiarizeCalls, req)
	barrier := p.DiarizeBarrier
	p.mu.Unlock()

	if barrier != nil {
		select {
		case <-barrier:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err, ok := p.ErrorsByIndex[req.ChunkIndex]; ok {
		return nil, err
	}
	if p.DiarizeError != nil {
		return nil, p.DiarizeError
	}
	if res, ok := p.ResultsByIndex[req.ChunkIndex]; ok {
		return res, nil
	}
	if p.DiarizeResult != nil {
		return p.DiarizeResult, nil
	}
	return &diarize.Result{}, nil
}

// SubmitFinalChunk implements [diarize.Provider].
func (p *Provider) SubmitFinalChunk(_ context.Context, req diarize.FinalChunkRequest) (*diarize.FinalChunkAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FinalCalls = append(p.FinalCalls, req)
	if p.FinalError != nil {
		return nil, p.FinalError
	}
	if p.FinalAck != nil {
		return p.FinalAck, nil
	}
	return &diarize.FinalChunkAck{Accepted: true}, nil
}

// CallCount returns how many Diarize calls have been made.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.DiarizeCalls)
}
