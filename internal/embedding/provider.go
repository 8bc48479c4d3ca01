// Package embedding turns event titles into vectors for habit clustering.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBatchSize is how many texts are sent per upstream request.
	DefaultBatchSize = 10

	// DefaultBatchPause is the fixed delay between consecutive upstream requests.
	DefaultBatchPause = 100 * time.Millisecond
)

var (
	// ErrCountMismatch is returned when the upstream returns a different number of vectors than inputs.
	ErrCountMismatch = errors.New("embedding count mismatch")

	// ErrDimensionMismatch is returned when vectors in one call do not share a dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider converts an ordered list of texts into an ordered list of vectors.
// Implementations must return exactly one vector per input, in input order,
// or an error and no vectors at all.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Batched splits calls into fixed-size upstream batches with a pause between them.
// Any failing batch aborts the whole call.
type Batched struct {
	inner Provider
	size  int
	pause time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

// BatchedOption configures a Batched provider.
type BatchedOption func(*Batched)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) BatchedOption {
	return func(b *Batched) {
		if n > 0 {
			b.size = n
		}
	}
}

// WithBatchPause overrides DefaultBatchPause.
func WithBatchPause(d time.Duration) BatchedOption {
	return func(b *Batched) {
		b.pause = d
	}
}

// WithSleep replaces the inter-batch wait, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) BatchedOption {
	return func(b *Batched) {
		b.sleep = fn
	}
}

// NewBatched wraps inner with batching.
func NewBatched(inner Provider, opts ...BatchedOption) *Batched {
	b := &Batched{
		inner: inner,
		size:  DefaultBatchSize,
		pause: DefaultBatchPause,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Embed implements Provider.
func (b *Batched) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.size {
		if start > 0 && b.pause > 0 {
			if err := b.sleep(ctx, b.pause); err != nil {
				return nil, err
			}
		}

		end := start + b.size
		if end > len(texts) {
			end = len(texts)
		}

		vecs, err := b.inner.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed batch [%d:%d]: got %d vectors: %w", start, end, len(vecs), ErrCountMismatch)
		}
		out = append(out, vecs...)

		log.Debug().
			Int("from", start).
			Int("to", end).
			Int("total", len(texts)).
			Msg("Embedded batch")
	}

	dim := len(out[0])
	for i, v := range out {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has %d dimensions, want %d: %w", i, len(v), dim, ErrDimensionMismatch)
		}
	}

	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
