// Package embeddingtest provides a deterministic embedding.Provider for tests.
package embeddingtest

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
)

// ErrInjected is returned for texts registered with FailOn.
var ErrInjected = errors.New("embeddingtest: injected failure")

// Provider returns fixed vectors for registered texts and a stable hash-derived
// vector for everything else. It counts calls and records every text it saw.
type Provider struct {
	mu      sync.Mutex
	vectors map[string][]float32
	failOn  map[string]error
	dim     int
	calls   int
	texts   []string
}

// New creates a Provider producing dim-dimensional vectors.
func New(dim int) *Provider {
	return &Provider{
		vectors: make(map[string][]float32),
		failOn:  make(map[string]error),
		dim:     dim,
	}
}

// Set registers the vector returned for text.
func (p *Provider) Set(text string, vec []float32) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vectors[text] = vec
	return p
}

// FailOn makes any call containing text fail with err (ErrInjected when nil).
func (p *Provider) FailOn(text string, err error) *Provider {
	if err == nil {
		err = ErrInjected
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOn[text] = err
	return p
}

// Embed implements embedding.Provider.
func (p *Provider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	p.texts = append(p.texts, texts...)

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err, ok := p.failOn[text]; ok {
			return nil, err
		}
		if vec, ok := p.vectors[text]; ok {
			out[i] = append([]float32(nil), vec...)
			continue
		}
		out[i] = p.hashVector(text)
	}
	return out, nil
}

// Calls returns how many times Embed was invoked.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Texts returns every text passed to Embed, in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

func (p *Provider) hashVector(text string) []float32 {
	vec := make([]float32, p.dim)
	for i := range vec {
		h := fnv.New32a()
		_, _ = h.Write([]byte{byte(i)})
		_, _ = h.Write([]byte(text))
		vec[i] = float32(h.Sum32()%2001)/1000 - 1
	}
	return vec
}

// Unit returns a dim-dimensional unit vector along axis i.
func Unit(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}
