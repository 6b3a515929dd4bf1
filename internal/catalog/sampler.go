package catalog

import (
	"math/rand/v2"
	"sync"
)

// IntSource yields uniform integers in [0, n).
type IntSource interface {
	Int64N(n int64) int64
}

// Sampler picks uniformly distributed offsets into a result set of known
// size. It is safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	src IntSource
}

// NewSampler creates a sampler over src. A nil src uses a randomly seeded
// PCG generator.
func NewSampler(src IntSource) *Sampler {
	if src == nil {
		src = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Sampler{src: src}
}

// Offset returns an offset in [0, total). ok is false when total is not
// positive.
func (s *Sampler) Offset(total int64) (offset int64, ok bool) {
	if total <= 0 {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Int64N(total), true
}
