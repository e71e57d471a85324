package feed_test

import (
	"sync"

	"github.com/alejandrodnm/shortsbot/internal/domain"
)

// recordingSink guarda todo lo que recibe.
type recordingSink struct {
	mu      sync.Mutex
	samples map[string][]domain.PriceSample
}

func newRecordingSink() *recordingSink {
	return &recordingSink{samples: make(map[string][]domain.PriceSample)}
}

func (s *recordingSink) Push(asset string, sample domain.PriceSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[asset] = append(s.samples[asset], sample)
}

func (s *recordingSink) get(asset string) []domain.PriceSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PriceSample(nil), s.samples[asset]...)
}
