package service

import (
	"context"
	"sync"
	"time"

	"gametrack/internal/modules/catalog/domain"
	catalogout "gametrack/internal/modules/catalog/port/out"
	"gametrack/internal/platform/clock"
)

// CatalogService holds the current signature set. Reload swaps the slice
// wholesale under the write lock, so an in-flight Match sees either the
// old catalog or the new one, never a mix; the swap takes effect on the
// next poll cycle.
type CatalogService struct {
	clock  clock.Clock
	source catalogout.SignatureSource

	mu          sync.RWMutex
	signatures  []domain.Signature
	refreshedAt time.Time
}

func NewCatalogService(clock clock.Clock, source catalogout.SignatureSource) *CatalogService {
	return &CatalogService{clock: clock, source: source}
}

func (s *CatalogService) Reload(ctx context.Context) (int, time.Time, error) {
	fetched, err := s.source.Fetch(ctx)
	if err != nil {
		// Keep the previous catalog; the caller logs and the next
		// scheduled refresh tries again.
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.signatures), s.refreshedAt, err
	}
	deduped := domain.Dedupe(fetched)
	now := s.clock.Now()

	s.mu.Lock()
	s.signatures = deduped
	s.refreshedAt = now
	s.mu.Unlock()
	return len(deduped), now, nil
}

func (s *CatalogService) Match(processName string) (domain.Signature, bool) {
	s.mu.RLock()
	signatures := s.signatures
	s.mu.RUnlock()
	return domain.Match(signatures, processName)
}

func (s *CatalogService) List() []domain.Signature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Signature, len(s.signatures))
	copy(out, s.signatures)
	return out
}

func (s *CatalogService) Status() (int, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.signatures), s.refreshedAt
}
