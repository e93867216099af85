package matcher

import (
	"sort"
	"sync"

	"github.com/alanyoungcy/arbmon/internal/config"
)

// PairRegistry tracks operator-declared pair overrides: manual pairs are
// always matches with score 1.0, excluded pairs are never scored at all.
type PairRegistry struct {
	manual   map[string]bool
	excluded map[string]bool
	mu       sync.RWMutex
}

// NewPairRegistry returns a registry seeded from config.
func NewPairRegistry(manual, excluded []config.ManualPair) *PairRegistry {
	r := &PairRegistry{
		manual:   make(map[string]bool),
		excluded: make(map[string]bool),
	}
	for _, p := range manual {
		r.manual[overrideKey(p.PolyID, p.KalshiID)] = true
	}
	for _, p := range excluded {
		r.excluded[overrideKey(p.PolyID, p.KalshiID)] = true
	}
	return r
}

// overrideKey builds the lookup key for a poly/kalshi ID pair.
func overrideKey(polyID, kalshiID string) string {
	return polyID + "|" + kalshiID
}

// AddManual marks a pair as operator-confirmed.
func (r *PairRegistry) AddManual(polyID, kalshiID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manual[overrideKey(polyID, kalshiID)] = true
}

// RemoveManual drops a manual pair.
func (r *PairRegistry) RemoveManual(polyID, kalshiID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.manual, overrideKey(polyID, kalshiID))
}

// Exclude marks a pair as never-match.
func (r *PairRegistry) Exclude(polyID, kalshiID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.excluded[overrideKey(polyID, kalshiID)] = true
}

// IsManual reports whether the pair was operator-confirmed.
func (r *PairRegistry) IsManual(polyID, kalshiID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manual[overrideKey(polyID, kalshiID)]
}

// IsExcluded reports whether the pair is excluded from matching.
func (r *PairRegistry) IsExcluded(polyID, kalshiID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.excluded[overrideKey(polyID, kalshiID)]
}

// ListManual returns all manual pair keys, sorted.
func (r *PairRegistry) ListManual() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.manual))
	for k := range r.manual {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
