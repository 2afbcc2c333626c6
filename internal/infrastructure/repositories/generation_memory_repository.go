package repositories

import (
	"context"
	"sort"
	"sync"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/avatarctic/satcrack-offline/internal/core/ports"
)

// MemoryGenerationRepository keeps cache generations in process memory.
type MemoryGenerationRepository struct {
	mu          sync.RWMutex
	generations map[string]map[string]*offline.CachedResponse
}

func NewMemoryGenerationRepository() *MemoryGenerationRepository {
	return &MemoryGenerationRepository{generations: make(map[string]map[string]*offline.CachedResponse)}
}

var _ ports.GenerationStore = (*MemoryGenerationRepository)(nil)

func (r *MemoryGenerationRepository) Open(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.generations[name]; !ok {
		r.generations[name] = make(map[string]*offline.CachedResponse)
	}
	return nil
}

func (r *MemoryGenerationRepository) Names(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.generations))
	for name := range r.generations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *MemoryGenerationRepository) Delete(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.generations[name]; !ok {
		return false, nil
	}
	delete(r.generations, name)
	return true, nil
}

func (r *MemoryGenerationRepository) Match(ctx context.Context, name, key string) (*offline.CachedResponse, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resp, ok := r.generations[name][key]
	if !ok {
		return nil, false, nil
	}
	return resp.Clone(), true, nil
}

func (r *MemoryGenerationRepository) Put(ctx context.Context, name, key string, resp *offline.CachedResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	gen, ok := r.generations[name]
	if !ok {
		gen = make(map[string]*offline.CachedResponse)
		r.generations[name] = gen
	}
	gen[key] = resp.Clone()
	return nil
}
