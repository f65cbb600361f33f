package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sh00ty/rendezvous/internal/models"
)

// Registry is a name registry shared by everything in the address space
// that holds a pointer to it.
type Registry struct {
	records map[string]models.RendezvousRecord
	mu      *sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]models.RendezvousRecord, 16),
		mu:      &sync.Mutex{},
	}
}

func (r *Registry) Publish(ctx context.Context, name string, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[name]; exists {
		return fmt.Errorf("publish %s: %w", name, models.ErrAlreadyPublished)
	}
	r.records[name] = models.RendezvousRecord{
		Name:     name,
		Endpoint: endpoint,
	}
	return nil
}

func (r *Registry) Resolve(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[name]
	if !exists {
		return "", fmt.Errorf("resolve %s: %w", name, models.ErrNotFound)
	}
	return rec.Endpoint, nil
}

func (r *Registry) Retract(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[name]; !exists {
		return fmt.Errorf("retract %s: %w", name, models.ErrNotFound)
	}
	delete(r.records, name)
	return nil
}

// Records returns a snapshot of everything currently published.
func (r *Registry) Records() []models.RendezvousRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]models.RendezvousRecord, 0, len(r.records))
	for _, rec := range r.records {
		result = append(result, rec)
	}
	return result
}
