package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fedhub/internal/domain"
)

// AnchorStore is the optional durable backing for the registry. The
// in-memory set stays authoritative for reads; the store is written
// through on mutation and replayed at boot.
type AnchorStore interface {
	SaveAnchor(ctx context.Context, rec domain.TrustAnchorRecord) error
	DeleteAnchor(ctx context.Context, entityID string) error
	ListAnchors(ctx context.Context) ([]domain.TrustAnchorRecord, error)
}

// Registry is the authoritative trust anchor set. A single mutex makes
// every mutation linearizable with respect to the membership reads the
// chain validator performs.
type Registry struct {
	mu            sync.Mutex
	anchors       map[string]domain.TrustAnchorRecord
	order         []string
	store         AnchorStore
	allowInsecure bool
	now           func() time.Time
}

type Option func(*Registry)

// WithStore enables write-through persistence.
func WithStore(store AnchorStore) Option {
	return func(r *Registry) { r.store = store }
}

// WithInsecureIDs permits http entity identifiers, for localhost
// federations outside production.
func WithInsecureIDs() Option {
	return func(r *Registry) { r.allowInsecure = true }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		anchors: make(map[string]domain.TrustAnchorRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replays persisted anchors into the in-memory set. Call once at
// boot, before the registry serves reads.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	records, err := r.store.ListAnchors(ctx)
	if err != nil {
		return fmt.Errorf("load trust anchors: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		if _, ok := r.anchors[rec.EntityID]; ok {
			continue
		}
		r.anchors[rec.EntityID] = rec
		r.order = append(r.order, rec.EntityID)
	}
	return nil
}

func (r *Registry) Add(ctx context.Context, entityID string, entityType domain.EntityType) (domain.TrustAnchorRecord, error) {
	if err := domain.ValidateEntityID(entityID, r.allowInsecure); err != nil {
		return domain.TrustAnchorRecord{}, err
	}
	if _, err := domain.ParseEntityType(string(entityType)); err != nil {
		return domain.TrustAnchorRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.anchors[entityID]; ok {
		return domain.TrustAnchorRecord{}, fmt.Errorf("%w: trust anchor %s", domain.ErrAlreadyExists, entityID)
	}
	rec := domain.TrustAnchorRecord{
		EntityID:   entityID,
		EntityType: entityType,
		AddedAt:    r.now().UTC(),
	}
	if r.store != nil {
		if err := r.store.SaveAnchor(ctx, rec); err != nil {
			return domain.TrustAnchorRecord{}, fmt.Errorf("persist trust anchor: %w", err)
		}
	}
	r.anchors[entityID] = rec
	r.order = append(r.order, entityID)
	return rec, nil
}

func (r *Registry) Remove(ctx context.Context, entityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.anchors[entityID]; !ok {
		return fmt.Errorf("%w: trust anchor %s", domain.ErrNotFound, entityID)
	}
	if r.store != nil {
		if err := r.store.DeleteAnchor(ctx, entityID); err != nil {
			return fmt.Errorf("delete trust anchor: %w", err)
		}
	}
	delete(r.anchors, entityID)
	for i, id := range r.order {
		if id == entityID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns anchors in insertion order.
func (r *Registry) List(ctx context.Context) ([]domain.TrustAnchorRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.TrustAnchorRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.anchors[id])
	}
	return out, nil
}

func (r *Registry) IsTrustAnchor(ctx context.Context, entityID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.anchors[entityID]
	return ok
}
