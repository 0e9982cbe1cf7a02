package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/livemonitor/internal/domain"
	"github.com/hamed0406/livemonitor/internal/repo"
)

type Store struct {
	mu       sync.RWMutex
	services map[domain.TargetID]*domain.Service
}

func New() *Store {
	return &Store{services: make(map[domain.TargetID]*domain.Service)}
}

func (m *Store) LoadAllTargets(ctx context.Context) ([]domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Target, 0, len(m.services))
	for _, s := range m.services {
		out = append(out, s.Target())
	}
	return out, nil
}

func (m *Store) List(ctx context.Context) ([]domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Service, 0, len(m.services))
	for _, s := range m.services {
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c := clone(s)
	return &c, nil
}

func (m *Store) Create(ctx context.Context, s *domain.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	repo.Prepare(s)
	if _, ok := m.services[s.ID]; ok || m.uriTaken(s.URI, "") {
		return repo.ErrConflict
	}
	c := clone(s)
	m.services[s.ID] = &c
	return nil
}

func (m *Store) Update(ctx context.Context, id domain.TargetID, p domain.ServicePatch) (*domain.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if p.URI != nil && m.uriTaken(*p.URI, id) {
		return nil, repo.ErrConflict
	}
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.URI != nil {
		s.URI = *p.URI
	}
	if p.MonitorInterval != nil {
		s.MonitorInterval = *p.MonitorInterval
	}
	if p.Thresholds != nil {
		s.Thresholds = repo.WithIDs(p.Thresholds)
	}
	s.UpdatedAt = time.Now().UTC()
	c := clone(s)
	return &c, nil
}

func (m *Store) Delete(ctx context.Context, id domain.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.services, id)
	return nil
}

func (m *Store) Ping(ctx context.Context) error { return nil }

func (m *Store) Close() error { return nil }

func (m *Store) uriTaken(uri string, except domain.TargetID) bool {
	for id, s := range m.services {
		if id != except && s.URI == uri {
			return true
		}
	}
	return false
}

func clone(s *domain.Service) domain.Service {
	c := *s
	c.Thresholds = append([]domain.Threshold(nil), s.Thresholds...)
	return c
}

var _ repo.ServiceStore = (*Store)(nil)
