package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/livemonitor/internal/domain"
)

var (
	ErrNotFound = errors.New("service not found")
	ErrConflict = errors.New("service with this uri already exists")
)

// ServiceStore is the storage port; memory, postgres and sqlite adapters implement it.
type ServiceStore interface {
	// LoadAllTargets is the startup snapshot the monitoring engine syncs from.
	LoadAllTargets(ctx context.Context) ([]domain.Target, error)

	List(ctx context.Context) ([]domain.Service, error)
	Get(ctx context.Context, id domain.TargetID) (*domain.Service, error)
	// Create assigns ID, threshold IDs and timestamps when they are empty.
	Create(ctx context.Context, s *domain.Service) error
	Update(ctx context.Context, id domain.TargetID, p domain.ServicePatch) (*domain.Service, error)
	Delete(ctx context.Context, id domain.TargetID) error

	Ping(ctx context.Context) error
	Close() error
}

// Prepare fills generated fields of a new service.
func Prepare(s *domain.Service) {
	now := time.Now().UTC()
	if s.ID == "" {
		s.ID = domain.TargetID(uuid.NewString())
	}
	if s.Name == "" {
		s.Name = s.URI
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = s.CreatedAt
	s.Thresholds = WithIDs(s.Thresholds)
}

// WithIDs returns a copy of ts where every threshold has an id.
func WithIDs(ts []domain.Threshold) []domain.Threshold {
	out := make([]domain.Threshold, len(ts))
	for i, t := range ts {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		out[i] = t
	}
	return out
}
