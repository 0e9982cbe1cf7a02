package repo_test

import (
	"testing"

	"github.com/hamed0406/livemonitor/internal/domain"
	"github.com/hamed0406/livemonitor/internal/repo"
	"github.com/hamed0406/livemonitor/internal/repo/memory"
	pg "github.com/hamed0406/livemonitor/internal/repo/postgres"
	"github.com/hamed0406/livemonitor/internal/repo/sqlite"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.ServiceStore = memory.New()
	var _ repo.ServiceStore = (*pg.Store)(nil)
	var _ repo.ServiceStore = (*sqlite.Store)(nil)
}

func TestPrepare_FillsGeneratedFields(t *testing.T) {
	s := &domain.Service{URI: "https://a.test", Thresholds: []domain.Threshold{{UpperLimit: 1}, {ID: "keep", UpperLimit: 2}}}
	repo.Prepare(s)
	if s.ID == "" || s.Name != "https://a.test" || s.CreatedAt.IsZero() || !s.UpdatedAt.Equal(s.CreatedAt) {
		t.Fatalf("unexpected prepared service: %+v", s)
	}
	if s.Thresholds[0].ID == "" || s.Thresholds[1].ID != "keep" {
		t.Fatalf("unexpected threshold ids: %+v", s.Thresholds)
	}
}
