package domain

import "time"

// Service is the persisted entity behind a Target.
type Service struct {
	ID              TargetID    `json:"id"`
	Name            string      `json:"name"`
	URI             string      `json:"uri"`
	MonitorInterval int64       `json:"monitorInterval"`
	Thresholds      []Threshold `json:"thresholds"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Threshold is a latency band (ms) the dashboard colours results with.
type Threshold struct {
	ID         string `json:"id"`
	LowerLimit int64  `json:"lowerLimit"`
	UpperLimit int64  `json:"upperLimit"`
}

func (s Service) Target() Target {
	return Target{ID: s.ID, URI: s.URI, IntervalMS: s.MonitorInterval}
}

// ServicePatch is a partial update; nil fields and a nil Thresholds slice are left alone.
type ServicePatch struct {
	Name            *string
	URI             *string
	MonitorInterval *int64
	Thresholds      []Threshold
}

func (p ServicePatch) Empty() bool {
	return p.Name == nil && p.URI == nil && p.MonitorInterval == nil && p.Thresholds == nil
}

func (p ServicePatch) TargetPatch() TargetPatch {
	return TargetPatch{URI: p.URI, IntervalMS: p.MonitorInterval}
}
