package domain

import (
	"math"
	"time"
)

type TargetID string

// Target is the live definition of one monitored service as the engine sees it.
type Target struct {
	ID         TargetID `json:"id"`
	URI        string   `json:"uri"`
	IntervalMS int64    `json:"intervalMs"`
}

func (t Target) Interval() time.Duration {
	return time.Duration(t.IntervalMS) * time.Millisecond
}

// TargetPatch carries the fields an update replaced. Nil means unchanged.
type TargetPatch struct {
	URI        *string
	IntervalMS *int64
}

func (p TargetPatch) Empty() bool { return p.URI == nil && p.IntervalMS == nil }

// Apply returns t with the patched fields replaced.
func (p TargetPatch) Apply(t Target) Target {
	if p.URI != nil {
		t.URI = *p.URI
	}
	if p.IntervalMS != nil {
		t.IntervalMS = *p.IntervalMS
	}
	return t
}

// FailedLatency marks a probe that did not produce a 2xx answer.
const FailedLatency = -1

// ProbeResult is what observers receive after every check.
type ProbeResult struct {
	ID        TargetID `json:"id"`
	LatencyMS float64  `json:"latencyMs"`
}

func (r ProbeResult) Up() bool { return r.LatencyMS >= 0 }

// RoundLatency rounds milliseconds to two decimal places.
func RoundLatency(ms float64) float64 {
	return math.Round(ms*100) / 100
}
