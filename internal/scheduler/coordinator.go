package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/livemonitor/internal/domain"
)

var (
	ErrInvalidTarget = errors.New("target needs a uri and a positive interval")
	ErrUnknownTarget = errors.New("unknown target")
)

// Loader is the storage side consulted once at startup.
type Loader interface {
	LoadAllTargets(ctx context.Context) ([]domain.Target, error)
}

// Coordinator turns persisted create/update/delete events into registry changes and
// loop starts. It never writes to storage.
type Coordinator struct {
	log      *zap.Logger
	registry *Registry
	sched    *Scheduler
}

func NewCoordinator(log *zap.Logger, reg *Registry, sched *Scheduler) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{log: log, registry: reg, sched: sched}
}

// Sync loads every persisted target into the registry and starts a loop for each.
func (c *Coordinator) Sync(ctx context.Context, src Loader) (int, error) {
	targets, err := src.LoadAllTargets(ctx)
	if err != nil {
		return 0, fmt.Errorf("load targets: %w", err)
	}
	valid := targets[:0:0]
	for _, t := range targets {
		if !validTarget(t) {
			c.log.Warn("sync_skip_invalid", zap.String("target_id", string(t.ID)))
			continue
		}
		valid = append(valid, t)
	}
	started := 0
	for _, id := range c.registry.Sync(valid) {
		if c.sched.Spawn(id) {
			started++
		}
	}
	c.log.Info("registry_synced", zap.Int("loaded", len(valid)), zap.Int("loops_started", started))
	return len(valid), nil
}

// OnCreate registers a new target and starts its loop right away.
func (c *Coordinator) OnCreate(id domain.TargetID, uri string, intervalMS int64) error {
	t := domain.Target{ID: id, URI: uri, IntervalMS: intervalMS}
	if !validTarget(t) {
		return ErrInvalidTarget
	}
	fresh := c.registry.Upsert(id, t)
	started := c.sched.Spawn(id)
	c.log.Info("target_created",
		zap.String("target_id", string(id)),
		zap.Bool("fresh", fresh),
		zap.Bool("loop_started", started),
	)
	return nil
}

// OnUpdate replaces fields of an existing target in place. The running loop picks
// the change up on its next registry read. An unknown id is never registered here:
// it may have been deleted concurrently, and only OnCreate starts a loop.
func (c *Coordinator) OnUpdate(id domain.TargetID, patch domain.TargetPatch) error {
	if patch.Empty() {
		return nil
	}
	cur, ok := c.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}
	next := patch.Apply(cur)
	if !validTarget(next) {
		return ErrInvalidTarget
	}
	c.registry.Upsert(id, next)
	c.log.Info("target_updated",
		zap.String("target_id", string(id)),
		zap.String("uri", next.URI),
		zap.Int64("interval_ms", next.IntervalMS),
	)
	return nil
}

// OnDelete removes the target; its loop retires at the next registry read.
func (c *Coordinator) OnDelete(id domain.TargetID) {
	existed := c.registry.Delete(id)
	c.sched.Wake(id)
	c.log.Info("target_deleted", zap.String("target_id", string(id)), zap.Bool("existed", existed))
}

func validTarget(t domain.Target) bool {
	return t.ID != "" && t.URI != "" && t.IntervalMS > 0
}
