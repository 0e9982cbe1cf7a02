package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/livemonitor/internal/domain"
	"github.com/hamed0406/livemonitor/internal/probe"
)

type loop struct {
	wake chan struct{}
}

// Scheduler owns one check loop per registered target.
//
// A loop probes immediately, broadcasts the result, re-reads its target and either
// retires (target gone) or sleeps the target's current interval and probes again.
// Loop registration and retirement happen under mu together with the registry read,
// so Spawn never sees a gap in which two loops could exist for one id.
type Scheduler struct {
	Logger   *zap.Logger
	Registry *Registry
	Checker  probe.Checker
	Out      Broadcaster

	mu      sync.Mutex
	baseCtx context.Context
	loops   map[domain.TargetID]*loop
	wg      sync.WaitGroup
}

func New(logger *zap.Logger, reg *Registry, checker probe.Checker, out Broadcaster) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = Fanout(nil)
	}
	return &Scheduler{
		Logger:   logger,
		Registry: reg,
		Checker:  checker,
		Out:      out,
		loops:    make(map[domain.TargetID]*loop),
	}
}

// Start makes ctx the parent of every loop and spawns loops for targets already
// in the registry. Cancelling ctx stops all loops; Wait blocks until they exit.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	for _, id := range s.Registry.IDs() {
		s.Spawn(id)
	}
}

// Spawn starts the loop for id unless one is already running, the target is not
// registered, or the scheduler has not been started. It reports whether a loop started.
func (s *Scheduler) Spawn(id domain.TargetID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.baseCtx == nil || s.baseCtx.Err() != nil {
		return false
	}
	if _, running := s.loops[id]; running {
		return false
	}
	if _, ok := s.Registry.Get(id); !ok {
		return false
	}
	l := &loop{wake: make(chan struct{}, 1)}
	s.loops[id] = l
	s.wg.Add(1)
	go s.run(s.baseCtx, id, l)
	return true
}

// Wake interrupts the sleep of id's loop so it re-reads the registry now.
// Used on delete so the loop retires without waiting out its interval.
func (s *Scheduler) Wake(id domain.TargetID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.loops[id]; ok {
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
}

func (s *Scheduler) Active(id domain.TargetID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[id]
	return ok
}

// Len is the number of running loops.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loops)
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, id domain.TargetID, l *loop) {
	defer s.wg.Done()
	s.Logger.Info("loop_started", zap.String("target_id", string(id)))

	var lastInterval time.Duration
	for {
		target, ok := s.current(id, l)
		if !ok {
			s.Logger.Info("loop_stopped", zap.String("target_id", string(id)), zap.String("reason", "deleted"))
			return
		}
		if iv := target.Interval(); iv > 0 {
			lastInterval = iv
		}

		s.check(ctx, target)
		if ctx.Err() != nil {
			s.retire(id, l)
			s.Logger.Info("loop_stopped", zap.String("target_id", string(id)), zap.String("reason", "shutdown"))
			return
		}

		target, ok = s.current(id, l)
		if !ok {
			s.Logger.Info("loop_stopped", zap.String("target_id", string(id)), zap.String("reason", "deleted"))
			return
		}
		wait := target.Interval()
		if wait <= 0 {
			wait = lastInterval
		}
		if !s.pause(ctx, l, wait) {
			s.retire(id, l)
			s.Logger.Info("loop_stopped", zap.String("target_id", string(id)), zap.String("reason", "shutdown"))
			return
		}
	}
}

// current returns the registered target for id. When it is gone the loop is
// unregistered in the same critical section.
func (s *Scheduler) current(id domain.TargetID, l *loop) (domain.Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.Registry.Get(id)
	if !ok && s.loops[id] == l {
		delete(s.loops, id)
	}
	return t, ok
}

func (s *Scheduler) retire(id domain.TargetID, l *loop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loops[id] == l {
		delete(s.loops, id)
	}
}

// check runs one probe and hands the result on. A panic is contained here so the
// loop can still rearm.
func (s *Scheduler) check(ctx context.Context, target domain.Target) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("loop_iteration_panic",
				zap.String("target_id", string(target.ID)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	out := s.Checker.Check(ctx, target.URI)
	if ctx.Err() != nil {
		return
	}

	res := domain.ProbeResult{ID: target.ID, LatencyMS: out.LatencyMS}
	if !out.Success {
		res.LatencyMS = domain.FailedLatency
		s.Logger.Debug("probe_failed",
			zap.String("target_id", string(target.ID)),
			zap.String("uri", target.URI),
			zap.Int("status", out.StatusCode),
			zap.Int("attempts", out.Attempts),
			zap.String("reason", out.Message),
		)
	} else {
		s.Logger.Debug("probe_ok",
			zap.String("target_id", string(target.ID)),
			zap.String("method", out.Method),
			zap.Float64("latency_ms", out.LatencyMS),
		)
	}
	s.Out.Broadcast(res)
}

func (s *Scheduler) pause(ctx context.Context, l *loop, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-l.wake:
		return true
	case <-t.C:
		return true
	}
}
