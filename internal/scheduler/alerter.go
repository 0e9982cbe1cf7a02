package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/livemonitor/internal/domain"
	"github.com/hamed0406/livemonitor/internal/notify"
	"github.com/hamed0406/livemonitor/internal/probe"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
	SendTimeout     time.Duration
}

type alertState struct {
	up     bool
	sentAt time.Time
}

// Alerter is a result sink that notifies when a target flips between up and down.
// It only keeps the last state per target, in memory.
type Alerter struct {
	log      *zap.Logger
	registry *Registry
	notifier notify.Notifier
	resolver probe.Resolver
	cfg      AlerterConfig
	now      func() time.Time

	mu    sync.Mutex
	state map[domain.TargetID]alertState
	wg    sync.WaitGroup
}

func NewAlerter(log *zap.Logger, reg *Registry, n notify.Notifier, resolver probe.Resolver, cfg AlerterConfig) *Alerter {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Alerter{
		log:      log,
		registry: reg,
		notifier: n,
		resolver: resolver,
		cfg:      cfg,
		now:      time.Now,
		state:    make(map[domain.TargetID]alertState),
	}
}

// Broadcast records the result and dispatches a notification in the background
// when the up/down state changed.
func (a *Alerter) Broadcast(res domain.ProbeResult) {
	up := res.Up()
	now := a.now()

	a.mu.Lock()
	// Results of a deleted target are late; Forget must stay final. The registry is
	// read under mu so a delete plus Forget cannot slip in before the state write.
	target, registered := a.registry.Get(res.ID)
	if !registered {
		delete(a.state, res.ID)
		a.mu.Unlock()
		return
	}
	rec, seen := a.state[res.ID]

	// first result for a target only alerts when it is down
	stateChanged := (!seen && !up) || (seen && rec.up != up)

	// Cooldown only matters for DOWN alerts (suppresses noisy repeats).
	cooled := !seen || rec.sentAt.IsZero() || now.Sub(rec.sentAt) >= a.cfg.Cooldown

	downAlert := stateChanged && !up && cooled
	recoveryAlert := stateChanged && up && a.cfg.AlertOnRecovery

	next := alertState{up: up, sentAt: rec.sentAt}
	if downAlert || recoveryAlert {
		next.sentAt = now
	}
	a.state[res.ID] = next
	a.mu.Unlock()

	if !downAlert && !recoveryAlert {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.send(res, target.URI, now)
	}()
}

// Forget drops the remembered state of a deleted target.
func (a *Alerter) Forget(id domain.TargetID) {
	a.mu.Lock()
	delete(a.state, id)
	a.mu.Unlock()
}

// Wait blocks until in-flight notifications finish.
func (a *Alerter) Wait() { a.wg.Wait() }

func (a *Alerter) send(res domain.ProbeResult, uri string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SendTimeout)
	defer cancel()

	title := "🔴 Target DOWN"
	latencyTxt := "n/a"
	if res.Up() {
		title = "🟢 Target RECOVERED"
		latencyTxt = fmt.Sprintf("%.2f ms", res.LatencyMS)
	}

	text := fmt.Sprintf("ID: %s\nURI: %s\nLatency: %s\nChecked: %s",
		res.ID, uri, latencyTxt, at.UTC().Format(time.RFC3339))

	if !res.Up() && uri != "" {
		dns := probe.DiagnoseURI(ctx, a.resolver, uri)
		a.log.Info("dns_check",
			zap.String("target_id", string(res.ID)),
			zap.String("domain", dns.Domain),
			zap.String("class", dns.Class),
			zap.Bool("has_a_or_aaaa", dns.HasAOrAAAA),
			zap.Strings("nameservers", dns.Nameservers),
			zap.String("cname", dns.CNAME),
			zap.String("resolver_error", dns.ResolverError),
		)
		text += "\nDNS: " + dns.Class
	}

	if a.notifier == nil {
		return
	}
	if err := a.notifier.Send(ctx, title, text); err != nil {
		a.log.Warn("alert_send_error", zap.String("target_id", string(res.ID)), zap.Error(err))
		return
	}
	a.log.Info("alert_sent", zap.String("target_id", string(res.ID)), zap.Bool("up", res.Up()))
}
