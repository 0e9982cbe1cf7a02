package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hamed0406/livemonitor/internal/domain"
)

type memNotifier struct {
	mu     sync.Mutex
	n      int
	titles []string
	texts  []string
}

func (m *memNotifier) Send(ctx context.Context, title, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	m.titles = append(m.titles, title)
	m.texts = append(m.texts, text)
	return nil
}

func (m *memNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

func newTestAlerter(cfg AlerterConfig) (*Alerter, *memNotifier, *Registry) {
	reg := NewRegistry()
	reg.Upsert("A", domain.Target{URI: "http://127.0.0.1:9", IntervalMS: 1000})
	nt := &memNotifier{}
	return NewAlerter(nil, reg, nt, nil, cfg), nt, reg
}

func TestAlerter_SendsOnDown_RespectsCooldown(t *testing.T) {
	al, nt, _ := newTestAlerter(AlerterConfig{AlertOnRecovery: true, Cooldown: time.Minute})

	// first result down -> alert
	al.Broadcast(domain.ProbeResult{ID: "A", LatencyMS: -1})
	al.Wait()
	if nt.count() != 1 {
		t.Fatalf("want 1 alert, got %d", nt.count())
	}

	// same DOWN again -> no new alert
	al.Broadcast(domain.ProbeResult{ID: "A", LatencyMS: -1})
	al.Wait()
	if nt.count() != 1 {
		t.Fatalf("repeated down must not alert, got %d", nt.count())
	}

	// flip to UP -> recovery alert allowed
	al.Broadcast(domain.ProbeResult{ID: "A", LatencyMS: 90})
	al.Wait()
	if nt.count() != 2 {
		t.Fatalf("want recovery alert, got %d", nt.count())
	}

	// down again inside cooldown -> suppressed
	al.Broadcast(domain.ProbeResult{ID: "A", LatencyMS: -1})
	al.Wait()
	if nt.count() != 2 {
		t.Fatalf("want cooldown to suppress, got %d", nt.count())
	}

	if !strings.Contains(nt.texts[0], "DNS: RESOLVES") || !strings.Contains(nt.titles[0], "DOWN") {
		t.Fatalf("down alert should carry title and dns class, got %q / %q", nt.titles[0], nt.texts[0])
	}
}

func TestAlerter_NoRecoveryIfDisabled(t *testing.T) {
	al, nt, _ := newTestAlerter(AlerterConfig{AlertOnRecovery: false})

	// first result up -> nothing to report
	al.Broadcast(domain.ProbeResult{ID: "A", LatencyMS: 50})
	al.Wait()
	if nt.count() != 0 {
		t.Fatalf("unexpected alert: %d", nt.count())
	}

	al.Broadcast(domain.ProbeResult{ID: "A", LatencyMS: -1})
	al.Wait()
	if nt.count() != 1 {
		t.Fatalf("want one down alert, got %d", nt.count())
	}

	al.Broadcast(domain.ProbeResult{ID: "A", LatencyMS: 40})
	al.Wait()
	if nt.count() != 1 {
		t.Fatalf("recovery alerts are disabled, got %d", nt.count())
	}
}

func TestAlerter_CooldownExpires(t *testing.T) {
	al, nt, _ := newTestAlerter(AlerterConfig{Cooldown: time.Minute})
	now := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	al.now = func() time.Time { return now }

	al.Broadcast(domain.ProbeResult{ID: "A", LatencyMS: -1})
	al.Broadcast(domain.ProbeResult{ID: "A", LatencyMS: 10})
	now = now.Add(2 * time.Minute)
	al.Broadcast(domain.ProbeResult{ID: "A", LatencyMS: -1})
	al.Wait()
	if nt.count() != 2 {
		t.Fatalf("want a second down alert after cooldown, got %d", nt.count())
	}
}

func TestAlerter_LateResultAfterForgetIsIgnored(t *testing.T) {
	al, nt, reg := newTestAlerter(AlerterConfig{AlertOnRecovery: true})

	al.Broadcast(domain.ProbeResult{ID: "A", LatencyMS: 10})
	reg.Delete("A")
	al.Forget("A")

	// a check that was in flight during the delete reports afterwards
	al.Broadcast(domain.ProbeResult{ID: "A", LatencyMS: -1})
	al.Wait()

	al.mu.Lock()
	_, kept := al.state["A"]
	al.mu.Unlock()
	if kept {
		t.Fatalf("state of a deleted target must not come back")
	}
	if nt.count() != 0 {
		t.Fatalf("deleted target must not alert, got %d", nt.count())
	}
}
