package scheduler

import "github.com/hamed0406/livemonitor/internal/domain"

// Broadcaster receives every probe result a loop produces.
// Implementations must not block the calling loop for long.
type Broadcaster interface {
	Broadcast(res domain.ProbeResult)
}

// Fanout hands each result to every sink in order.
type Fanout []Broadcaster

func (f Fanout) Broadcast(res domain.ProbeResult) {
	for _, b := range f {
		if b == nil {
			continue
		}
		b.Broadcast(res)
	}
}

// BroadcastFunc adapts a plain function to Broadcaster.
type BroadcastFunc func(domain.ProbeResult)

func (fn BroadcastFunc) Broadcast(res domain.ProbeResult) { fn(res) }
