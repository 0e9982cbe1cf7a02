// Package stream pushes probe results to live websocket observers.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/livemonitor/internal/domain"
)

const DefaultWriteTimeout = 5 * time.Second

type observer struct {
	conn   *websocket.Conn
	remote string
	busy   atomic.Bool // a write is in flight
	closed atomic.Bool
}

// Hub owns observer connections. It implements the scheduler's Broadcaster:
// every result goes to each open observer, and an observer still busy with an
// earlier write misses the message.
type Hub struct {
	log          *zap.Logger
	writeTimeout time.Duration
	accept       *websocket.AcceptOptions

	mu     sync.RWMutex
	conns  map[*observer]struct{}
	closed bool

	writes  sync.WaitGroup
	dropped atomic.Int64
}

// NewHub builds a hub. allowedOrigins are browser origins allowed to connect;
// "*" disables the origin check.
func NewHub(log *zap.Logger, allowedOrigins []string, writeTimeout time.Duration) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	opts := &websocket.AcceptOptions{}
	for _, o := range allowedOrigins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
		} else {
			opts.OriginPatterns = append(opts.OriginPatterns, o)
		}
	}
	return &Hub{
		log:          log,
		writeTimeout: writeTimeout,
		accept:       opts,
		conns:        make(map[*observer]struct{}),
	}
}

// ServeHTTP upgrades the request and holds the connection until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.log.Warn("ws_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	o := &observer{conn: c, remote: r.RemoteAddr}
	if !h.add(o) {
		c.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.log.Info("observer_connected", zap.String("remote", o.remote), zap.Int("observers", h.Len()))

	// Observers never send anything meaningful; CloseRead drains control frames.
	ctx := c.CloseRead(context.Background())
	<-ctx.Done()

	o.closed.Store(true)
	h.remove(o)
	c.CloseNow()
	h.log.Info("observer_disconnected", zap.String("remote", o.remote), zap.Int("observers", h.Len()))
}

func (h *Hub) Broadcast(res domain.ProbeResult) {
	msg, err := json.Marshal(res)
	if err != nil {
		h.log.Error("broadcast_encode_error", zap.String("id", string(res.ID)), zap.Error(err))
		return
	}
	// Writes are registered under mu so Close never waits while new ones start.
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for o := range h.conns {
		if o.closed.Load() {
			continue
		}
		if !o.busy.CompareAndSwap(false, true) {
			h.dropped.Add(1)
			h.log.Debug("broadcast_dropped_busy", zap.String("remote", o.remote), zap.String("id", string(res.ID)))
			continue
		}
		h.writes.Add(1)
		go h.send(o, msg)
	}
}

func (h *Hub) send(o *observer, msg []byte) {
	defer h.writes.Done()
	defer o.busy.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	defer cancel()
	if err := o.conn.Write(ctx, websocket.MessageText, msg); err != nil {
		// A failed write leaves the connection unusable.
		o.closed.Store(true)
		h.log.Warn("broadcast_send_error", zap.String("remote", o.remote), zap.Error(err))
	}
}

// Len returns the number of connected observers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Dropped counts messages skipped because an observer was busy.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close disconnects every observer and waits for in-flight writes.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*observer, 0, len(h.conns))
	for o := range h.conns {
		conns = append(conns, o)
	}
	h.mu.Unlock()

	h.writes.Wait()
	for _, o := range conns {
		o.closed.Store(true)
		_ = o.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) add(o *observer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[o] = struct{}{}
	return true
}

func (h *Hub) remove(o *observer) {
	h.mu.Lock()
	delete(h.conns, o)
	h.mu.Unlock()
}

func (h *Hub) snapshot() []*observer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*observer, 0, len(h.conns))
	for o := range h.conns {
		out = append(out, o)
	}
	return out
}
