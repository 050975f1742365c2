// Package gateway pushes dashboard updates to websocket subscribers.
//
// Clients subscribe per symbol. Every published update is wrapped in an
// envelope carrying a per-symbol sequence number; a reconnecting client can
// send the last sequence it saw and receive the missed envelopes from a
// bounded replay buffer instead of a fresh snapshot.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// Snapshotter builds the current payload for symbol, sent to a client right
// after it subscribes.
type Snapshotter func(ctx context.Context, symbol string) (any, error)

// Hub manages websocket clients and per-symbol fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	// Per-symbol monotonic sequence numbers for gap detection
	seqs map[string]int64

	// Per-symbol replay buffers for gap backfill
	replay    map[string]*ReplayBuffer
	replayCap int

	snapshot        Snapshotter
	snapshotTimeout time.Duration
	gauge           prometheus.Gauge

	upgrader websocket.Upgrader
}

// NewHub creates a Hub. snapshot and gauge may be nil.
func NewHub(snapshot Snapshotter, gauge prometheus.Gauge) *Hub {
	return &Hub{
		clients:         make(map[*Client]bool),
		seqs:            make(map[string]int64),
		replay:          make(map[string]*ReplayBuffer),
		replayCap:       64,
		snapshot:        snapshot,
		snapshotTimeout: 15 * time.Second,
		gauge:           gauge,
		upgrader: websocket.Upgrader{
			CheckOrigin:       func(r *http.Request) bool { return true },
			EnableCompression: true,
		},
	}
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	h.register(conn)
}

func (h *Hub) register(conn *websocket.Conn) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
		subs: make(map[string]bool),
	}
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	if h.gauge != nil {
		h.gauge.Inc()
	}
	log.Printf("[gateway] ws client connected (%d total)", count)

	go c.writePump()
	go c.readPump()
	return c
}

// RemoveClient unregisters c and closes its send queue. Safe to call twice.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	if h.gauge != nil {
		h.gauge.Dec()
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the last sequence number published for symbol.
func (h *Hub) Seq(symbol string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seqs[normalize(symbol)]
}

// Publish sends payload to every subscriber of symbol.
func (h *Hub) Publish(symbol, kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[gateway] marshal %s for %s: %v", kind, symbol, err)
		return
	}
	h.broadcast(normalize(symbol), kind, data)
}

// broadcast assigns the next seq for symbol, records the envelope in the
// replay buffer and fans it out. The whole step runs under h.mu so buffer and
// send order always follow seq order.
func (h *Hub) broadcast(symbol, kind string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seqs[symbol]++
	seq := h.seqs[symbol]
	rb, ok := h.replay[symbol]
	if !ok {
		rb = NewReplayBuffer(h.replayCap)
		h.replay[symbol] = rb
	}

	buf := buildEnvelope(kind, symbol, data, now, seq, false)
	rb.Push(seq, buf)

	for c := range h.clients {
		if !c.subscribed(symbol) {
			continue
		}
		select {
		case c.send <- buf:
		default:
			log.Printf("[gateway] client send buffer full, dropping %s seq=%d", symbol, seq)
		}
	}
}

// missed returns buffered envelopes for symbol after afterSeq, and whether the
// buffer still covers the whole gap.
func (h *Hub) missed(symbol string, afterSeq int64) ([][]byte, bool) {
	h.mu.RLock()
	rb, ok := h.replay[symbol]
	current := h.seqs[symbol]
	h.mu.RUnlock()
	if afterSeq >= current {
		return nil, true
	}
	if !ok {
		return nil, false
	}
	entries := rb.Range(afterSeq+1, current)
	if int64(len(entries)) != current-afterSeq {
		return nil, false
	}
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out, true
}

// enqueue queues data for c unless c has been removed.
func (h *Hub) enqueue(c *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Println("[gateway] client send buffer full, dropping message")
		return false
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.RUnlock()
	for _, conn := range conns {
		conn.Close()
	}
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
