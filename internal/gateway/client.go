package gateway

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.^=\-]{1,20}$`)

// Client is a single websocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu sync.RWMutex
	subs  map[string]bool
}

func (c *Client) subscribed(symbol string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.subs[symbol]
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var req Request
		if err := json.Unmarshal(msg, &req); err != nil {
			c.sendJSON(ErrorMsg{Type: "error", Error: "invalid message: " + err.Error()})
			continue
		}

		switch req.Action {
		case ActionSubscribe:
			c.handleSubscribe(req)
		case ActionUnsubscribe:
			c.handleUnsubscribe(req)
		case ActionPing:
			c.sendJSON(Pong{Type: "pong", Ping: req.Ping, ServerTS: time.Now().UnixMilli()})
		default:
			// bare {"ping":N}
			if req.Ping > 0 {
				c.sendJSON(Pong{Type: "pong", Ping: req.Ping, ServerTS: time.Now().UnixMilli()})
				continue
			}
			c.sendJSON(ErrorMsg{Type: "error", Error: "unknown action " + req.Action})
		}
	}
}

// handleSubscribe registers the subscription, acks it, then either replays
// the envelopes the client missed or sends a fresh snapshot.
func (c *Client) handleSubscribe(req Request) {
	symbol := normalize(req.Symbol)
	if !symbolPattern.MatchString(symbol) {
		c.sendJSON(ErrorMsg{Type: "error", Symbol: req.Symbol, Error: "invalid symbol"})
		return
	}

	c.subMu.Lock()
	c.subs[symbol] = true
	c.subMu.Unlock()

	seq := c.hub.Seq(symbol)
	c.sendJSON(Ack{Type: "subscribed", Symbol: symbol, Seq: seq})
	log.Printf("[gateway] client subscribed: symbol=%s last_seq=%d seq=%d", symbol, req.LastSeq, seq)

	if req.LastSeq > 0 {
		if envs, ok := c.hub.missed(symbol, req.LastSeq); ok {
			for _, env := range envs {
				c.hub.enqueue(c, env)
			}
			return
		}
	}
	if c.hub.snapshot != nil {
		go c.sendSnapshot(symbol, seq)
	}
}

func (c *Client) sendSnapshot(symbol string, seq int64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.hub.snapshotTimeout)
	defer cancel()

	payload, err := c.hub.snapshot(ctx, symbol)
	if err != nil {
		c.sendJSON(ErrorMsg{Type: "error", Symbol: symbol, Error: err.Error()})
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[gateway] snapshot marshal error for %s: %v", symbol, err)
		return
	}
	c.hub.enqueue(c, buildEnvelope("dashboard", symbol, data, time.Now().UTC(), seq, true))
}

func (c *Client) handleUnsubscribe(req Request) {
	symbol := normalize(req.Symbol)
	c.subMu.Lock()
	delete(c.subs, symbol)
	c.subMu.Unlock()
	c.sendJSON(Ack{Type: "unsubscribed", Symbol: symbol, Seq: c.hub.Seq(symbol)})
}

func (c *Client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] json marshal error: %v", err)
		return
	}
	c.hub.enqueue(c, data)
}
