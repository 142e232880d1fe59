package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"fwdefense/core"
)

// Hub fans broadcast payloads out to subscribed websocket connections.
// Payloads are pre-encoded JSON so a message published once is written
// byte-identical to every client.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan []byte
	next int
}

func NewHub() *Hub { return &Hub{subs: map[int]chan []byte{}} }

func (h *Hub) Subscribe(buffer int) (int, <-chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan []byte, buffer)
	h.subs[id] = ch
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Subscribers returns the current connection count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Broadcast(_ context.Context, payload []byte) {
	h.mu.RLock()
	// copy to avoid holding lock during send
	receivers := make([]chan []byte, 0, len(h.subs))
	for _, ch := range h.subs {
		receivers = append(receivers, ch)
	}
	h.mu.RUnlock()
	for _, ch := range receivers {
		select {
		case ch <- payload:
		default: /* drop if full */
		}
	}
}

// Marshal is a helper to convert messages to JSON bytes for WebSocket.
func Marshal(msg core.Message) []byte {
	b, _ := json.Marshal(msg)
	return b
}
