package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"fwdefense/core"
	"fwdefense/realtime"

	gorillaws "github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Handler returns an http.Handler that upgrades to WebSocket, greets the
// client, answers application-level pings, and streams hub broadcasts.
func Handler(hub *realtime.Hub) http.Handler {
	upgrader := gorillaws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		id, ch := hub.Subscribe(256)
		defer hub.Unsubscribe(id)

		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(gorillaws.TextMessage, realtime.Marshal(core.NewConnected())); err != nil {
			return
		}

		// The read loop answers {"type":"ping"} keepalives and notices the
		// peer going away. Writes stay on this goroutine.
		done := make(chan struct{})
		pings := make(chan struct{}, 4)
		go func() {
			defer close(done)
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var frame struct {
					Type string `json:"type"`
				}
				if json.Unmarshal(data, &frame) == nil && frame.Type == "ping" {
					select {
					case pings <- struct{}{}:
					default:
					}
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case <-pings:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(gorillaws.TextMessage, realtime.Marshal(core.NewPong())); err != nil {
					return
				}
			case payload, ok := <-ch:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(gorillaws.TextMessage, payload); err != nil {
					return
				}
			}
		}
	})
}
