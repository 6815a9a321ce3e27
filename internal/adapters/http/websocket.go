package http

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/asierbarrena/oficios/internal/adapters/nats"
	"github.com/asierbarrena/oficios/internal/pkg/metrics"
)

// wsMessage is sent from client to control the feed stream.
type wsMessage struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
}

// WebSocketHandler returns a handler that upgrades to WebSocket and relays
// the caller's personal delta stream from NATS. The user is identified by
// the X-User-ID header captured before the upgrade; each connection gets
// exactly one subject: oficios.user.<id>.updates.
// Clients send JSON: {"action":"subscribe"} to resume a paused stream.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		userID := c.Headers("X-User-Id")
		if userID == "" {
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing X-User-ID header"}`))
			return
		}

		role := c.Query("role", "provider")
		if role != "provider" && role != "requester" {
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"error":"role must be provider or requester"}`))
			return
		}

		remoteAddr := c.RemoteAddr().String()
		log.Printf("ws client connected: user=%s role=%s addr=%s", userID, role, remoteAddr)
		metrics.WSClients.Inc()
		defer metrics.WSClients.Dec()

		// Tell the feed worker to start (and later stop) projecting for
		// this viewer.
		announce := func(action string) {
			msg, _ := json.Marshal(natsadapter.FeedControl{Action: action, ViewerID: userID, Role: role})
			if err := nc.Publish(natsadapter.FeedControlSubject, msg); err != nil {
				log.Printf("ws feed control publish: %v", err)
			}
		}
		announce("attach")
		defer announce("detach")

		var mu sync.Mutex
		var sub *nats.Subscription

		// Helper: thread-safe write
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subject := "oficios.user." + userID + ".updates"
		subscribe := func() error {
			if sub != nil && sub.IsValid() {
				return nil
			}
			s, err := nc.Subscribe(subject, func(msg *nats.Msg) {
				_ = writeJSON(json.RawMessage(msg.Data))
			})
			if err != nil {
				return err
			}
			sub = s
			return nil
		}

		// Stream deltas immediately on connect
		if err := subscribe(); err != nil {
			log.Printf("ws subscribe error: %v", err)
			return
		}

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		// Read client messages for pause/resume
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			switch m.Action {
			case "subscribe":
				if err := subscribe(); err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				if sub != nil && sub.IsValid() {
					_ = sub.Unsubscribe()
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed"})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		// Cleanup
		close(done)
		if sub != nil {
			_ = sub.Unsubscribe()
		}
		log.Printf("ws client disconnected: user=%s addr=%s", userID, remoteAddr)
	}
}
