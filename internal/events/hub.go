// Package events broadcasts coordinator state changes to websocket
// subscribers. Publishing never blocks: slow subscribers drop messages.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"zgrid/internal/api"
)

// Event is one coordinator state change.
type Event struct {
	Type   string               `json:"type"`
	JobID  string               `json:"job_id,omitempty"`
	TaskID int64                `json:"task_id,omitempty"`
	State  api.ProcessStateEnum `json:"state,omitempty"`
	Time   time.Time            `json:"time"`
}

// Event types.
const (
	TypeJobAdded       = "job_added"
	TypeJobState       = "job_state"
	TypeTaskState      = "task_state"
	TypeTaskDispatched = "task_dispatched"
	TypeWorkerAttached = "worker_attached"
	TypeWorkerDetached = "worker_detached"
)

// Sink accepts published events. The coordinator publishes through this so
// it never depends on the hub's lifecycle.
type Sink interface {
	Publish(events ...Event)
}

type subscriber struct {
	send chan []byte
}

// Hub fans events out to connected websocket clients.
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Publish marshals each event once and offers it to every subscriber,
// dropping messages for subscribers whose buffers are full.
func (h *Hub) Publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs) == 0 {
		return
	}
	for _, evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			slog.Error("events: marshal", "err", err)
			continue
		}
		for sub := range h.subs {
			select {
			case sub.send <- data:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of connected clients.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// HandleWebSocket upgrades the request and streams events until the client
// disconnects or the request context ends.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		slog.Warn("events: websocket accept", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sub := &subscriber{send: make(chan []byte, 64)}
	h.add(sub)
	defer h.remove(sub)

	// Discard client messages so pings and close frames are processed.
	readCtx, cancelRead := context.WithCancel(r.Context())
	defer cancelRead()
	go func() {
		for {
			if _, _, err := conn.Read(readCtx); err != nil {
				cancelRead()
				return
			}
		}
	}()

	for {
		select {
		case <-readCtx.Done():
			return
		case data := <-sub.send:
			writeCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
