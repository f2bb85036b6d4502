package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventType identifies a kind of event on the live feed.
type EventType string

const (
	EventTaskSubmitted EventType = "task.submitted"
	EventTaskStarted   EventType = "task.started"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskCancelled EventType = "task.cancelled"
	EventWorkerKilled  EventType = "worker.killed"
	EventWorkerRespawn EventType = "worker.respawned"
)

// Event is one message off the live feed.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// WebSocketClient maintains the live event connection behind Client.
type WebSocketClient struct {
	conn      *websocket.Conn
	baseURL   string
	apiKey    string
	events    chan *Event
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	connected bool
}

func newWebSocketClient(baseURL, apiKey string) *WebSocketClient {
	return &WebSocketClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		events:  make(chan *Event, 100),
		done:    make(chan struct{}),
	}
}

// Connect dials the server's /ws endpoint and starts relaying events.
func (ws *WebSocketClient) Connect(ctx context.Context) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.connected {
		return nil
	}

	u, err := url.Parse(ws.baseURL)
	if err != nil {
		return fmt.Errorf("client: invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	headers := make(map[string][]string)
	if ws.apiKey != "" {
		headers["X-API-Key"] = []string{ws.apiKey}
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return fmt.Errorf("client: websocket dial failed: %w", err)
	}

	ws.conn = conn
	ws.connected = true
	ws.done = make(chan struct{})

	go ws.readLoop()
	return nil
}

func (ws *WebSocketClient) readLoop() {
	defer func() {
		ws.mu.Lock()
		ws.connected = false
		ws.mu.Unlock()
		close(ws.events)
	}()

	for {
		select {
		case <-ws.done:
			return
		default:
			_, message, err := ws.conn.ReadMessage()
			if err != nil {
				return
			}

			var event Event
			if err := json.Unmarshal(message, &event); err != nil {
				continue
			}

			select {
			case ws.events <- &event:
			case <-ws.done:
				return
			default:
				select {
				case <-ws.events:
				default:
				}
				ws.events <- &event
			}
		}
	}
}

// Events returns the channel events arrive on.
func (ws *WebSocketClient) Events() <-chan *Event { return ws.events }

func (ws *WebSocketClient) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		close(ws.done)
		ws.mu.Lock()
		defer ws.mu.Unlock()
		if ws.conn != nil {
			err = ws.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = ws.conn.Close()
		}
	})
	return err
}

// Connected reports whether the socket is currently open.
func (ws *WebSocketClient) Connected() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.connected
}

// Subscribe narrows the feed to the given event types.
func (ws *WebSocketClient) Subscribe(types ...EventType) error {
	return ws.send("subscribe", types)
}

// Unsubscribe removes event types from a prior Subscribe call.
func (ws *WebSocketClient) Unsubscribe(types ...EventType) error {
	return ws.send("unsubscribe", types)
}

func (ws *WebSocketClient) send(action string, types []EventType) error {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	if !ws.connected || ws.conn == nil {
		return fmt.Errorf("client: not connected")
	}
	return ws.conn.WriteJSON(map[string]interface{}{"action": action, "event_types": types})
}
