// Package websocket fans out pool lifecycle events to connected
// dashboard clients over a persistent connection, independent of the
// request/response admin endpoints in internal/api/handlers.
package websocket

import (
	"context"
	"sync"

	"github.com/NageshMashette/execpool/internal/events"
	"github.com/NageshMashette/execpool/internal/logger"
	"github.com/NageshMashette/execpool/internal/metrics"
)

// Hub owns the set of connected clients and relays events.Bus traffic
// to whichever of them are subscribed to a given event type.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *events.Event
	register   chan *Client
	unregister chan *Client
	bus        *events.Bus
	mu         sync.RWMutex
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *events.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		bus:        bus,
		stopCh:     make(chan struct{}),
	}
}

// Run subscribes to the event bus and begins relaying traffic. It
// returns immediately; the hub runs in background goroutines until Stop.
func (h *Hub) Run(ctx context.Context) {
	eventCh, err := h.bus.SubscribeAll(ctx)
	if err != nil {
		logger.Get().Error().Err(err).Msg("hub: failed to subscribe to event bus")
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case event, ok := <-eventCh:
				if !ok {
					return
				}
				h.broadcast <- event
			}
		}
	}()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ctx.Done():
				h.closeAllClients()
				return
			case <-h.stopCh:
				h.closeAllClients()
				return
			case client := <-h.register:
				h.mu.Lock()
				h.clients[client] = true
				h.mu.Unlock()
				metrics.SetWebSocketConnections(float64(h.ClientCount()))
				logger.Get().Debug().Str("client_id", client.ID).Msg("ws client registered")

			case client := <-h.unregister:
				h.mu.Lock()
				if _, ok := h.clients[client]; ok {
					delete(h.clients, client)
					close(client.send)
				}
				h.mu.Unlock()
				metrics.SetWebSocketConnections(float64(h.ClientCount()))
				logger.Get().Debug().Str("client_id", client.ID).Msg("ws client unregistered")

			case event := <-h.broadcast:
				h.relay(event)
			}
		}
	}()

	logger.Info().Msg("websocket hub started")
}

func (h *Hub) Stop() {
	close(h.stopCh)
	h.wg.Wait()
	logger.Info().Msg("websocket hub stopped")
}

func (h *Hub) Register(client *Client)   { h.register <- client }
func (h *Hub) Unregister(client *Client) { h.unregister <- client }

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) relay(event *events.Event) {
	data, err := event.ToJSON()
	if err != nil {
		logger.Get().Error().Err(err).Msg("hub: serialize event failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.isSubscribed(event.Type) {
			continue
		}
		select {
		case client.send <- data:
			metrics.RecordWebSocketMessage(string(event.Type))
		default:
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
