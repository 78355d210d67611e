package websocket

import (
	"sync/atomic"

	"characterchat/utils/log"
)

// broadcastBuffer absorbs snapshot bursts while a reply streams so the topic
// listeners never block on the hub loop.
const broadcastBuffer = 256

// Hub tracks connected clients and fans broadcast messages out to them. The
// clients map is owned by the run loop; registration, removal and broadcast
// all go through its channels, so no other goroutine ever touches the map.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	count      atomic.Int64
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, broadcastBuffer),
	}
}

// Run starts the hub loop.
func (h *Hub) Run() {
	go h.run()
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			log.WithCtx(client.ctx).Debug("New client registered")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.count.Store(int64(len(h.clients)))
				client.Close()
				log.WithCtx(client.ctx).Debug("Client unregistered")
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if !client.IsClosed() {
					client.SendMessage(message)
				}
			}
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast queues a message for all connected clients. A full queue drops
// the message; snapshots supersede each other so a dropped one is recovered
// by the next.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}
