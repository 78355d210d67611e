package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"characterchat/domain"
	"characterchat/utils/log"
)

// envelope wraps broker payloads for the wire so UI clients can dispatch on
// type.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Server bridges the message broker to WebSocket clients: conversation
// snapshots stream out while a reply is in flight, and character events
// notify the UI to refresh its sidebar.
type Server struct {
	upgrader websocket.Upgrader
	broker   domain.MessageBroker
	hub      *Hub
}

func NewServer(broker domain.MessageBroker) *Server {
	server := &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		broker:   broker,
		hub:      NewHub(),
	}

	go server.listen(domain.SnapshotTopic, "snapshot")
	go server.listen(domain.CharacterTopic, "character")

	return server
}

func (s *Server) RunWebsocketHub() {
	s.hub.Run()
}

func (s *Server) GetHub() *Hub {
	return s.hub
}

// listen forwards every event on topic to all connected clients, tagged
// with the given envelope type.
func (s *Server) listen(topic, messageType string) {
	ctx := context.Background()

	events, err := s.broker.Subscribe(ctx, topic, "")
	if err != nil {
		log.WithCtx(ctx).Error("❌ Failed to subscribe to topic", zap.String("topic", topic), zap.Error(err))
		return
	}

	log.WithCtx(ctx).Info("🎧 WebSocket server listening", zap.String("topic", topic))

	for event := range events {
		wire, err := json.Marshal(envelope{Type: messageType, Data: event.Payload})
		if err != nil {
			log.WithCtx(ctx).Error("❌ Failed to marshal envelope", zap.Error(err))
			continue
		}
		s.hub.Broadcast(wire)
	}

	log.WithCtx(ctx).Info("🔒 Topic listener stopped", zap.String("topic", topic))
}
