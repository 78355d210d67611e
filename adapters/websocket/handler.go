package websocket

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Handler upgrades the "/ws" endpoint and parks until the client is gone.
func (s *Server) Handler(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(conn, uuid.NewString())
	s.hub.Register(client)

	client.Run()

	defer s.hub.Unregister(client)

	// Wait for the client context to be done (connection closed)
	<-client.Context().Done()

	return nil
}
