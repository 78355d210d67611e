package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"characterchat/domain"
	"characterchat/usecase"
	"characterchat/utils/log"
)

// ChatHandler exposes the core operations over HTTP. It is a thin caller:
// all invariants live in the use case and below. Live streaming progress is
// delivered over the WebSocket endpoint; Send blocks until the reply is
// finalized and returns the persisted outcome.
type ChatHandler struct {
	svc *usecase.ChatService
}

func NewChatHandler(svc *usecase.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Register mounts all routes on the given group.
func (h *ChatHandler) Register(api *echo.Group) {
	api.GET("/health", h.HealthCheck)
	api.GET("/session", h.Session)
	api.GET("/characters", h.ListCharacters)
	api.POST("/characters", h.CreateCharacter)
	api.DELETE("/characters/:name", h.RemoveCharacter)
	api.POST("/characters/:name/activate", h.ActivateCharacter)
	api.GET("/characters/:name/history", h.History)
	api.POST("/chat/send", h.Send)
}

type createCharacterRequest struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
}

type sendRequest struct {
	Character string `json:"character,omitempty"`
	Message   string `json:"message"`
}

type sendResponse struct {
	Character string         `json:"character"`
	Reply     domain.Message `json:"reply"`
}

type listResponse struct {
	Characters []string `json:"characters"`
	Active     string   `json:"active"`
}

type sessionResponse struct {
	Character    domain.Character    `json:"character"`
	Conversation domain.Conversation `json:"conversation"`
}

func (h *ChatHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Session resolves the active character (falling back to the default) and
// returns it with its conversation.
func (h *ChatHandler) Session(c echo.Context) error {
	ch, conv, err := h.svc.StartSession(requestContext(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sessionResponse{Character: ch, Conversation: conv})
}

func (h *ChatHandler) ListCharacters(c echo.Context) error {
	names, active, err := h.svc.ListCharacters()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, listResponse{Characters: names, Active: active})
}

func (h *ChatHandler) CreateCharacter(c echo.Context) error {
	var req createCharacterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ch, err := h.svc.CreateCharacter(requestContext(c), req.Name, req.SystemPrompt)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, ch)
}

func (h *ChatHandler) RemoveCharacter(c echo.Context) error {
	if err := h.svc.RemoveCharacter(requestContext(c), pathName(c)); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ChatHandler) ActivateCharacter(c echo.Context) error {
	ch, conv, err := h.svc.SwitchCharacter(requestContext(c), pathName(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sessionResponse{Character: ch, Conversation: conv})
}

func (h *ChatHandler) History(c echo.Context) error {
	name := pathName(c)
	if _, err := h.svc.Character(name); err != nil {
		return httpError(err)
	}

	conv, err := h.svc.History(name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

// Send routes a user message for the named (or active) character and blocks
// until the reply is finalized and persisted. Incremental snapshots go out
// over the WebSocket endpoint while this request is in flight.
func (h *ChatHandler) Send(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := requestContext(c)

	name := req.Character
	if name == "" {
		ch, _, err := h.svc.StartSession(ctx)
		if err != nil {
			return httpError(err)
		}
		name = ch.Name
	}

	stream, err := h.svc.Send(ctx, name, req.Message)
	if err != nil {
		return httpError(err)
	}

	if err := stream.Wait(); err != nil {
		return httpError(err)
	}
	reply, ok := stream.Reply()
	if !ok {
		return httpError(domain.ErrGenerationFailed)
	}

	log.WithCtx(ctx).Info("Send completed", zap.String("character", name))
	return c.JSON(http.StatusOK, sendResponse{Character: name, Reply: reply})
}

// requestContext tags the request context for log correlation.
func requestContext(c echo.Context) context.Context {
	return context.WithValue(c.Request().Context(), "request_id", uuid.NewString())
}

// pathName decodes the :name path parameter; character names regularly
// contain spaces.
func pathName(c echo.Context) string {
	raw := c.Param("name")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

// httpError maps the failure taxonomy onto HTTP statuses.
func httpError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrPermissionDenied):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrBackendUnavailable):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrGenerationFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
