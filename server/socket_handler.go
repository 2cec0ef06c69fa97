package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/techagentng/dmchat/models"
	"github.com/techagentng/dmchat/realtime"
	"go.uber.org/zap"
)

const socketEventTimeout = 10 * time.Second

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin admits browsers from the configured origins. Requests
// without an Origin header come from non-browser clients and are allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.Config.AllowAllOrigins() {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	if lo.Contains(s.Config.AllowedOrigins, normalized) {
		return true
	}
	s.Logger.Warn("blocked websocket connection from disallowed origin", zap.String("origin", origin))
	return false
}

func (s *Server) handleWebsocket() gin.HandlerFunc {
	upgrader := s.upgrader()
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			s.Logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		client := realtime.NewClient(ws, c.ClientIP(), realtime.Options{
			RateLimit: s.Config.SocketRateLimit,
			Burst:     s.Config.SocketBurst,
		}, s.Logger)
		if err := s.Hub.Attach(client); err != nil {
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()), time.Now().Add(time.Second))
			_ = ws.Close()
			return
		}
		go client.Run(&socketHandler{s: s})
	}
}

// socketHandler dispatches the events of one channel.
type socketHandler struct {
	s *Server
}

func (h *socketHandler) HandleEvent(c *realtime.Client, envelope models.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), socketEventTimeout)
	defer cancel()

	if envelope.Event == models.EventAuthenticate {
		h.authenticate(ctx, c, envelope.Data)
		return
	}
	if c.User() == nil {
		c.SendError(models.EventMessageError, "Not authenticated")
		return
	}

	switch envelope.Event {
	case models.EventSendMessage:
		h.sendMessage(ctx, c, envelope.Data)
	default:
		c.SendError(models.EventMessageError, "unknown event: "+envelope.Event)
	}
}

func (h *socketHandler) authenticate(ctx context.Context, c *realtime.Client, data json.RawMessage) {
	if c.User() != nil {
		c.SendError(models.EventMessageError, "already authenticated")
		return
	}

	user, apiErr := h.s.AuthService.Authenticate(ctx, tokenFromPayload(data))
	if apiErr != nil {
		c.SendError(models.EventAuthenticationError, apiErr.Message)
		c.Close(realtime.CloseAuthenticationFailed, "authentication failed")
		return
	}

	if err := c.Authenticate(user); err != nil {
		c.SendError(models.EventMessageError, err.Error())
		return
	}
	if _, err := h.s.Hub.Register(c); err != nil {
		c.SendError(models.EventMessageError, err.Error())
		c.Close(websocket.CloseGoingAway, err.Error())
		return
	}

	_ = c.SendEvent(models.EventAuthenticated, models.AuthenticatedPayload{UserID: user.ID, Nickname: user.Nickname})
	h.s.PresenceService.UserOnline(ctx, user)
	h.s.Logger.Info("socket authenticated", zap.Uint("user_id", user.ID), zap.String("conn_id", c.ID))
}

// tokenFromPayload accepts either a bare JSON string or {"token": "..."}.
func tokenFromPayload(data json.RawMessage) string {
	data = bytes.TrimSpace(data)
	var token string
	if err := json.Unmarshal(data, &token); err == nil {
		return token
	}
	var payload models.AuthenticatePayload
	if err := json.Unmarshal(data, &payload); err == nil {
		return payload.Token
	}
	return ""
}

func (h *socketHandler) sendMessage(ctx context.Context, c *realtime.Client, data json.RawMessage) {
	var request models.SendMessageRequest
	if err := json.Unmarshal(data, &request); err != nil {
		c.SendError(models.EventMessageError, "invalid send_message payload")
		return
	}
	if _, apiErr := h.s.ChatService.SendMessage(ctx, c.UserID(), &request); apiErr != nil {
		c.SendError(models.EventMessageError, apiErr.Message)
	}
}

func (h *socketHandler) Disconnected(c *realtime.Client) {
	last := h.s.Hub.Unregister(c)
	user := c.User()
	if user == nil || !last {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), socketEventTimeout)
	defer cancel()
	h.s.PresenceService.UserOffline(ctx, user)
	h.s.Logger.Info("user offline", zap.Uint("user_id", user.ID))
}
