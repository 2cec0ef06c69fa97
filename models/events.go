package models

import "encoding/json"

// Socket event names.
const (
	EventAuthenticate        = "authenticate"
	EventSendMessage         = "send_message"
	EventAuthenticated       = "authenticated"
	EventAuthenticationError = "authentication_error"
	EventNewMessage          = "new_message"
	EventMessageUpdated      = "message_updated"
	EventMessageDeleted      = "message_deleted"
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
	EventMessageError        = "message_error"
)

// Envelope is one websocket frame: {"event": "...", "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type OutgoingEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type AuthenticatedPayload struct {
	UserID   uint   `json:"userId"`
	Nickname string `json:"nickname"`
}

type PresencePayload struct {
	UserID   uint   `json:"userId"`
	Nickname string `json:"nickname"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
