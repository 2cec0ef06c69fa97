package errors

import (
	"fmt"
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
)

// Error is an API error carrying the HTTP status it maps to.
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func New(message string, status int) *Error {
	return &Error{
		Message: message,
		Status:  status,
	}
}

func (e *Error) Error() string {
	return e.Message
}

// Is lets errors.Is match two *Error values with the same message and status,
// so sentinels survive being copied or re-created.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Message == t.Message && e.Status == t.Status
}

var (
	ErrBadRequest          = New("bad request", http.StatusBadRequest)
	ErrEmptyMessage        = New("message text is required", http.StatusBadRequest)
	ErrSelfConversation    = New("cannot start a conversation with yourself", http.StatusBadRequest)
	ErrInvalidID           = New("invalid id", http.StatusBadRequest)
	ErrUnauthorized        = New("unauthorized", http.StatusUnauthorized)
	ErrInvalidCredentials  = New("invalid nickname or password", http.StatusUnauthorized)
	ErrInvalidToken        = New("invalid or expired token", http.StatusForbidden)
	ErrForbidden           = New("you are not the sender of this message", http.StatusForbidden)
	ErrUserNotFound        = New("user not found", http.StatusNotFound)
	ErrMessageNotFound     = New("message not found", http.StatusNotFound)
	ErrNicknameTaken       = New("nickname already taken", http.StatusConflict)
	ErrTooManyRequests     = New("too many requests", http.StatusTooManyRequests)
	ErrInternalServerError = New("internal server error", http.StatusInternalServerError)
)

// Validation builds a 400 error with a caller-facing message.
func Validation(format string, args ...interface{}) *Error {
	return New(fmt.Sprintf(format, args...), http.StatusBadRequest)
}

// ErrorHandler answers requests rejected by the rate limiter.
func ErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"message":   "too many requests, try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
		"data":      nil,
		"errors":    ErrTooManyRequests.Message,
		"status":    http.StatusText(http.StatusTooManyRequests),
		"timestamp": time.Now().Format(time.RFC850),
	})
}
