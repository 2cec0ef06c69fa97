package services

import (
	"errors"

	apiError "github.com/techagentng/dmchat/errors"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=../mocks/mock_deliverer.go -package=mocks github.com/techagentng/dmchat/services Deliverer

// Deliverer pushes events to the live channels of connected users.
type Deliverer interface {
	Deliver(userIDs []uint, event string, payload interface{}) int
	Broadcast(event string, payload interface{}) int
	IsOnline(userID uint) bool
}

// toAPIError passes API errors through and hides everything else behind
// a 500 after logging it.
func toAPIError(logger *zap.Logger, op string, err error) *apiError.Error {
	var apiErr *apiError.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	logger.Error(op, zap.Error(err))
	return apiError.ErrInternalServerError
}
