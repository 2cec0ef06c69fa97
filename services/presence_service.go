package services

import (
	"context"

	"github.com/techagentng/dmchat/db"
	"github.com/techagentng/dmchat/models"
	"go.uber.org/zap"
)

// PresenceService records who is connected and tells every live channel.
type PresenceService interface {
	UserOnline(ctx context.Context, user *models.User)
	UserOffline(ctx context.Context, user *models.User)
	Reset(ctx context.Context) error
}

type presenceService struct {
	authRepo  db.AuthRepository
	deliverer Deliverer
	logger    *zap.Logger
}

func NewPresenceService(authRepo db.AuthRepository, deliverer Deliverer, logger *zap.Logger) PresenceService {
	return &presenceService{
		authRepo:  authRepo,
		deliverer: deliverer,
		logger:    logger,
	}
}

func (p *presenceService) UserOnline(ctx context.Context, user *models.User) {
	p.set(ctx, user, true)
	p.deliverer.Broadcast(models.EventUserOnline, models.PresencePayload{UserID: user.ID, Nickname: user.Nickname})
}

func (p *presenceService) UserOffline(ctx context.Context, user *models.User) {
	p.set(ctx, user, false)
	p.deliverer.Broadcast(models.EventUserOffline, models.PresencePayload{UserID: user.ID, Nickname: user.Nickname})
}

func (p *presenceService) set(ctx context.Context, user *models.User, online bool) {
	if err := p.authRepo.UpdateUserOnlineStatus(ctx, user.ID, online); err != nil {
		p.logger.Warn("update online status failed", zap.Uint("user_id", user.ID), zap.Bool("online", online), zap.Error(err))
	}
}

// Reset marks every user offline; no channel survives a restart.
func (p *presenceService) Reset(ctx context.Context) error {
	return p.authRepo.SetAllUsersOffline(ctx)
}
