package db

import (
	"context"

	"github.com/pkg/errors"
	"github.com/techagentng/dmchat/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeviceRepository interface {
	SaveDeviceToken(ctx context.Context, userID uint, token string) error
	ListDeviceTokens(ctx context.Context, userID uint) ([]string, error)
	DeleteDeviceTokens(ctx context.Context, tokens []string) error
}

type deviceRepo struct {
	DB *gorm.DB
}

func NewDeviceRepo(db *GormDB) DeviceRepository {
	return &deviceRepo{db.DB}
}

// SaveDeviceToken registers token for userID. A token already known for
// another user moves to userID, since a device has one signed-in user.
func (r *deviceRepo) SaveDeviceToken(ctx context.Context, userID uint, token string) error {
	device := &models.DeviceToken{UserID: userID, Token: token}
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "updated_at"}),
	}).Create(device).Error
	return errors.Wrap(err, "save device token")
}

func (r *deviceRepo) ListDeviceTokens(ctx context.Context, userID uint) ([]string, error) {
	var tokens []string
	err := r.DB.WithContext(ctx).Model(&models.DeviceToken{}).
		Where("user_id = ?", userID).
		Pluck("token", &tokens).Error
	if err != nil {
		return nil, errors.Wrap(err, "list device tokens")
	}
	return tokens, nil
}

func (r *deviceRepo) DeleteDeviceTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	err := r.DB.WithContext(ctx).Where("token IN ?", tokens).Delete(&models.DeviceToken{}).Error
	return errors.Wrap(err, "delete device tokens")
}
