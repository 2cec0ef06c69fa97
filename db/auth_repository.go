package db

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	errs "github.com/techagentng/dmchat/errors"
	"github.com/techagentng/dmchat/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AuthRepository interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	IsNicknameExist(ctx context.Context, nickname string) (bool, error)
	FindUserByNickname(ctx context.Context, nickname string) (*models.User, error)
	FindUserByID(ctx context.Context, id uint) (*models.User, error)
	ListUsersExcept(ctx context.Context, id uint) ([]models.User, error)
	AddToBlackList(ctx context.Context, blacklist *models.Blacklist) error
	IsTokenInBlacklist(ctx context.Context, token string) (bool, error)
	UpdateUserOnlineStatus(ctx context.Context, id uint, online bool) error
	SetAllUsersOffline(ctx context.Context) error
}

type authRepo struct {
	DB *gorm.DB
}

func NewAuthRepo(db *GormDB) AuthRepository {
	return &authRepo{db.DB}
}

func (a *authRepo) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user == nil {
		return nil, errors.New("user is nil")
	}
	err := a.DB.WithContext(ctx).Create(user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.ErrNicknameTaken
		}
		return nil, errors.Wrap(err, "create user")
	}
	return user, nil
}

func (a *authRepo) IsNicknameExist(ctx context.Context, nickname string) (bool, error) {
	var count int64
	err := a.DB.WithContext(ctx).Model(&models.User{}).Where("nickname = ?", nickname).Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "gorm count error")
	}
	return count > 0, nil
}

func (a *authRepo) FindUserByNickname(ctx context.Context, nickname string) (*models.User, error) {
	var user models.User
	err := a.DB.WithContext(ctx).Where("nickname = ?", nickname).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "find user by nickname")
	}
	return &user, nil
}

func (a *authRepo) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := a.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "find user by id")
	}
	return &user, nil
}

func (a *authRepo) ListUsersExcept(ctx context.Context, id uint) ([]models.User, error) {
	var users []models.User
	err := a.DB.WithContext(ctx).Where("id <> ?", id).Order("nickname ASC").Find(&users).Error
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	return users, nil
}

func (a *authRepo) AddToBlackList(ctx context.Context, blacklist *models.Blacklist) error {
	blacklist.Token = normalizeToken(blacklist.Token)
	err := a.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(blacklist).Error
	return errors.Wrap(err, "blacklist token")
}

func normalizeToken(token string) string {
	return strings.TrimSpace(token)
}

func (a *authRepo) IsTokenInBlacklist(ctx context.Context, token string) (bool, error) {
	var count int64
	err := a.DB.WithContext(ctx).Model(&models.Blacklist{}).Where("token = ?", normalizeToken(token)).Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "check token blacklist")
	}
	return count > 0, nil
}

func (a *authRepo) UpdateUserOnlineStatus(ctx context.Context, id uint, online bool) error {
	result := a.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("online", online)
	if result.Error != nil {
		return errors.Wrap(result.Error, "update online status")
	}
	if result.RowsAffected == 0 {
		return errs.ErrUserNotFound
	}
	return nil
}

// SetAllUsersOffline clears presence left over from a previous process.
func (a *authRepo) SetAllUsersOffline(ctx context.Context) error {
	err := a.DB.WithContext(ctx).Model(&models.User{}).Where("online = ?", true).Update("online", false).Error
	return errors.Wrap(err, "reset online status")
}
