package services

import (
	"context"
	"errors"
	"strings"

	"github.com/techagentng/dmchat/config"
	"github.com/techagentng/dmchat/db"
	apiError "github.com/techagentng/dmchat/errors"
	"github.com/techagentng/dmchat/models"
	"github.com/techagentng/dmchat/services/jwt"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthService interface
type AuthService interface {
	Register(ctx context.Context, request *models.RegisterRequest) (*models.User, *apiError.Error)
	Login(ctx context.Context, request *models.LoginRequest) (*models.LoginResponse, *apiError.Error)
	Authenticate(ctx context.Context, token string) (*models.User, *apiError.Error)
	Logout(ctx context.Context, token string, userID uint) *apiError.Error
}

// authService struct
type authService struct {
	Config   *config.Config
	authRepo db.AuthRepository
	logger   *zap.Logger
}

// NewAuthService instantiate an authService
func NewAuthService(authRepo db.AuthRepository, conf *config.Config, logger *zap.Logger) AuthService {
	return &authService{
		Config:   conf,
		authRepo: authRepo,
		logger:   logger,
	}
}

func (a *authService) Register(ctx context.Context, request *models.RegisterRequest) (*models.User, *apiError.Error) {
	if err := models.TrimWhiteSpaces(request); err != nil {
		return nil, apiError.ErrBadRequest
	}
	if err := models.ValidateNickname(request.Nickname); err != nil {
		return nil, apiError.Validation("%s", err.Error())
	}
	if err := models.ValidatePassword(request.Password); err != nil {
		return nil, apiError.Validation("%s", err.Error())
	}

	exists, err := a.authRepo.IsNicknameExist(ctx, request.Nickname)
	if err != nil {
		return nil, toAPIError(a.logger, "check nickname", err)
	}
	if exists {
		return nil, apiError.ErrNicknameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(request.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, toAPIError(a.logger, "hash password", err)
	}

	// the unique index still guards against a concurrent registration
	user, err := a.authRepo.CreateUser(ctx, &models.User{
		Nickname:       request.Nickname,
		HashedPassword: string(hash),
	})
	if err != nil {
		return nil, toAPIError(a.logger, "create user", err)
	}
	a.logger.Info("user registered", zap.Uint("user_id", user.ID), zap.String("nickname", user.Nickname))
	return user, nil
}

func (a *authService) Login(ctx context.Context, request *models.LoginRequest) (*models.LoginResponse, *apiError.Error) {
	if err := models.TrimWhiteSpaces(request); err != nil {
		return nil, apiError.ErrBadRequest
	}
	if request.Nickname == "" || request.Password == "" {
		return nil, apiError.Validation("nickname and password are required")
	}

	foundUser, err := a.authRepo.FindUserByNickname(ctx, request.Nickname)
	if err != nil {
		if errors.Is(err, apiError.ErrUserNotFound) {
			return nil, apiError.ErrInvalidCredentials
		}
		return nil, toAPIError(a.logger, "find user by nickname", err)
	}

	if err := foundUser.VerifyPassword(request.Password); err != nil {
		return nil, apiError.ErrInvalidCredentials
	}

	token, err := jwt.GenerateToken(foundUser.ID, foundUser.Nickname, a.Config.JWTSecret, a.Config.TokenTTL)
	if err != nil {
		return nil, toAPIError(a.logger, "generate token", err)
	}

	return &models.LoginResponse{
		Token:    token,
		UserID:   foundUser.ID,
		Nickname: foundUser.Nickname,
	}, nil
}

// Authenticate resolves a bearer token to its user. A missing token is
// ErrUnauthorized; a bad, expired or revoked one is ErrInvalidToken.
func (a *authService) Authenticate(ctx context.Context, token string) (*models.User, *apiError.Error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apiError.ErrUnauthorized
	}

	claims, err := jwt.ValidateAndGetClaims(token, a.Config.JWTSecret)
	if err != nil {
		return nil, apiError.ErrInvalidToken
	}
	userID, err := jwt.UserIDFromClaims(claims)
	if err != nil {
		return nil, apiError.ErrInvalidToken
	}
	revoked, err := a.authRepo.IsTokenInBlacklist(ctx, token)
	if err != nil {
		return nil, toAPIError(a.logger, "check token blacklist", err)
	}
	if revoked {
		return nil, apiError.ErrInvalidToken
	}

	user, err := a.authRepo.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apiError.ErrUserNotFound) {
			return nil, apiError.ErrInvalidToken
		}
		return nil, toAPIError(a.logger, "find user by id", err)
	}
	return user, nil
}

func (a *authService) Logout(ctx context.Context, token string, userID uint) *apiError.Error {
	if err := a.authRepo.AddToBlackList(ctx, &models.Blacklist{Token: token}); err != nil {
		return toAPIError(a.logger, "blacklist token", err)
	}
	if err := a.authRepo.UpdateUserOnlineStatus(ctx, userID, false); err != nil {
		return toAPIError(a.logger, "set user offline", err)
	}
	return nil
}
