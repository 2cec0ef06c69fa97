package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/techagentng/dmchat/config"
	"github.com/techagentng/dmchat/db"
	apiError "github.com/techagentng/dmchat/errors"
	"github.com/techagentng/dmchat/models"
	"go.uber.org/zap"
)

func TestRegister(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	user, apiErr := f.auth.Register(ctx, &models.RegisterRequest{Nickname: "  alice ", Password: "Passw0rd"})
	req.Nil(apiErr)
	req.Equal("alice", user.Nickname)
	req.NotEqual("Passw0rd", user.HashedPassword)
	req.NoError(user.VerifyPassword("Passw0rd"))

	_, apiErr = f.auth.Register(ctx, &models.RegisterRequest{Nickname: "alice", Password: "Other1pass"})
	req.Equal(apiError.ErrNicknameTaken, apiErr)

	others, err := f.authRepo.ListUsersExcept(ctx, 0)
	req.NoError(err)
	req.Len(others, 1)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		nickname string
		password string
	}{
		{"empty nickname", "   ", "Passw0rd"},
		{"short nickname", "al", "Passw0rd"},
		{"long nickname", "abcdefghijklmnopqrstuvwxyz0123456789", "Passw0rd"},
		{"short password", "alice", "Pa0"},
		{"no upper case", "alice", "passw0rd"},
		{"no lower case", "alice", "PASSW0RD"},
		{"no digit", "alice", "Password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, apiErr := f.auth.Register(context.Background(), &models.RegisterRequest{Nickname: tt.nickname, Password: tt.password})
			require.NotNil(t, apiErr)
			require.Equal(t, 400, apiErr.Status)
		})
	}
}

func TestLogin(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	resp, apiErr := f.auth.Login(ctx, &models.LoginRequest{Nickname: "alice", Password: "wrong"})
	req.Nil(resp)
	req.Equal(apiError.ErrInvalidCredentials, apiErr)

	resp, apiErr = f.auth.Login(ctx, &models.LoginRequest{Nickname: "nobody", Password: "Passw0rd"})
	req.Nil(resp)
	req.Equal(apiError.ErrInvalidCredentials, apiErr)

	resp, apiErr = f.auth.Login(ctx, &models.LoginRequest{Nickname: " alice", Password: "Passw0rd"})
	req.Nil(apiErr)
	req.Equal(alice.ID, resp.UserID)
	req.Equal("alice", resp.Nickname)
	req.NotEmpty(resp.Token)

	user, apiErr := f.auth.Authenticate(ctx, resp.Token)
	req.Nil(apiErr)
	req.Equal(alice.ID, user.ID)
}

func TestAuthenticateAndLogout(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	_, apiErr := f.auth.Authenticate(ctx, "")
	req.Equal(apiError.ErrUnauthorized, apiErr)
	_, apiErr = f.auth.Authenticate(ctx, "not-a-token")
	req.Equal(apiError.ErrInvalidToken, apiErr)

	resp, apiErr := f.auth.Login(ctx, &models.LoginRequest{Nickname: "alice", Password: "Passw0rd"})
	req.Nil(apiErr)
	req.NoError(f.authRepo.UpdateUserOnlineStatus(ctx, alice.ID, true))

	req.Nil(f.auth.Logout(ctx, resp.Token, alice.ID))
	_, apiErr = f.auth.Authenticate(ctx, resp.Token)
	req.Equal(apiError.ErrInvalidToken, apiErr)

	found, err := f.authRepo.FindUserByID(ctx, alice.ID)
	req.NoError(err)
	req.False(found.Online)
}

// brokenBlacklistRepo fails the revocation lookup and nothing else.
type brokenBlacklistRepo struct {
	db.AuthRepository
}

func (brokenBlacklistRepo) IsTokenInBlacklist(context.Context, string) (bool, error) {
	return false, errors.New("connection reset")
}

func TestAuthenticateFailsClosedWhenBlacklistUnavailable(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	resp, apiErr := f.auth.Login(ctx, &models.LoginRequest{Nickname: "alice", Password: "Passw0rd"})
	req.Nil(apiErr)

	auth := NewAuthService(brokenBlacklistRepo{f.authRepo}, &config.Config{JWTSecret: "test-secret", TokenTTL: time.Hour}, zap.NewNop())
	user, apiErr := auth.Authenticate(ctx, resp.Token)
	req.Nil(user)
	req.Equal(apiError.ErrInternalServerError, apiErr)
}
