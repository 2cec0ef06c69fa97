package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/techagentng/dmchat/config"
	"github.com/techagentng/dmchat/db"
	"github.com/techagentng/dmchat/mocks"
	"github.com/techagentng/dmchat/models"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	authRepo         db.AuthRepository
	conversationRepo db.ConversationRepository
	deviceRepo       db.DeviceRepository
	deliverer        *mocks.MockDeliverer
	notifier         *mocks.MockNotifier
	auth             AuthService
	chat             ChatService
	presence         PresenceService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	gormDB, err := db.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctrl := gomock.NewController(t)
	f := &fixture{
		authRepo:         db.NewAuthRepo(gormDB),
		conversationRepo: db.NewConversationRepo(gormDB),
		deviceRepo:       db.NewDeviceRepo(gormDB),
		deliverer:        mocks.NewMockDeliverer(ctrl),
		notifier:         mocks.NewMockNotifier(ctrl),
	}
	conf := &config.Config{JWTSecret: "test-secret", TokenTTL: time.Hour}
	f.auth = NewAuthService(f.authRepo, conf, zap.NewNop())
	f.chat = NewChatService(f.authRepo, f.conversationRepo, db.NewMessageRepo(gormDB), f.deviceRepo, f.deliverer, f.notifier, zap.NewNop())
	f.presence = NewPresenceService(f.authRepo, f.deliverer, zap.NewNop())
	return f
}

func (f *fixture) register(t *testing.T, nickname string) *models.User {
	t.Helper()
	user, apiErr := f.auth.Register(context.Background(), &models.RegisterRequest{Nickname: nickname, Password: "Passw0rd"})
	require.Nil(t, apiErr)
	return user
}

func (f *fixture) freezeClock(at time.Time) {
	f.chat.(*chatService).now = func() time.Time { return at }
}
