package main

import (
	"context"
	"log"

	"github.com/techagentng/dmchat/config"
	"github.com/techagentng/dmchat/db"
	"github.com/techagentng/dmchat/push"
	"github.com/techagentng/dmchat/realtime"
	"github.com/techagentng/dmchat/server"
	"github.com/techagentng/dmchat/services"
	"go.uber.org/zap"
)

func newLogger(conf *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if conf.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("unable to build logger: %v", err)
	}
	return logger
}

// newNotifier enables FCM push when credentials are configured.
func newNotifier(conf *config.Config, logger *zap.Logger) push.Notifier {
	if conf.GoogleApplicationCredentials == "" {
		logger.Info("push notifications disabled")
		return push.Nop{}
	}
	notifier, err := push.NewFCM(context.Background(), conf.GoogleApplicationCredentials, logger)
	if err != nil {
		logger.Error("push notifications disabled", zap.Error(err))
		return push.Nop{}
	}
	return notifier
}

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := newLogger(conf)
	defer func() { _ = logger.Sync() }()

	gormDB := db.GetDB(conf)
	authRepo := db.NewAuthRepo(gormDB)
	conversationRepo := db.NewConversationRepo(gormDB)
	messageRepo := db.NewMessageRepo(gormDB)
	deviceRepo := db.NewDeviceRepo(gormDB)

	hub := realtime.NewHub(logger)

	authService := services.NewAuthService(authRepo, conf, logger)
	chatService := services.NewChatService(authRepo, conversationRepo, messageRepo, deviceRepo, hub, newNotifier(conf, logger), logger)
	presenceService := services.NewPresenceService(authRepo, hub, logger)

	if err := presenceService.Reset(context.Background()); err != nil {
		logger.Warn("unable to reset presence", zap.Error(err))
	}

	s := &server.Server{
		Config:          conf,
		Logger:          logger,
		AuthService:     authService,
		ChatService:     chatService,
		PresenceService: presenceService,
		Hub:             hub,
	}

	if err := s.Start(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
